package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthfin/hearth/internal/core/domain"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{
		"import", "jobs", "force-complete", "retry-categorize",
		"import-errors", "seed-categories", "ask",
	}, names)
}

func TestLoadCategorySeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - Groceries\n  - Dining & Drinks\n"), 0o644))

	names, err := LoadCategorySeed(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Groceries", "Dining & Drinks"}, names)
}

func TestLoadCategorySeedMissingFile(t *testing.T) {
	names, err := LoadCategorySeed(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestLoadCategorySeedMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: {notalist"), 0o644))

	_, err := LoadCategorySeed(path)
	require.Error(t, err)
}

func TestPrintJobTable(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printJobTable(&buf, []domain.ImportJob{{
		ID:              "job-1",
		Status:          domain.StatusCompleted,
		Filename:        "may.csv",
		TotalRows:       40,
		ImportedRows:    38,
		CategorizedRows: 38,
		CreatedAt:       created,
	}})

	out := buf.String()
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "38/40")
	assert.Contains(t, out, "2025-06-01T10:00:00Z")
}

func TestPrintFailedJobsFiltersTerminalFailures(t *testing.T) {
	var buf bytes.Buffer
	printFailedJobs(&buf, []domain.ImportJob{
		{ID: "job-ok", Status: domain.StatusCompleted},
		{ID: "job-bad", Status: domain.StatusFailed, ErrorMessage: "parse failed: no rows"},
		{ID: "job-part", Status: domain.StatusPartiallyFailed, ErrorMessage: "provider timeout"},
	})

	out := buf.String()
	assert.NotContains(t, out, "job-ok")
	assert.Contains(t, out, "job-bad")
	assert.Contains(t, out, "job-part")
	assert.Contains(t, out, "provider timeout")
}

func TestPrintJobDetailIncludesErrors(t *testing.T) {
	completed := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
	var buf bytes.Buffer
	printJobDetail(&buf, &domain.ImportJob{
		ID:           "job-9",
		OwnerID:      "local",
		Filename:     "may.pdf",
		Origin:       domain.OriginUpload,
		Status:       domain.StatusPartiallyFailed,
		ErrorMessage: "categorization provider unavailable",
		CreatedAt:    completed.Add(-5 * time.Minute),
		CompletedAt:  &completed,
	})

	out := buf.String()
	assert.Contains(t, out, "job-9")
	assert.Contains(t, out, "partially_failed")
	assert.Contains(t, out, "categorization provider unavailable")
	assert.Contains(t, out, "Completed:")
}
