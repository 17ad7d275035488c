package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/core/ports"
)

const defaultInterval = 30 * time.Second

var defaultExtensions = []string{".csv", ".ofx", ".qfx"}

// Lister enumerates the files currently in the watched directory.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Watcher polls a drop directory and starts an import job for every new
// statement file. Seen-file tracking lives in the job store, so a restart
// does not re-import files that were already picked up.
type Watcher struct {
	jobs     ports.JobStore
	queue    ports.StageQueue
	files    Lister
	ownerID  string
	interval time.Duration
	exts     map[string]bool
}

type Options struct {
	OwnerID    string
	Interval   time.Duration
	Extensions []string
}

func New(jobs ports.JobStore, queue ports.StageQueue, files Lister, options Options) *Watcher {
	ownerID := options.OwnerID
	if ownerID == "" {
		ownerID = "local"
	}
	interval := options.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	extensions := options.Extensions
	if len(extensions) == 0 {
		extensions = defaultExtensions
	}
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Watcher{
		jobs:     jobs,
		queue:    queue,
		files:    files,
		ownerID:  ownerID,
		interval: interval,
		exts:     exts,
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	names, err := w.files.List(ctx)
	if err != nil {
		slog.Warn("watch_sweep_failed", "error", err)
		return
	}

	for _, name := range names {
		if !w.exts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if err := w.accept(ctx, name); err != nil {
			slog.Warn("watch_file_skipped", "filename", name, "error", err)
		}
	}
}

func (w *Watcher) accept(ctx context.Context, filename string) error {
	seen, err := w.jobs.HasWatchJob(ctx, filename)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	now := time.Now().UTC()
	job := &domain.ImportJob{
		ID:        uuid.NewString(),
		OwnerID:   w.ownerID,
		Filename:  filename,
		Origin:    domain.OriginWatch,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.jobs.Create(ctx, job); err != nil {
		return err
	}

	if err := w.queue.DispatchProcess(ctx, domain.StageHandoff{JobID: job.ID, Status: job.Status}); err != nil {
		// The filename is claimed by the failed job now; fail it loudly so
		// the history shows why the file never imported.
		msg := domain.TruncateErrorMessage("watch dispatch aborted: " + err.Error())
		if forceErr := w.jobs.ForceStatus(ctx, job.ID, domain.StatusFailed, msg); forceErr != nil {
			slog.Error("watch_job_abandon_failed", "job_id", job.ID, "error", forceErr)
		}
		return err
	}

	slog.Info("watch_file_accepted", "job_id", job.ID, "filename", filename)
	return nil
}
