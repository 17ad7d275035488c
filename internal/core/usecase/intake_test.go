package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hearthfin/hearth/internal/core/domain"
)

func TestIntakeUploadSuccess(t *testing.T) {
	jobs := newJobStoreFake()
	payloads := newPayloadFake()
	queue := &queueFake{}
	resolver := &resolverFake{parser: &parserFake{name: "rocket_money"}}
	uc := NewIntakeStatementUseCase(jobs, payloads, queue, resolver)

	job, err := uc.Upload(context.Background(), "owner-1", "export.csv", []byte("Date,Amount\n"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if job.ID == "" {
		t.Fatalf("expected job id")
	}
	if job.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", job.Status)
	}
	if job.SourceType != "rocket_money" {
		t.Fatalf("expected source type rocket_money, got %s", job.SourceType)
	}
	if job.Origin != domain.OriginUpload {
		t.Fatalf("expected origin upload, got %s", job.Origin)
	}
	if job.DispatchID == "" {
		t.Fatalf("expected dispatch id")
	}
	if string(payloads.payloads[job.ID]) != "Date,Amount\n" {
		t.Fatalf("expected stashed payload for job %s", job.ID)
	}
	if len(queue.process) != 1 {
		t.Fatalf("expected 1 process dispatch, got %d", len(queue.process))
	}
	if queue.process[0].JobID != job.ID {
		t.Fatalf("expected dispatch for job %s, got %s", job.ID, queue.process[0].JobID)
	}
}

func TestIntakeUploadEmptyFile(t *testing.T) {
	uc := NewIntakeStatementUseCase(newJobStoreFake(), newPayloadFake(), &queueFake{}, &resolverFake{})

	_, err := uc.Upload(context.Background(), "owner-1", "export.csv", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
}

func TestIntakeUploadMissingOwner(t *testing.T) {
	uc := NewIntakeStatementUseCase(newJobStoreFake(), newPayloadFake(), &queueFake{}, &resolverFake{})

	_, err := uc.Upload(context.Background(), "", "export.csv", []byte("x"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
}

func TestIntakeUploadNoParser(t *testing.T) {
	jobs := newJobStoreFake()
	uc := NewIntakeStatementUseCase(jobs, newPayloadFake(), &queueFake{}, &resolverFake{})

	_, err := uc.Upload(context.Background(), "owner-1", "photo.png", []byte{0x89, 0x50})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNoParserMatched) {
		t.Fatalf("expected no parser kind, got %v", err)
	}
	if len(jobs.jobs) != 0 {
		t.Fatalf("expected no job created, got %d", len(jobs.jobs))
	}
}

func TestIntakeUploadStashFailureAbandonsJob(t *testing.T) {
	jobs := newJobStoreFake()
	payloads := newPayloadFake()
	payloads.stashErr = errors.New("bucket down")
	uc := NewIntakeStatementUseCase(jobs, payloads, &queueFake{}, &resolverFake{parser: &parserFake{name: "ofx"}})

	_, err := uc.Upload(context.Background(), "owner-1", "export.ofx", []byte("OFXHEADER"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "stash payload") {
		t.Fatalf("expected stash error, got %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs.jobs))
	}
	for _, job := range jobs.jobs {
		if job.Status != domain.StatusFailed {
			t.Fatalf("expected abandoned job failed, got %s", job.Status)
		}
		if !strings.Contains(job.ErrorMessage, "upload aborted") {
			t.Fatalf("expected abort message, got %q", job.ErrorMessage)
		}
	}
}

func TestIntakeUploadDispatchFailureAbandonsJob(t *testing.T) {
	jobs := newJobStoreFake()
	queue := &queueFake{dispatchErr: errors.New("broker down")}
	uc := NewIntakeStatementUseCase(jobs, newPayloadFake(), queue, &resolverFake{parser: &parserFake{name: "ofx"}})

	_, err := uc.Upload(context.Background(), "owner-1", "export.ofx", []byte("OFXHEADER"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "dispatch process stage") {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	for _, job := range jobs.jobs {
		if job.Status != domain.StatusFailed {
			t.Fatalf("expected abandoned job failed, got %s", job.Status)
		}
	}
}
