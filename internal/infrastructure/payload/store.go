package payload

import (
	"context"
	"errors"

	"github.com/hearthfin/hearth/internal/core/domain"
)

// UploadStore holds payloads stashed at upload time, keyed by job id.
type UploadStore interface {
	Stash(ctx context.Context, key string, data []byte) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Discard(ctx context.Context, key string) error
}

// WatchStore reads files from the watched directory by name.
type WatchStore interface {
	Read(ctx context.Context, filename string) ([]byte, error)
}

// Store routes payload access on job origin: uploads travel through the
// TTL-bounded bucket, watch jobs read their file in place. Discard only ever
// touches the bucket; watched files are never removed.
type Store struct {
	uploads UploadStore
	watch   WatchStore
}

func NewStore(uploads UploadStore, watch WatchStore) *Store {
	return &Store{uploads: uploads, watch: watch}
}

func (s *Store) Stash(ctx context.Context, jobID string, data []byte) error {
	return s.uploads.Stash(ctx, jobID, data)
}

func (s *Store) Fetch(ctx context.Context, job *domain.ImportJob) ([]byte, error) {
	if job.Origin == domain.OriginWatch {
		if s.watch == nil {
			return nil, domain.WrapError(domain.ErrPayloadUnavailable, "fetch payload",
				errors.New("watch directory not configured"))
		}
		return s.watch.Read(ctx, job.Filename)
	}
	return s.uploads.Fetch(ctx, job.ID)
}

func (s *Store) Discard(ctx context.Context, jobID string) error {
	return s.uploads.Discard(ctx, jobID)
}
