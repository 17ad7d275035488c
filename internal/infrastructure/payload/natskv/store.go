package natskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hearthfin/hearth/internal/core/domain"
)

// Store keeps uploaded statement payloads in a JetStream key-value bucket
// keyed by job id. The bucket TTL bounds how long an unprocessed upload can
// linger; a job that outlives its payload fails with a re-upload hint.
type Store struct {
	kv nats.KeyValue
}

func New(conn *nats.Conn, bucket string, ttl time.Duration) (*Store, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "statement payloads awaiting import",
			TTL:         ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open payload bucket %q: %w", bucket, err)
	}
	return &Store{kv: kv}, nil
}

func (s *Store) Stash(_ context.Context, key string, data []byte) error {
	if _, err := s.kv.Put(key, data); err != nil {
		return fmt.Errorf("stash payload: %w", err)
	}
	return nil
}

func (s *Store) Fetch(_ context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, domain.WrapError(domain.ErrPayloadUnavailable, "fetch payload", err)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch payload: %w", err)
	}
	return entry.Value(), nil
}

// Discard is idempotent: the TTL may have expired the key already.
func (s *Store) Discard(_ context.Context, key string) error {
	err := s.kv.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("discard payload: %w", err)
	}
	return nil
}
