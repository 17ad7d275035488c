package localdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hearthfin/hearth/internal/core/domain"
)

// Store reads statement files dropped into the watched directory. Files stay
// in place after import so an operator can see what was picked up.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./data/watch"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create watch dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Read returns the contents of one watched file. The name is flattened to its
// base so a crafted filename cannot escape the watch directory.
func (s *Store) Read(_ context.Context, filename string) ([]byte, error) {
	path := filepath.Join(s.dir, filepath.Base(filename))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrPayloadUnavailable, "read watched file", err)
	}
	if err != nil {
		return nil, fmt.Errorf("read watched file: %w", err)
	}
	return data, nil
}

// List returns the names of regular files currently in the watch directory.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list watch dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}
