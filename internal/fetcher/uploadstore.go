package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirUploadStore stages push-uploaded payloads on the local filesystem,
// one file per feed. Put overwrites any previous staging; Take consumes
// the staged payload so a run cannot ingest the same upload twice.
type DirUploadStore struct {
	dir string
}

// NewDirUploadStore creates the store, making the directory if needed.
func NewDirUploadStore(dir string) (*DirUploadStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DirUploadStore{dir: dir}, nil
}

// Put stages a payload for the feed, replacing any earlier one.
func (s *DirUploadStore) Put(_ context.Context, feedID string, data []byte) error {
	tmp := s.path(feedID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	if err := os.Rename(tmp, s.path(feedID)); err != nil {
		return fmt.Errorf("commit upload: %w", err)
	}
	return nil
}

// Take returns and removes the staged payload for the feed. A missing
// staging returns empty data and no error; the fetcher reports it.
func (s *DirUploadStore) Take(_ context.Context, feedID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(feedID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read staged upload: %w", err)
	}
	if err := os.Remove(s.path(feedID)); err != nil {
		return nil, fmt.Errorf("consume staged upload: %w", err)
	}
	return data, nil
}

func (s *DirUploadStore) path(feedID string) string {
	// Base strips any path separators an hostile feed id could carry.
	return filepath.Join(s.dir, filepath.Base(feedID))
}
