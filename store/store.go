// Package store persists conversion artifacts keyed by identifier,
// with read-once retrieval and time-based expiry.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown, expired or already-consumed
// identifiers. Once an identifier stops resolving it never resolves
// again; callers must treat this as final.
var ErrNotFound = errors.New("artifact not found or expired")

// Store is a directory-backed content store for packaged artifacts.
// It is the only resource shared between a pipeline run and the
// download path. Each identifier is written exactly once and read at
// most once: Take deletes the backing file before returning, under a
// lock, so a concurrent second read observes not-found rather than a
// half-deleted file.
type Store struct {
	mu        sync.Mutex
	dir       string
	retention time.Duration
	logger    *slog.Logger
}

// New creates a store rooted at dir, creating it if needed. Artifacts
// older than retention are removed by Sweep.
func New(dir string, retention time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Store{dir: dir, retention: retention, logger: logger}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".zip")
}

// Put persists the artifact bytes under id. Identifiers are fresh
// UUIDs generated per run, so collisions are not handled.
func (s *Store) Put(id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path(id), data, 0o644); err != nil {
		return fmt.Errorf("persisting artifact %s: %w", id, err)
	}
	return nil
}

// Take returns the artifact bytes for id and deletes the backing
// file, regardless of whether the caller manages to deliver them.
// A second Take for the same id returns ErrNotFound.
func (s *Store) Take(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading artifact %s: %w", id, err)
	}
	if err := os.Remove(path); err != nil {
		s.logger.Error("failed to delete artifact after retrieval", "id", id, "error", err)
	} else {
		s.logger.Info("deleted downloaded artifact", "id", id)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// Delete removes the artifact for id if it exists. Used to discard
// results of abandoned runs.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to delete artifact", "id", id, "error", err)
	}
}

// Sweep removes artifacts older than the retention window. Best
// effort; failures are logged and skipped.
func (s *Store) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("artifact sweep failed", "error", err)
		return
	}
	cutoff := time.Now().Add(-s.retention)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".zip" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Error("failed to delete expired artifact", "path", path, "error", err)
				continue
			}
			s.logger.Info("deleted expired artifact", "path", path)
		}
	}
}

// StartSweeper runs Sweep immediately and then on every interval tick
// until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		s.Sweep()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
