package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lynsa/outreach-backend/internal/logging"
	"github.com/lynsa/outreach-backend/internal/models"
)

// SnapshotToDisk rewrites the snapshot file wholesale: one JSON object keyed
// by decorated correlation id. The snapshot is a restart-time cache warmer,
// not a source of truth; it may lag the in-memory tier by one interval.
func (s *Store) SnapshotToDisk() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.threads, "", "  ")
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(s.snapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	if err := os.WriteFile(s.snapshotPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	return nil
}

// LoadFromDisk replaces the in-memory tier with the snapshot file contents.
// A missing file is not an error: the database tier remains the durable
// fallback for any identifier not found in memory.
func (s *Store) LoadFromDisk() error {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	threads := make(map[string]*models.Thread)
	if err := json.Unmarshal(data, &threads); err != nil {
		return fmt.Errorf("failed to parse snapshot: %w", err)
	}

	for _, thread := range threads {
		if thread.Replies == nil {
			thread.Replies = []models.Reply{}
		}
	}

	s.mu.Lock()
	s.threads = threads
	s.mu.Unlock()

	return nil
}

// RunSnapshotLoop dumps the store to disk on a fixed interval until the
// context is cancelled. A final snapshot is attempted on shutdown.
func (s *Store) RunSnapshotLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.SnapshotToDisk(); err != nil {
				logging.Log.Errorf("store: final snapshot failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.SnapshotToDisk(); err != nil {
				logging.Log.Errorf("store: snapshot failed, restart would fall back to database reads: %v", err)
			}
		}
	}
}
