package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bobmcallan/ledgerd/internal/common"
	"github.com/bobmcallan/ledgerd/internal/models"
)

// FileRawStore persists raw provider snapshots as files, one per sync
// run, under <path>/<connection_id>/. Payloads are written atomically.
type FileRawStore struct {
	path   string
	logger *common.Logger
}

// NewFileRawStore creates the base directory if needed.
func NewFileRawStore(logger *common.Logger, path string) (*FileRawStore, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raw store directory: %w", err)
	}
	return &FileRawStore{path: path, logger: logger}, nil
}

// sanitizeKey makes a string safe for use as a filename component.
func sanitizeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "-", "..", "_", " ", "_")
	return replacer.Replace(key)
}

func (s *FileRawStore) Put(ctx context.Context, snapshot *models.RawSnapshot) error {
	dir := filepath.Join(s.path, sanitizeKey(snapshot.ConnectionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", snapshot.FetchedAt.UTC().Format("20060102T150405Z"), sanitizeKey(snapshot.SyncID))
	final := filepath.Join(dir, name)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}

	s.logger.Debug().Str("connection", snapshot.ConnectionID).Str("file", name).Msg("Raw snapshot stored")
	return nil
}

func (s *FileRawStore) List(ctx context.Context, connectionID string) ([]*models.RawSnapshot, error) {
	dir := filepath.Join(s.path, sanitizeKey(connectionID))
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []*models.RawSnapshot
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", f.Name(), err)
		}
		var snap models.RawSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn().Str("file", f.Name()).Err(err).Msg("Skipping unreadable snapshot")
			continue
		}
		snapshots = append(snapshots, &snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].FetchedAt.Before(snapshots[j].FetchedAt)
	})
	return snapshots, nil
}

func (s *FileRawStore) Close() error { return nil }
