package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ztkent/sky-quality-meter/tsl2591"
)

// FileStore keeps the seed as a small JSON document.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// fileRecord uses pointers so a missing key is told apart from a zero value.
type fileRecord struct {
	Gain          *int `json:"gain"`
	IntegrationMs *int `json:"integrationMs"`
}

func (s *FileStore) Load(ctx context.Context) (tsl2591.Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return tsl2591.Config{}, ErrNotFound
	}
	if err != nil {
		return tsl2591.Config{}, fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return tsl2591.Config{}, fmt.Errorf("%w: %v", ErrSeedCorrupt, err)
	}
	if rec.Gain == nil || rec.IntegrationMs == nil {
		return tsl2591.Config{}, fmt.Errorf("%w: missing fields", ErrSeedCorrupt)
	}
	if *rec.Gain < 0 || *rec.Gain > 0xFF {
		return tsl2591.Config{}, fmt.Errorf("%w: gain %d", ErrSeedCorrupt, *rec.Gain)
	}
	return Seed{Gain: tsl2591.Gain(*rec.Gain), IntegrationMs: *rec.IntegrationMs}.Config()
}

// Save writes to a temporary file and renames it over the record, so a
// reader never sees a partial write.
func (s *FileStore) Save(ctx context.Context, config tsl2591.Config) error {
	if !config.Valid() {
		return fmt.Errorf("refusing to save invalid configuration %s", config)
	}
	data, err := json.Marshal(FromConfig(config))
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path, data)
}

// WriteFileAtomic replaces path with data via a rename in the same directory.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
