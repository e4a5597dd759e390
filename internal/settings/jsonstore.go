package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// JSONStore keeps the settings snapshot in a single JSON file. Writes
// go to a temp file first and are renamed into place so a crash can
// never leave a torn file behind.
type JSONStore struct {
	path string
}

// NewJSONStore builds a store writing to path, creating the parent
// directory if needed.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("settings store dir: %w", err)
	}
	return &JSONStore{path: path}, nil
}

func (j *JSONStore) Load(_ context.Context) (Snapshot, bool, error) {
	raw, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("settings load: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("settings decode: %w", err)
	}
	return snap, true, nil
}

func (j *JSONStore) Save(_ context.Context, snap Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("settings encode: %w", err)
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("settings write: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return fmt.Errorf("settings replace: %w", err)
	}
	return nil
}
