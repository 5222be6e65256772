// Package file provides file-based persistence for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/salesflow/pkg/persistence"
)

var errInvalidID = errors.New("invalid identifier for file persistence")

// Persistence implements the persistence.Persistence interface using the file system.
// A lead's record and its history share one JSON document, so a transition is a
// single atomic rename. A process-wide mutex serialises writers.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(fp.root, 0o750); err != nil {
		return persistence.Unavailable("create root directory", err)
	}

	if _, err := os.Stat(fp.root); err != nil {
		return persistence.Unavailable("stat root directory", err)
	}

	return nil
}

func (fp *Persistence) path(dir, id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return filepath.Join(fp.root, dir, id+".json"), nil
}

// readJSON returns false when the file does not exist.
func readJSON(filePath string, v any) (bool, error) {
	body, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, persistence.Unavailable("read "+filepath.Base(filePath), err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(filePath), err)
	}

	return true, nil
}

// writeJSON writes to a temporary file and renames it over the target.
func writeJSON(filePath string, v any) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return persistence.Unavailable("create directory", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filePath), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return persistence.Unavailable("create temp file", err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return persistence.Unavailable("write temp file", err)
	}

	if err := tmp.Close(); err != nil {
		return persistence.Unavailable("close temp file", err)
	}

	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return persistence.Unavailable("rename "+filepath.Base(filePath), err)
	}

	return nil
}

func removeFile(filePath string) error {
	err := os.Remove(filePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistence.Unavailable("remove "+filepath.Base(filePath), err)
	}

	return nil
}

// listJSON returns the ids of the JSON documents stored in dir.
func (fp *Persistence) listJSON(dir string) ([]string, error) {
	root := os.DirFS(filepath.Join(fp.root, dir))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
