package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/voice-engine/internal/core"
)

const (
	dirPermissions = 0o755
	tempPrefix     = ".tmp-"
)

// ErrInvalidKey indicates a key that is not a plain file name.
var ErrInvalidKey = errors.New("invalid cache key")

// DirStore is a core.ObjectStore over a local directory. Writes go to a temp
// file that is renamed into place, so readers never observe a partial blob.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	return &DirStore{dir: dir}, nil
}

// Download reads a blob; a missing blob is core.ErrObjectNotFound.
func (d *DirStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
		}

		return nil, fmt.Errorf("failed to read cache blob %s: %w", key, err)
	}

	return data, nil
}

// Upload writes a blob atomically.
func (d *DirStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}

	file, err := os.CreateTemp(d.dir, tempPrefix+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}

	tempPath := file.Name()

	_, writeErr := file.Write(data)
	closeErr := file.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to write cache blob %s: %w", key, errors.Join(writeErr, closeErr))
	}

	err = os.Rename(tempPath, path)
	if err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to commit cache blob %s: %w", key, err)
	}

	return nil
}

// Delete removes a blob. Removing a missing blob is not an error.
func (d *DirStore) Delete(_ context.Context, key string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache blob %s: %w", key, err)
	}

	return nil
}

// List returns the committed blob names.
func (d *DirStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory %s: %w", d.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}

		names = append(names, entry.Name())
	}

	return names, nil
}

func (d *DirStore) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(d.dir, key), nil
}
