package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore writes output files to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  prefix,
	}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(s.prefix+key))
}

// Write writes data using temp file + rename.
func (s *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	tmp, err := s.WriteTemp(ctx, key, data)
	if err != nil {
		return err
	}
	return s.Finalize(ctx, []string{tmp}, []string{key})
}

// Exists checks if key is present.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath, err := filepath.Abs(s.path(key))
	if err != nil {
		absPath = s.path(key)
	}
	return "file://" + filepath.ToSlash(absPath)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

// WriteTemp writes data to <path>.tmp.<uuid> and returns that path.
func (s *LocalStore) WriteTemp(ctx context.Context, key string, data []byte) (string, error) {
	path := s.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	tempPath := path + ".tmp." + uuid.New().String()
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	return tempPath, nil
}

// Finalize renames temp files into place.
func (s *LocalStore) Finalize(ctx context.Context, tempKeys, finalKeys []string) error {
	if len(tempKeys) != len(finalKeys) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalKeys), len(tempKeys))
	}
	for i, tempPath := range tempKeys {
		path := s.path(finalKeys[i])
		if err := os.Rename(tempPath, path); err != nil {
			s.Abort(ctx, tempKeys[i:])
			return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
		}
	}
	return nil
}

// Abort removes temporary files without publishing.
func (s *LocalStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, p := range tempKeys {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// Head returns metadata about a stored object.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// List returns all keys with the given prefix, relative to the store prefix.
// Temp files are skipped.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.baseDir, filepath.FromSlash(s.prefix))
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.Contains(d.Name(), ".tmp.") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// Verify LocalStore implements AtomicStore.
var _ AtomicStore = (*LocalStore)(nil)
