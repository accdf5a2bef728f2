package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps blobs as files under a base directory.
type Local struct {
	basePath string
}

// NewLocal creates the base directory if needed.
func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "items"), 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

// Save implements Store.
func (s *Local) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	key := newKey(contentType)
	path, err := s.safeJoin(key)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating blob file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		if rerr := os.Remove(path); rerr != nil {
			slog.Error("failed to remove partial blob", "key", key, "error", rerr)
		}
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing blob file: %w", err)
	}
	return key, nil
}

// Get implements Store.
func (s *Local) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.safeJoin(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("opening blob: %w", err)
	}
	return f, contentTypeOf(key), nil
}

// Delete implements Store.
func (s *Local) Delete(ctx context.Context, key string) error {
	path, err := s.safeJoin(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}

// safeJoin resolves key under the base directory and rejects traversal.
func (s *Local) safeJoin(key string) (string, error) {
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("resolving blob directory: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(base, key))
	if err != nil {
		return "", fmt.Errorf("resolving blob path: %w", err)
	}
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return path, nil
}
