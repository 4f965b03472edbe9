package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// LocalStore writes blobs to a directory served under a public base URL.
// This is the default backend for single-node deployments.
type LocalStore struct {
	baseDir string
	baseURL string
	logger  hclog.Logger
}

// NewLocalStore creates a disk-backed blob store
func NewLocalStore(baseDir, baseURL string, logger hclog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("local-store"),
	}, nil
}

// Put stores the content under key and returns its public URL
func (s *LocalStore) Put(ctx context.Context, r io.Reader, key, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create object file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	s.logger.Debug("stored object", "key", key, "bytes", n, "content_type", contentType)
	return s.URLFor(key), nil
}

// PutFile uploads a local file under key and returns its public URL
func (s *LocalStore) PutFile(ctx context.Context, path, key, contentType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	return s.Put(ctx, f, key, contentType)
}

// Delete removes the object; missing objects are not an error
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// URLFor returns the public URL for a key
func (s *LocalStore) URLFor(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// BaseDir returns the backing directory, used by the server to serve files
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}
