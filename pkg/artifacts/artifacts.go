// Package artifacts materializes stage outputs to an object store so the
// generated documents survive outside the audit database.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"autoninja/pkg/utils"
)

// Store persists stage output documents. Put returns a URI usable in stage
// records (s3://bucket/key or file:///path).
type Store interface {
	Put(ctx context.Context, jobID, stage, filename string, content []byte, contentType string) (string, error)
}

// objectKey builds the store key for a stage document.
func objectKey(jobID, stage, filename string) string {
	return fmt.Sprintf("%s/%s/%s",
		utils.SanitizeIdentifier(jobID),
		utils.SanitizeIdentifier(stage),
		filename,
	)
}

// LocalStore writes artifacts under a directory on the local filesystem.
// The dev-mode fallback when no object store endpoint is configured.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local artifact store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Put implements Store.
func (l *LocalStore) Put(_ context.Context, jobID, stage, filename string, content []byte, _ string) (string, error) {
	path := filepath.Join(l.root, filepath.FromSlash(objectKey(jobID, stage, filename)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs), nil
}
