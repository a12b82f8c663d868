package baseline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileTransport keeps the snapshot as a file in a directory, typically the
// workflow workspace from where it is uploaded as an artifact.
type FileTransport struct {
	dir string
}

// NewFileTransport creates a transport rooted at dir.
func NewFileTransport(dir string) *FileTransport {
	return &FileTransport{dir: dir}
}

// Path returns the snapshot file path.
func (t *FileTransport) Path() string {
	return filepath.Join(t.dir, FileName)
}

// Fetch reads the local snapshot file. The branch is ignored: a workspace
// only ever holds one snapshot.
func (t *FileTransport) Fetch(_ context.Context, _ string) ([]byte, error) {
	data, err := os.ReadFile(t.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading %s: %w", t.Path(), err)
	}

	return data, nil
}

// Store writes the snapshot file, replacing any previous one.
func (t *FileTransport) Store(_ context.Context, _ string, data []byte) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", t.dir, err)
	}

	tmp, err := os.CreateTemp(t.dir, FileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), t.Path()); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("replacing %s: %w", t.Path(), err)
	}

	return nil
}
