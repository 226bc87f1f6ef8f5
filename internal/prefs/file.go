package prefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps the blob in a single JSON file, replaced atomically on
// every write. It serialises writers within one process only.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend returns a backend writing to path. The file and its
// directory are created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the blob. A missing file is not an error.
func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

// Update applies fn to the current blob and writes the result.
func (b *FileBackend) Update(_ context.Context, fn func(old []byte) ([]byte, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, err := b.read()
	if err != nil {
		// An unreadable file is replaced rather than blocking every write.
		old = nil
	}
	next, err := fn(old)
	if err != nil {
		return err
	}
	return b.write(next)
}

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) read() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	return data, nil
}

func (b *FileBackend) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
