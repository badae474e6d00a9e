package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend keeps each slot in its own file under a directory. Writes
// go through a temp file and rename so a crash mid-write cannot leave a
// half-written blob.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) Get(_ context.Context, slot string) (string, bool, error) {
	data, err := os.ReadFile(b.path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", slot, err)
	}
	return string(data), true, nil
}

func (b *FileBackend) Put(_ context.Context, slot, blob string) error {
	path := b.path(slot)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(blob), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", slot, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", slot, err)
	}
	return nil
}

func (b *FileBackend) Delete(_ context.Context, slot string) error {
	if err := os.Remove(b.path(slot)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", slot, err)
	}
	return nil
}

func (b *FileBackend) path(slot string) string {
	return filepath.Join(b.dir, slot+".enc")
}
