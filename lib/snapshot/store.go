package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore is the persistence medium: a store of named byte blobs.
type BlobStore interface {
	// ReadBlob returns the content of the blob. The boolean is false if no blob with this name exists.
	ReadBlob(ctx context.Context, name string) ([]byte, bool, error)
	// WriteBlob replaces the content of the blob
	WriteBlob(ctx context.Context, name string, data []byte) error
}

// --------------------------------------------------------------------------
// Memory Store
// --------------------------------------------------------------------------

// MemoryBlobStore keeps blobs in memory. It is mainly used for tests and ephemeral engines.
type MemoryBlobStore struct {
	mutex sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobStore) ReadBlob(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	data, ok := m.blobs[name]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (m *MemoryBlobStore) WriteBlob(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[name] = stored
	return nil
}

// --------------------------------------------------------------------------
// File Store
// --------------------------------------------------------------------------

// FileBlobStore keeps every blob as one file in a directory.
// Writes go to a temporary file first which is then renamed over the old blob,
// so a crash never leaves a half-written blob behind.
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore creates a blob store in dir. The directory is created if it does not exist.
func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileBlobStore{dir: dir}, nil
}

// Dir returns the directory of the store
func (f *FileBlobStore) Dir() string { return f.dir }

func (f *FileBlobStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(f.dir, name), nil
}

func (f *FileBlobStore) ReadBlob(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p, err := f.path(name)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (f *FileBlobStore) WriteBlob(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// remove the temp file on every error path
	ok := false
	defer func() {
		if !ok {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		return err
	}
	ok = true
	return nil
}
