package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// MemoryStorage is the ephemeral tier: scoped to the current process, gone
// on restart.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// FileStorage is the durable tier: a JSON file rewritten atomically on every
// mutation via a temp file and rename.
type FileStorage struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// NewFileStorage loads (or initializes) the backing file. A corrupt file is
// treated as empty; an unreadable one is an error the caller must handle.
func NewFileStorage(path string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to prepare storage directory")
	}

	fs := &FileStorage{path: path, data: map[string]string{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to read storage file")
	}

	if err := json.Unmarshal(raw, &fs.data); err != nil {
		// Corrupt state is indistinguishable from absent state on purpose.
		fs.data = map[string]string{}
	}

	return fs, nil
}

func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return f.persist()
}

func (f *FileStorage) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.persist()
}

func (f *FileStorage) persist() error {
	raw, err := json.Marshal(f.data)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode storage file")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to write storage file")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to replace storage file")
	}
	return nil
}
