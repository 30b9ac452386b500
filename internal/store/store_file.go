package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openmined/docsync/internal/utils"
)

// FileStore loads and persists a FingerprintStore at a fixed path.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

// Exists reports whether persisted state is present.
func (f *FileStore) Exists() bool {
	return utils.FileExists(f.path)
}

// Load reads the persisted store. A missing file yields the canonical empty store, which
// is indistinguishable from an explicitly emptied one.
func (f *FileStore) Load() (*FingerprintStore, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("store missing, starting empty", "path", f.path)
			return New(), nil
		}
		return nil, fmt.Errorf("store: read %q: %w", f.path, err)
	}

	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", f.path, err)
	}
	return s, nil
}

// Persist replaces the persisted state with s. The write goes through a temp file and a
// rename, so a crash mid-write loses the update but never corrupts the previous state.
func (f *FileStore) Persist(s *FingerprintStore) error {
	data, err := Encode(s)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}
	if err := utils.WriteFileAtomic(f.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrPersist, f.path, err)
	}
	slog.Debug("store persisted", "path", f.path, "records", s.Len(), "counter", s.Counter())
	return nil
}

// Update loads the persisted store, applies fn and persists the result.
func (f *FileStore) Update(fn func(*FingerprintStore) error) (*FingerprintStore, error) {
	s, err := f.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := f.Persist(s); err != nil {
		return nil, err
	}
	return s, nil
}
