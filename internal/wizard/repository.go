package wizard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	// ErrStateNotFound is returned when no persisted wizard state exists yet.
	ErrStateNotFound = errors.New("wizard: state not found")
	// ErrStateCorrupt is returned when the stored record cannot be parsed.
	ErrStateCorrupt = errors.New("wizard: state corrupt")
)

// SlotKey names the single well-known slot holding the active run.
const SlotKey = "wizard"

// StateStore persists the single active wizard run.
type StateStore interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// FileStore keeps the wizard state in one JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file backing this store.
func (r *FileStore) Path() string {
	return r.path
}

// Load reads the persisted state if present.
func (r *FileStore) Load() (State, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("wizard: read %s: %w", r.path, err)
	}
	return DecodeState(data)
}

// Save writes the state through a temporary file and a rename.
func (r *FileStore) Save(state State) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("wizard: ensure state dir: %w", err)
	}
	encoded, err := EncodeState(state)
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("wizard: write state: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("wizard: replace state: %w", err)
	}
	return nil
}

// Clear removes the persisted state. Missing files are not an error.
func (r *FileStore) Clear() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("wizard: clear state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process StateStore. It stores the encoded record so that
// loads go through the same decoding path as durable stores.
type MemoryStore struct {
	data []byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the stored record.
func (m *MemoryStore) Load() (State, error) {
	if m.data == nil {
		return State{}, ErrStateNotFound
	}
	return DecodeState(m.data)
}

// Save encodes and keeps the record.
func (m *MemoryStore) Save(state State) error {
	encoded, err := EncodeState(state)
	if err != nil {
		return err
	}
	m.data = encoded
	return nil
}

// Clear drops the record.
func (m *MemoryStore) Clear() error {
	m.data = nil
	return nil
}

// Raw exposes the stored bytes; tests use it to simulate corruption.
func (m *MemoryStore) Raw() []byte {
	return m.data
}

// SetRaw replaces the stored bytes verbatim.
func (m *MemoryStore) SetRaw(data []byte) {
	m.data = data
}
