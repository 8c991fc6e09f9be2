// Package location persists the browser's current location string, the
// single replace-only entry that mirrors the visible page and filters.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

const (
	// FileName is the name of the location file inside the state directory
	FileName = "location.json"

	// LockFileName serializes access between browser processes sharing a
	// state directory
	LockFileName = "location.lock"
)

// Store holds one location entry. Replace overwrites it; there is no history.
type Store interface {
	// Load returns the stored location, or "" when nothing has been stored yet
	Load(ctx context.Context) (string, error)

	// Replace overwrites the stored location
	Replace(ctx context.Context, location string) error
}

// entry is the on-disk form of the stored location
type entry struct {
	Location  string    `json:"location"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// fileStore implements Store using a JSON file
type fileStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates a store that keeps the location in dir/location.json
func NewFileStore(dir string) Store {
	return &fileStore{dir: dir, now: time.Now}
}

// Replace writes the location atomically through a temporary file
func (f *fileStore) Replace(_ context.Context, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	lock := flock.New(filepath.Join(f.dir, LockFileName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock location file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(entry{Location: location, UpdatedAt: f.now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	filePath := filepath.Join(f.dir, FileName)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary location file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename location file: %w", err)
	}

	return nil
}

// Load reads the stored location. A missing file is the first run.
func (f *fileStore) Load(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.dir); os.IsNotExist(err) {
		return "", nil
	}

	lock := flock.New(filepath.Join(f.dir, LockFileName))
	if err := lock.RLock(); err != nil {
		return "", fmt.Errorf("failed to lock location file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	// #nosec G304 -- the path is the configured state directory plus a constant file name
	data, err := os.ReadFile(filepath.Join(f.dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read location file: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("failed to unmarshal location file: %w", err)
	}

	return e.Location, nil
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu       sync.Mutex
	location string
	writes   int
}

// NewMemoryStore creates a memory store holding location
func NewMemoryStore(location string) *MemoryStore {
	return &MemoryStore{location: location}
}

// Load returns the held location
func (m *MemoryStore) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location, nil
}

// Replace overwrites the held location
func (m *MemoryStore) Replace(_ context.Context, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = location
	m.writes++
	return nil
}

// Writes returns how many times Replace was called
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
