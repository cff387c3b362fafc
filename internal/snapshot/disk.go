package snapshot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/aristath/phasing/internal/schedule"
)

const indexKey = "meta-index"

// DiskStore keeps one JSON file per snapshot under a base directory, plus an
// index file recording insertion order.
type DiskStore struct {
	activeName

	mu sync.Mutex
	d  *diskv.Diskv
}

// NewDiskStore creates a store rooted at basePath.
func NewDiskStore(basePath string) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &DiskStore{d: diskv.New(diskv.Options{
		BasePath:          basePath,
		AdvancedTransform: keyToPathTransform,
		InverseTransform:  pathToKeyTransform,
		CacheSizeMax:      1024 * 1024, // 1MB
	})}, nil
}

// Save writes the snapshot file and appends name to the index if new.
func (s *DiskStore) Save(ctx context.Context, name string, tasks []*schedule.Task, assoc schedule.Associations) error {
	if err := validateName(name); err != nil {
		return err
	}

	data, err := encode(&Snapshot{
		Name:         name,
		Tasks:        tasks,
		Associations: assoc,
		SavedAt:      time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.d.Write(snapshotKey(name), data); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", name, err)
	}

	names, err := s.readIndex()
	if err != nil {
		return err
	}
	for _, existing := range names {
		if existing == name {
			s.set(name)
			return nil
		}
	}
	if err := s.writeIndex(append(names, name)); err != nil {
		return err
	}

	s.set(name)
	return nil
}

// Load reads and decodes the named snapshot.
func (s *DiskStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	s.mu.Lock()
	key := snapshotKey(name)
	if !s.d.Has(key) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	data, err := s.d.Read(key)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}

	snap, err := decode(data)
	if err != nil {
		return nil, err
	}
	s.set(name)
	return snap, nil
}

// List returns snapshot names in insertion order.
func (s *DiskStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

// Close is a no-op; every write is flushed immediately.
func (s *DiskStore) Close() error {
	return nil
}

func (s *DiskStore) readIndex() ([]string, error) {
	names := []string{}
	if !s.d.Has(indexKey) {
		return names, nil
	}
	data, err := s.d.Read(indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot index: %w", err)
	}
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot index: %w", err)
	}
	return names, nil
}

func (s *DiskStore) writeIndex(names []string) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := s.d.Write(indexKey, data); err != nil {
		return fmt.Errorf("failed to write snapshot index: %w", err)
	}
	return nil
}

// snapshotKey hex-encodes names so any text is a valid file name.
func snapshotKey(name string) string {
	return "snapshot-" + hex.EncodeToString([]byte(name))
}

func keyToPathTransform(s string) *diskv.PathKey {
	parts := strings.Split(s, "-")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	return fmt.Sprintf("%s-%s", strings.Join(pathKey.Path, "-"), pathKey.FileName)
}
