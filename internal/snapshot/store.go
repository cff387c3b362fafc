package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/phasing/internal/schedule"
)

// ErrNotFound is returned by Load for an unknown snapshot name.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a named copy of a task set and its element associations.
type Snapshot struct {
	Name         string
	Tasks        []*schedule.Task
	Associations schedule.Associations
	SavedAt      time.Time
}

// Store persists named snapshots.
//
// Save deep-copies its input and overwrites an existing snapshot of the same
// name without changing its position in List. Load returns a deep copy.
// Instants survive exactly, including their UTC offset.
type Store interface {
	Save(ctx context.Context, name string, tasks []*schedule.Task, assoc schedule.Associations) error
	Load(ctx context.Context, name string) (*Snapshot, error)
	List(ctx context.Context) ([]string, error)

	// ActiveName is the most recently saved or loaded name. Advisory only.
	ActiveName() string

	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendDisk   = "disk"
)

// Open creates a store for the named backend. path is the database file for
// sqlite and the base directory for disk; memory ignores it.
func Open(ctx context.Context, backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		var s *SQLiteStore
		var err error
		if path == "" {
			s, err = NewMemorySQLiteStore(ctx)
		} else {
			s, err = NewSQLiteStore(ctx, path)
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendDisk:
		if path == "" {
			return nil, fmt.Errorf("disk snapshot store requires a path")
		}
		s, err := NewDiskStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", backend)
	}
}

// activeName tracks the advisory active snapshot name.
type activeName struct {
	mu   sync.Mutex
	name string
}

func (a *activeName) set(name string) {
	a.mu.Lock()
	a.name = name
	a.mu.Unlock()
}

// ActiveName returns the most recently saved or loaded name.
func (a *activeName) ActiveName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func validateName(name string) error {
	if name == "" {
		return errors.New("snapshot name must not be empty")
	}
	return nil
}
