package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/phasing/internal/schedule"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	activeName

	mu    sync.RWMutex
	order []string
	byKey map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]*Snapshot)}
}

// Save stores a deep copy under name.
func (m *MemoryStore) Save(ctx context.Context, name string, tasks []*schedule.Task, assoc schedule.Associations) error {
	if err := validateName(name); err != nil {
		return err
	}

	snap := &Snapshot{
		Name:         name,
		Tasks:        schedule.CloneTasks(tasks),
		Associations: assoc.Clone(),
		SavedAt:      time.Now().UTC(),
	}

	m.mu.Lock()
	if _, exists := m.byKey[name]; !exists {
		m.order = append(m.order, name)
	}
	m.byKey[name] = snap
	m.mu.Unlock()

	m.set(name)
	return nil
}

// Load returns a deep copy of the named snapshot.
func (m *MemoryStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.byKey[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	m.set(name)
	return &Snapshot{
		Name:         snap.Name,
		Tasks:        schedule.CloneTasks(snap.Tasks),
		Associations: snap.Associations.Clone(),
		SavedAt:      snap.SavedAt,
	}, nil
}

// List returns snapshot names in insertion order.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.order...), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
