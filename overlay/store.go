package overlay

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is a session-scoped overlay collection.
type Store interface {
	// Get returns every overlay recorded for a shape.
	Get(ctx context.Context, shapeID string) (Set, bool, error)
	// Put replaces the (shape, kind) entry.
	Put(ctx context.Context, o Overlay) error
	// Delete removes the (shape, kind) entry. Missing entries are not an error.
	Delete(ctx context.Context, shapeID string, kind Kind) error
	// All returns every overlay ordered by shape id, then kind.
	All(ctx context.Context) ([]Overlay, error)
}

type key struct {
	shape string
	kind  Kind
}

// MemoryStore keeps overlays in process memory. It is safe for concurrent
// use; values are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[key]Overlay
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[key]Overlay), now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, shapeID string) (Set, bool, error) {
	if err := ctx.Err(); err != nil {
		return Set{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Set
	for _, k := range Kinds {
		if o, ok := m.entries[key{shapeID, k}]; ok {
			s.put(o.Clone())
		}
	}
	return s, !s.Empty(), nil
}

func (m *MemoryStore) Put(ctx context.Context, o Overlay) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o = o.Clone()
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = m.now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key{o.ShapeID, o.Kind}] = o
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, shapeID string, kind Kind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key{shapeID, kind})
	return nil
}

func (m *MemoryStore) All(ctx context.Context) ([]Overlay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]Overlay, 0, len(m.entries))
	for _, o := range m.entries {
		out = append(out, o.Clone())
	}
	m.mu.RUnlock()
	Sort(out)
	return out, nil
}

// Sort orders overlays by shape id, then kind.
func Sort(overlays []Overlay) {
	sort.SliceStable(overlays, func(i, j int) bool {
		if overlays[i].ShapeID != overlays[j].ShapeID {
			return overlays[i].ShapeID < overlays[j].ShapeID
		}
		return overlays[i].Kind.order() < overlays[j].Kind.order()
	})
}

// Clear removes every overlay from s.
func Clear(ctx context.Context, s Store) error {
	all, err := s.All(ctx)
	if err != nil {
		return err
	}
	for _, o := range all {
		if err := s.Delete(ctx, o.ShapeID, o.Kind); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the contents of s with overlays.
func Load(ctx context.Context, s Store, overlays []Overlay) error {
	if err := Clear(ctx, s); err != nil {
		return err
	}
	for _, o := range overlays {
		if err := s.Put(ctx, o); err != nil {
			return err
		}
	}
	return nil
}
