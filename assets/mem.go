package assets

import (
	"context"
	"fmt"
	"sync"
)

type memEntry struct {
	asset Asset
	data  []byte
}

// MemStore keeps assets in memory.
type MemStore struct {
	opts    Options
	mu      sync.RWMutex
	entries map[string]memEntry
	order   []string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore(opts Options) *MemStore {
	return &MemStore{opts: opts, entries: make(map[string]memEntry)}
}

func (s *MemStore) Put(ctx context.Context, originalName string, data []byte) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	a, err := describe(originalName, data, s.opts)
	if err != nil {
		return Asset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a.Name = GenerateName(a.CreatedAt, originalName, a.ContentType, func(name string) bool {
		_, ok := s.entries[name]
		return ok
	})
	s.add(a, data)
	return a, nil
}

func (s *MemStore) Import(ctx context.Context, a Asset, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkImport(a, data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[a.Name]; ok {
		if e.asset.Digest == a.Digest {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrExists, a.Name)
	}
	s.add(a, data)
	return nil
}

func (s *MemStore) add(a Asset, data []byte) {
	s.entries[a.Name] = memEntry{asset: a, data: append([]byte(nil), data...)}
	s.order = append(s.order, a.Name)
}

func (s *MemStore) Open(name string) ([]byte, Asset, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, Asset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if Digest(e.data) != e.asset.Digest {
		return nil, Asset{}, fmt.Errorf("%w: %s", ErrCorrupt, name)
	}
	return append([]byte(nil), e.data...), e.asset, nil
}

func (s *MemStore) ReadAsset(name string) ([]byte, error) {
	data, _, err := s.Open(name)
	return data, err
}

func (s *MemStore) List() ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Asset, len(s.order))
	for i, name := range s.order {
		out[i] = s.entries[name].asset
	}
	return out, nil
}
