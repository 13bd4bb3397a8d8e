package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tsawler/deckform/internal/fileutil"
)

const indexFile = "index.json"

// DirStore keeps assets as files in a directory, with their metadata in
// an index file next to them.
type DirStore struct {
	dir   string
	opts  Options
	mu    sync.RWMutex
	index []Asset
	names map[string]int
}

// OpenDir opens or creates a store rooted at dir.
func OpenDir(dir string, opts Options) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	s := &DirStore{dir: dir, opts: opts, names: make(map[string]int)}

	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read asset index: %w", err)
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return nil, fmt.Errorf("failed to parse asset index: %w", err)
	}
	for i, a := range s.index {
		s.names[a.Name] = i
	}
	return s, nil
}

// Dir returns the store's directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) taken(name string) bool {
	if _, ok := s.names[name]; ok || name == indexFile {
		return true
	}
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

func (s *DirStore) Put(ctx context.Context, originalName string, data []byte) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	a, err := describe(originalName, data, s.opts)
	if err != nil {
		return Asset{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a.Name = GenerateName(a.CreatedAt, originalName, a.ContentType, s.taken)
	if err := s.add(a, data); err != nil {
		return Asset{}, err
	}
	return a, nil
}

func (s *DirStore) Import(ctx context.Context, a Asset, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkImport(a, data); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.names[a.Name]; ok {
		if s.index[i].Digest == a.Digest {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrExists, a.Name)
	}
	if a.Name == indexFile {
		return fmt.Errorf("invalid asset name %q", a.Name)
	}
	return s.add(a, data)
}

// add writes the file, refusing to replace one, then records it in the
// index. Callers hold mu.
func (s *DirStore) add(a Asset, data []byte) error {
	p := filepath.Join(s.dir, a.Name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, a.Name)
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("failed to write asset: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return fmt.Errorf("failed to close asset: %w", err)
	}

	s.names[a.Name] = len(s.index)
	s.index = append(s.index, a)
	if err := s.saveIndex(); err != nil {
		s.index = s.index[:len(s.index)-1]
		delete(s.names, a.Name)
		os.Remove(p)
		return err
	}
	return nil
}

// saveIndex writes the index atomically.
func (s *DirStore) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal asset index: %w", err)
	}
	if err := fileutil.WriteFile(filepath.Join(s.dir, indexFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write asset index: %w", err)
	}
	return nil
}

func (s *DirStore) Open(name string) ([]byte, Asset, error) {
	s.mu.RLock()
	i, ok := s.names[name]
	var a Asset
	if ok {
		a = s.index[i]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, Asset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Asset{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, Asset{}, fmt.Errorf("failed to read asset: %w", err)
	}
	if Digest(data) != a.Digest {
		return nil, Asset{}, fmt.Errorf("%w: %s", ErrCorrupt, name)
	}
	return data, a, nil
}

func (s *DirStore) ReadAsset(name string) ([]byte, error) {
	data, _, err := s.Open(name)
	return data, err
}

func (s *DirStore) List() ([]Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Asset(nil), s.index...), nil
}
