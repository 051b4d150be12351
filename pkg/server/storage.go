package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/docdiff/docdiff/internal/model"
)

// Upload is an attached source file.
type Upload struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     string      `json:"kind"`
	Shape    model.Shape `json:"shape"`
	Size     int64       `json:"size"`
	Uploaded time.Time   `json:"uploaded"`

	mu     sync.Mutex
	source *model.Source
}

// SourceStore keeps uploads in attach order. When dir is set the index is
// written to dir/index.json after every change and read back on start, so
// uploads survive restarts; their contents are reloaded lazily.
type SourceStore struct {
	mu    sync.RWMutex
	path  string
	byID  map[string]*Upload
	order []string
}

// NewSourceStore creates a store. An empty dir keeps everything in memory.
func NewSourceStore(dir string) (*SourceStore, error) {
	s := &SourceStore{byID: make(map[string]*Upload)}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s.path = filepath.Join(dir, "index.json")

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Get retrieves an upload by id.
func (s *SourceStore) Get(id string) (*Upload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}

// Put appends an upload.
func (s *SourceStore) Put(u *Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[u.ID]; !ok {
		s.order = append(s.order, u.ID)
	}
	s.byID[u.ID] = u
	return s.saveLocked()
}

// Delete removes an upload and returns it.
func (s *SourceStore) Delete(id string) (*Upload, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return u, true, s.saveLocked()
}

// List returns all uploads in attach order.
func (s *SourceStore) List() []*Upload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Upload, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Count returns the number of uploads.
func (s *SourceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *SourceStore) saveLocked() error {
	if s.path == "" {
		return nil
	}

	list := make([]*Upload, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.byID[id])
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *SourceStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var list []*Upload
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range list {
		// Files removed behind our back are dropped.
		if _, err := os.Stat(u.Path); err != nil {
			continue
		}
		s.byID[u.ID] = u
		s.order = append(s.order, u.ID)
	}
	return nil
}

// SourceLoader loads one source; *loader.Loader satisfies it.
type SourceLoader interface {
	LoadE(ctx context.Context, uri string) (*model.Source, error)
}

// Source returns the loaded source, reading the file on first use after
// a restart.
func (u *Upload) Source(ctx context.Context, l SourceLoader) (*model.Source, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.source != nil {
		return u.source, nil
	}
	src, err := l.LoadE(ctx, u.Path)
	if err != nil {
		return nil, err
	}
	u.source = src
	return src, nil
}
