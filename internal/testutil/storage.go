package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/storage"
)

// MemoryStorage is a storage.Storage keeping saved models in memory.
// Loading copies every row and pair of the saved model into the snapshot.
type MemoryStorage struct {
	mu      sync.Mutex
	models  map[string]*model.Model
	changes map[string][]*model.ModelChanges
	err     error
}

var _ storage.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		models:  map[string]*model.Model{},
		changes: map[string][]*model.ModelChanges{},
	}
}

// FailWith makes every following operation fail with err. Nil clears it.
func (s *MemoryStorage) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Model returns the model last saved at path.
func (s *MemoryStorage) Model(path string) (*model.Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[path]
	return m, ok
}

// Changes returns the changes saved at path, in save order.
func (s *MemoryStorage) Changes(path string) []*model.ModelChanges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.ModelChanges(nil), s.changes[path]...)
}

func (s *MemoryStorage) Save(_ context.Context, path string, m *model.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := storage.CheckPairs(m); err != nil {
		return err
	}
	s.models[path] = m
	return nil
}

func (s *MemoryStorage) SaveChanges(_ context.Context, path string, m *model.Model, c *model.ModelChanges) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if err := storage.CheckPairs(m); err != nil {
		return err
	}
	s.models[path] = m
	s.changes[path] = append(s.changes[path], c)
	return nil
}

func (s *MemoryStorage) Load(_ context.Context, path string, snap *model.Snapshot) error {
	s.mu.Lock()
	saved, ok := s.models[path]
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("nothing saved at %q", path)
	}

	targets, err := storage.Targets(snap)
	if err != nil {
		return err
	}
	for _, ms := range targets {
		src, ok := saved.Shard(ms.Info())
		if !ok {
			continue
		}
		if err := copyShard(src, ms); err != nil {
			return err
		}
	}
	return nil
}

func copyShard(src model.Shard, dst model.MutableShard) error {
	info := src.Info()
	for _, ci := range info.Collections {
		view, err := model.CollectionViewOf(src, ci)
		if err != nil {
			return err
		}
		mut, err := model.CollectionMutatorOf(dst, ci)
		if err != nil {
			return err
		}
		for e, p := range view.Rows() {
			if err := storage.AddRow(mut, e, p.Bag()); err != nil {
				return err
			}
		}
	}
	for _, ri := range info.Relations {
		view, err := model.RelationViewOf(src, ri)
		if err != nil {
			return err
		}
		mut, err := model.RelationMutatorOf(dst, ri)
		if err != nil {
			return err
		}
		for parent, child := range view.Pairs() {
			if err := mut.Add(parent, child); err != nil {
				return err
			}
		}
	}
	return nil
}
