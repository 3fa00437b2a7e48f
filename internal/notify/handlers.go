package notify

import "github.com/roach88/tessera/internal/model"

// ModelHandler receives every published ModelChanges.
type ModelHandler interface {
	OnModelChanges(c *model.ModelChanges)
}

// ShardHandler receives the frame of one shard when it has changes.
type ShardHandler interface {
	OnShardChanges(f *model.ChangesFrame)
}

// CollectionHandler receives the change set of one collection when it has changes.
type CollectionHandler interface {
	OnCollectionChanges(s *model.CollectionChangeSet)
}

// RelationHandler receives the change set of one relation when it has changes.
type RelationHandler interface {
	OnRelationChanges(s *model.RelationChangeSet)
}

// EntityHandler receives Modified entries of one entity.
type EntityHandler interface {
	OnEntityModified(c model.CollectionChange)
}

// ModelFunc adapts a function to a ModelHandler. Each call returns a
// distinct handler.
func ModelFunc(fn func(*model.ModelChanges)) ModelHandler { return &modelFunc{fn} }

// ShardFunc adapts a function to a ShardHandler.
func ShardFunc(fn func(*model.ChangesFrame)) ShardHandler { return &shardFunc{fn} }

// CollectionFunc adapts a function to a CollectionHandler.
func CollectionFunc(fn func(*model.CollectionChangeSet)) CollectionHandler {
	return &collectionFunc{fn}
}

// RelationFunc adapts a function to a RelationHandler.
func RelationFunc(fn func(*model.RelationChangeSet)) RelationHandler { return &relationFunc{fn} }

// EntityFunc adapts a function to an EntityHandler.
func EntityFunc(fn func(model.CollectionChange)) EntityHandler { return &entityFunc{fn} }

type modelFunc struct{ fn func(*model.ModelChanges) }
type shardFunc struct{ fn func(*model.ChangesFrame) }
type collectionFunc struct{ fn func(*model.CollectionChangeSet) }
type relationFunc struct{ fn func(*model.RelationChangeSet) }
type entityFunc struct{ fn func(model.CollectionChange) }

func (h *modelFunc) OnModelChanges(c *model.ModelChanges)                  { h.fn(c) }
func (h *shardFunc) OnShardChanges(f *model.ChangesFrame)                  { h.fn(f) }
func (h *collectionFunc) OnCollectionChanges(s *model.CollectionChangeSet) { h.fn(s) }
func (h *relationFunc) OnRelationChanges(s *model.RelationChangeSet)       { h.fn(s) }
func (h *entityFunc) OnEntityModified(c model.CollectionChange)            { h.fn(c) }
