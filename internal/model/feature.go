package model

// CollectionMutator is the type-erased mutable surface of a collection.
// Features wrap it to add behavior without the collection knowing.
type CollectionMutator interface {
	Info() *CollectionInfo
	Len() int
	Contains(e Entity) bool
	Get(e Entity) (Properties, error)
	Add(e Entity, p Properties) error
	Modify(e Entity, fn func(Properties) (Properties, error)) error
	Remove(e Entity) error
}

// RelationMutator is the type-erased mutable surface of a relation.
type RelationMutator interface {
	Info() *RelationInfo
	Len() int
	Contains(parent, child Entity) bool
	Add(parent, child Entity) error
	Remove(parent, child Entity) error
}

// Feature decorates the mutators of a shard when the shard is materialized
// into its mutable form. Features are applied in the order supplied, each
// wrapping the result of the previous one.
type Feature interface {
	DecorateCollection(d *Decorator, m CollectionMutator) CollectionMutator
	DecorateRelation(d *Decorator, m RelationMutator) RelationMutator
}

// Built-in features.
var (
	// CopyOnWrite returns mutators unchanged: the copy already happened when
	// the read-only shard produced its mutable counterpart.
	CopyOnWrite Feature = copyOnWrite{}

	// Tracking records every mutation into the snapshot's ModelChanges.
	Tracking Feature = tracking{}
)

type copyOnWrite struct{}

func (copyOnWrite) DecorateCollection(_ *Decorator, m CollectionMutator) CollectionMutator {
	return m
}

func (copyOnWrite) DecorateRelation(_ *Decorator, m RelationMutator) RelationMutator {
	return m
}

// Decorator carries the per-shard context features need while decorating:
// the shard being materialized, the feature list and the in-flight changes.
//
// A nil *Decorator is valid and decorates nothing.
type Decorator struct {
	shard    *ShardInfo
	features []Feature
	changes  *ModelChanges
	ids      IDGenerator
}

// NewDecorator creates a decorator for one shard.
func NewDecorator(shard *ShardInfo, changes *ModelChanges, ids IDGenerator, features ...Feature) *Decorator {
	return &Decorator{shard: shard, features: features, changes: changes, ids: ids}
}

// Shard returns the descriptor of the shard being materialized.
func (d *Decorator) Shard() *ShardInfo { return d.shard }

// Changes returns the in-flight changes of the snapshot, or nil.
func (d *Decorator) Changes() *ModelChanges {
	if d == nil {
		return nil
	}
	return d.changes
}

// IDs returns the generator for entities added without an explicit id.
func (d *Decorator) IDs() IDGenerator {
	if d == nil {
		return idsOrDefault(nil)
	}
	return idsOrDefault(d.ids)
}

// Collection applies every feature to a collection mutator.
func (d *Decorator) Collection(m CollectionMutator) CollectionMutator {
	if d == nil {
		return m
	}
	for _, f := range d.features {
		m = f.DecorateCollection(d, m)
	}
	return m
}

// Relation applies every feature to a relation mutator.
func (d *Decorator) Relation(m RelationMutator) RelationMutator {
	if d == nil {
		return m
	}
	for _, f := range d.features {
		m = f.DecorateRelation(d, m)
	}
	return m
}
