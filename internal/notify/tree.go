// Package notify fans published ModelChanges out to subscribers registered
// at model, shard, member and entity level.
//
// Registration and dispatch never block each other: the subscriber set is an
// immutable value behind an atomic pointer, replaced with compare-and-swap on
// every change. A dispatch works on the set it loaded when it started.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/roach88/tessera/internal/model"
)

// ErrDuplicateSubscription is returned when a handler is registered twice
// for the same target.
var ErrDuplicateSubscription = errors.New("duplicate subscription")

type level uint8

const (
	levelModel level = iota
	levelShard
	levelMember
	levelEntity
)

type key struct {
	level  level
	shard  *model.ShardInfo
	member model.MemberInfo
	entity model.Entity
}

type entry struct {
	handler any
}

type state struct {
	subs map[key][]*entry
}

func (s *state) clone() *state {
	return &state{subs: maps.Clone(s.subs)}
}

// Tree holds subscriptions and dispatches changes to them.
type Tree struct {
	state  atomic.Pointer[state]
	logger *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = l
	}
}

// NewTree creates an empty subscription tree.
func NewTree(opts ...Option) *Tree {
	t := &Tree{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.state.Store(&state{subs: map[key][]*entry{}})
	return t
}

// Subscription is the handle returned by registration.
type Subscription struct {
	tree *Tree
	key  key
	e    *entry
	once sync.Once
}

// Unsubscribe removes the subscription. Calling it more than once, or after
// an entity subscription was dropped by removal of its entity, is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.tree.update(func(st *state) error {
			list := st.subs[s.key]
			for i, e := range list {
				if e == s.e {
					next := make([]*entry, 0, len(list)-1)
					next = append(next, list[:i]...)
					next = append(next, list[i+1:]...)
					if len(next) == 0 {
						delete(st.subs, s.key)
					} else {
						st.subs[s.key] = next
					}
					return nil
				}
			}
			return errNoChange
		})
	})
}

// SubscribeModel registers a handler for every published change.
func (t *Tree) SubscribeModel(h ModelHandler) (*Subscription, error) {
	return t.subscribe(key{level: levelModel}, h)
}

// SubscribeShard registers a handler for changes of one shard.
func (t *Tree) SubscribeShard(info *model.ShardInfo, h ShardHandler) (*Subscription, error) {
	return t.subscribe(key{level: levelShard, shard: info}, h)
}

// SubscribeCollection registers a handler for changes of one collection.
func (t *Tree) SubscribeCollection(info *model.CollectionInfo, h CollectionHandler) (*Subscription, error) {
	return t.subscribe(key{level: levelMember, member: info}, h)
}

// SubscribeRelation registers a handler for changes of one relation.
func (t *Tree) SubscribeRelation(info *model.RelationInfo, h RelationHandler) (*Subscription, error) {
	return t.subscribe(key{level: levelMember, member: info}, h)
}

// SubscribeEntity registers a handler for modifications of one entity of a
// collection. The subscription is dropped when the entity is removed.
func (t *Tree) SubscribeEntity(info *model.CollectionInfo, e model.Entity, h EntityHandler) (*Subscription, error) {
	if e.Type != info.EntityType {
		return nil, &model.Error{
			Code:    model.ErrCodeTypeMismatch,
			Message: fmt.Sprintf("collection %s holds %q, got %q", info, info.EntityType, e.Type),
			Member:  info.String(),
			Entity:  e,
		}
	}
	return t.subscribe(key{level: levelEntity, member: info, entity: e}, h)
}

// Len returns the number of live subscriptions.
func (t *Tree) Len() int {
	n := 0
	for _, list := range t.state.Load().subs {
		n += len(list)
	}
	return n
}

func (t *Tree) subscribe(k key, h any) (*Subscription, error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}
	if v := reflect.ValueOf(h); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, errors.New("nil handler")
	}
	if !reflect.TypeOf(h).Comparable() {
		return nil, fmt.Errorf("handler type %T is not comparable", h)
	}
	e := &entry{handler: h}
	err := t.update(func(st *state) error {
		list := st.subs[k]
		for _, existing := range list {
			if existing.handler == h {
				return ErrDuplicateSubscription
			}
		}
		next := make([]*entry, 0, len(list)+1)
		next = append(next, list...)
		st.subs[k] = append(next, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Subscription{tree: t, key: k, e: e}, nil
}

var errNoChange = errors.New("no change")

// update applies fn to a copy of the current state and publishes it,
// retrying when a concurrent update won.
func (t *Tree) update(fn func(*state) error) error {
	for {
		cur := t.state.Load()
		next := cur.clone()
		if err := fn(next); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}
		if t.state.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

// Publish dispatches changes in order: model handlers, shard handlers, then
// for each member its handlers followed by the entity handlers it triggers.
// Empty changes are not dispatched. Handler panics are logged and swallowed.
func (t *Tree) Publish(c *model.ModelChanges) {
	if c == nil || !c.HasChanges() {
		return
	}
	st := t.state.Load()

	for _, e := range st.subs[key{level: levelModel}] {
		t.call(e, "model", func() { e.handler.(ModelHandler).OnModelChanges(c) })
	}

	frames := c.Frames()
	for _, f := range frames {
		if !f.HasChanges() {
			continue
		}
		for _, e := range st.subs[key{level: levelShard, shard: f.Shard()}] {
			t.call(e, f.Shard().Name, func() { e.handler.(ShardHandler).OnShardChanges(f) })
		}
	}

	var removed []key
	for _, f := range frames {
		for _, set := range f.Sets() {
			if !set.HasChanges() {
				continue
			}
			member := set.Member()
			for _, e := range st.subs[key{level: levelMember, member: member}] {
				t.call(e, member.String(), func() {
					switch s := set.(type) {
					case *model.CollectionChangeSet:
						e.handler.(CollectionHandler).OnCollectionChanges(s)
					case *model.RelationChangeSet:
						e.handler.(RelationHandler).OnRelationChanges(s)
					}
				})
			}
			cs, ok := set.(*model.CollectionChangeSet)
			if !ok {
				continue
			}
			for _, change := range cs.Changes() {
				k := key{level: levelEntity, member: member, entity: change.Entity}
				switch change.Action {
				case model.ActionModified:
					for _, e := range st.subs[k] {
						t.call(e, change.Entity.String(), func() { e.handler.(EntityHandler).OnEntityModified(change) })
					}
				case model.ActionRemoved:
					if _, ok := st.subs[k]; ok {
						removed = append(removed, k)
					}
				}
			}
		}
	}

	if len(removed) > 0 {
		t.drop(removed)
	}
}

func (t *Tree) drop(keys []key) {
	_ = t.update(func(st *state) error {
		changed := false
		for _, k := range keys {
			if _, ok := st.subs[k]; ok {
				delete(st.subs, k)
				changed = true
			}
		}
		if !changed {
			return errNoChange
		}
		return nil
	})
	t.logger.Debug("entity subscriptions dropped", "count", len(keys))
}

func (t *Tree) call(e *entry, target string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("subscriber panicked",
				"target", target,
				"handler", fmt.Sprintf("%T", e.handler),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}
