package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/tessera/internal/model"
)

// SequentialIDs generates predictable entity ids for tests: 1, 2, 3, ...
// encoded in the low bytes of a UUID.
//
// This enables deterministic test execution and golden trace comparison.
// The same scenario with a fresh SequentialIDs produces byte-identical
// change traces.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu  sync.Mutex
	seq uint64
}

// NewSequentialIDs creates a generator whose first id is ID(1).
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// NewID returns the next id.
//
// Implements model.IDGenerator.
func (g *SequentialIDs) NewID() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return ID(g.seq)
}

// Current returns how many ids were generated.
func (g *SequentialIDs) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. After Reset, the next id is ID(1).
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// ID returns the UUID 00000000-0000-0000-0000-<n as 12 hex digits>.
func ID(n uint64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}

// Entity returns an entity of type t with id ID(n).
func Entity(t model.EntityType, n uint64) model.Entity {
	return model.NewEntity(t, ID(n))
}
