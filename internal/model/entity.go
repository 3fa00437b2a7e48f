package model

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityType tags an entity with the kind of thing it identifies.
// By convention it is a short lowercase noun ("book", "author").
type EntityType string

// Entity is an immutable identity: a type tag plus a 128-bit id.
// Entities carry no data; their properties live in a Collection.
//
// Entity is comparable and is used directly as a map key.
type Entity struct {
	Type EntityType
	ID   uuid.UUID
}

// NewEntity constructs an entity from a type and id.
func NewEntity(t EntityType, id uuid.UUID) Entity {
	return Entity{Type: t, ID: id}
}

// IsZero reports whether e is the zero entity.
func (e Entity) IsZero() bool {
	return e.Type == "" && e.ID == uuid.Nil
}

// String returns "type/id".
func (e Entity) String() string {
	return string(e.Type) + "/" + e.ID.String()
}

// Compare orders entities by (type, id). Returns -1, 0 or +1.
func (e Entity) Compare(other Entity) int {
	if c := cmp.Compare(e.Type, other.Type); c != 0 {
		return c
	}
	return bytes.Compare(e.ID[:], other.ID[:])
}

// ParseEntity parses the "type/id" form produced by String.
func ParseEntity(s string) (Entity, error) {
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return Entity{}, fmt.Errorf("parse entity %q: expected type/id", s)
	}
	id, err := uuid.Parse(s[i+1:])
	if err != nil {
		return Entity{}, fmt.Errorf("parse entity %q: %w", s, err)
	}
	return Entity{Type: EntityType(s[:i]), ID: id}, nil
}

// IDGenerator produces ids for entities created without an explicit id.
type IDGenerator interface {
	NewID() uuid.UUID
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a fresh UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

func idsOrDefault(g IDGenerator) IDGenerator {
	if g == nil {
		return UUIDv7Generator{}
	}
	return g
}
