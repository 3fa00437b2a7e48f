package model

import (
	"fmt"

	"github.com/roach88/tessera/internal/value"
)

// Properties is the immutable value payload attached to an entity.
//
// Implementations must be structurally comparable through Equal (used to
// drop no-op modifications) and convertible to a property bag through Bag
// (used by persistence and the changes codec). The reverse conversion is
// supplied per collection by its CollectionInfo.
type Properties interface {
	Equal(other Properties) bool
	Bag() value.Object
}

// Record is a Properties backed directly by a property bag.
// It serves schema-driven shards whose field set is only known at runtime.
type Record struct {
	fields value.Object
}

// NewRecord returns a Record holding a deep copy of fields.
func NewRecord(fields value.Object) Record {
	if fields == nil {
		return Record{fields: value.Object{}}
	}
	return Record{fields: fields.Clone()}
}

// DecodeRecord is the CollectionInfo decoder for Record collections.
func DecodeRecord(bag value.Object) (Record, error) {
	return NewRecord(bag), nil
}

// Equal reports whether other is a Record with equal fields.
func (r Record) Equal(other Properties) bool {
	o, ok := other.(Record)
	if !ok {
		return false
	}
	return r.fields.Equal(o.fields)
}

// Bag returns a copy of the record's fields.
func (r Record) Bag() value.Object {
	return r.fields.Clone()
}

// Get returns a field value.
func (r Record) Get(name string) (value.Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// With returns a copy of r with one field replaced.
func (r Record) With(name string, v value.Value) Record {
	fields := NewRecord(r.fields).fields
	fields[name] = v
	return Record{fields: fields}
}

// String returns the canonical JSON of the record's fields.
func (r Record) String() string {
	data, err := value.MarshalCanonical(r.fields)
	if err != nil {
		return fmt.Sprintf("<invalid record: %v>", err)
	}
	return string(data)
}
