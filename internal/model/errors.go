package model

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a precondition violation detected by the model engine.
//
// Model errors are local and synchronous: they are surfaced to the caller
// that attempted the mutation and are never retried by the engine.
//
// Error supports errors.Is against the sentinel values below, matching on
// Code only:
//
//	if errors.Is(err, model.ErrDuplicateKey) { ... }
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Member names the affected collection or relation as "shard.member".
	Member string

	// Entity is the affected entity, or the parent of a relation pair.
	Entity Entity

	// Child is the child of a relation pair.
	Child Entity
}

// ErrorCode categorizes model errors.
type ErrorCode string

const (
	// ErrCodeDuplicateKey indicates an add of an id already present.
	ErrCodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// ErrCodeMissingKey indicates a get, modify or remove of an absent id.
	ErrCodeMissingKey ErrorCode = "MISSING_KEY"

	// ErrCodeDuplicateRelation indicates a pair that already exists or would
	// violate the relation's cardinality.
	ErrCodeDuplicateRelation ErrorCode = "DUPLICATE_RELATION"

	// ErrCodeMissingRelation indicates removal of a pair that does not exist.
	ErrCodeMissingRelation ErrorCode = "MISSING_RELATION"

	// ErrCodeInvalidChangeSequence indicates a change that contradicts a
	// pending change for the same entity or pair.
	ErrCodeInvalidChangeSequence ErrorCode = "INVALID_CHANGE_SEQUENCE"

	// ErrCodeNonEmptyLoad indicates a load into a member that already has data.
	ErrCodeNonEmptyLoad ErrorCode = "NON_EMPTY_LOAD"

	// ErrCodeFrozen indicates a mutation of a member already converted back
	// to its read-only form.
	ErrCodeFrozen ErrorCode = "FROZEN"

	// ErrCodeTypeMismatch indicates an entity or properties value of the
	// wrong type for the member.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnknownMember indicates a shard, collection or relation that is
	// not part of the model or registry.
	ErrCodeUnknownMember ErrorCode = "UNKNOWN_MEMBER"

	// ErrCodeDuplicateShard indicates two shards of the same type in one model.
	ErrCodeDuplicateShard ErrorCode = "DUPLICATE_SHARD"

	// ErrCodeConcurrentModification indicates a snapshot whose base model is
	// no longer current at publication time.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// ErrCodeInvalidProperties indicates a property bag that does not match
	// the collection's field descriptors.
	ErrCodeInvalidProperties ErrorCode = "INVALID_PROPERTIES"
)

// Sentinel errors for use with errors.Is.
var (
	ErrDuplicateKey           = &Error{Code: ErrCodeDuplicateKey}
	ErrMissingKey             = &Error{Code: ErrCodeMissingKey}
	ErrDuplicateRelation      = &Error{Code: ErrCodeDuplicateRelation}
	ErrMissingRelation        = &Error{Code: ErrCodeMissingRelation}
	ErrInvalidChangeSequence  = &Error{Code: ErrCodeInvalidChangeSequence}
	ErrNonEmptyLoad           = &Error{Code: ErrCodeNonEmptyLoad}
	ErrFrozen                 = &Error{Code: ErrCodeFrozen}
	ErrTypeMismatch           = &Error{Code: ErrCodeTypeMismatch}
	ErrUnknownMember          = &Error{Code: ErrCodeUnknownMember}
	ErrDuplicateShard         = &Error{Code: ErrCodeDuplicateShard}
	ErrConcurrentModification = &Error{Code: ErrCodeConcurrentModification}
	ErrInvalidProperties      = &Error{Code: ErrCodeInvalidProperties}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var details []string
	if e.Member != "" {
		details = append(details, "member="+e.Member)
	}
	if !e.Entity.IsZero() {
		details = append(details, "entity="+e.Entity.String())
	}
	if !e.Child.IsZero() {
		details = append(details, "child="+e.Child.String())
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}
	return b.String()
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HasCode reports whether err wraps a model error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsDuplicateKey returns true if err is a duplicate-key error.
func IsDuplicateKey(err error) bool { return HasCode(err, ErrCodeDuplicateKey) }

// IsMissingKey returns true if err is a missing-key error.
func IsMissingKey(err error) bool { return HasCode(err, ErrCodeMissingKey) }

// IsDuplicateRelation returns true if err is a duplicate-relation error.
func IsDuplicateRelation(err error) bool { return HasCode(err, ErrCodeDuplicateRelation) }

// IsMissingRelation returns true if err is a missing-relation error.
func IsMissingRelation(err error) bool { return HasCode(err, ErrCodeMissingRelation) }

// IsInvalidChangeSequence returns true if err is an invalid-change-sequence error.
func IsInvalidChangeSequence(err error) bool { return HasCode(err, ErrCodeInvalidChangeSequence) }

// IsNonEmptyLoad returns true if err is a non-empty-model-on-load error.
func IsNonEmptyLoad(err error) bool { return HasCode(err, ErrCodeNonEmptyLoad) }

func newMemberError(code ErrorCode, member MemberInfo, msg string) *Error {
	e := &Error{Code: code, Message: msg}
	if member != nil {
		e.Member = memberPath(member)
	}
	return e
}

// NewNonEmptyLoadError reports a load into a member that already holds data.
func NewNonEmptyLoadError(member MemberInfo, size int) *Error {
	return newMemberError(ErrCodeNonEmptyLoad, member,
		fmt.Sprintf("cannot load into non-empty member (%d existing)", size))
}

func memberPath(m MemberInfo) string {
	return m.ShardName() + "." + m.MemberName()
}

// NewDanglingPairError reports a relation pair whose parent or child is not
// held by any collection of its entity type. end is "parent" or "child".
func NewDanglingPairError(info *RelationInfo, end string, parent, child Entity) *Error {
	e := newMemberError(ErrCodeMissingKey, info, "dangling "+end)
	e.Entity = parent
	e.Child = child
	return e
}
