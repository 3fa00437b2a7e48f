// Package harness runs YAML scenarios against a schema-driven model.
//
// A scenario compiles a CUE schema, then executes its steps through a
// DomainModel with undo history attached. Every step is traced with the
// changes it published, and the final state is checked against the
// scenario's expectations.
//
// # Scenario Format
//
//	name: sequel_undo
//	description: "Undo reverts a whole commit"
//	schema: ../../testdata/library
//	steps:
//	  - op: add
//	    member: library.books
//	    ref: dune
//	    props: {title: Dune, year: 1965}
//	  - op: commit
//	    steps:
//	      - {op: add, member: library.books, ref: messiah, props: {title: Dune Messiah}}
//	      - {op: link, member: library.sequel, parent: dune, child: messiah}
//	  - op: undo
//	  - op: remove
//	    member: library.books
//	    ref: messiah
//	    error: MISSING_KEY
//	expect:
//	  - {type: count, member: library.books, count: 1}
//	  - {type: entity, member: library.books, ref: dune, props: {year: 1965}}
//	  - {type: history, undo: 1, redo: 1}
//
// The schema is a directory relative to the scenario file, or inline CUE
// under source. Refs name entities: add binds a ref to a new entity, every
// other step refers to a bound one. Each top-level step runs as its own
// command; commit groups nested steps into one. A step naming an error code
// must fail with it.
//
// # Step Ops
//
//   - add: adds props under a new entity bound to ref
//   - modify: merges props into the entity's fields; a null removes a field
//   - remove: removes the entity
//   - link, unlink: add or remove the parent/child pair of a relation
//   - undo, redo: step the history
//   - commit: runs nested add/modify/remove/link/unlink steps as one command
//
// # Expectation Types
//
//   - count: the member holds count entities or pairs
//   - entity: the entity exists and its fields include props
//   - absent: the entity does not exist
//   - linked, unlinked: the pair is or is not in the relation
//   - history: the undo and redo stacks have the given depths
//
// # Deterministic Traces
//
// Entity ids come from a sequential generator, so a scenario produces the
// same trace on every run. RunWithGolden writes the trace as one canonical
// JSON event per line and compares it with testdata/golden/<name>.golden.
package harness
