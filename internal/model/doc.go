// Package model implements the tessera model engine: typed entity
// collections and parent/child relations grouped into shards, copy-on-write
// snapshots and an invertible, mergeable change log.
//
// ARCHITECTURE:
//
// Read-only and mutable pairs:
// Every container exists in two states. Collection, Relation and Shard are
// read-only and reachable from a published Model. Mutable() produces an
// independent deep copy (MutableCollection, MutableRelation, MutableShard);
// Freeze() converts it back. A published Model is never mutated.
//
// Snapshot / View:
// View holds the current Model behind an atomic pointer. CreateSnapshot
// wraps it without copying; Snapshot.Shard materializes one mutable shard on
// first use and caches it. ApplySnapshot freezes the materialized shards,
// builds the next Model from them plus the untouched originals, and publishes
// with compare-and-swap.
//
// Features:
// Writes to a mutable collection or relation go through a chain of
// type-erased mutators (CollectionMutator, RelationMutator). Features wrap
// the chain when a shard is materialized. CopyOnWrite adds nothing; Tracking
// records each mutation into the snapshot's ModelChanges.
//
// Change algebra:
// CollectionChangeSet and RelationChangeSet hold at most one pending entry
// per entity or pair and collapse new entries into it, so a set always holds
// the net effect. Sets, ChangesFrame (one per shard) and ModelChanges (one
// per mutation) support Invert, Merge, HasChanges and ApplyTo.
//
// Descriptors:
// CollectionInfo, RelationInfo and ShardInfo are static values created
// alongside each shard type and compared by pointer. They correlate a member
// with its ChangeSet and its storage schema. Registry resolves them by name.
//
// Shards are either hand-written against the generic containers (see the
// fixture package) or built at runtime from descriptors (DynamicShard).
package model
