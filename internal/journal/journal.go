// Package journal keeps a durable, ordered log of published model changes
// in BadgerDB.
//
// Each entry is stored under "changes/" followed by its sequence number as
// a big-endian uint64, so key order is append order. The value is the
// canonical JSON of {"digest": ..., "changes": ...}. Only the net effect of
// each mutation is stored; collapsed intermediate steps are not recoverable.
package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/notify"
	"github.com/roach88/tessera/internal/value"
)

var keyPrefix = []byte("changes/")

// ErrCorrupt is returned by Replay when an entry does not match its digest.
var ErrCorrupt = errors.New("journal: corrupt entry")

// Config configures a Journal.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory keeps the journal in memory. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs.
	// Zero disables it.
	GCInterval time.Duration

	// Logger receives BadgerDB and journal logs. Nil disables BadgerDB's
	// internal logging and uses slog.Default() for the journal.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration for a durable journal at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
	}
}

// InMemoryConfig returns the configuration for a journal without
// persistence.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("journal: path is required for a persistent journal")
	}
	if c.GCInterval < 0 {
		return errors.New("journal: gc interval must not be negative")
	}
	return nil
}

// Entry is one journaled mutation.
type Entry struct {
	Seq     uint64
	Digest  string
	Changes *model.ModelChanges
}

// Journal appends published changes and replays them in order.
type Journal struct {
	db     *badger.DB
	logger *slog.Logger

	mu   sync.Mutex
	next uint64

	stop chan struct{}
	done chan struct{}
}

// Open opens or creates a journal.
func Open(cfg Config) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db, logger: cfg.Logger}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	last, err := j.lastSeq()
	if err != nil {
		db.Close()
		return nil, err
	}
	j.next = last + 1

	if cfg.GCInterval > 0 && !cfg.InMemory {
		j.stop = make(chan struct{})
		j.done = make(chan struct{})
		go j.gc(cfg.GCInterval)
	}
	return j, nil
}

// Close stops garbage collection and closes the database.
func (j *Journal) Close() error {
	if j.stop != nil {
		close(j.stop)
		<-j.done
	}
	return j.db.Close()
}

// Subscribe appends every change published to tree.
func (j *Journal) Subscribe(tree *notify.Tree) (*notify.Subscription, error) {
	return tree.SubscribeModel(j)
}

// OnModelChanges appends c. Failures are logged.
func (j *Journal) OnModelChanges(c *model.ModelChanges) {
	if _, err := j.Append(c); err != nil {
		j.logger.Error("journal append failed", "error", err)
	}
}

// Append stores c as the next entry and returns its sequence number.
// Empty changes are not stored; the returned sequence is then zero.
func (j *Journal) Append(c *model.ModelChanges) (uint64, error) {
	if !c.HasChanges() {
		return 0, nil
	}
	digest, err := model.DigestChanges(c)
	if err != nil {
		return 0, fmt.Errorf("digest changes: %w", err)
	}
	data, err := value.MarshalCanonical(value.Object{
		"digest":  value.String(digest),
		"changes": model.EncodeChanges(c),
	})
	if err != nil {
		return 0, fmt.Errorf("encode changes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	seq := j.next
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("append entry %d: %w", seq, err)
	}
	j.next++
	j.logger.Debug("journal entry appended", "seq", seq, "digest", digest, "entries", c.Len())
	return seq, nil
}

// Len returns the number of entries.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Replay decodes every entry in sequence order and passes it to fn,
// resolving shards and members through reg. It stops at the first error
// from fn or ctx.
func (j *Journal) Replay(ctx context.Context, reg *model.Registry, fn func(Entry) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			seq := binary.BigEndian.Uint64(item.Key()[len(keyPrefix):])
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read entry %d: %w", seq, err)
			}
			entry, err := decodeEntry(reg, seq, data)
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeEntry(reg *model.Registry, seq uint64, data []byte) (Entry, error) {
	v, err := value.UnmarshalJSON(data)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", seq, err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return Entry{}, fmt.Errorf("entry %d: %w: not an object", seq, ErrCorrupt)
	}
	digest, err := obj.GetString("digest")
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", seq, err)
	}
	raw, ok := obj.Get("changes")
	if !ok {
		return Entry{}, fmt.Errorf("entry %d: %w: missing changes", seq, ErrCorrupt)
	}
	bag, ok := raw.(value.Object)
	if !ok {
		return Entry{}, fmt.Errorf("entry %d: %w: changes is %s", seq, ErrCorrupt, value.KindOf(raw))
	}
	changes, err := model.DecodeChanges(reg, bag)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", seq, err)
	}
	got, err := model.DigestChanges(changes)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", seq, err)
	}
	if got != digest {
		return Entry{}, fmt.Errorf("entry %d: %w: digest %s, stored %s", seq, ErrCorrupt, got, digest)
	}
	return Entry{Seq: seq, Digest: digest, Changes: changes}, nil
}

func (j *Journal) lastSeq() (uint64, error) {
	var last uint64
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(entryKey(^uint64(0)))
		if it.Valid() {
			last = binary.BigEndian.Uint64(it.Item().Key()[len(keyPrefix):])
		}
		return nil
	})
	return last, err
}

func (j *Journal) gc(interval time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			if err := j.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				j.logger.Warn("journal value log gc failed", "error", err)
			}
		}
	}
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
