// Package domain provides DomainModel, the entry point applications use to
// read and mutate a model.
//
// ARCHITECTURE:
//
// Mutations (Run, Apply, Load) are queued on a single-writer executor and
// run one at a time in submission order. Each one works on a fresh snapshot
// of the current model and publishes it with View.ApplySnapshot. Readers
// call Current and never block.
//
// Saves capture the current model when requested and run on a bounded pool,
// concurrently with later mutations. A captured model is never mutated.
//
// After a mutation publishes non-empty changes, the changes are dispatched
// to the subscription tree on the writer goroutine before the operation's
// Pending resolves. History, the journal and AutoSave all attach there.
package domain

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/notify"
	"github.com/roach88/tessera/internal/scheduler"
	"github.com/roach88/tessera/internal/storage"
)

// Command mutates a snapshot. It runs on the writer goroutine; returning an
// error discards the snapshot.
type Command func(ctx context.Context, s *model.Snapshot) error

// DomainModel serializes mutations of a model and notifies subscribers of
// their changes.
type DomainModel struct {
	view    *model.View
	exec    *scheduler.Sequential
	pool    *scheduler.Pool
	subs    *notify.Tree
	logger  *slog.Logger
	tracer  trace.Tracer
	started atomic.Bool

	ids      model.IDGenerator
	poolSize int64
	provider trace.TracerProvider
}

// Option configures a DomainModel.
type Option func(*DomainModel)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *DomainModel) {
		d.logger = l
	}
}

// WithIDGenerator sets the generator used by AddNew inside commands.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(d *DomainModel) {
		d.ids = g
	}
}

// WithPoolSize bounds the number of concurrent saves.
func WithPoolSize(n int64) Option {
	return func(d *DomainModel) {
		d.poolSize = n
	}
}

// WithTracerProvider sets the provider of operation spans. Default: the
// global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *DomainModel) {
		d.provider = tp
	}
}

// New creates a DomainModel publishing initial. Call Start before
// submitting mutations.
func New(initial *model.Model, opts ...Option) *DomainModel {
	d := &DomainModel{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	if d.provider == nil {
		d.provider = otel.GetTracerProvider()
	}
	d.tracer = d.provider.Tracer("github.com/roach88/tessera/internal/domain")

	var viewOpts []model.ViewOption
	if d.ids != nil {
		viewOpts = append(viewOpts, model.WithIDGenerator(d.ids))
	}
	d.view = model.NewView(initial, viewOpts...)
	d.exec = scheduler.NewSequential(scheduler.WithLogger(d.logger))
	d.pool = scheduler.NewPool(d.poolSize)
	d.subs = notify.NewTree(notify.WithLogger(d.logger))
	return d
}

// Start runs the writer loop until ctx is cancelled or Close is called.
func (d *DomainModel) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	d.exec.Start(ctx)
	d.logger.Debug("domain model started", "generation", d.Current().Generation())
}

// Close stops the writer. Queued mutations fail with scheduler.ErrClosed; a
// running one completes. Close waits for the writer and for running saves.
func (d *DomainModel) Close() {
	d.exec.Close()
	if d.started.Load() {
		<-d.exec.Done()
	}
	d.pool.Wait()
	queueDepth.Set(0)
}

// Current returns the published model.
func (d *DomainModel) Current() *model.Model {
	return d.view.Model()
}

// Subscriptions returns the tree changes are dispatched to.
func (d *DomainModel) Subscriptions() *notify.Tree {
	return d.subs
}

// Run queues cmd against a tracked snapshot. The result is the net changes
// cmd made, possibly empty. A failing or panicking command publishes
// nothing and fails with an *OperationError. If ctx is done before cmd
// starts, cmd never runs and the result is ctx's error.
func (d *DomainModel) Run(ctx context.Context, cmd Command) *scheduler.Pending[*model.ModelChanges] {
	return submit(d, ctx, OpRun, func(ctx context.Context) (*model.ModelChanges, error) {
		snap := d.view.CreateSnapshot(model.CopyOnWrite, model.Tracking)
		if err := cmd(ctx, snap); err != nil {
			snap.Discard()
			return nil, err
		}
		commit, err := d.view.ApplySnapshot(snap)
		if err != nil {
			return nil, err
		}
		d.publish(OpRun, commit)
		return commit.Changes, nil
	})
}

// Apply queues changes computed elsewhere, such as an inverse for undo or a
// replayed journal entry. Subscribers receive the same changes value.
func (d *DomainModel) Apply(ctx context.Context, changes *model.ModelChanges) *scheduler.Pending[*model.ModelChanges] {
	return submit(d, ctx, OpApply, func(ctx context.Context) (*model.ModelChanges, error) {
		snap := d.view.CreateSnapshot(model.CopyOnWrite)
		if err := changes.ApplyTo(snap); err != nil {
			snap.Discard()
			return nil, err
		}
		commit, err := d.view.ApplySnapshot(snap)
		if err != nil {
			return nil, err
		}
		commit.Changes = changes
		d.publish(OpApply, commit)
		return changes, nil
	})
}

// Load queues a load of path into the current model. Every member must be
// empty. Subscribers are not notified.
func (d *DomainModel) Load(ctx context.Context, st storage.Storage, path string) *scheduler.Pending[*model.Model] {
	return submit(d, ctx, OpLoad, func(ctx context.Context) (*model.Model, error) {
		snap := d.view.CreateSnapshot(model.CopyOnWrite)
		if err := st.Load(ctx, path, snap); err != nil {
			snap.Discard()
			return nil, err
		}
		commit, err := d.view.ApplySnapshot(snap)
		if err != nil {
			return nil, err
		}
		d.logger.Info("model loaded", "path", path, "generation", commit.New.Generation())
		return commit.New, nil
	})
}

// Save writes the current model to path on the save pool. The model is
// captured when Save is called.
func (d *DomainModel) Save(ctx context.Context, st storage.Storage, path string) *scheduler.Pending[*model.Model] {
	m := d.Current()
	return scheduler.Go(d.pool, ctx, instrument(d.tracer, OpSave, func(ctx context.Context) (*model.Model, error) {
		if err := st.Save(ctx, path, m); err != nil {
			return nil, err
		}
		d.logger.Debug("model saved", "path", path, "generation", m.Generation())
		return m, nil
	}))
}

// SaveChanges writes changes to path on the save pool, with the current
// model captured when SaveChanges is called.
func (d *DomainModel) SaveChanges(ctx context.Context, st storage.Storage, path string, changes *model.ModelChanges) *scheduler.Pending[*model.Model] {
	m := d.Current()
	return scheduler.Go(d.pool, ctx, instrument(d.tracer, OpSave, func(ctx context.Context) (*model.Model, error) {
		if err := st.SaveChanges(ctx, path, m, changes); err != nil {
			return nil, err
		}
		d.logger.Debug("changes saved", "path", path, "generation", m.Generation(), "entries", changes.Len())
		return m, nil
	}))
}

func (d *DomainModel) publish(op Op, c model.Commit) {
	if !c.Changes.HasChanges() {
		return
	}
	d.logger.Debug("changes published",
		"op", op,
		"generation", c.New.Generation(),
		"entries", c.Changes.Len(),
	)
	d.subs.Publish(c.Changes)
}

func submit[T any](d *DomainModel, ctx context.Context, op Op, fn func(ctx context.Context) (T, error)) *scheduler.Pending[T] {
	wrapped := instrument(d.tracer, op, fn)
	p := scheduler.Submit(d.exec, ctx, func(ctx context.Context) (T, error) {
		defer queueDepth.Set(float64(d.exec.Len()))
		return wrapped(ctx)
	})
	queueDepth.Set(float64(d.exec.Len()))
	return p
}

func panicError(r any) error {
	return &scheduler.PanicError{Value: r, Stack: debug.Stack()}
}
