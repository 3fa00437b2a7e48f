package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/tessera/internal/domain"
	"github.com/roach88/tessera/internal/history"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/schema"
	"github.com/roach88/tessera/internal/testutil"
	"github.com/roach88/tessera/internal/value"
)

// ScenarioError reports a scenario that cannot be executed against its
// schema, such as a step naming an unknown member.
type ScenarioError struct {
	Message string
}

func (e *ScenarioError) Error() string { return e.Message }

func scenarioErrorf(format string, args ...any) error {
	return &ScenarioError{Message: fmt.Sprintf(format, args...)}
}

// Option configures Run.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets the logger of the model and history. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Harness executes the steps of one scenario.
type Harness struct {
	schema  *schema.Schema
	dm      *domain.DomainModel
	history *history.History
	rec     *recorder
	logger  *slog.Logger

	// refs is written by commands on the writer goroutine and read after
	// they resolve.
	refs map[string]model.Entity
}

// Run executes a scenario against a fresh model and returns its result.
// Step and expectation failures are reported in the result; the error is
// for scenarios that cannot run at all.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	sch, err := compileSchema(s)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	m, err := sch.NewModel()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	dm := domain.New(m,
		domain.WithIDGenerator(testutil.NewSequentialIDs()),
		domain.WithLogger(cfg.logger),
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	dm.Start(runCtx)
	defer dm.Close()

	hist, err := history.New(dm, history.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	defer hist.Close()
	rec := &recorder{}
	sub, err := dm.Subscriptions().SubscribeModel(rec)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	h := &Harness{
		schema:  sch,
		dm:      dm,
		history: hist,
		rec:     rec,
		logger:  cfg.logger,
		refs:    map[string]model.Entity{},
	}

	result := NewResult()
	for i, step := range s.Steps {
		if err := h.execute(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("scenario %s: step %d: %w", s.Name, i+1, err)
		}
	}
	result.Model = dm.Current()

	for i, e := range s.Expect {
		if err := h.check(result.Model, e); err != nil {
			var serr *ScenarioError
			if errors.As(err, &serr) {
				return nil, fmt.Errorf("scenario %s: expect[%d]: %w", s.Name, i, err)
			}
			result.AddError(fmt.Sprintf("expect[%d] %s: %v", i, e.Type, err))
		}
	}
	h.logger.Debug("scenario finished", "name", s.Name, "steps", len(s.Steps), "pass", result.Pass)
	return result, nil
}

func compileSchema(s *Scenario) (*schema.Schema, error) {
	if s.Source != "" {
		return schema.CompileString(s.Source, s.Name+".cue")
	}
	return schema.Load(s.Schema)
}

// execute runs one top-level step and records it in the trace.
func (h *Harness) execute(ctx context.Context, seq int, step Step, result *Result) error {
	var err error
	switch step.Op {
	case OpUndo:
		err = h.history.Undo(ctx)
	case OpRedo:
		err = h.history.Redo(ctx)
	case OpCommit:
		err = h.run(ctx, step.Steps)
	default:
		err = h.run(ctx, []Step{step})
	}
	var serr *ScenarioError
	if errors.As(err, &serr) {
		return serr
	}

	changes, cerr := h.rec.take()
	if cerr != nil {
		return cerr
	}
	event := TraceEvent{Seq: seq, Op: step.Op, Changes: changes}
	if err != nil {
		event.Error = ErrorCode(err)
	}
	result.Trace = append(result.Trace, event)

	switch {
	case step.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("step %d (%s): %v", seq, step.Op, err))
	case step.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got success", seq, step.Op, step.Error))
	case step.Error != "" && event.Error != step.Error:
		result.AddError(fmt.Sprintf("step %d (%s): expected %s, got %v", seq, step.Op, step.Error, err))
	}
	return nil
}

// run applies steps in one command.
func (h *Harness) run(ctx context.Context, steps []Step) error {
	_, err := h.dm.Run(ctx, func(_ context.Context, snap *model.Snapshot) error {
		for _, step := range steps {
			if err := h.apply(snap, step); err != nil {
				return err
			}
		}
		return nil
	}).Result()
	return err
}

func (h *Harness) apply(snap *model.Snapshot, step Step) error {
	info, memberName, err := h.member(step.Member)
	if err != nil {
		return err
	}
	shard, err := model.Edit[*model.MutableDynamicShard](snap, info)
	if err != nil {
		return err
	}
	switch step.Op {
	case OpAdd, OpModify, OpRemove:
		coll, ok := shard.Collection(memberName)
		if !ok {
			return scenarioErrorf("shard %s has no collection %q", info.Name, memberName)
		}
		return h.applyCollection(coll, step)
	default:
		rel, ok := shard.Relation(memberName)
		if !ok {
			return scenarioErrorf("shard %s has no relation %q", info.Name, memberName)
		}
		return h.applyRelation(rel, step)
	}
}

func (h *Harness) applyCollection(coll *model.MutableCollection[model.Record], step Step) error {
	ci := coll.Info()
	switch step.Op {
	case OpAdd:
		bag, err := bagOf(ci, step.Props)
		if err != nil {
			return err
		}
		for name, v := range bag {
			if value.IsNull(v) {
				delete(bag, name)
			}
		}
		rec, err := decode(ci, bag)
		if err != nil {
			return err
		}
		e, err := coll.AddNew(rec)
		if err != nil {
			return err
		}
		h.refs[step.Ref] = e
		return nil

	case OpModify:
		e, err := h.ref(step.Ref)
		if err != nil {
			return err
		}
		old, err := coll.Get(e)
		if err != nil {
			return err
		}
		updates, err := bagOf(ci, step.Props)
		if err != nil {
			return err
		}
		bag := old.Bag()
		for name, v := range updates {
			if value.IsNull(v) {
				delete(bag, name)
				continue
			}
			bag[name] = v
		}
		rec, err := decode(ci, bag)
		if err != nil {
			return err
		}
		return coll.Set(e, rec)

	default:
		e, err := h.ref(step.Ref)
		if err != nil {
			return err
		}
		return coll.Remove(e)
	}
}

func (h *Harness) applyRelation(rel *model.MutableRelation, step Step) error {
	parent, err := h.ref(step.Parent)
	if err != nil {
		return err
	}
	child, err := h.ref(step.Child)
	if err != nil {
		return err
	}
	if step.Op == OpLink {
		return rel.Add(parent, child)
	}
	return rel.Remove(parent, child)
}

func (h *Harness) member(name string) (*model.ShardInfo, string, error) {
	shardName, memberName, _ := splitMember(name)
	info, ok := h.schema.Shard(shardName)
	if !ok {
		return nil, "", scenarioErrorf("unknown shard %q", shardName)
	}
	return info, memberName, nil
}

func (h *Harness) ref(name string) (model.Entity, error) {
	e, ok := h.refs[name]
	if !ok {
		return model.Entity{}, scenarioErrorf("ref %q was never added", name)
	}
	return e, nil
}

// bagOf converts scenario props into a bag. Whole numbers given for float
// fields become floats; nulls are kept.
func bagOf(ci *model.CollectionInfo, props map[string]any) (value.Object, error) {
	bag, err := value.ObjectFromAny(props)
	if err != nil {
		return nil, scenarioErrorf("%s props: %v", ci, err)
	}
	for name, v := range bag {
		if f, ok := ci.Field(name); ok && f.Kind == value.KindFloat {
			if n, isInt := v.(value.Int); isInt {
				bag[name] = value.Float(n)
			}
		}
	}
	return bag, nil
}

func decode(ci *model.CollectionInfo, bag value.Object) (model.Record, error) {
	p, err := ci.Decode(bag)
	if err != nil {
		return model.Record{}, err
	}
	rec, ok := p.(model.Record)
	if !ok {
		return model.Record{}, scenarioErrorf("%s does not hold records", ci)
	}
	return rec, nil
}

// ErrorCode names an error in traces: the code of a model error, or a
// history error name.
func ErrorCode(err error) string {
	var me *model.Error
	switch {
	case errors.As(err, &me):
		return string(me.Code)
	case errors.Is(err, history.ErrNothingToUndo):
		return "NOTHING_TO_UNDO"
	case errors.Is(err, history.ErrNothingToRedo):
		return "NOTHING_TO_REDO"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CANCELLED"
	default:
		return "ERROR"
	}
}

// recorder collects the changes published while a step runs.
type recorder struct {
	mu      sync.Mutex
	pending []*model.ModelChanges
}

func (r *recorder) OnModelChanges(c *model.ModelChanges) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, c)
}

// take returns the net changes since the last take, or nil.
func (r *recorder) take() (*model.ModelChanges, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil, nil
	}
	out := r.pending[0]
	for _, c := range r.pending[1:] {
		merged, err := out.Merge(c)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	r.pending = nil
	return out, nil
}
