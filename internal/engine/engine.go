package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/framestate/internal/query"
	"github.com/roach88/framestate/internal/registry"
	"github.com/roach88/framestate/internal/vobj"
)

// DefaultRate is the step rate used when neither the frame nor the engine
// options give one.
const DefaultRate = 30.0

// Observation is one tracked object in a frame.
type Observation struct {
	TrackID string         `json:"track_id" yaml:"track_id"`
	Class   string         `json:"class" yaml:"class"`
	Attrs   map[string]any `json:"attrs,omitempty" yaml:"attrs"`
}

// Frame is the input for one step.
type Frame struct {
	Step    int64          `json:"step" yaml:"step"`
	Rate    float64        `json:"rate,omitempty" yaml:"rate"`
	Fields  map[string]any `json:"fields,omitempty" yaml:"fields"`
	Objects []Observation  `json:"objects" yaml:"objects"`
}

// StepResult describes a committed step.
type StepResult struct {
	RunID   string
	Seq     int64
	Step    int64
	Rows    []query.Row
	Live    int
	Created []string
	Retired []string
}

// Recorder persists committed steps. A Recorder error aborts the step.
type Recorder interface {
	RecordStep(ctx context.Context, runID string, seq int64, frame Frame, rows []query.Row) error
}

// Engine owns the entities of one run.
type Engine struct {
	reg      *registry.Registry
	types    map[string]*vobj.Type
	queries  []*query.Query
	entities map[string]*vobj.Entity
	absent   map[string]int // consecutive unobserved steps per entity

	started  bool
	lastStep int64

	runID       string
	runIDs      RunIDGenerator
	clock       Sequencer
	recorder    Recorder
	workers     int
	rate        float64
	quota       entityQuota
	retireAfter int

	queue *frameQueue
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of entities updated concurrently.
// Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithRecorder persists every committed step.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRunIDGenerator sets how the run is named. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithClock replaces the sequence clock, e.g. to resume a stored run.
func WithClock(c Sequencer) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRate sets the rate used for frames that carry none.
func WithRate(stepsPerSecond float64) Option {
	return func(e *Engine) {
		if stepsPerSecond > 0 {
			e.rate = stepsPerSecond
		}
	}
}

// WithMaxEntities caps live entities. Zero means unlimited.
func WithMaxEntities(n int) Option {
	return func(e *Engine) { e.quota = entityQuota{max: n} }
}

// WithRetireAfter drops entities unobserved for n consecutive steps. Zero
// keeps them for the whole run.
func WithRetireAfter(n int) Option {
	return func(e *Engine) { e.retireAfter = n }
}

// New creates an engine. The registry is sealed: transforms cannot be
// added once entities may be resolving against it. Classes without a type
// get a bare type with no declared attributes.
func New(reg *registry.Registry, types []*vobj.Type, queries []*query.Query, opts ...Option) (*Engine, error) {
	if reg == nil {
		reg = registry.New()
	}
	e := &Engine{
		reg:      reg,
		types:    make(map[string]*vobj.Type, len(types)),
		queries:  slices.Clone(queries),
		entities: make(map[string]*vobj.Entity),
		absent:   make(map[string]int),
		runIDs:   UUIDv7Generator{},
		clock:    NewClock(),
		workers:  runtime.GOMAXPROCS(0),
		rate:     DefaultRate,
		queue:    newFrameQueue(),
	}
	for _, t := range types {
		if err := t.Err(); err != nil {
			return nil, err
		}
		if _, dup := e.types[t.Name()]; dup {
			return nil, fmt.Errorf("entity type %q defined twice", t.Name())
		}
		e.types[t.Name()] = t
	}
	for _, q := range e.queries {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(e)
	}

	reg.Seal()
	e.runID = e.runIDs.Generate()
	slog.Debug("engine created",
		"run", e.runID,
		"types", len(e.types),
		"queries", len(e.queries),
		"workers", e.workers,
	)
	return e, nil
}

// RunID returns the id of the run this engine drives.
func (e *Engine) RunID() string {
	return e.runID
}

// LastStep returns the last committed step id, if any.
func (e *Engine) LastStep() (int64, bool) {
	return e.lastStep, e.started
}

// Entities returns the live entity ids in order.
func (e *Engine) Entities() []string {
	return slices.Sorted(maps.Keys(e.entities))
}

// Entity returns a live entity. Callers must not use it concurrently with
// Step.
func (e *Engine) Entity(id string) (*vobj.Entity, bool) {
	ent, ok := e.entities[id]
	return ent, ok
}

// Step applies one frame. On error the engine is left exactly as it was
// before the call.
func (e *Engine) Step(ctx context.Context, f Frame) (*StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("step %d: %w", f.Step, err)
	}
	if f.Rate <= 0 {
		f.Rate = e.rate
	}
	observed, err := e.admit(f)
	if err != nil {
		return nil, err
	}

	tx := e.begin()
	res, err := e.apply(ctx, f, observed, tx)
	if err != nil {
		tx.rollback()
		slog.Warn("step rolled back", "run", e.runID, "step", f.Step, "error", err)
		return nil, err
	}

	e.commit(f, res)
	return res, nil
}

// admit validates the frame against the engine state without changing it.
func (e *Engine) admit(f Frame) (map[string]Observation, error) {
	if e.started && f.Step <= e.lastStep {
		return nil, newStepError(ErrCodeStepOrder, f.Step, "",
			"step is not after last committed step %d", e.lastStep)
	}
	observed := make(map[string]Observation, len(f.Objects))
	for _, o := range f.Objects {
		if o.TrackID == "" || o.Class == "" {
			return nil, newStepError(ErrCodeInvalidObservation, f.Step, o.TrackID,
				"observation needs a track id and a class")
		}
		if _, dup := observed[o.TrackID]; dup {
			return nil, newStepError(ErrCodeDuplicateTrack, f.Step, o.TrackID,
				"track observed twice")
		}
		if ent, ok := e.entities[o.TrackID]; ok && ent.Type().Name() != o.Class {
			return nil, newStepError(ErrCodeClassChanged, f.Step, o.TrackID,
				"class changed from %q to %q", ent.Type().Name(), o.Class)
		}
		observed[o.TrackID] = o
	}
	return observed, nil
}

// stepTx is the undo log of one step.
type stepTx struct {
	e       *Engine
	saved   map[string]vobj.Checkpoint
	absent  map[string]int
	created []string
}

func (e *Engine) begin() *stepTx {
	tx := &stepTx{
		e:      e,
		saved:  make(map[string]vobj.Checkpoint, len(e.entities)),
		absent: maps.Clone(e.absent),
	}
	for id, ent := range e.entities {
		tx.saved[id] = ent.Checkpoint()
	}
	return tx
}

func (tx *stepTx) rollback() {
	for id, cp := range tx.saved {
		tx.e.entities[id].Restore(cp)
	}
	for _, id := range tx.created {
		delete(tx.e.entities, id)
	}
	tx.e.absent = tx.absent
}

func (e *Engine) apply(ctx context.Context, f Frame, observed map[string]Observation, tx *stepTx) (*StepResult, error) {
	step := vobj.Step{ID: f.Step, Rate: f.Rate, Fields: f.Fields}

	for _, o := range f.Objects {
		if _, ok := e.entities[o.TrackID]; ok {
			continue
		}
		ent, err := vobj.New(e.typeFor(o.Class), e.reg, step, o.TrackID)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", f.Step, err)
		}
		e.entities[o.TrackID] = ent
		tx.created = append(tx.created, o.TrackID)
	}
	if err := e.quota.check(f.Step, len(e.entities)); err != nil {
		return nil, err
	}

	ids := e.Entities()
	if err := e.update(ctx, step, ids, observed); err != nil {
		return nil, fmt.Errorf("step %d: %w", f.Step, err)
	}

	rows, err := e.evaluate(ids)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", f.Step, err)
	}

	var retired []string
	for _, id := range ids {
		if _, ok := observed[id]; ok {
			e.absent[id] = 0
			continue
		}
		e.absent[id]++
		if e.retireAfter > 0 && e.absent[id] >= e.retireAfter {
			retired = append(retired, id)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("step %d: %w", f.Step, err)
	}
	seq := e.clock.Current() + 1
	if e.recorder != nil {
		if err := e.recorder.RecordStep(ctx, e.runID, seq, f, rows); err != nil {
			return nil, fmt.Errorf("step %d: record: %w", f.Step, err)
		}
	}

	slices.Sort(tx.created)
	return &StepResult{
		RunID:   e.runID,
		Seq:     seq,
		Step:    f.Step,
		Rows:    rows,
		Live:    len(ids) - len(retired),
		Created: tx.created,
		Retired: retired,
	}, nil
}

// update advances every live entity by one step over the worker pool.
func (e *Engine) update(ctx context.Context, step vobj.Step, ids []string, observed map[string]Observation) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, id := range ids {
		ent := e.entities[id]
		var attrs map[string]any // nil marks absence
		if o, ok := observed[id]; ok {
			attrs = o.Attrs
			if attrs == nil {
				attrs = map[string]any{}
			}
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return ent.Update(step, attrs)
		})
	}
	return g.Wait()
}

// evaluate runs the queries in declaration order over entities in id order.
func (e *Engine) evaluate(ids []string) ([]query.Row, error) {
	var rows []query.Row
	for _, q := range e.queries {
		for _, id := range ids {
			row, ok, err := q.Evaluate(e.entities[id])
			if err != nil {
				return nil, err
			}
			if ok {
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

func (e *Engine) commit(f Frame, res *StepResult) {
	e.started = true
	e.lastStep = f.Step
	e.clock.Next()
	for _, id := range res.Retired {
		delete(e.entities, id)
		delete(e.absent, id)
	}

	slog.Debug("step committed",
		"run", e.runID,
		"step", f.Step,
		"seq", res.Seq,
		"objects", len(f.Objects),
		"rows", len(res.Rows),
		"live", res.Live,
	)
	if len(res.Retired) > 0 {
		slog.Info("entities retired", "run", e.runID, "step", f.Step, "ids", res.Retired)
	}
}

func (e *Engine) typeFor(class string) *vobj.Type {
	if t, ok := e.types[class]; ok {
		return t
	}
	t := vobj.NewType(class)
	e.types[class] = t
	return t
}

// Enqueue submits a frame to the Run loop. Safe from any goroutine.
// Returns false once the engine is stopped.
func (e *Engine) Enqueue(f Frame) bool {
	return e.queue.Enqueue(f)
}

// Stop closes the queue. Run returns after draining queued frames.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run applies enqueued frames in order until Stop is called and the queue
// drains, or ctx is cancelled. Must be called from exactly one goroutine.
//
// A frame that fails is logged and skipped; the engine state is unchanged
// by it, so later frames apply as if it never arrived. handle, if non-nil,
// receives every committed step.
func (e *Engine) Run(ctx context.Context, handle func(*StepResult)) error {
	slog.Info("engine starting", "run", e.runID)

	for {
		f, ok := e.queue.TryDequeue()
		if ok {
			res, err := e.Step(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					e.queue.Close()
					return ctx.Err()
				}
				slog.Error("frame skipped",
					"run", e.runID,
					"step", f.Step,
					"objects", len(f.Objects),
					"error", err,
				)
				continue
			}
			if handle != nil {
				handle(res)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "run", e.runID)
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			// The signal channel is closed once the queue is closed
			if e.queue.Len() == 0 && e.queue.isClosed() {
				slog.Info("engine stopping: queue closed", "run", e.runID)
				return nil
			}
		}
	}
}
