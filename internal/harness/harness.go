package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/framestate/internal/compiler"
	"github.com/roach88/framestate/internal/engine"
	"github.com/roach88/framestate/internal/functions"
	"github.com/roach88/framestate/internal/registry"
	"github.com/roach88/framestate/internal/store"
	"github.com/roach88/framestate/internal/testutil"
)

// Rejection codes for failures that are not engine.StepError.
const (
	CodeEntityQuota     = "ENTITY_QUOTA"
	CodeTransformFailed = "TRANSFORM_FAILED"
	CodeUnknown         = "ERROR"
)

// Run executes a scenario against a fresh engine and returns the result.
//
// Each run uses an in-memory database, a fixed run id and a deterministic
// clock, so two runs of the same scenario produce identical traces. An error
// is returned only when the scenario cannot be set up; frame and assertion
// failures are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cfg, src, err := loadConfig(scenario)
	if err != nil {
		return nil, err
	}

	reg := registry.New()
	if err := functions.Register(reg); err != nil {
		return nil, fmt.Errorf("register functions: %w", err)
	}
	if verrs := compiler.Validate(cfg, reg); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	types, err := cfg.Types()
	if err != nil {
		return nil, fmt.Errorf("build entity types: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts := append(cfg.Settings.EngineOptions(),
		engine.WithRecorder(st),
		engine.WithRunIDGenerator(testutil.NewFixedRunID(scenario.RunID)),
		engine.WithClock(testutil.NewDeterministicClock()),
	)
	eng, err := engine.New(reg, types, cfg.Queries, opts...)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	rate := cfg.Settings.Rate
	if rate == 0 {
		rate = engine.DefaultRate
	}
	run := store.Run{ID: eng.RunID(), ConfigHash: store.ConfigHash(src), Rate: rate, Label: scenario.Name}
	if err := st.BeginRun(ctx, run); err != nil {
		return nil, err
	}

	result := NewResult()
	for _, f := range scenario.expand() {
		applyFrame(ctx, eng, f, result)
	}

	rows, err := st.ReadResults(ctx, run.ID, "")
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	result.Rows = rows
	result.Trace = interleaveRows(result.Trace, rows)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"steps", len(result.Live),
		"rows", len(rows),
		"pass", result.Pass,
	)
	return result, nil
}

// applyFrame steps the engine and checks the outcome against the frame's
// expected rejection.
func applyFrame(ctx context.Context, eng *engine.Engine, f FrameStep, result *Result) {
	res, err := eng.Step(ctx, f.Frame)
	if err != nil {
		code := rejectionCode(err)
		result.Rejected[f.Step] = code
		result.Trace = append(result.Trace, TraceEvent{Type: EventRejected, Step: f.Step, Code: code})
		switch {
		case f.Reject == "":
			result.AddError(fmt.Sprintf("step %d: unexpected error: %v", f.Step, err))
		case f.Reject != code:
			result.AddError(fmt.Sprintf("step %d: rejected with %s, expected %s", f.Step, code, f.Reject))
		}
		return
	}

	if f.Reject != "" {
		result.AddError(fmt.Sprintf("step %d: expected rejection %s, but the step committed", f.Step, f.Reject))
	}
	result.Live[f.Step] = res.Live
	result.Trace = append(result.Trace, TraceEvent{
		Type:    EventStep,
		Step:    res.Step,
		Seq:     res.Seq,
		Live:    res.Live,
		Created: res.Created,
		Retired: res.Retired,
	})
}

// interleaveRows places each stored row after the step event it was
// committed with.
func interleaveRows(events []TraceEvent, rows []store.StoredRow) []TraceEvent {
	bySeq := make(map[int64][]store.StoredRow)
	for _, r := range rows {
		bySeq[r.Seq] = append(bySeq[r.Seq], r)
	}

	out := make([]TraceEvent, 0, len(events)+len(rows))
	for _, ev := range events {
		out = append(out, ev)
		if ev.Type != EventStep {
			continue
		}
		for _, r := range bySeq[ev.Seq] {
			out = append(out, TraceEvent{
				Type:   EventRow,
				Step:   r.Step,
				Seq:    r.Seq,
				Query:  r.Query,
				Entity: r.Entity,
				Values: r.Values,
			})
		}
	}
	return out
}

// rejectionCode names the category of a step failure.
func rejectionCode(err error) string {
	var se *engine.StepError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	if engine.IsEntityQuotaError(err) {
		return CodeEntityQuota
	}
	if registry.IsTransformError(err) {
		return CodeTransformFailed
	}
	return CodeUnknown
}

// loadConfig compiles the scenario's config and returns it with the source
// bytes used for the run's config hash.
func loadConfig(s *Scenario) (*compiler.Config, []byte, error) {
	var (
		cfg  *compiler.Config
		errs []error
		src  []byte
	)
	if s.Config != "" {
		src = []byte(s.Config)
		cfg, errs = compiler.CompileSource(s.Name+".cue", s.Config, compiler.LoadModeCollectAll)
	} else {
		var err error
		if src, err = compiler.ReadSources(s.Specs); err != nil {
			return nil, nil, fmt.Errorf("read specs: %w", err)
		}
		cfg, errs = compiler.LoadDir(s.Specs, compiler.LoadModeCollectAll)
	}
	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("compile config: %w", errors.Join(errs...))
	}
	return cfg, src, nil
}
