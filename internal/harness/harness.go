package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/n1qlorm/internal/builder"
	"github.com/roach88/n1qlorm/internal/dberr"
	"github.com/roach88/n1qlorm/internal/engine"
	"github.com/roach88/n1qlorm/internal/n1ql"
	"github.com/roach88/n1qlorm/internal/schema"
	"github.com/roach88/n1qlorm/internal/store"
	"github.com/roach88/n1qlorm/internal/testutil"
	"github.com/roach88/n1qlorm/internal/value"
)

// epoch is the start of the step clock used by Run.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs scenario steps on one connection and records every
// statement it fires.
type Harness struct {
	conn   *engine.Connection
	models *schema.LoadResult
	logger *slog.Logger

	mu     sync.Mutex
	events []engine.QueryEvent
}

// Run executes a scenario against an in-memory key-value store and a
// scripted query service. Keys, bound variable names and the clock are
// deterministic, so the trace is stable across runs.
func Run(s *Scenario) (*Result, error) {
	kv := testutil.NewMemoryKV()
	seed := make(map[string]value.Document, len(s.Seed))
	for k, d := range s.Seed {
		seed[k] = value.Document(d)
	}
	kv.Seed(seed)

	q := testutil.NewScriptedQuerier()
	for _, r := range s.Responses {
		if r.Error != "" {
			q.Fail(dberr.New(dberr.Code(r.Error), "%s", r.Message))
			continue
		}
		res := &store.Result{Metrics: store.Metrics{
			ResultCount:   uint64(len(r.Rows)),
			SortCount:     r.SortCount,
			MutationCount: r.MutationCount,
		}}
		for _, row := range r.Rows {
			res.Rows = append(res.Rows, value.Document(row))
		}
		q.Respond(res)
	}

	vars := 0
	g := n1ql.NewGrammar()
	g.NewVar = func() string {
		vars++
		return "v" + strconv.Itoa(vars)
	}
	g.NewKey = func(docType string) string { return docType + "::query" }

	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	opts, err := ScenarioOptions(s)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		engine.WithGrammar(g),
		engine.WithKeyGenerator(testutil.NewSequentialKeyGenerator()),
		engine.WithClock(testutil.NewStepClock(epoch, time.Millisecond).Now),
		engine.WithKVConcurrency(1),
		engine.WithLogger(h.logger),
	)
	conn, err := engine.New(bucketOf(s), kv, q, append(opts, engine.WithListener(h))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	defer conn.Close()
	h.conn = conn

	return h.run(context.Background(), s)
}

// RunOn executes a scenario against an existing connection, such as one
// opened on a real backend. Seed documents are upserted first; scripted
// responses are ignored. The connection must have been created with the
// returned listener registered, see NewRecorder.
func RunOn(ctx context.Context, h *Harness, s *Scenario) (*Result, error) {
	for _, key := range sortedSeedKeys(s.Seed) {
		doc := value.Document(s.Seed[key]).Clone()
		doc["_id"] = key
		if err := builder.From(h.conn, "").Insert(ctx, doc); err != nil {
			return nil, fmt.Errorf("seed %s: %w", key, err)
		}
	}
	h.reset()
	return h.run(ctx, s)
}

// NewRecorder creates a Harness that records statements fired on a
// connection. Register it with engine.WithListener, then call Attach.
func NewRecorder(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{logger: logger}
}

// Attach sets the connection the recorder runs steps on.
func (h *Harness) Attach(conn *engine.Connection) { h.conn = conn }

// ScenarioOptions returns the connection options a scenario declares.
func ScenarioOptions(s *Scenario) ([]engine.Option, error) {
	cons, err := store.ParseConsistency(s.Consistency)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	opts := []engine.Option{
		engine.WithConsistency(cons),
		engine.WithInlineParameters(s.Inline),
	}
	if s.TypeField != "" {
		opts = append(opts, engine.WithTypeField(s.TypeField))
	}
	return opts, nil
}

func bucketOf(s *Scenario) string {
	if s.Bucket == "" {
		return "default"
	}
	return s.Bucket
}

// QueryFired implements engine.Listener.
func (h *Harness) QueryFired(_ context.Context, ev engine.QueryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *Harness) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = nil
}

// drain returns the events recorded since the last drain.
func (h *Harness) drain() []engine.QueryEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	evs := h.events
	h.events = nil
	return evs
}

func (h *Harness) run(ctx context.Context, s *Scenario) (*Result, error) {
	if s.Models != "" {
		models, errs := schema.Load(s.Models, schema.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("load models: %w", errs[0])
		}
		h.models = models
	}

	result := NewResult()
	for i, step := range s.Flow {
		sr, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Name, err)
		}
		events := traceOf(step.Name, h.drain(), len(result.Trace))
		result.Trace = append(result.Trace, events...)
		result.Steps = append(result.Steps, sr)

		if step.Expect != nil {
			for _, msg := range checkExpect(step, sr, events) {
				result.AddError(fmt.Sprintf("step %s: %s", step.Name, msg))
			}
		}
		h.logger.Debug("step completed", "step", step.Name, "op", step.Op, "events", len(events))
	}

	actx := &AssertionContext{Ctx: ctx, Conn: h.conn}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// traceOf converts engine events to trace events. Runs of consecutive
// key-value reads are sorted by key: multi-key finds read in parallel and
// complete in any order.
func traceOf(step string, evs []engine.QueryEvent, offset int) []TraceEvent {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq })
	for i := 0; i < len(evs); {
		j := i
		for j < len(evs) && evs[j].Operation == engine.OpKVGet {
			j++
		}
		if j > i+1 {
			run := evs[i:j]
			sort.SliceStable(run, func(a, b int) bool { return run[a].Statement < run[b].Statement })
		}
		if j == i {
			j++
		}
		i = j
	}

	out := make([]TraceEvent, len(evs))
	for i, ev := range evs {
		te := TraceEvent{
			Seq:         offset + i + 1,
			Step:        step,
			Op:          ev.Operation,
			Statement:   ev.Statement,
			Bindings:    ev.Bindings,
			Consistency: ev.Consistency.String(),
			Rows:        ev.RowCount,
		}
		if ev.Err != nil {
			te.Error = string(dberr.CodeOf(ev.Err))
			if te.Error == "" {
				te.Error = ev.Err.Error()
			}
		}
		out[i] = te
	}
	return out
}

func isStatement(op string) bool {
	switch op {
	case engine.OpSelect, engine.OpUpdate, engine.OpDelete, engine.OpInsert, engine.OpRaw:
		return true
	}
	return false
}

func sortedSeedKeys(seed map[string]map[string]any) []string {
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
