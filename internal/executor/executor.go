// Package executor runs the instance graph of one subject on a bounded
// worker pool.
//
// Instances start once every producer has completed. A failing instance
// skips only its transitive dependents, so sibling run branches keep going.
// A failure of a shared instance cancels the subject: instances already
// running finish, but nothing new starts. A weighted semaphore keeps the
// summed memory estimate of running instances under the budget.
package executor

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/fmriflow/internal/dag"
	"github.com/vk/fmriflow/internal/inmemorystore"
	"github.com/vk/fmriflow/internal/nodestore"
	"github.com/vk/fmriflow/internal/stage"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"
)

// ErrSkipped marks instances that never ran.
var ErrSkipped = errors.New("skipped")

// RunnerSource resolves the runner for a stage spec name.
type RunnerSource interface {
	Runner(name string) (stage.Runner, bool)
}

// Executor runs one graph once.
type Executor struct {
	graph      *dag.Graph
	runners    RunnerSource
	store      nodestore.Store
	cache      nodestore.Cache
	budget     stage.Budget
	numWorkers int
	mem        *semaphore.Weighted
	tracer     trace.Tracer

	wg     sync.WaitGroup
	states map[string]*nodeState
}

// nodeState is the scheduling state the executor keeps next to each instance.
type nodeState struct {
	node     *dag.Node
	depCount atomic.Int32
	// skipOnce ensures a node is marked as skipped and processed exactly once.
	skipOnce sync.Once
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(e *Executor) { e.numWorkers = n }
}

// WithBudget sets the resource budget passed to stages and enforced on memory.
func WithBudget(b stage.Budget) Option {
	return func(e *Executor) { e.budget = b }
}

// WithStore replaces the default in-memory state store.
func WithStore(s nodestore.Store) Option {
	return func(e *Executor) { e.store = s }
}

// WithCache reuses remembered outputs of instances whose fingerprint did
// not change, and remembers every instance that completes.
func WithCache(c nodestore.Cache) Option {
	return func(e *Executor) { e.cache = c }
}

// WithTracer records a span per instance.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// New creates an executor for a graph.
func New(graph *dag.Graph, runners RunnerSource, opts ...Option) *Executor {
	e := &Executor{
		graph:   graph,
		runners: runners,
		store:   inmemorystore.New(),
		tracer:  noop.NewTracerProvider().Tracer("executor"),
		states:  make(map[string]*nodeState, graph.Len()),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.numWorkers <= 0 {
		e.numWorkers = e.budget.Threads
	}
	if e.numWorkers <= 0 {
		e.numWorkers = 1
	}
	if e.budget.MemoryMB > 0 {
		e.mem = semaphore.NewWeighted(int64(e.budget.MemoryMB))
	}
	for _, n := range graph.Nodes() {
		st := &nodeState{node: n}
		st.depCount.Store(int32(len(n.Deps())))
		e.states[n.ID()] = st
	}
	return e
}

// Store exposes the state store, mainly for tests and reporting.
func (e *Executor) Store() nodestore.Store {
	return e.store
}

// memoryWeight clamps an instance's estimate to the budget so a single
// oversized stage can still run alone.
func (e *Executor) memoryWeight(spec *stage.Spec) int64 {
	w := int64(spec.MemoryMB)
	if w < 0 {
		w = 0
	}
	if limit := int64(e.budget.MemoryMB); w > limit {
		w = limit
	}
	return w
}

func skippedBecause(upstream string) error {
	return fmt.Errorf("%w: upstream '%s' did not complete", ErrSkipped, upstream)
}
