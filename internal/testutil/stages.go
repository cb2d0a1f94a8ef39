package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/stage"
)

// FakeStages is a RunnerSource whose runners write one placeholder file per
// output port and record every invocation. Failures can be injected per
// instance address.
type FakeStages struct {
	// Delay is slept inside every invocation.
	Delay time.Duration

	mu       sync.Mutex
	calls    []string
	inputs   map[string]map[string][]string
	failures map[string]error
	custom   map[string]stage.Runner

	running    atomic.Int32
	maxRunning atomic.Int32
}

// NewFakeStages creates an empty fake.
func NewFakeStages() *FakeStages {
	return &FakeStages{
		inputs:   make(map[string]map[string][]string),
		failures: make(map[string]error),
		custom:   make(map[string]stage.Runner),
	}
}

// FailOn makes the instance with the given address fail with err. It
// panics on a malformed address so typos do not silently disable the
// injection.
func (f *FakeStages) FailOn(id string, err error) {
	addr := nodeid.MustParse(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[addr.String()] = err
}

// Use replaces the fake runner of a stage with a real one.
func (f *FakeStages) Use(name string, r stage.Runner) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.custom[name] = r
}

// Runner implements executor.RunnerSource.
func (f *FakeStages) Runner(name string) (stage.Runner, bool) {
	f.mu.Lock()
	custom, ok := f.custom[name]
	f.mu.Unlock()
	if ok {
		return f.wrap(custom), true
	}
	return f.wrap(stage.RunnerFunc(placeholderOutputs)), true
}

func (f *FakeStages) wrap(inner stage.Runner) stage.Runner {
	return stage.RunnerFunc(func(ctx context.Context, inv *stage.Invocation) (stage.Outputs, error) {
		id := inv.Address.String()
		cur := f.running.Add(1)
		defer f.running.Add(-1)
		for {
			prev := f.maxRunning.Load()
			if cur <= prev || f.maxRunning.CompareAndSwap(prev, cur) {
				break
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, id)
		f.inputs[id] = inv.Inputs
		failure := f.failures[id]
		f.mu.Unlock()

		if f.Delay > 0 {
			select {
			case <-time.After(f.Delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if failure != nil {
			return nil, failure
		}
		return inner.Run(ctx, inv)
	})
}

func placeholderOutputs(_ context.Context, inv *stage.Invocation) (stage.Outputs, error) {
	out := stage.Outputs{}
	for _, p := range inv.Spec.Outputs {
		if !p.Type.IsFile() {
			out[p.Name] = p.Name
			continue
		}
		path := filepath.Join(inv.OutputDir, p.Name+".out")
		if err := os.WriteFile(path, []byte(inv.Address.String()), 0o644); err != nil {
			return nil, fmt.Errorf("fake stage: %w", err)
		}
		out[p.Name] = path
	}
	return out, nil
}

// Calls returns the invoked instance addresses, sorted.
func (f *FakeStages) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

// Called reports whether an instance ran.
func (f *FakeStages) Called(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == id {
			return true
		}
	}
	return false
}

// Inputs returns the resolved inputs an instance was invoked with.
func (f *FakeStages) Inputs(id string) map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[id]
}

// MaxConcurrent is the highest number of simultaneously running invocations.
func (f *FakeStages) MaxConcurrent() int {
	return int(f.maxRunning.Load())
}
