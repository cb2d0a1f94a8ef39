package stage

import (
	"context"

	"github.com/vk/fmriflow/internal/nodeid"
)

// Budget is the resource envelope propagated to every stage instance.
type Budget struct {
	// Threads is the total worker count for the subject.
	Threads int
	// MemoryMB is the memory ceiling; 0 means unlimited.
	MemoryMB int
	// ToolThreads caps threads used inside a single external tool; 0 means
	// the stage's own estimate.
	ToolThreads int
}

// ThreadsFor returns how many threads an instance of spec may use.
func (b Budget) ThreadsFor(spec *Spec) int {
	n := spec.Threads
	if n <= 0 {
		n = 1
	}
	if b.ToolThreads > 0 && n > b.ToolThreads {
		n = b.ToolThreads
	}
	if b.Threads > 0 && n > b.Threads {
		n = b.Threads
	}
	return n
}

// Invocation is one execution of a stage instance.
type Invocation struct {
	Address   nodeid.Address
	Spec      *Spec
	Config    Config
	Inputs    map[string][]string
	OutputDir string
	Budget    Budget
}

// Input returns the single value bound to an input port, or "".
func (inv *Invocation) Input(port string) string {
	if v := inv.Inputs[port]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// InputList returns every value bound to an input port in slot order.
func (inv *Invocation) InputList(port string) []string {
	return inv.Inputs[port]
}

// Outputs maps output port names to produced values.
type Outputs map[string]string

// Runner executes one invocation.
type Runner interface {
	Run(ctx context.Context, inv *Invocation) (Outputs, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv *Invocation) (Outputs, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, inv *Invocation) (Outputs, error) {
	return f(ctx, inv)
}
