package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/fmriflow/internal/nodestore"
	"github.com/vk/fmriflow/internal/stage"
)

// NodeResult is the final state of one instance.
type NodeResult struct {
	ID       string
	Template string
	Run      int
	Status   nodestore.Status
	Err      error
	Outputs  stage.Outputs
}

// Result is the outcome of one graph execution.
type Result struct {
	Subject string
	Runs    int
	Nodes   []NodeResult
}

func (e *Executor) collect(ctx context.Context) *Result {
	res := &Result{Subject: e.graph.Subject, Runs: e.graph.Runs}
	for _, n := range e.graph.Nodes() {
		status, _ := e.store.GetStatus(ctx, n.Address)
		nodeErr, _ := e.store.GetError(ctx, n.Address)
		outs, _ := e.store.GetOutput(ctx, n.Address)
		res.Nodes = append(res.Nodes, NodeResult{
			ID:       n.ID(),
			Template: n.Template,
			Run:      n.Run,
			Status:   status,
			Err:      nodeErr,
			Outputs:  outs,
		})
	}
	return res
}

// Failures returns the instances that failed on their own, excluding
// instances skipped because of them.
func (r *Result) Failures() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Status == nodestore.StatusFailed && n.Err != nil && !errors.Is(n.Err, ErrSkipped) {
			out = append(out, n)
		}
	}
	return out
}

// Node returns the result of one instance.
func (r *Result) Node(id string) (NodeResult, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeResult{}, false
}

// Instances returns the results of a template ordered by run.
func (r *Result) Instances(template string) []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Template == template {
			out = append(out, n)
		}
	}
	return out
}

// RunCompleted reports whether every instance of a run branch completed.
func (r *Result) RunCompleted(run int) bool {
	found := false
	for _, n := range r.Nodes {
		if n.Run != run {
			continue
		}
		found = true
		if n.Status != nodestore.StatusCompleted {
			return false
		}
	}
	return found
}

// Completed reports whether every instance completed.
func (r *Result) Completed() bool {
	for _, n := range r.Nodes {
		if n.Status != nodestore.StatusCompleted {
			return false
		}
	}
	return true
}

// Err wraps the first root-cause failure and names every failed instance.
func (r *Result) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	ids := make([]string, 0, len(failures))
	for _, f := range failures {
		ids = append(ids, f.ID)
	}
	return fmt.Errorf("execution failed for %s: %w", strings.Join(ids, ", "), failures[0].Err)
}
