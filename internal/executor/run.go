package executor

import (
	"context"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/nodestore"
)

// Run executes the entire graph concurrently. It returns the per-instance
// result and, if any instance failed, an error naming the root causes.
// Skipped instances are symptoms and never reported as causes.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("subject", e.graph.Subject)

	nodes := e.graph.Nodes()
	for _, n := range nodes {
		_ = e.store.SetStatus(ctx, n.Address, nodestore.StatusPending)
	}

	readyChan := make(chan *nodeState, len(nodes))
	subjectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Initializing executor, finding root nodes...")
	rootNodeCount := 0
	for _, n := range nodes {
		st := e.states[n.ID()]
		if st.depCount.Load() == 0 {
			readyChan <- st
			rootNodeCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootNodeCount)

	e.wg.Add(len(nodes))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers, "memory_mb", e.budget.MemoryMB)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(subjectCtx, readyChan, cancel, i)
	}

	e.wg.Wait()
	close(readyChan)
	if counts, err := e.store.Counts(ctx); err == nil {
		logger.Debug("All nodes settled.",
			"completed", counts[nodestore.StatusCompleted],
			"failed", counts[nodestore.StatusFailed],
			"skipped", counts[nodestore.StatusSkipped])
	}

	res := e.collect(ctx)
	if err := res.Err(); err != nil {
		return res, err
	}
	if ctx.Err() != nil && !res.Completed() {
		return res, ctx.Err()
	}
	return res, nil
}

// skipDependents recursively marks all downstream nodes as skipped.
func (e *Executor) skipDependents(ctx context.Context, st *nodeState) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range st.node.Dependents() {
		dst := e.states[dependent.ID()]
		dst.skipOnce.Do(func() {
			logger.Warn("Skipping dependent node due to upstream failure.", "node_id", dependent.ID(), "dependency", st.node.ID())
			e.markSkipped(ctx, dst, skippedBecause(st.node.ID()))
			e.skipDependents(ctx, dst)
		})
	}
}

func (e *Executor) markSkipped(ctx context.Context, st *nodeState, reason error) {
	_ = e.store.SetStatus(ctx, st.node.Address, nodestore.StatusSkipped)
	_ = e.store.SetError(ctx, st.node.Address, reason)
	e.wg.Done()
}
