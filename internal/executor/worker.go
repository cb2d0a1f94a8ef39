package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/dag"
	"github.com/vk/fmriflow/internal/nodestore"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/stage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *nodeState, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for st := range readyChan {
		n := st.node
		workerLogger := logger.With("workerID", workerID, "node_id", n.ID())

		if ctx.Err() != nil {
			e.skipCancelled(ctx, st, workerLogger)
			continue
		}

		weight := int64(0)
		if e.mem != nil {
			weight = e.memoryWeight(n.Spec)
			if err := e.mem.Acquire(ctx, weight); err != nil {
				e.skipCancelled(ctx, st, workerLogger)
				continue
			}
		}

		_ = e.store.SetStatus(ctx, n.Address, nodestore.StatusRunning)
		workerLogger.Info("Stage started.", "stage", n.Template, "run", n.Run)
		outputs, err := e.execute(ctxlog.WithLogger(ctx, workerLogger), n)
		if e.mem != nil {
			e.mem.Release(weight)
		}

		if err != nil {
			workerLogger.Error("Stage failed.", "error", err)
			_ = e.store.SetStatus(ctx, n.Address, nodestore.StatusFailed)
			_ = e.store.SetError(ctx, n.Address, err)
			if n.Shared() {
				workerLogger.Warn("Shared stage failed, no further stages of this subject will start.")
				cancel()
			}
			e.skipDependents(ctx, st)
			e.wg.Done()
			continue
		}

		workerLogger.Info("Stage completed.")
		_ = e.store.SetOutput(ctx, n.Address, outputs)
		_ = e.store.SetStatus(ctx, n.Address, nodestore.StatusCompleted)

		for _, dependent := range n.Dependents() {
			dst := e.states[dependent.ID()]
			if dst.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.ID())
				readyChan <- dst
			}
		}
		e.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (e *Executor) skipCancelled(ctx context.Context, st *nodeState, logger *slog.Logger) {
	st.skipOnce.Do(func() {
		logger.Warn("Subject cancelled, skipping node execution.")
		e.markSkipped(ctx, st, fmt.Errorf("%w: %w", ErrSkipped, context.Cause(ctx)))
		e.skipDependents(ctx, st)
	})
}

// execute resolves inputs and runs one instance.
func (e *Executor) execute(ctx context.Context, n *dag.Node) (stage.Outputs, error) {
	ctx, span := e.tracer.Start(ctx, n.Template, trace.WithAttributes(
		attribute.String("node.id", n.ID()),
		attribute.Int("node.run", n.Run),
	))
	defer span.End()

	outputs, err := e.invoke(ctx, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outputs, err
}

func (e *Executor) invoke(ctx context.Context, n *dag.Node) (stage.Outputs, error) {
	fail := func(err error) error {
		return &pipelineerr.StageExecutionError{Stage: n.ID(), ExitCode: -1, Err: err}
	}

	runner, ok := e.runners.Runner(n.Spec.Name)
	if !ok {
		return nil, fail(fmt.Errorf("no runner registered for stage '%s'", n.Spec.Name))
	}

	inputs, err := n.ResolveInputs(e.lookup(ctx))
	if err != nil {
		return nil, fail(err)
	}
	if err := os.MkdirAll(n.OutputDir, 0o755); err != nil {
		return nil, fail(err)
	}

	inv := &stage.Invocation{
		Address:   n.Address,
		Spec:      n.Spec,
		Config:    n.Config,
		Inputs:    inputs,
		OutputDir: n.OutputDir,
		Budget:    e.budget,
	}
	fingerprint := ""
	if e.cache != nil {
		if fingerprint, err = inv.Fingerprint(); err != nil {
			ctxlog.FromContext(ctx).Warn("Cannot fingerprint stage, cache disabled for it.", "error", err)
		} else if outs, ok := e.cached(ctx, n, fingerprint); ok {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.hit", true))
			return outs, nil
		}
	}

	outputs, err := runner.Run(ctx, inv)
	if err != nil {
		var stageErr *pipelineerr.StageExecutionError
		if errors.As(err, &stageErr) {
			return nil, err
		}
		return nil, fail(err)
	}
	if outputs == nil {
		outputs = stage.Outputs{}
	}
	for _, p := range n.Spec.Outputs {
		if _, ok := outputs[p.Name]; !ok {
			return nil, fail(fmt.Errorf("missing output '%s'", p.Name))
		}
	}
	if e.cache != nil && fingerprint != "" {
		if err := e.cache.Remember(ctx, n.Address, fingerprint, outputs); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to remember stage outputs.", "error", err)
		}
	}
	return outputs, nil
}

// cached returns remembered outputs when every file output still exists.
func (e *Executor) cached(ctx context.Context, n *dag.Node, fingerprint string) (stage.Outputs, bool) {
	logger := ctxlog.FromContext(ctx)
	outs, ok, err := e.cache.Lookup(ctx, n.Address, fingerprint)
	if err != nil {
		logger.Warn("Cache lookup failed.", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	for _, p := range n.Spec.Outputs {
		v, present := outs[p.Name]
		if !present {
			return nil, false
		}
		if p.Type.IsFile() {
			if _, err := os.Stat(v); err != nil {
				logger.Debug("Cached output is gone, running stage again.", "port", p.Name, "path", v)
				return nil, false
			}
		}
	}
	logger.Info("Stage reused from cache.")
	return outs, true
}

func (e *Executor) lookup(ctx context.Context) dag.OutputLookup {
	return func(id string) (stage.Outputs, bool) {
		n, ok := e.graph.Node(id)
		if !ok {
			return nil, false
		}
		if status, _ := e.store.GetStatus(ctx, n.Address); status != nodestore.StatusCompleted {
			return nil, false
		}
		outs, _ := e.store.GetOutput(ctx, n.Address)
		return outs, true
	}
}
