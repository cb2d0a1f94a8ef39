package topology

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/dag"
	"github.com/vk/fmriflow/internal/inventory"
	"github.com/vk/fmriflow/internal/pipelineerr"
)

// Pipeline is the validated instance graph of one subject session.
type Pipeline struct {
	Kind    Kind
	Subject string
	Session string
	Graph   *dag.Graph
	// Runs are the functional series in fan-out order.
	Runs []string
}

// Build wires the stages of kind for an inventory and validates the
// result. All wiring problems are ConfigurationErrors and nothing runs.
func Build(ctx context.Context, kind Kind, inv *inventory.Inventory, pctx PipelineContext) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx).With("subject", pctx.Subject, "topology", kind)

	if !inv.Has(inventory.T1w) {
		return nil, &pipelineerr.ConfigurationError{Subject: pctx.Subject, Msg: "inventory has no t1w image"}
	}
	if pctx.Specs == nil {
		return nil, &pipelineerr.ConfigurationError{Subject: pctx.Subject, Msg: "no stage registry"}
	}
	strategy, err := kind.strategy()
	if err != nil {
		return nil, err
	}

	workDir := pctx.WorkDir
	if pctx.Session != "" {
		workDir = filepath.Join(workDir, "ses-"+pctx.Session)
	}
	w := &Wiring{B: dag.NewBuilder(pctx.Subject, workDir), Inv: inv, Ctx: pctx}
	strategy.Wire(w)
	if len(w.missing) > 0 {
		return nil, &pipelineerr.ConfigurationError{
			Subject: pctx.Subject,
			Msg:     fmt.Sprintf("stages not registered: %s", strings.Join(w.missing, ", ")),
		}
	}

	g, err := w.B.Build(ctx)
	if err != nil {
		return nil, err
	}
	runs := inv.Get(inventory.Func)
	logger.Debug("Pipeline assembled.", "runs", len(runs), "instances", g.Len())
	return &Pipeline{
		Kind:    strategy.Kind(),
		Subject: pctx.Subject,
		Session: pctx.Session,
		Graph:   g,
		Runs:    runs,
	}, nil
}
