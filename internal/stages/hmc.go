package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/stage"
)

// HMC runs head-motion correction through Tool and converts the motion
// plots it leaves in the output directory into a movpar table.
type HMC struct {
	Tool *Tool
	// Plots is the motion-plot file name, relative to the output directory.
	Plots string
}

// NewHMC wraps the motion-correction tool.
func NewHMC(t *Tool) *HMC {
	return &HMC{Tool: t, Plots: "bold_mcf.par"}
}

// Run implements stage.Runner.
func (h *HMC) Run(ctx context.Context, inv *stage.Invocation) (stage.Outputs, error) {
	addr := inv.Address.String()
	fail := func(err error) error {
		return &pipelineerr.StageExecutionError{Stage: addr, ExitCode: -1, Err: err}
	}
	cfg, ok := inv.Config.(HMCConfig)
	if !ok {
		cfg = DefaultHMC
	}

	cmds, outs, err := h.Tool.Build(inv)
	if err != nil {
		return nil, fail(err)
	}
	threads := inv.Budget.ThreadsFor(inv.Spec)
	for _, c := range cmds {
		if err := stage.Exec(ctx, addr, c, inv.OutputDir, threads); err != nil {
			return nil, err
		}
	}

	motion, err := confounds.ParseMotionPlots(filepath.Join(inv.OutputDir, h.Plots))
	if err != nil {
		return nil, fail(fmt.Errorf("motion plots: %w", err))
	}
	movpar, err := confounds.WriteMovpar(inv.OutputDir, motion, cfg.MovparFormat)
	if err != nil {
		return nil, fail(err)
	}
	ctxlog.FromContext(ctx).Debug("Motion parameters written.", "path", movpar, "timepoints", motion.Rows())

	outs["movpar"] = movpar
	outs["name_source"] = inv.Input("bold")
	if err := stage.CheckOutputs(inv.Spec, outs); err != nil {
		return nil, fail(err)
	}
	return outs, nil
}
