package confounds

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vk/fmriflow/internal/stage"
)

// ToolSet holds the command templates for the external sub-computations.
// Arguments may reference {bold}, {mask}, {seg}, {roi}, {out} and
// {false_values}.
type ToolSet struct {
	Signals     stage.Command
	DVARS       stage.Command
	TCompCor    stage.Command
	BinarizeROI stage.Command
	ACompCor    stage.Command
}

// DefaultToolSet names the helper executables expected on PATH.
func DefaultToolSet() ToolSet {
	return ToolSet{
		Signals: stage.Command{Path: "confounds-signals", Args: []string{
			"--in", "{bold}", "--labels", "{seg}", "--class-labels", "CSF,GrayMatter,WhiteMatter",
			"--include-global", "--detrend", "--out", "{out}/signals.tsv"}},
		DVARS: stage.Command{Path: "confounds-dvars", Args: []string{
			"--in", "{bold}", "--mask", "{mask}", "--save-all", "--remove-zerovariance", "--out", "{out}/dvars.tsv"}},
		TCompCor: stage.Command{Path: "confounds-compcor", Args: []string{
			"--mode", "temporal", "--in", "{bold}", "--out", "{out}/tcompcor.tsv"}},
		BinarizeROI: stage.Command{Path: "binarize-seg", Args: []string{
			"--in", "{seg}", "--false-values", "{false_values}", "--out", "{out}/roi.nii.gz"}},
		ACompCor: stage.Command{Path: "confounds-compcor", Args: []string{
			"--mode", "anatomical", "--in", "{bold}", "--mask", "{roi}", "--out", "{out}/acompcor.tsv"}},
	}
}

// CommandTools implements Tools by running external commands.
type CommandTools struct {
	Set ToolSet
	// Stage is the instance address failures are attributed to.
	Stage   string
	Threads int
}

func (c *CommandTools) run(ctx context.Context, cmd stage.Command, vars map[string]string, result string) (string, error) {
	if err := stage.Exec(ctx, c.Stage, cmd.Expand(vars), vars["out"], c.Threads); err != nil {
		return "", err
	}
	return filepath.Join(vars["out"], result), nil
}

func (c *CommandTools) Signals(ctx context.Context, bold, seg, outDir string) (string, error) {
	return c.run(ctx, c.Set.Signals, map[string]string{"bold": bold, "seg": seg, "out": outDir}, "signals.tsv")
}

func (c *CommandTools) DVARS(ctx context.Context, bold, mask, outDir string) (string, error) {
	return c.run(ctx, c.Set.DVARS, map[string]string{"bold": bold, "mask": mask, "out": outDir}, "dvars.tsv")
}

func (c *CommandTools) TCompCor(ctx context.Context, bold, mask, outDir string) (string, error) {
	return c.run(ctx, c.Set.TCompCor, map[string]string{"bold": bold, "mask": mask, "out": outDir}, "tcompcor.tsv")
}

func (c *CommandTools) BinarizeROI(ctx context.Context, seg string, falseValues []int, outDir string) (string, error) {
	vals := make([]string, len(falseValues))
	for i, v := range falseValues {
		vals[i] = strconv.Itoa(v)
	}
	return c.run(ctx, c.Set.BinarizeROI, map[string]string{
		"seg": seg, "false_values": strings.Join(vals, ","), "out": outDir,
	}, "roi.nii.gz")
}

func (c *CommandTools) ACompCor(ctx context.Context, bold, roi, outDir string) (string, error) {
	return c.run(ctx, c.Set.ACompCor, map[string]string{"bold": bold, "roi": roi, "out": outDir}, "acompcor.tsv")
}
