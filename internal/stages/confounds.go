package stages

import (
	"context"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/nifti"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/stage"
	"gonum.org/v1/gonum/floats"
)

// ConfoundsRunner resamples the segmentation into the run's space and
// aggregates the confound table of the run.
type ConfoundsRunner struct {
	Resample *Tool
	Tools    confounds.ToolSet
}

// NewConfoundsRunner uses the default resampling command and helpers.
func NewConfoundsRunner() *ConfoundsRunner {
	return &ConfoundsRunner{
		Resample: &Tool{Commands: []stage.Command{SegResample}},
		Tools:    confounds.DefaultToolSet(),
	}
}

// roiIsVolume accepts binarized ROIs that are single 3D images.
func roiIsVolume(path string) bool {
	dims, err := nifti.Dims(path)
	return err == nil && dims == 3
}

// Run implements stage.Runner.
func (r *ConfoundsRunner) Run(ctx context.Context, inv *stage.Invocation) (stage.Outputs, error) {
	addr := inv.Address.String()
	fail := func(err error) error {
		return &pipelineerr.StageExecutionError{Stage: addr, ExitCode: -1, Err: err}
	}
	cfg, _ := inv.Config.(ConfoundsConfig)

	cmds, _, err := r.Resample.Build(inv)
	if err != nil {
		return nil, fail(err)
	}
	threads := inv.Budget.ThreadsFor(inv.Spec)
	for _, c := range cmds {
		if err := stage.Exec(ctx, addr, c, inv.OutputDir, threads); err != nil {
			return nil, err
		}
	}

	opts := cfg.options()
	opts.ROIAccept = roiIsVolume
	agg := &confounds.Aggregator{
		Tools:   &confounds.CommandTools{Set: r.Tools, Stage: addr, Threads: threads},
		Options: opts,
	}
	path, err := agg.Aggregate(ctx, confounds.Input{
		Bold:   inv.Input("bold"),
		Mask:   inv.Input("bold_mask"),
		Seg:    filepath.Join(inv.OutputDir, "seg_epi.nii.gz"),
		Movpar: inv.Input("movpar"),
		OutDir: inv.OutputDir,
	})
	if err != nil {
		return nil, fail(err)
	}
	if err := writeConfoundsSummary(path, filepath.Join(inv.OutputDir, "report")); err != nil {
		return nil, fail(fmt.Errorf("confounds summary: %w", err))
	}
	return stage.Outputs{"confounds_file": path}, nil
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!-- confounds summary -->
<table class="confounds">
<tr><th>Timepoints</th><td>{{ .Rows }}</td></tr>
<tr><th>Columns</th><td>{{ .Columns }}</td></tr>
{{- if .HasFD }}
<tr><th>Mean FD (mm)</th><td>{{ printf "%.3f" .MeanFD }}</td></tr>
<tr><th>Max FD (mm)</th><td>{{ printf "%.3f" .MaxFD }}</td></tr>
{{- end }}
</table>
`))

// writeConfoundsSummary renders a small HTML fragment for the report. The
// first line is a comment because report assembly drops it.
func writeConfoundsSummary(tablePath, dir string) error {
	tbl, err := confounds.ReadFile(tablePath)
	if err != nil {
		return err
	}
	data := struct {
		Rows          int
		Columns       string
		HasFD         bool
		MeanFD, MaxFD float64
	}{Rows: tbl.Rows(), Columns: strings.Join(tbl.Columns(), ", ")}
	if fd, ok := tbl.Column(confounds.FDColumn); ok && len(fd) > 0 {
		data.HasFD = true
		data.MeanFD = floats.Sum(fd) / float64(len(fd))
		data.MaxFD = math.Inf(-1)
		for _, v := range fd {
			if !math.IsNaN(v) {
				data.MaxFD = math.Max(data.MaxFD, v)
			}
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "confounds_summary.html"))
	if err != nil {
		return err
	}
	if err := summaryTemplate.Execute(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
