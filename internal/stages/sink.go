package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/fsutil"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/report"
	"github.com/vk/fmriflow/internal/stage"
)

// DerivativesDir is the pipeline folder under the output directory.
const DerivativesDir = "fmriflow"

// suffixes maps sink input ports to the derivative suffix they are saved as.
var suffixes = map[string]string{
	"t1_brain":      "preproc",
	"t1_mask":       "brainmask",
	"t1_seg":        "dtissue",
	"t1_to_mni":     "warp",
	"bold":          "preproc",
	"bold_mask":     "brainmask",
	"confounds":     "confounds",
	"movpar":        "movpar",
	"bold_mni":      "preproc",
	"bold_mni_mask": "brainmask",
}

// Sink copies a subject's derivatives into the output tree and collects the
// report fragments left by the producing stages.
type Sink struct{}

// Run implements stage.Runner.
func (Sink) Run(ctx context.Context, inv *stage.Invocation) (stage.Outputs, error) {
	addr := inv.Address.String()
	fail := func(err error) error {
		return &pipelineerr.StageExecutionError{Stage: addr, ExitCode: -1, Err: err}
	}
	cfg, ok := inv.Config.(SinkConfig)
	if !ok {
		return nil, fail(fmt.Errorf("sink has no output configuration"))
	}

	source := inv.Input("name_source")
	if source == "" {
		return nil, fail(fmt.Errorf("name_source is not bound"))
	}
	stem := fsutil.StripExtensions(source)
	subject := inv.Address.Subject()

	dest := filepath.Join(cfg.OutputDir, DerivativesDir, subject)
	if key, ok := report.ParseKey(source); ok && key.Session != "" {
		dest = filepath.Join(dest, "ses-"+key.Session)
	}
	dest = filepath.Join(dest, cfg.Datatype)
	fragDir := filepath.Join(report.ReportsDir(cfg.OutputDir), subject, cfg.Datatype)

	logger := ctxlog.FromContext(ctx)
	var producers []string
	for _, p := range inv.Spec.Inputs {
		suffix, ok := suffixes[p.Name]
		if !ok || !p.Type.IsFile() {
			continue
		}
		src := inv.Input(p.Name)
		if src == "" {
			continue
		}
		name := stem
		if cfg.Space != "" {
			name += "_space-" + cfg.Space
		}
		name += "_" + suffix + fileExt(src)
		if err := fsutil.CopyFile(src, filepath.Join(dest, name)); err != nil {
			return nil, fail(fmt.Errorf("%s: %w", p.Name, err))
		}
		logger.Debug("Derivative saved.", "port", p.Name, "path", filepath.Join(dest, name))

		if dir := filepath.Dir(src); !slices.Contains(producers, dir) {
			producers = append(producers, dir)
		}
	}

	for _, dir := range producers {
		if err := collectFragments(filepath.Join(dir, "report"), fragDir, stem); err != nil {
			return nil, fail(fmt.Errorf("report fragments: %w", err))
		}
	}
	return stage.Outputs{"derivatives": dest}, nil
}

// fileExt returns every extension of a file name, e.g. ".nii.gz".
func fileExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimPrefix(base, fsutil.StripExtensions(base))
}

// collectFragments copies every .svg and .html file of dir to
// dst/<stem>_<name>. A missing dir has no fragments.
func collectFragments(dir, dst, stem string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".svg" && ext != ".html") {
			continue
		}
		if err := fsutil.CopyFile(filepath.Join(dir, e.Name()), filepath.Join(dst, stem+"_"+e.Name())); err != nil {
			return err
		}
	}
	return nil
}
