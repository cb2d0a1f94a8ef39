package stages

import (
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/pipelineerr"
	"github.com/vk/fmriflow/internal/registry"
	"github.com/vk/fmriflow/internal/stage"
	"github.com/vk/fmriflow/internal/testutil"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// sh runs script with the remaining arguments as $1, $2, ...
func sh(script string, args ...string) stage.Command {
	return stage.Command{Path: "sh", Args: append([]string{"-c", script, "sh"}, args...)}
}

func TestHMC_WritesMovpar(t *testing.T) {
	requireShell(t)
	tool := &Tool{
		Commands: []stage.Command{sh(`touch bold_mcf.nii.gz bold_mcf_mean_reg.nii.gz bold_mean_brain_mask.nii.gz &&
mkdir -p bold_mcf.mat &&
printf '0 0 0 0 0 0\n0.01 0 0 1 0 0\n0 0 0 1 0 0\n' > bold_mcf.par`)},
		Outputs: DefaultTools()[FuncHMC].Outputs,
	}
	inv := invocation(t, FuncHMC, 1, DefaultHMC, map[string][]string{"bold": {"/bids/sub-01_task-rest_run-2_bold.nii.gz"}})

	outs, err := NewHMC(tool).Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "/bids/sub-01_task-rest_run-2_bold.nii.gz", outs["name_source"])
	assert.Equal(t, filepath.Join(inv.OutputDir, "movpar.tsv"), outs["movpar"])

	tbl, err := confounds.ReadMovpar(outs["movpar"])
	require.NoError(t, err)
	x, ok := tbl.Column("X")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1, 1}, x)
	rotX, _ := tbl.Column("RotX")
	assert.Equal(t, []float64{0, 0.01, 0}, rotX)
}

func TestHMC_LegacyFormat(t *testing.T) {
	requireShell(t)
	tool := &Tool{
		Commands: []stage.Command{sh(`touch bold_mcf.nii.gz bold_mcf_mean_reg.nii.gz bold_mean_brain_mask.nii.gz bold_mcf.mat &&
printf '0 0 0 0 0 0\n' > bold_mcf.par`)},
		Outputs: DefaultTools()[FuncHMC].Outputs,
	}
	cfg := HMCConfig{MovparFormat: confounds.MovparFile, MaskFrac: 0.3}
	inv := invocation(t, FuncHMC, 0, cfg, map[string][]string{"bold": {"/bids/bold.nii.gz"}})

	outs, err := NewHMC(tool).Run(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ".txt", filepath.Ext(outs["movpar"]))
}

func TestHMC_MissingPlots(t *testing.T) {
	requireShell(t)
	tool := &Tool{Commands: []stage.Command{sh("true")}, Outputs: DefaultTools()[FuncHMC].Outputs}
	inv := invocation(t, FuncHMC, 0, DefaultHMC, map[string][]string{"bold": {"/bids/bold.nii.gz"}})

	_, err := NewHMC(tool).Run(context.Background(), inv)
	assert.ErrorIs(t, err, pipelineerr.ErrStageExecution)
	assert.ErrorContains(t, err, "motion plots")
}

// writeVolumeHeader writes a gzipped NIfTI-1 header declaring a 3D image.
func writeVolumeHeader(t *testing.T, path string) {
	t.Helper()
	hdr := make([]byte, 348)
	binary.LittleEndian.PutUint32(hdr[0:4], 348)
	binary.LittleEndian.PutUint16(hdr[40:42], 3)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := gzip.NewWriter(f)
	_, err = w.Write(hdr)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func confoundTools(roi string) confounds.ToolSet {
	return confounds.ToolSet{
		Signals:     sh(`printf 'GlobalSignal\tCSF\tWhiteMatter\n1\t2\t3\n1\t2\t3\n1\t2\t3\n' > "$1"`, "{out}/signals.tsv"),
		DVARS:       sh(`printf 'stdDVARS\n1\n1\n1\n' > "$1"`, "{out}/dvars.tsv"),
		TCompCor:    sh(`printf 'tCompCor00\n0.5\n0.5\n0.5\n' > "$1"`, "{out}/tcompcor.tsv"),
		BinarizeROI: sh(`cp "$1" "$2"`, roi, "{out}/roi.nii.gz"),
		ACompCor:    sh(`printf 'aCompCor00\n0.1\n0.1\n0.1\n' > "$1"`, "{out}/acompcor.tsv"),
	}
}

func confoundsInvocation(t *testing.T) *stage.Invocation {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{"seg.nii.gz": "seg", "bold.nii.gz": "bold"})
	motion, err := confounds.NewTable(confounds.MotionColumns, [][]float64{
		{0, 0, 0, 0, 0, 0}, {1, 0, 0, 0, 0, 0}, {1, 0, 0, 0, 0, 0},
	})
	require.NoError(t, err)
	movpar, err := confounds.WriteMovpar(dir, motion, confounds.MovparConfounds)
	require.NoError(t, err)

	return invocation(t, Confounds, 0, ConfoundsConfig{}, map[string][]string{
		"bold":      {filepath.Join(dir, "bold.nii.gz")},
		"bold_mask": {filepath.Join(dir, "mask.nii.gz")},
		"t1_seg":    {filepath.Join(dir, "seg.nii.gz")},
		"t1_to_epi": {filepath.Join(dir, "t1_to_epi.mat")},
		"movpar":    {movpar},
	})
}

func TestConfoundsRunner_Aggregates(t *testing.T) {
	requireShell(t)
	roi := filepath.Join(t.TempDir(), "roi.nii.gz")
	writeVolumeHeader(t, roi)
	r := &ConfoundsRunner{
		Resample: &Tool{Commands: []stage.Command{sh(`cp "$1" "$2"`, "{t1_seg}", "{out}/seg_epi.nii.gz")}},
		Tools:    confoundTools(roi),
	}
	inv := confoundsInvocation(t)

	outs, err := r.Run(context.Background(), inv)
	require.NoError(t, err)

	tbl, err := confounds.ReadFile(outs["confounds_file"])
	require.NoError(t, err)
	assert.Equal(t, []string{"GlobalSignal", "CSF", "WhiteMatter", confounds.FDColumn, "tCompCor00", "aCompCor00"}, tbl.Columns())
	assert.Equal(t, 3, tbl.Rows())

	summary, err := os.ReadFile(filepath.Join(inv.OutputDir, "report", "confounds_summary.html"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "<td>3</td>")
	assert.Contains(t, string(summary), "Mean FD")
}

func TestConfoundsRunner_RejectsNonVolumeROI(t *testing.T) {
	requireShell(t)
	roi := filepath.Join(t.TempDir(), "roi.nii.gz")
	require.NoError(t, os.WriteFile(roi, []byte("not nifti"), 0o644))
	r := &ConfoundsRunner{
		Resample: &Tool{Commands: []stage.Command{sh(`cp "$1" "$2"`, "{t1_seg}", "{out}/seg_epi.nii.gz")}},
		Tools:    confoundTools(roi),
	}
	inv := confoundsInvocation(t)
	inv.Config = ConfoundsConfig{ROIAttempts: 2}

	_, err := r.Run(context.Background(), inv)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerr.ErrStageExecution)
	assert.ErrorIs(t, err, pipelineerr.ErrRetryExhausted)
}

func TestConfoundsRunner_ResampleFailure(t *testing.T) {
	requireShell(t)
	r := &ConfoundsRunner{
		Resample: &Tool{Commands: []stage.Command{sh("echo 'flirt: bad input' >&2; exit 1")}},
		Tools:    confoundTools("/nowhere"),
	}
	_, err := r.Run(context.Background(), confoundsInvocation(t))

	var stageErr *pipelineerr.StageExecutionError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, 1, stageErr.ExitCode)
	assert.Equal(t, "sub-01.confounds[0]", stageErr.Stage)
}

func TestSink_CopiesDerivativesAndFragments(t *testing.T) {
	work := t.TempDir()
	testutil.WriteFiles(t, work, map[string]string{
		"func_unwarp_0/bold_unwarped.nii.gz":        "bold",
		"func_unwarp_0/bold_unwarped_mask.nii.gz":   "mask",
		"func_unwarp_0/report/bold_mask.svg":        "<?xml?>\n<svg/>",
		"func_unwarp_0/report/notes.txt":            "skip",
		"confounds_0/confounds.tsv":                 "X\n1\n",
		"confounds_0/report/confounds_summary.html": "<!-- -->\n<table/>",
		"func_hmc_0/movpar.tsv":                     "X\n0\n",
	})
	out := t.TempDir()
	source := "/bids/sub-01/ses-2/func/sub-01_ses-2_task-rest_run-1_bold.nii.gz"
	inv := invocation(t, DSFuncNative, 0, SinkConfig{OutputDir: out, Datatype: "func"}, map[string][]string{
		"name_source": {source},
		"bold":        {filepath.Join(work, "func_unwarp_0/bold_unwarped.nii.gz")},
		"bold_mask":   {filepath.Join(work, "func_unwarp_0/bold_unwarped_mask.nii.gz")},
		"confounds":   {filepath.Join(work, "confounds_0/confounds.tsv")},
		"movpar":      {filepath.Join(work, "func_hmc_0/movpar.tsv")},
	})

	outs, err := Sink{}.Run(context.Background(), inv)
	require.NoError(t, err)

	dest := filepath.Join(out, DerivativesDir, "sub-01", "ses-2", "func")
	assert.Equal(t, dest, outs["derivatives"])
	stem := "sub-01_ses-2_task-rest_run-1_bold"
	for _, name := range []string{"_preproc.nii.gz", "_brainmask.nii.gz", "_confounds.tsv", "_movpar.tsv"} {
		assert.FileExists(t, filepath.Join(dest, stem+name))
	}

	frags := filepath.Join(out, "reports", "sub-01", "func")
	assert.FileExists(t, filepath.Join(frags, stem+"_bold_mask.svg"))
	assert.FileExists(t, filepath.Join(frags, stem+"_confounds_summary.html"))
	assert.NoFileExists(t, filepath.Join(frags, stem+"_notes.txt"))
}

func TestSink_SpaceEntity(t *testing.T) {
	work := t.TempDir()
	testutil.WriteFiles(t, work, map[string]string{"func_mni_1/bold_mni.nii.gz": "b", "func_mni_1/bold_mni_mask.nii.gz": "m"})
	out := t.TempDir()
	inv := invocation(t, DSFuncMNI, 1, SinkConfig{OutputDir: out, Datatype: "func", Space: "MNI152NLin2009cAsym"}, map[string][]string{
		"name_source":   {"sub-01_task-rest_run-2_bold.nii.gz"},
		"bold_mni":      {filepath.Join(work, "func_mni_1/bold_mni.nii.gz")},
		"bold_mni_mask": {filepath.Join(work, "func_mni_1/bold_mni_mask.nii.gz")},
	})

	_, err := Sink{}.Run(context.Background(), inv)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, DerivativesDir, "sub-01", "func",
		"sub-01_task-rest_run-2_bold_space-MNI152NLin2009cAsym_preproc.nii.gz"))
}

func TestSink_Errors(t *testing.T) {
	inv := invocation(t, DSAnat, -1, stage.NoConfig{}, map[string][]string{"name_source": {"x"}})
	_, err := Sink{}.Run(context.Background(), inv)
	assert.ErrorContains(t, err, "no output configuration")

	inv.Config = SinkConfig{OutputDir: t.TempDir(), Datatype: "anat"}
	inv.Inputs = map[string][]string{}
	_, err = Sink{}.Run(context.Background(), inv)
	assert.ErrorContains(t, err, "name_source is not bound")
}

func TestCatalog_RegistersEveryStage(t *testing.T) {
	r := registry.New(NewCatalog())

	assert.Len(t, r.Names(), len(Specs()))
	require.NoError(t, r.ValidateRegistry(context.Background()))

	run, ok := r.Runner(FuncHMC)
	require.True(t, ok)
	assert.IsType(t, &HMC{}, run)
	run, _ = r.Runner(Confounds)
	assert.IsType(t, &ConfoundsRunner{}, run)
	run, _ = r.Runner(DSFuncMNI)
	assert.IsType(t, Sink{}, run)
	run, _ = r.Runner(FuncMNI)
	assert.IsType(t, &stage.CommandRunner{}, run)
}

func TestCatalog_Override(t *testing.T) {
	c := NewCatalog()

	require.NoError(t, c.Override(FuncT1Reg, stage.Command{Path: "bbregister", Args: []string{"{bold_mean}"}}))
	require.Len(t, c.Tools[FuncT1Reg].Commands, 1)
	assert.Equal(t, "bbregister", c.Tools[FuncT1Reg].Commands[0].Path)

	require.NoError(t, c.Override(ConfoundsSignals, stage.Command{Path: "my-signals"}))
	assert.Equal(t, "my-signals", c.ConfoundTools.Signals.Path)
	require.NoError(t, c.Override(ConfoundsResample, stage.Command{Path: "antsApplyTransforms"}))
	assert.Equal(t, "antsApplyTransforms", c.Resample.Path)

	assert.ErrorContains(t, c.Override("ds_anat", stage.Command{Path: "x"}), "no overridable command")
	assert.ErrorContains(t, c.Override(FuncMNI, stage.Command{}), "no command path")
	assert.Contains(t, c.Keys(), ConfoundsACompCor)
}
