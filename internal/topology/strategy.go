package topology

import (
	"github.com/vk/fmriflow/internal/dag"
	"github.com/vk/fmriflow/internal/inventory"
	"github.com/vk/fmriflow/internal/stage"
	"github.com/vk/fmriflow/internal/stages"
)

// Strategy wires the stages of one topology variant.
type Strategy interface {
	Kind() Kind
	Wire(w *Wiring)
}

// Wiring is the state a Strategy wires into.
type Wiring struct {
	B   *dag.Builder
	Inv *inventory.Inventory
	Ctx PipelineContext

	missing []string
}

// Stage declares a stage template using the registered contract of name.
func (w *Wiring) Stage(name string, cfg stage.Config) {
	spec, ok := w.Ctx.Specs.Spec(name)
	if !ok {
		w.missing = append(w.missing, name)
		return
	}
	w.B.Add(name, spec, cfg)
}

// image returns the validator for an image of the given dimensionality.
func (w *Wiring) image(dims int) dag.EdgeOption {
	if w.Ctx.Settings.CheckImages {
		return dag.WithValidator(dag.IsNDNifti(dims))
	}
	return dag.WithValidator(dag.FileExists)
}

func (w *Wiring) sink(name, datatype, space string) {
	w.Stage(name, stages.SinkConfig{OutputDir: w.Ctx.OutputDir, Datatype: datatype, Space: space})
}

// wireAnat adds the anatomical stage and its derivatives sink.
func (w *Wiring) wireAnat() {
	s := w.Ctx.Settings
	t1w := w.Inv.Get(inventory.T1w)

	w.Stage(stages.AnatPreproc, s.Anat)
	if len(t1w) > 0 {
		w.B.Bind(stages.AnatPreproc, "t1w", t1w[0])
	}

	w.sink(stages.DSAnat, "anat", "")
	if len(t1w) > 0 {
		w.B.Bind(stages.DSAnat, "name_source", t1w[0])
	}
	for _, port := range []string{"t1_brain", "t1_mask", "t1_seg", "t1_to_mni"} {
		w.B.Connect(stages.AnatPreproc, port, stages.DSAnat, port)
	}
}

// wireRuns adds the per-run motion correction stage.
func (w *Wiring) wireRuns() {
	w.Stage(stages.FuncHMC, w.Ctx.Settings.HMC)
	w.B.Iterate(stages.FuncHMC, "bold", w.Inv.Get(inventory.Func))
}

// runOutput names the stage and ports of a run's corrected series.
type runOutput struct {
	stage, bold, mask string
}

// wireDownstream adds confounds, normalization and the functional sinks.
// Normalization of a run depends on its confounds, so a failed aggregation
// skips it.
// xforms are the (stage, port) pairs composing run to template space, in
// application order. t1ToEPI brings the segmentation into run space.
func (w *Wiring) wireDownstream(run runOutput, t1ToEPI [2]string, xforms [][2]string) {
	s := w.Ctx.Settings
	b := w.B

	w.Stage(stages.Confounds, s.Confounds)
	b.Connect(run.stage, run.bold, stages.Confounds, "bold", w.image(4))
	b.Connect(run.stage, run.mask, stages.Confounds, "bold_mask")
	b.Connect(stages.AnatPreproc, "t1_seg", stages.Confounds, "t1_seg")
	b.Connect(t1ToEPI[0], t1ToEPI[1], stages.Confounds, "t1_to_epi")
	b.Connect(stages.FuncHMC, "movpar", stages.Confounds, "movpar", dag.WithValidator(dag.FileExists))

	w.Stage(stages.FuncMNI, s.Normalize)
	b.Connect(run.stage, run.bold, stages.FuncMNI, "bold", w.image(4))
	b.Connect(run.stage, run.mask, stages.FuncMNI, "bold_mask")
	b.Connect(stages.Confounds, "confounds_file", stages.FuncMNI, "confounds")
	for i, x := range xforms {
		b.Connect(x[0], x[1], stages.FuncMNI, "xforms", dag.WithSlot(i))
	}

	if !s.SkipNative {
		w.sink(stages.DSFuncNative, "func", "")
		b.Connect(stages.FuncHMC, "name_source", stages.DSFuncNative, "name_source")
		b.Connect(run.stage, run.bold, stages.DSFuncNative, "bold")
		b.Connect(run.stage, run.mask, stages.DSFuncNative, "bold_mask")
		b.Connect(stages.Confounds, "confounds_file", stages.DSFuncNative, "confounds")
		b.Connect(stages.FuncHMC, "movpar", stages.DSFuncNative, "movpar")
	}

	w.sink(stages.DSFuncMNI, "func", s.Space)
	b.Connect(stages.FuncHMC, "name_source", stages.DSFuncMNI, "name_source")
	b.Connect(stages.FuncMNI, "bold_mni", stages.DSFuncMNI, "bold_mni")
	b.Connect(stages.FuncMNI, "bold_mni_mask", stages.DSFuncMNI, "bold_mni_mask")
}

// richStrategy unwarps runs with a field map and registers them through
// the single-band reference.
type richStrategy struct{}

func (richStrategy) Kind() Kind { return Rich }

func (richStrategy) Wire(w *Wiring) {
	s := w.Ctx.Settings
	b := w.B
	fmaps := w.Inv.Get(inventory.Fieldmap)
	sbref := w.Inv.Get(inventory.SBRef)

	w.wireAnat()

	w.Stage(stages.FmapEstimate, stages.FmapConfig{Scheme: inventory.FieldmapScheme(fmaps)})
	if len(fmaps) > 0 {
		b.Bind(stages.FmapEstimate, "fmap", fmaps...)
	}

	w.Stage(stages.SBRefPreproc, s.Unwarp)
	if len(sbref) > 0 {
		b.Bind(stages.SBRefPreproc, "sbref", sbref[0])
	}
	for _, port := range []string{"fmap", "fmap_ref", "fmap_mask"} {
		b.Connect(stages.FmapEstimate, port, stages.SBRefPreproc, port)
	}

	w.Stage(stages.SBRefT1Reg, s.Reg)
	b.Connect(stages.AnatPreproc, "t1_brain", stages.SBRefT1Reg, "t1_brain")
	b.Connect(stages.AnatPreproc, "t1_seg", stages.SBRefT1Reg, "t1_seg")
	b.Connect(stages.SBRefPreproc, "sbref_unwarped", stages.SBRefT1Reg, "sbref_unwarped")
	b.Connect(stages.SBRefPreproc, "sbref_unwarped_mask", stages.SBRefT1Reg, "sbref_unwarped_mask")
	if len(sbref) > 0 {
		b.Bind(stages.SBRefT1Reg, "name_source", sbref[0])
	}

	w.wireRuns()

	w.Stage(stages.FuncSBRefReg, s.Reg)
	b.Connect(stages.FuncHMC, "bold_mean", stages.FuncSBRefReg, "bold_mean")
	b.Connect(stages.FuncHMC, "bold_mask", stages.FuncSBRefReg, "bold_mask")
	b.Connect(stages.SBRefPreproc, "sbref_unwarped", stages.FuncSBRefReg, "sbref_unwarped")
	b.Connect(stages.SBRefPreproc, "sbref_unwarped_mask", stages.FuncSBRefReg, "sbref_unwarped_mask")

	w.Stage(stages.FuncUnwarp, s.Unwarp)
	b.Connect(stages.FuncHMC, "bold_hmc", stages.FuncUnwarp, "bold_hmc")
	b.Connect(stages.FuncHMC, "hmc_xforms", stages.FuncUnwarp, "hmc_xforms")
	for _, port := range []string{"fmap", "fmap_ref", "fmap_mask"} {
		b.Connect(stages.FmapEstimate, port, stages.FuncUnwarp, port)
	}

	// Anatomical to reference first, then reference to run.
	w.Stage(stages.T1ToEPIXfm, nil)
	b.Connect(stages.SBRefT1Reg, "mat_t1_to_epi", stages.T1ToEPIXfm, "in_mats", dag.WithSlot(0))
	b.Connect(stages.FuncSBRefReg, "mat_sbref_to_epi", stages.T1ToEPIXfm, "in_mats", dag.WithSlot(1))

	w.wireDownstream(
		runOutput{stage: stages.FuncUnwarp, bold: "bold_unwarped", mask: "bold_unwarped_mask"},
		[2]string{stages.T1ToEPIXfm, "mat_t1_to_epi"},
		[][2]string{
			{stages.FuncSBRefReg, "mat_epi_to_sbref"},
			{stages.SBRefT1Reg, "mat_epi_to_t1"},
			{stages.AnatPreproc, "t1_to_mni"},
		},
	)
}

// minimalStrategy registers each motion-corrected run directly to the
// anatomical image.
type minimalStrategy struct{}

func (minimalStrategy) Kind() Kind { return Minimal }

func (minimalStrategy) Wire(w *Wiring) {
	b := w.B

	w.wireAnat()
	w.wireRuns()

	w.Stage(stages.FuncT1Reg, w.Ctx.Settings.Reg)
	b.Connect(stages.FuncHMC, "bold_mean", stages.FuncT1Reg, "bold_mean")
	b.Connect(stages.FuncHMC, "bold_mask", stages.FuncT1Reg, "bold_mask")
	b.Connect(stages.AnatPreproc, "t1_brain", stages.FuncT1Reg, "t1_brain")
	b.Connect(stages.AnatPreproc, "t1_seg", stages.FuncT1Reg, "t1_seg")

	w.wireDownstream(
		runOutput{stage: stages.FuncHMC, bold: "bold_hmc", mask: "bold_mask"},
		[2]string{stages.FuncT1Reg, "mat_t1_to_epi"},
		[][2]string{
			{stages.FuncT1Reg, "mat_epi_to_t1"},
			{stages.AnatPreproc, "t1_to_mni"},
		},
	)
}
