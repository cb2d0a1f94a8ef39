package stages

import "github.com/vk/fmriflow/internal/stage"

// Stage names.
const (
	AnatPreproc  = "anat_preproc"
	FmapEstimate = "fmap_estimate"
	SBRefPreproc = "sbref_preproc"
	SBRefT1Reg   = "sbref_t1_reg"
	FuncHMC      = "func_hmc"
	FuncSBRefReg = "func_sbref_reg"
	FuncUnwarp   = "func_unwarp"
	T1ToEPIXfm   = "t1_to_epi_xfm"
	FuncT1Reg    = "func_t1_reg"
	Confounds    = "confounds"
	FuncMNI      = "func_mni"
	DSAnat       = "ds_anat"
	DSFuncNative = "ds_func_native"
	DSFuncMNI    = "ds_func_mni"
)

var (
	in     = stage.In
	out    = stage.Out
	gather = stage.Gather
)

// Specs returns fresh copies of every stage contract.
func Specs() []*stage.Spec {
	return []*stage.Spec{
		{
			Name:   AnatPreproc,
			Inputs: []stage.Port{in("t1w", stage.Volume)},
			Outputs: []stage.Port{
				out("t1_brain", stage.Volume), out("t1_bias_corrected", stage.Volume), out("t1_mask", stage.Mask),
				out("t1_seg", stage.Segmentation), out("t1_tpms", stage.Volume), out("t1_to_mni", stage.Transform),
			},
			// ANTs registration dominates.
			MemoryMB: 6000,
			Threads:  8,
		},
		{
			Name:     FmapEstimate,
			Inputs:   []stage.Port{gather("fmap", stage.Volume)},
			Outputs:  []stage.Port{out("fmap", stage.FieldmapMap), out("fmap_ref", stage.Volume), out("fmap_mask", stage.Mask)},
			MemoryMB: 2000,
			Threads:  1,
		},
		{
			Name: SBRefPreproc,
			Inputs: []stage.Port{
				in("sbref", stage.Volume), in("fmap", stage.FieldmapMap),
				in("fmap_ref", stage.Volume), in("fmap_mask", stage.Mask),
			},
			Outputs:  []stage.Port{out("sbref_unwarped", stage.Volume), out("sbref_unwarped_mask", stage.Mask)},
			MemoryMB: 1000,
			Threads:  1,
		},
		{
			Name: SBRefT1Reg,
			Inputs: []stage.Port{
				in("t1_brain", stage.Volume), in("t1_seg", stage.Segmentation),
				in("sbref_unwarped", stage.Volume), in("sbref_unwarped_mask", stage.Mask),
				in("name_source", stage.Text),
			},
			Outputs:  []stage.Port{out("mat_t1_to_epi", stage.Transform), out("mat_epi_to_t1", stage.Transform)},
			MemoryMB: 1000,
			Threads:  1,
		},
		{
			Name:   FuncHMC,
			Inputs: []stage.Port{in("bold", stage.Series)},
			Outputs: []stage.Port{
				out("bold_hmc", stage.Series), out("bold_mean", stage.Volume), out("bold_mask", stage.Mask),
				out("movpar", stage.Table), out("hmc_xforms", stage.Transform), out("name_source", stage.Text),
			},
			MemoryMB: 3000,
			Threads:  1,
		},
		{
			Name: FuncSBRefReg,
			Inputs: []stage.Port{
				in("bold_mean", stage.Volume), in("bold_mask", stage.Mask),
				in("sbref_unwarped", stage.Volume), in("sbref_unwarped_mask", stage.Mask),
			},
			Outputs:  []stage.Port{out("mat_epi_to_sbref", stage.Transform), out("mat_sbref_to_epi", stage.Transform)},
			MemoryMB: 1000,
			Threads:  1,
		},
		{
			Name: FuncUnwarp,
			Inputs: []stage.Port{
				in("bold_hmc", stage.Series), in("hmc_xforms", stage.Transform),
				in("fmap", stage.FieldmapMap), in("fmap_ref", stage.Volume), in("fmap_mask", stage.Mask),
			},
			Outputs:  []stage.Port{out("bold_unwarped", stage.Series), out("bold_unwarped_mask", stage.Mask)},
			MemoryMB: 4000,
			Threads:  1,
		},
		{
			Name:     T1ToEPIXfm,
			Inputs:   []stage.Port{gather("in_mats", stage.Transform)},
			Outputs:  []stage.Port{out("mat_t1_to_epi", stage.Transform)},
			MemoryMB: 100,
			Threads:  1,
		},
		{
			Name: FuncT1Reg,
			Inputs: []stage.Port{
				in("bold_mean", stage.Volume), in("bold_mask", stage.Mask),
				in("t1_brain", stage.Volume), in("t1_seg", stage.Segmentation),
			},
			Outputs:  []stage.Port{out("mat_epi_to_t1", stage.Transform), out("mat_t1_to_epi", stage.Transform)},
			MemoryMB: 1000,
			Threads:  1,
		},
		{
			Name: Confounds,
			Inputs: []stage.Port{
				in("bold", stage.Series), in("bold_mask", stage.Mask), in("t1_seg", stage.Segmentation),
				in("t1_to_epi", stage.Transform), in("movpar", stage.Table),
			},
			Outputs:  []stage.Port{out("confounds_file", stage.Table)},
			MemoryMB: 3000,
			Threads:  1,
		},
		{
			Name: FuncMNI,
			Inputs: []stage.Port{
				in("bold", stage.Series), in("bold_mask", stage.Mask), gather("xforms", stage.Transform),
				// Orders normalization after a successful aggregation of the same run.
				in("confounds", stage.Table),
			},
			Outputs:  []stage.Port{out("bold_mni", stage.Series), out("bold_mni_mask", stage.Mask)},
			MemoryMB: 8000,
			Threads:  4,
		},
		{
			Name: DSAnat,
			Inputs: []stage.Port{
				in("name_source", stage.Text), in("t1_brain", stage.Volume),
				in("t1_mask", stage.Mask), in("t1_seg", stage.Segmentation), in("t1_to_mni", stage.Transform),
			},
			Outputs: []stage.Port{out("derivatives", stage.Text)},
		},
		{
			Name: DSFuncNative,
			Inputs: []stage.Port{
				in("name_source", stage.Text), in("bold", stage.Series), in("bold_mask", stage.Mask),
				in("confounds", stage.Table), in("movpar", stage.Table),
			},
			Outputs: []stage.Port{out("derivatives", stage.Text)},
		},
		{
			Name:    DSFuncMNI,
			Inputs:  []stage.Port{in("name_source", stage.Text), in("bold_mni", stage.Series), in("bold_mni_mask", stage.Mask)},
			Outputs: []stage.Port{out("derivatives", stage.Text)},
		},
	}
}
