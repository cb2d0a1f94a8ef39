package stages

import "github.com/vk/fmriflow/internal/stage"

func cmd(path string, args ...string) stage.Command {
	return stage.Command{Path: path, Args: args}
}

// antsTransforms lists -t flags last to first, as antsApplyTransforms
// applies the final flag first.
func antsTransforms(inv *stage.Invocation) []string {
	xs := inv.InputList("xforms")
	args := make([]string, 0, 2*len(xs))
	for i := len(xs) - 1; i >= 0; i-- {
		args = append(args, "-t", xs[i])
	}
	return args
}

// DefaultTools returns the external commands of every tool-backed stage.
// func_hmc is included because its native runner wraps a Tool.
func DefaultTools() map[string]*Tool {
	return map[string]*Tool{
		AnatPreproc: {
			Commands: []stage.Command{
				cmd("antsBrainExtraction.sh", "-d", "3", "-a", "{t1w}", "-e", "{template}", "-m", "{template_mask}", "-o", "{out}/t1_"),
				cmd("fast", "-B", "-o", "{out}/t1_fast", "{out}/t1_BrainExtractionBrain.nii.gz"),
				cmd("fslmerge", "-t", "{out}/t1_tpms.nii.gz",
					"{out}/t1_fast_pve_0.nii.gz", "{out}/t1_fast_pve_1.nii.gz", "{out}/t1_fast_pve_2.nii.gz"),
				cmd("antsRegistrationSyNQuick.sh", "-d", "3", "-f", "{template}", "-m", "{out}/t1_BrainExtractionBrain.nii.gz",
					"-o", "{out}/t1_to_mni_", "-n", "{threads}"),
			},
			Outputs: map[string]string{
				"t1_brain":          "t1_BrainExtractionBrain.nii.gz",
				"t1_bias_corrected": "t1_fast_restore.nii.gz",
				"t1_mask":           "t1_BrainExtractionMask.nii.gz",
				"t1_seg":            "t1_fast_seg.nii.gz",
				"t1_tpms":           "t1_tpms.nii.gz",
				"t1_to_mni":         "t1_to_mni_1Warp.nii.gz",
			},
		},
		FmapEstimate: {
			Commands: []stage.Command{
				cmd("fmap-estimate", "--scheme", "{scheme}", "--out", "{out}", "{fmap...}"),
			},
			Outputs: map[string]string{
				"fmap":      "fmap.nii.gz",
				"fmap_ref":  "fmap_ref.nii.gz",
				"fmap_mask": "fmap_mask.nii.gz",
			},
		},
		SBRefPreproc: {
			Commands: []stage.Command{
				cmd("fugue", "-i", "{sbref}", "--loadfmap={fmap}", "--mask={fmap_mask}", "--dwell={dwell}",
					"--unwarpdir={unwarp_dir}", "-u", "{out}/sbref_unwarped.nii.gz"),
				cmd("bet", "{out}/sbref_unwarped.nii.gz", "{out}/sbref_unwarped_brain", "-m", "-n", "-f", "0.3"),
			},
			Outputs: map[string]string{
				"sbref_unwarped":      "sbref_unwarped.nii.gz",
				"sbref_unwarped_mask": "sbref_unwarped_brain_mask.nii.gz",
			},
		},
		SBRefT1Reg: {
			Commands: []stage.Command{
				cmd("flirt", "-in", "{sbref_unwarped}", "-ref", "{t1_brain}", "-dof", "{dof}", "-cost", "{cost}", "-omat", "{out}/epi_to_t1.mat"),
				cmd("convert_xfm", "-omat", "{out}/t1_to_epi.mat", "-inverse", "{out}/epi_to_t1.mat"),
			},
			Outputs: map[string]string{
				"mat_epi_to_t1": "epi_to_t1.mat",
				"mat_t1_to_epi": "t1_to_epi.mat",
			},
		},
		FuncHMC: {
			Commands: []stage.Command{
				cmd("mcflirt", "-in", "{bold}", "-out", "{out}/bold_mcf", "-mats", "-plots", "-meanvol"),
				cmd("bet", "{out}/bold_mcf_mean_reg.nii.gz", "{out}/bold_mean_brain", "-m", "-n", "-f", "{mask_frac}"),
			},
			Outputs: map[string]string{
				"bold_hmc":   "bold_mcf.nii.gz",
				"bold_mean":  "bold_mcf_mean_reg.nii.gz",
				"bold_mask":  "bold_mean_brain_mask.nii.gz",
				"hmc_xforms": "bold_mcf.mat",
			},
		},
		FuncSBRefReg: {
			Commands: []stage.Command{
				cmd("flirt", "-in", "{bold_mean}", "-ref", "{sbref_unwarped}", "-dof", "{dof}", "-cost", "{cost}", "-omat", "{out}/epi_to_sbref.mat"),
				cmd("convert_xfm", "-omat", "{out}/sbref_to_epi.mat", "-inverse", "{out}/epi_to_sbref.mat"),
			},
			Outputs: map[string]string{
				"mat_epi_to_sbref": "epi_to_sbref.mat",
				"mat_sbref_to_epi": "sbref_to_epi.mat",
			},
		},
		FuncUnwarp: {
			Commands: []stage.Command{
				cmd("fugue", "-i", "{bold_hmc}", "--loadfmap={fmap}", "--mask={fmap_mask}", "--dwell={dwell}",
					"--unwarpdir={unwarp_dir}", "-u", "{out}/bold_unwarped.nii.gz"),
				cmd("fslmaths", "{out}/bold_unwarped.nii.gz", "-Tmean", "-bin", "{out}/bold_unwarped_mask.nii.gz"),
			},
			Outputs: map[string]string{
				"bold_unwarped":      "bold_unwarped.nii.gz",
				"bold_unwarped_mask": "bold_unwarped_mask.nii.gz",
			},
		},
		T1ToEPIXfm: {
			// convert_xfm -concat B A applies A first.
			Commands: []stage.Command{
				cmd("convert_xfm", "-omat", "{out}/t1_to_epi.mat", "-concat", "{in_mats.1}", "{in_mats.0}"),
			},
			Outputs: map[string]string{"mat_t1_to_epi": "t1_to_epi.mat"},
		},
		FuncT1Reg: {
			Commands: []stage.Command{
				cmd("flirt", "-in", "{bold_mean}", "-ref", "{t1_brain}", "-dof", "{dof}", "-cost", "{cost}", "-omat", "{out}/epi_to_t1.mat"),
				cmd("convert_xfm", "-omat", "{out}/t1_to_epi.mat", "-inverse", "{out}/epi_to_t1.mat"),
			},
			Outputs: map[string]string{
				"mat_epi_to_t1": "epi_to_t1.mat",
				"mat_t1_to_epi": "t1_to_epi.mat",
			},
		},
		FuncMNI: {
			Commands: []stage.Command{
				cmd("antsApplyTransforms", "-d", "3", "-e", "3", "-i", "{bold}", "-r", "{template}",
					"-o", "{out}/bold_mni.nii.gz", "-n", "{interp}", "{ants_transforms...}"),
				cmd("antsApplyTransforms", "-d", "3", "-i", "{bold_mask}", "-r", "{template}",
					"-o", "{out}/bold_mni_mask.nii.gz", "-n", "NearestNeighbor", "{ants_transforms...}"),
			},
			Outputs: map[string]string{
				"bold_mni":      "bold_mni.nii.gz",
				"bold_mni_mask": "bold_mni_mask.nii.gz",
			},
			Splices: map[string]func(*stage.Invocation) []string{"ants_transforms": antsTransforms},
		},
	}
}

// SegResample brings the anatomical segmentation into the run's space
// before confounds are extracted.
var SegResample = cmd("flirt", "-in", "{t1_seg}", "-ref", "{bold_mask}", "-applyxfm", "-init", "{t1_to_epi}",
	"-interp", "nearestneighbour", "-out", "{out}/seg_epi.nii.gz")
