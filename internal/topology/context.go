package topology

import (
	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/stage"
	"github.com/vk/fmriflow/internal/stages"
)

// SpecSource resolves stage contracts by name. *registry.Registry
// implements it.
type SpecSource interface {
	Spec(name string) (*stage.Spec, bool)
}

// Settings are the per-stage options of a pipeline.
type Settings struct {
	// SkipNative drops the native-space functional derivatives.
	SkipNative bool
	// CheckImages validates NIfTI dimensionality where images flow into
	// confounds and normalization. Otherwise only existence is checked.
	CheckImages bool
	// Space is the space entity of normalized derivatives.
	Space string

	Anat      stages.AnatConfig
	Unwarp    stages.UnwarpConfig
	Reg       stages.RegConfig
	HMC       stages.HMCConfig
	Confounds stages.ConfoundsConfig
	Normalize stages.NormalizeConfig
}

// DefaultSettings returns settings with every tunable at its default.
// Templates are left empty and must be filled in by the caller.
func DefaultSettings() Settings {
	return Settings{
		CheckImages: true,
		Space:       "MNI152NLin2009cAsym",
		Unwarp:      stages.DefaultUnwarp,
		Reg:         stages.DefaultReg,
		HMC:         stages.DefaultHMC,
		Confounds: stages.ConfoundsConfig{
			HeadRadius:     confounds.DefaultHeadRadius,
			ROIFalseValues: confounds.DefaultROIFalseValues,
		},
		Normalize: stages.NormalizeConfig{Interpolation: "LanczosWindowedSinc"},
	}
}

// PipelineContext carries everything a pipeline of one subject session
// needs besides its inventory.
type PipelineContext struct {
	// Subject is the full label, e.g. "sub-01".
	Subject string
	// Session is the session label without prefix, or "".
	Session   string
	WorkDir   string
	OutputDir string
	Budget    stage.Budget
	Specs     SpecSource
	Settings  Settings
}
