package stages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/inventory"
)

// varsProvider is implemented by configs that feed placeholders of a
// command template.
type varsProvider interface {
	Vars() map[string]string
}

// AnatConfig tunes anatomical preprocessing.
type AnatConfig struct {
	// Template is the path of the standard-space template image.
	Template string
	// TemplateMask is the brain mask of Template used for skull stripping.
	TemplateMask string
}

func (c AnatConfig) Validate() error {
	if c.Template == "" {
		return fmt.Errorf("template is required")
	}
	if c.TemplateMask == "" {
		return fmt.Errorf("template mask is required")
	}
	return nil
}

func (c AnatConfig) Vars() map[string]string {
	return map[string]string{"template": c.Template, "template_mask": c.TemplateMask}
}

// FmapConfig selects the field-map estimation scheme.
type FmapConfig struct {
	Scheme string
}

func (c FmapConfig) Validate() error {
	switch c.Scheme {
	case inventory.SchemePhaseDiff, inventory.SchemePhase, inventory.SchemeFieldmap, inventory.SchemeTopup:
		return nil
	case "":
		return fmt.Errorf("no field-map scheme could be derived from the inventory")
	}
	return fmt.Errorf("unknown field-map scheme %q", c.Scheme)
}

func (c FmapConfig) Vars() map[string]string {
	return map[string]string{"scheme": c.Scheme}
}

// UnwarpConfig parameterises distortion correction.
type UnwarpConfig struct {
	// Direction is the phase-encoding direction: x, y, z with an optional "-".
	Direction string
	// EchoSpacing is the effective echo spacing (dwell time) in seconds.
	EchoSpacing float64
}

func (c UnwarpConfig) Validate() error {
	switch strings.TrimSuffix(c.Direction, "-") {
	case "x", "y", "z":
	default:
		return fmt.Errorf("invalid unwarp direction %q", c.Direction)
	}
	if c.EchoSpacing <= 0 {
		return fmt.Errorf("echo spacing must be positive, got %g", c.EchoSpacing)
	}
	return nil
}

func (c UnwarpConfig) Vars() map[string]string {
	return map[string]string{
		"unwarp_dir": c.Direction,
		"dwell":      strconv.FormatFloat(c.EchoSpacing, 'g', -1, 64),
	}
}

// DefaultUnwarp matches the most common posterior-anterior acquisition.
var DefaultUnwarp = UnwarpConfig{Direction: "y-", EchoSpacing: 0.00058}

// RegConfig tunes a linear registration.
type RegConfig struct {
	DOF  int
	Cost string
}

func (c RegConfig) Validate() error {
	switch c.DOF {
	case 6, 7, 9, 12:
	default:
		return fmt.Errorf("unsupported degrees of freedom %d", c.DOF)
	}
	switch c.Cost {
	case "corratio", "mutualinfo", "normmi", "normcorr", "leastsq":
	default:
		return fmt.Errorf("unsupported cost function %q", c.Cost)
	}
	return nil
}

func (c RegConfig) Vars() map[string]string {
	return map[string]string{"dof": strconv.Itoa(c.DOF), "cost": c.Cost}
}

// DefaultReg is a rigid-body registration.
var DefaultReg = RegConfig{DOF: 6, Cost: "corratio"}

// HMCConfig tunes head-motion correction.
type HMCConfig struct {
	MovparFormat confounds.MovparFormat
	// MaskFrac is the fractional intensity threshold for the mean-image mask.
	MaskFrac float64
}

func (c HMCConfig) Validate() error {
	switch c.MovparFormat {
	case confounds.MovparConfounds, confounds.MovparFile:
	default:
		return fmt.Errorf("unknown movpar format %q", c.MovparFormat)
	}
	if c.MaskFrac <= 0 || c.MaskFrac >= 1 {
		return fmt.Errorf("mask fraction must be in (0, 1), got %g", c.MaskFrac)
	}
	return nil
}

func (c HMCConfig) Vars() map[string]string {
	return map[string]string{"mask_frac": strconv.FormatFloat(c.MaskFrac, 'g', -1, 64)}
}

// DefaultHMC writes a TSV motion table so confounds can read it.
var DefaultHMC = HMCConfig{MovparFormat: confounds.MovparConfounds, MaskFrac: 0.3}

// ConfoundsConfig tunes confound aggregation.
type ConfoundsConfig struct {
	IncludeDVARS   bool
	HeadRadius     float64
	ROIFalseValues []int
	ROIAttempts    int
}

func (c ConfoundsConfig) Validate() error {
	if c.HeadRadius < 0 {
		return fmt.Errorf("head radius must not be negative")
	}
	if c.ROIAttempts < 0 {
		return fmt.Errorf("ROI attempts must not be negative")
	}
	return nil
}

func (c ConfoundsConfig) options() confounds.Options {
	return confounds.Options{
		IncludeDVARS:   c.IncludeDVARS,
		HeadRadius:     c.HeadRadius,
		ROIFalseValues: c.ROIFalseValues,
		ROIAttempts:    c.ROIAttempts,
	}
}

// NormalizeConfig tunes resampling into template space.
type NormalizeConfig struct {
	Template      string
	Interpolation string
}

func (c NormalizeConfig) Validate() error {
	if c.Template == "" {
		return fmt.Errorf("template is required")
	}
	switch c.Interpolation {
	case "Linear", "LanczosWindowedSinc", "NearestNeighbor", "BSpline":
		return nil
	}
	return fmt.Errorf("unsupported interpolation %q", c.Interpolation)
}

func (c NormalizeConfig) Vars() map[string]string {
	return map[string]string{"template": c.Template, "interp": c.Interpolation}
}

// SinkConfig places derivatives of one subject.
type SinkConfig struct {
	// OutputDir is the derivatives root.
	OutputDir string
	// Datatype is the BIDS folder, "anat" or "func".
	Datatype string
	// Space is appended as a space entity when set.
	Space string
}

func (c SinkConfig) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Datatype != "anat" && c.Datatype != "func" {
		return fmt.Errorf("unknown datatype %q", c.Datatype)
	}
	return nil
}
