package roi

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Bounds is an inclusive range of brain-volume fractions in [0, 1].
type Bounds struct {
	Min float64
	Max float64
}

// Validate checks both ends lie in [0, 1] and are ordered.
func (b Bounds) Validate() error {
	if b.Min < 0 || b.Max > 1 || b.Min > b.Max {
		return fmt.Errorf("invalid volume bounds [%g, %g]", b.Min, b.Max)
	}
	return nil
}

// Contains reports whether f lies inside the bounds.
func (b Bounds) Contains(f float64) bool { return f >= b.Min && f <= b.Max }

// DefaultBounds accepts any non-empty fraction.
var DefaultBounds = Bounds{Min: 0, Max: 1}

// VolumeFraction intersects the masks (a voxel counts only when it is 1 in
// every mask) and divides the voxel count by the brain mask volume. All
// masks are flattened voxel arrays of the brain mask's length.
func VolumeFraction(brain []float64, masks ...[]float64) (float64, error) {
	if len(masks) == 0 {
		return 0, fmt.Errorf("no masks to combine")
	}
	for i, m := range masks {
		if len(m) != len(brain) {
			return 0, fmt.Errorf("mask %d has %d voxels, brain mask has %d", i, len(m), len(brain))
		}
	}
	total := floats.Sum(brain)
	if total == 0 {
		return 0, fmt.Errorf("brain mask is empty")
	}

	combined := make([]float64, len(brain))
	for v := range combined {
		combined[v] = 1
		for _, m := range masks {
			if m[v] != 1 {
				combined[v] = 0
				break
			}
		}
	}
	return floats.Sum(combined) / total, nil
}

// VolumeCheck is the outcome of CheckVolume.
type VolumeCheck struct {
	// UseCSF is false when the CSF mask alone fell outside the bounds, in
	// which case Fraction was computed from white matter only.
	UseCSF   bool
	Fraction float64
	Valid    bool
}

// CheckVolume tests whether the aCompCor ROI (white matter, plus CSF when
// the CSF mask on its own is within bounds) covers a plausible share of the
// brain mask.
func CheckVolume(wm, csf, brain []float64, bounds Bounds) (VolumeCheck, error) {
	if err := bounds.Validate(); err != nil {
		return VolumeCheck{}, err
	}
	csfFraction, err := VolumeFraction(brain, csf)
	if err != nil {
		return VolumeCheck{}, fmt.Errorf("CSF: %w", err)
	}

	check := VolumeCheck{UseCSF: bounds.Contains(csfFraction)}
	masks := [][]float64{wm}
	if check.UseCSF {
		masks = append(masks, csf)
	}
	check.Fraction, err = VolumeFraction(brain, masks...)
	if err != nil {
		return VolumeCheck{}, fmt.Errorf("aCompCor: %w", err)
	}
	check.Valid = bounds.Contains(check.Fraction)
	return check, nil
}

// AcceptVolume builds an acceptance predicate over VolumeCheck results.
func AcceptVolume() AcceptFunc[VolumeCheck] {
	return func(c VolumeCheck) bool { return c.Valid }
}
