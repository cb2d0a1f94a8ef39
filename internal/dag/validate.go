package dag

import (
	"fmt"
	"os"

	"github.com/vk/fmriflow/internal/nifti"
)

// IsNDNifti accepts NIfTI images with exactly n dimensions.
func IsNDNifti(n int) Validator {
	return func(value string) error {
		dims, err := nifti.Dims(value)
		if err != nil {
			return err
		}
		if dims != n {
			return fmt.Errorf("%s has %d dimensions, want %d", value, dims, n)
		}
		return nil
	}
}

// Is4DNifti accepts functional series.
var Is4DNifti = IsNDNifti(4)

// Is3DNifti accepts single volumes.
var Is3DNifti = IsNDNifti(3)

// FileExists accepts any path that exists.
func FileExists(value string) error {
	if _, err := os.Stat(value); err != nil {
		return fmt.Errorf("input file missing: %w", err)
	}
	return nil
}
