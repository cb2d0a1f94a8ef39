package nodeid

import (
	"fmt"
	"slices"
	"strings"
)

// String serializes the Address into its canonical path string representation.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(segment.Name)
		if segment.HasIndex() {
			sb.WriteString(fmt.Sprintf("[%d]", segment.Index))
		}
	}

	return sb.String()
}

// Equal checks for deep equality between two Address pointers.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	return slices.Equal(a.Path, other.Path)
}

// Subject returns the first segment name, or "" for an empty address.
func (a *Address) Subject() string {
	if a == nil || len(a.Path) == 0 {
		return ""
	}
	return a.Path[0].Name
}

// Stage returns the last segment name.
func (a *Address) Stage() string {
	if a == nil || len(a.Path) == 0 {
		return ""
	}
	return a.Path[len(a.Path)-1].Name
}

// Run returns the run index of the last segment, or -1 for shared stages.
func (a *Address) Run() int {
	if a == nil || len(a.Path) == 0 {
		return -1
	}
	return a.Path[len(a.Path)-1].Index
}

// DirName is a filesystem-safe rendering of the stage segment, e.g. `func_hmc_1`.
func (a *Address) DirName() string {
	if a.Run() < 0 {
		return a.Stage()
	}
	return fmt.Sprintf("%s_%d", a.Stage(), a.Run())
}
