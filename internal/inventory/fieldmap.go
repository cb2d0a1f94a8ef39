package inventory

import (
	"regexp"
	"sort"
)

// fieldmapSuffixes recognises the fieldmap acquisition schemes by filename.
var fieldmapSuffixes = map[string]*regexp.Regexp{
	"phasediff": regexp.MustCompile(`phasediff[0-9]*\.nii(\.gz)?$`),
	"magnitude": regexp.MustCompile(`magnitude[0-9]*\.nii(\.gz)?$`),
	"phase":     regexp.MustCompile(`phase[0-9]+\.nii(\.gz)?$`),
	"fieldmap":  regexp.MustCompile(`fieldmap\.nii(\.gz)?$`),
	"topup":     regexp.MustCompile(`epi\.nii(\.gz)?$`),
}

// IsFieldmapFile reports whether a filename matches any fieldmap scheme.
func IsFieldmapFile(name string) bool {
	for _, re := range fieldmapSuffixes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// FieldmapGroup is the set of files of one fieldmap scheme.
type FieldmapGroup struct {
	Kind  string
	Files []string
}

// SortFieldmaps splits fieldmap files by scheme. Groups are returned for
// every scheme, ordered by scheme name, each possibly empty.
func SortFieldmaps(files []string) []FieldmapGroup {
	kinds := make([]string, 0, len(fieldmapSuffixes))
	for kind := range fieldmapSuffixes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	groups := make([]FieldmapGroup, 0, len(kinds))
	for _, kind := range kinds {
		g := FieldmapGroup{Kind: kind, Files: []string{}}
		for _, f := range files {
			if fieldmapSuffixes[kind].MatchString(f) {
				g.Files = append(g.Files, f)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// Field-map estimation schemes.
const (
	SchemePhaseDiff = "phasediff"
	SchemePhase     = "phase"
	SchemeFieldmap  = "fieldmap"
	SchemeTopup     = "topup"
)

// FieldmapScheme picks the estimation scheme for a set of fieldmap files.
// Returns "" when nothing usable is present.
func FieldmapScheme(files []string) string {
	byKind := map[string]int{}
	for _, g := range SortFieldmaps(files) {
		byKind[g.Kind] = len(g.Files)
	}
	switch {
	case byKind["phasediff"] > 0 && byKind["magnitude"] > 0:
		return SchemePhaseDiff
	case byKind["phase"] > 1 && byKind["magnitude"] > 0:
		return SchemePhase
	case byKind["fieldmap"] > 0:
		return SchemeFieldmap
	case byKind["topup"] > 1:
		return SchemeTopup
	}
	return ""
}
