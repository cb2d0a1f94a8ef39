package report

import (
	"fmt"
	"regexp"
)

// ElementConfig describes one kind of fragment.
type ElementConfig struct {
	Name        string
	FilePattern string
	Title       string
	Description string
}

// SubReportConfig is an ordered set of element kinds shown together.
type SubReportConfig struct {
	Name     string
	Title    string
	Elements []ElementConfig
}

// Config lists the sub-reports of a subject page.
type Config struct {
	SubReports []SubReportConfig
}

type element struct {
	ElementConfig
	pattern *regexp.Regexp
}

type subReport struct {
	SubReportConfig
	elements []element
}

// compile checks names are unique within a sub-report and patterns parse.
func (c Config) compile() ([]subReport, error) {
	out := make([]subReport, 0, len(c.SubReports))
	seenReports := map[string]bool{}
	for _, sr := range c.SubReports {
		if sr.Name == "" {
			return nil, fmt.Errorf("sub-report without a name")
		}
		if seenReports[sr.Name] {
			return nil, fmt.Errorf("duplicate sub-report %q", sr.Name)
		}
		seenReports[sr.Name] = true

		compiled := subReport{SubReportConfig: sr}
		seen := map[string]bool{}
		for _, e := range sr.Elements {
			if seen[e.Name] {
				return nil, fmt.Errorf("sub-report %q: duplicate element %q", sr.Name, e.Name)
			}
			seen[e.Name] = true
			re, err := regexp.Compile(e.FilePattern)
			if err != nil {
				return nil, fmt.Errorf("sub-report %q: element %q: %w", sr.Name, e.Name, err)
			}
			compiled.elements = append(compiled.elements, element{ElementConfig: e, pattern: re})
		}
		out = append(out, compiled)
	}
	return out, nil
}

// Validate reports the first problem compile would hit.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}

// DefaultConfig is the built-in page layout.
func DefaultConfig() Config {
	return Config{SubReports: []SubReportConfig{
		{
			Name:  "anatomical",
			Title: "Anatomical",
			Elements: []ElementConfig{
				{
					Name:        "t1_seg_native",
					FilePattern: `anat/.*_seg_brainmask`,
					Title:       "Brain mask and brain tissue segmentation of the T1w",
					Description: "Brain mask and three tissue classes (CSF, grey and white matter) overlaid on the bias-corrected T1w image.",
				},
				{
					Name:        "t1_to_mni",
					FilePattern: `anat/.*_t1_to_mni`,
					Title:       "T1 to MNI registration",
					Description: "Nonlinear mapping of the T1w image into MNI space.",
				},
			},
		},
		{
			Name:  "fieldmap",
			Title: "Fieldmaps",
			Elements: []ElementConfig{
				{
					Name:        "fmap_mask",
					FilePattern: `fmap/.*fmap_mask`,
					Title:       "Fieldmap magnitude brain mask",
					Description: "Brain mask computed on the fieldmap magnitude image.",
				},
				{
					Name:        "sbref_unwarp",
					FilePattern: `func/.*_sbref_unwarp`,
					Title:       "Reference image unwarping",
					Description: "Single-band reference before and after distortion correction.",
				},
			},
		},
		{
			Name:  "functional",
			Title: "Functional",
			Elements: []ElementConfig{
				{
					Name:        "epi_mask",
					FilePattern: `func/.*_bold_mask`,
					Title:       "Brain mask of the BOLD run",
					Description: "Brain mask computed on the mean motion-corrected BOLD image.",
				},
				{
					Name:        "epi_t1_registration",
					FilePattern: `func/.*_bold_t1_reg`,
					Title:       "BOLD to T1 registration",
					Description: "Mean BOLD image aligned to the T1w image.",
				},
				{
					Name:        "bold_rois",
					FilePattern: `func/.*_rois`,
					Title:       "Confound ROIs",
					Description: "Regions used to extract tissue signals and CompCor components.",
				},
				{
					Name:        "confounds_summary",
					FilePattern: `func/.*_bold_confounds_summary`,
					Title:       "Confounds",
					Description: "Size of the confound table and framewise displacement summary.",
				},
			},
		},
	}}
}
