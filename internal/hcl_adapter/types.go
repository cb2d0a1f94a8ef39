package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is used to decode all possible top-level blocks from any file.
// Unknown blocks are rejected.
type fileRoot struct {
	Settings   []*Settings  `hcl:"settings,block"`
	Budgets    []*Budget    `hcl:"budget,block"`
	Tools      []*Tool      `hcl:"tool,block"`
	SubReports []*SubReport `hcl:"sub_report,block"`
}

// Settings keeps raw expressions so unset attributes can be told apart
// from zero values.
type Settings struct {
	WorkflowType hcl.Expression `hcl:"workflow_type,optional"`
	SkipNative   hcl.Expression `hcl:"skip_native,optional"`
	WorkDir      hcl.Expression `hcl:"work_dir,optional"`
	IncludeDVARS hcl.Expression `hcl:"include_dvars,optional"`
	HeadRadius   hcl.Expression `hcl:"head_radius,optional"`
	MovparFormat hcl.Expression `hcl:"movpar_format,optional"`
	ROIAttempts  hcl.Expression `hcl:"roi_attempts,optional"`
}

type Budget struct {
	Threads     *int `hcl:"threads,optional"`
	MemoryMB    *int `hcl:"memory_mb,optional"`
	ToolThreads *int `hcl:"tool_threads,optional"`
	Subjects    *int `hcl:"subjects,optional"`
}

type Tool struct {
	Stage string            `hcl:"stage,label"`
	Path  string            `hcl:"path"`
	Args  []string          `hcl:"args,optional"`
	Env   map[string]string `hcl:"env,optional"`
}

type SubReport struct {
	Name     string     `hcl:"name,label"`
	Title    *string    `hcl:"title,optional"`
	Elements []*Element `hcl:"element,block"`
}

type Element struct {
	Name        string  `hcl:"name,label"`
	FilePattern string  `hcl:"file_pattern"`
	Title       *string `hcl:"title,optional"`
	Description *string `hcl:"description,optional"`
}
