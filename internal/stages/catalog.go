package stages

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vk/fmriflow/internal/confounds"
	"github.com/vk/fmriflow/internal/registry"
	"github.com/vk/fmriflow/internal/stage"
)

// Keys of the confound sub-commands that Override accepts in addition to
// tool-backed stage names.
const (
	ConfoundsSignals     = "confounds.signals"
	ConfoundsDVARS       = "confounds.dvars"
	ConfoundsTCompCor    = "confounds.tcompcor"
	ConfoundsBinarizeROI = "confounds.binarize_roi"
	ConfoundsACompCor    = "confounds.acompcor"
	ConfoundsResample    = "confounds.resample"
)

// Catalog holds the commands behind every stage and registers the stage
// contracts with their runners.
type Catalog struct {
	Tools         map[string]*Tool
	ConfoundTools confounds.ToolSet
	Resample      stage.Command
}

// NewCatalog returns a catalog with the default commands.
func NewCatalog() *Catalog {
	return &Catalog{
		Tools:         DefaultTools(),
		ConfoundTools: confounds.DefaultToolSet(),
		Resample:      SegResample,
	}
}

// Override replaces the command behind key. A stage key replaces every
// command of that stage with c; the output file names stay the same.
func (c *Catalog) Override(key string, cmd stage.Command) error {
	if cmd.Path == "" {
		return fmt.Errorf("override of '%s' has no command path", key)
	}
	switch key {
	case ConfoundsSignals:
		c.ConfoundTools.Signals = cmd
	case ConfoundsDVARS:
		c.ConfoundTools.DVARS = cmd
	case ConfoundsTCompCor:
		c.ConfoundTools.TCompCor = cmd
	case ConfoundsBinarizeROI:
		c.ConfoundTools.BinarizeROI = cmd
	case ConfoundsACompCor:
		c.ConfoundTools.ACompCor = cmd
	case ConfoundsResample:
		c.Resample = cmd
	default:
		t, ok := c.Tools[key]
		if !ok {
			return fmt.Errorf("no overridable command named '%s' (known: %s)", key, strings.Join(c.Keys(), ", "))
		}
		c.Tools[key] = t.WithCommand(cmd)
	}
	return nil
}

// Keys lists every name Override accepts, sorted.
func (c *Catalog) Keys() []string {
	keys := slices.Collect(maps.Keys(c.Tools))
	keys = append(keys, ConfoundsSignals, ConfoundsDVARS, ConfoundsTCompCor,
		ConfoundsBinarizeROI, ConfoundsACompCor, ConfoundsResample)
	slices.Sort(keys)
	return keys
}

// Register implements registry.Module.
func (c *Catalog) Register(r *registry.Registry) {
	for _, spec := range Specs() {
		r.RegisterStage(spec, c.runner(spec.Name))
	}
}

func (c *Catalog) runner(name string) stage.Runner {
	switch name {
	case FuncHMC:
		return NewHMC(c.Tools[FuncHMC])
	case Confounds:
		return &ConfoundsRunner{
			Resample: &Tool{Commands: []stage.Command{c.Resample}},
			Tools:    c.ConfoundTools,
		}
	case DSAnat, DSFuncNative, DSFuncMNI:
		return Sink{}
	}
	if t, ok := c.Tools[name]; ok {
		return t.Runner()
	}
	return nil
}
