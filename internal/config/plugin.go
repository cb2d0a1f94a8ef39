package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Plugin is an execution plugin file:
//
//	plugin: MultiProc
//	plugin_args:
//	  n_procs: 8
//	  memory_gb: 16
type Plugin struct {
	Plugin string     `yaml:"plugin"`
	Args   PluginArgs `yaml:"plugin_args"`
}

// PluginArgs are the resource settings of a plugin file.
type PluginArgs struct {
	NProcs            int     `yaml:"n_procs"`
	MemoryGB          float64 `yaml:"memory_gb"`
	RaiseInsufficient bool    `yaml:"raise_insufficient"`
}

// LoadPlugin reads a plugin file.
func LoadPlugin(path string) (*Plugin, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin file: %w", err)
	}
	var p Plugin
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plugin file %s: %w", path, err)
	}
	switch p.Plugin {
	case "", "MultiProc", "Linear":
	default:
		return nil, fmt.Errorf("plugin file %s: unsupported plugin %q", path, p.Plugin)
	}
	if p.Args.NProcs < 0 || p.Args.MemoryGB < 0 {
		return nil, fmt.Errorf("plugin file %s: negative resource values", path)
	}
	return &p, nil
}

// Budget converts the plugin arguments. Linear runs one stage at a time.
func (p *Plugin) Budget() Budget {
	b := Budget{
		Threads:  p.Args.NProcs,
		MemoryMB: int(math.Round(p.Args.MemoryGB * 1024)),
	}
	if p.Plugin == "Linear" {
		b.Threads = 1
	}
	return b
}
