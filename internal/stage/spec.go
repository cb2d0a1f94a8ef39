package stage

import "fmt"

// Spec is the static contract of a stage.
type Spec struct {
	Name    string
	Inputs  []Port
	Outputs []Port
	// MemoryMB is the estimated peak memory of one instance.
	MemoryMB int
	// Threads is the number of threads one instance wants, capped by the budget.
	Threads int
}

// Input looks up an input port by name.
func (s *Spec) Input(name string) (Port, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Output looks up an output port by name.
func (s *Spec) Output(name string) (Port, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Validate checks that port names are unique per direction.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("stage spec has no name")
	}
	for dir, ports := range map[string][]Port{"input": s.Inputs, "output": s.Outputs} {
		seen := make(map[string]bool, len(ports))
		for _, p := range ports {
			if seen[p.Name] {
				return fmt.Errorf("stage '%s': duplicate %s port '%s'", s.Name, dir, p.Name)
			}
			seen[p.Name] = true
		}
	}
	return nil
}

// Config is the typed, per-stage configuration. Every stage has its own
// struct and validates it when the pipeline is assembled.
type Config interface {
	Validate() error
}

// NoConfig is used by stages without tunables.
type NoConfig struct{}

func (NoConfig) Validate() error { return nil }
