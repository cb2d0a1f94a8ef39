package dag

import (
	"fmt"

	"github.com/vk/fmriflow/internal/stage"
)

// OutputLookup returns the recorded outputs of a finished instance.
type OutputLookup func(id string) (stage.Outputs, bool)

// ResolveInputs assembles the input values of a node from its literal
// bindings and the outputs of its producers. Aggregation ports receive
// values in slot order. Connection validators run here.
func (n *Node) ResolveInputs(lookup OutputLookup) (map[string][]string, error) {
	inputs := make(map[string][]string, len(n.Spec.Inputs))
	for port, vals := range n.Constants {
		inputs[port] = append(inputs[port], vals...)
	}
	for _, b := range n.Bindings {
		outs, ok := lookup(b.From)
		if !ok {
			return nil, fmt.Errorf("producer '%s' has no recorded outputs", b.From)
		}
		v, ok := outs[b.FromPort]
		if !ok {
			return nil, fmt.Errorf("producer '%s' did not emit '%s'", b.From, b.FromPort)
		}
		if b.Validator != nil {
			if err := b.Validator(v); err != nil {
				return nil, fmt.Errorf("input '%s' from %s.%s rejected: %w", b.Port, b.From, b.FromPort, err)
			}
		}
		inputs[b.Port] = append(inputs[b.Port], v)
	}
	for _, p := range n.Spec.Inputs {
		if len(inputs[p.Name]) == 0 {
			return nil, fmt.Errorf("input '%s' resolved to no value", p.Name)
		}
	}
	return inputs, nil
}
