package dag

import (
	"sort"
	"sync"

	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/stage"
)

// Validator checks a value as it flows across a connection.
type Validator func(value string) error

// Graph is the expanded set of stage instances for one subject. The graph
// is immutable after Build; reads are concurrency-safe.
type Graph struct {
	Subject string
	// Runs is the number of elements bound to the iterable port.
	Runs int

	mutex sync.RWMutex
	nodes map[string]*Node
	// order keeps insertion order so iteration is deterministic.
	order []string
}

// Node is one stage instance.
type Node struct {
	Address  nodeid.Address
	Template string
	Spec     *stage.Spec
	Config   stage.Config
	// Run is the iterable element index, or -1 for shared instances.
	Run       int
	OutputDir string

	// Bindings are inputs fed by other instances.
	Bindings []Binding
	// Constants are literal input values, e.g. inventory paths.
	Constants map[string][]string

	deps       map[string]*Node
	dependents map[string]*Node
}

// Binding connects one output of a producer instance to an input port.
type Binding struct {
	Port      string
	From      string
	FromPort  string
	Slot      int
	Validator Validator
}

// ID returns the canonical string representation of the node's address.
func (n *Node) ID() string {
	return n.Address.String()
}

// Shared reports whether the instance is common to every run.
func (n *Node) Shared() bool {
	return n.Run < 0
}

// Deps returns the producers this node depends on, sorted by ID.
func (n *Node) Deps() []*Node {
	return sortedNodes(n.deps)
}

// Dependents returns the consumers of this node, sorted by ID.
func (n *Node) Dependents() []*Node {
	return sortedNodes(n.dependents)
}

func sortedNodes(m map[string]*Node) []*Node {
	out := make([]*Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
