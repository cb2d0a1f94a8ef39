package dag

import (
	"fmt"
	"io"
	"sort"
)

func newGraph(subject string) *Graph {
	return &Graph{
		Subject: subject,
		nodes:   make(map[string]*Node),
	}
}

// addNode adds a node. A node with the same ID already present is an error.
func (g *Graph) addNode(n *Node) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	id := n.ID()
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("duplicate node: %s", id)
	}
	n.deps = make(map[string]*Node)
	n.dependents = make(map[string]*Node)
	g.nodes[id] = n
	g.order = append(g.order, id)
	return nil
}

// addEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`.
func (g *Graph) addEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Len returns the number of instances.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Node returns the instance with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every instance in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Instances returns the instances of a template ordered by run index.
func (g *Graph) Instances(template string) []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if n.Template == template {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Run < out[j].Run })
	return out
}

// TopologicalOrder returns the instances so that every node follows all of
// its dependencies. Ties are broken by insertion order.
func (g *Graph) TopologicalOrder() ([]*Node, error) {
	nodes := g.Nodes()
	pos := make(map[string]int, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for i, n := range nodes {
		pos[n.ID()] = i
		indegree[n.ID()] = len(n.deps)
	}

	var ready []*Node
	for _, n := range nodes {
		if indegree[n.ID()] == 0 {
			ready = append(ready, n)
		}
	}

	out := make([]*Node, 0, len(nodes))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool { return pos[ready[i].ID()] < pos[ready[j].ID()] })
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, d := range n.Dependents() {
			indegree[d.ID()]--
			if indegree[d.ID()] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(out) != len(nodes) {
		return nil, g.DetectCycles()
	}
	return out, nil
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, indicating the first node involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID()] {
			return nil
		}
		if temporary[n.ID()] {
			return fmt.Errorf("cycle detected involving node '%s'", n.ID())
		}

		temporary[n.ID()] = true
		for _, dependent := range n.Dependents() {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID())
		permanent[n.ID()] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// WriteDOT renders the graph in Graphviz format.
func (g *Graph) WriteDOT(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "digraph %q {\n", g.Subject); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		if _, err := fmt.Fprintf(w, "  %q;\n", n.ID()); err != nil {
			return err
		}
	}
	for _, n := range g.Nodes() {
		for _, b := range n.Bindings {
			if _, err := fmt.Fprintf(w, "  %q -> %q [label=%q];\n", b.From, n.ID(), b.FromPort+"->"+b.Port); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
