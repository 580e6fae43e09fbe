package graph

import "sort"

// Edge kinds.
const (
	EdgeInherits = "inherits"
	EdgeIncludes = "includes"
)

// Edge represents a directed relationship between two definitions.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// Graph is the canonical interface graph. It is built by a Merger and then
// completed by the resolve stages; afterwards it is read-only.
type Graph struct {
	Nodes map[string]*Node
	Edges []Edge

	// Failures are per-definition merge failures. A failed definition is
	// absent from Nodes.
	Failures []error
	// Warnings do not remove anything from the graph.
	Warnings []error

	failed   map[string]bool
	partials []pending
	includes []pending
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:  make(map[string]*Node),
		failed: make(map[string]bool),
	}
}

// Node returns the merged definition with the given name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.Nodes[name]
	return n, ok
}

// Names returns every definition name in sorted order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed reports whether the definition was dropped by a merge failure.
func (g *Graph) Failed(name string) bool {
	return g.failed[name]
}

// PendingPartials is the number of partial definitions waiting for their base.
func (g *Graph) PendingPartials() int { return len(g.partials) }

// PendingIncludes is the number of includes statements not yet flattened.
func (g *Graph) PendingIncludes() int { return len(g.includes) }

// Flattened returns the member list an interface exposes once every included
// mixin is copied in.
func (g *Graph) Flattened(name string) []Slot {
	n, ok := g.Nodes[name]
	if !ok {
		return nil
	}
	return n.AllMembers()
}

// LinkEdges rebuilds Edges from the inherits and includes relations of the
// current nodes.
func (g *Graph) LinkEdges() {
	g.Edges = nil
	for _, name := range g.Names() {
		n := g.Nodes[name]
		if n.Inherits != "" {
			g.Edges = append(g.Edges, Edge{From: name, To: n.Inherits, Kind: EdgeInherits})
		}
		for _, m := range n.Includes {
			g.Edges = append(g.Edges, Edge{From: name, To: m, Kind: EdgeIncludes})
		}
	}
}

// Dependencies returns the nodes the given definition inherits from or includes.
func (g *Graph) Dependencies(name string) []*Node {
	var deps []*Node
	for _, e := range g.Edges {
		if e.From == name {
			if n, ok := g.Nodes[e.To]; ok {
				deps = append(deps, n)
			}
		}
	}
	return deps
}

// Dependents returns the nodes that inherit from or include the given definition.
func (g *Graph) Dependents(name string) []*Node {
	var deps []*Node
	for _, e := range g.Edges {
		if e.To == name {
			if n, ok := g.Nodes[e.From]; ok {
				deps = append(deps, n)
			}
		}
	}
	return deps
}

func (g *Graph) fail(name string, err error) {
	g.Failures = append(g.Failures, err)
	g.failed[name] = true
	delete(g.Nodes, name)
}
