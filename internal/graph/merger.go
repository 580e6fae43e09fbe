package graph

import (
	"sort"

	"compatcollect/internal/idl"
)

// Merger combines named definition sets into one graph. Build always
// recomputes from every added set, so adding sets one at a time yields the
// same graph as merging them in a single pass.
type Merger struct {
	sets []idl.DefinitionSet
}

func NewMerger() *Merger {
	return &Merger{}
}

// Add queues a definition set. Sets of equal priority keep the order they
// were added in.
func (m *Merger) Add(sets ...idl.DefinitionSet) {
	m.sets = append(m.sets, sets...)
}

// Base merges every base definition and queues partials and includes
// statements. The resolve stages complete the graph.
func (m *Merger) Base() *Graph {
	ordered := make([]idl.DefinitionSet, len(m.sets))
	copy(ordered, m.sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	g := NewGraph()
	for _, set := range ordered {
		set.Each(func(d idl.Definition, o idl.Origin) {
			switch {
			case d.DefKind() == idl.KindIncludes:
				g.includes = append(g.includes, pending{def: d, origin: o})
			case d.IsPartial():
				g.partials = append(g.partials, pending{def: d, origin: o})
			default:
				g.addBase(d, o)
			}
		})
	}
	return g
}

// Build merges and fully resolves the graph.
func (m *Merger) Build() *Graph {
	g := m.Base()
	g.ResolvePartials()
	g.ResolveIncludes()
	g.CheckInheritance()
	g.LinkEdges()
	return g
}

// Merge is shorthand for a Merger fed with sets in order.
func Merge(sets ...idl.DefinitionSet) *Graph {
	m := NewMerger()
	m.Add(sets...)
	return m.Build()
}

// addBase merges one base definition. A strictly higher-priority source may
// redefine a name with another kind; otherwise a kind clash fails the name.
func (g *Graph) addBase(d idl.Definition, o idl.Origin) {
	name := d.DefName()
	if g.failed[name] {
		return
	}

	existing, ok := g.Nodes[name]
	if !ok {
		g.Nodes[name] = newNode(d, o)
		return
	}
	if existing.Kind != d.DefKind() {
		if o.Priority > maxPriority(existing.Origins) {
			g.Nodes[name] = newNode(d, o)
			return
		}
		g.fail(name, &MergeConflict{
			Definition: name,
			Reason:     ReasonKindConflict,
			Existing:   existing.Origins[0],
			Incoming:   o,
		})
		return
	}

	existing.Origins = append(existing.Origins, o)
	switch v := d.(type) {
	case *idl.Interface:
		if v.Inherits != "" {
			existing.Inherits = v.Inherits
		}
	case *idl.Dictionary:
		if v.Inherits != "" {
			existing.Inherits = v.Inherits
		}
	case *idl.Enum:
		existing.Values = unionStrings(existing.Values, v.Values)
		existing.ExtAttrs = overlayExtAttrs(existing.ExtAttrs, v.ExtAttrs)
		return
	case *idl.Typedef:
		existing.Type = v.Type
		return
	case *idl.Callback:
		existing.Type = v.Text
		return
	}

	c := idl.ContainerOf(d)
	existing.ExtAttrs = overlayExtAttrs(existing.ExtAttrs, c.ExtAttrs)
	for _, mem := range c.Members {
		if err := existing.addMember(mem, o, true); err != nil {
			g.fail(name, err)
			return
		}
	}
}

func newNode(d idl.Definition, o idl.Origin) *Node {
	n := &Node{Name: d.DefName(), Kind: d.DefKind(), Origins: []idl.Origin{o}}
	switch v := d.(type) {
	case *idl.Interface:
		n.Inherits = v.Inherits
	case *idl.Dictionary:
		n.Inherits = v.Inherits
	case *idl.Enum:
		n.Values = append([]string(nil), v.Values...)
		n.ExtAttrs = append(idl.ExtAttrs(nil), v.ExtAttrs...)
		return n
	case *idl.Typedef:
		n.Type = v.Type
		return n
	case *idl.Callback:
		n.Type = v.Text
		return n
	}

	c := idl.ContainerOf(d)
	n.ExtAttrs = append(idl.ExtAttrs(nil), c.ExtAttrs...)
	for _, mem := range c.Members {
		n.Members = append(n.Members, slotOf(mem, n.Name, o))
	}
	return n
}

func maxPriority(origins []idl.Origin) int {
	p := origins[0].Priority
	for _, o := range origins[1:] {
		if o.Priority > p {
			p = o.Priority
		}
	}
	return p
}

func slotOf(m idl.Member, from string, o idl.Origin) Slot {
	m.ExtAttrs = append(idl.ExtAttrs(nil), m.ExtAttrs...)
	o.Position = m.Position
	return Slot{Member: m, From: from, Origin: o}
}

// addMember applies the member accumulation rules. override allows a
// strictly higher-priority declaration to replace an existing one.
func (n *Node) addMember(m idl.Member, o idl.Origin, override bool) error {
	slots, err := mergeSlot(n.Name, n.Members, slotOf(m, n.Name, o), override)
	if err != nil {
		return err
	}
	n.Members = slots
	return nil
}

// mergeSlot adds s to slots. Identical declarations collapse, overloads
// accumulate and any other collision is a conflict for owner.
func mergeSlot(owner string, slots []Slot, s Slot, override bool) ([]Slot, error) {
	key := s.Key()
	for i, cur := range slots {
		if cur.Key() != key {
			continue
		}
		if cur.Text == s.Text {
			return slots, nil
		}
		if cur.Overloadable() && s.Overloadable() {
			continue
		}
		if override && s.Origin.Priority > cur.Origin.Priority {
			slots[i] = s
			return slots, nil
		}
		return slots, &MergeConflict{
			Definition: owner,
			Member:     key,
			Reason:     ReasonMemberConflict,
			Existing:   cur.Origin,
			Incoming:   s.Origin,
		}
	}
	return append(slots, s), nil
}

// overlayExtAttrs replaces same-named attributes and appends new ones.
func overlayExtAttrs(base, incoming idl.ExtAttrs) idl.ExtAttrs {
	out := append(idl.ExtAttrs(nil), base...)
	for _, a := range incoming {
		replaced := false
		for i := range out {
			if out[i].Name == a.Name {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

func unionStrings(base, incoming []string) []string {
	seen := make(map[string]bool, len(base))
	out := append([]string(nil), base...)
	for _, s := range base {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
