package graph

import "compatcollect/internal/idl"

// Stats summarises one resolve pass.
type Stats struct {
	Attempted int
	Resolved  int
	Failed    int
}

// ResolvePartials unions every queued partial into its base. Partials are
// applied in priority order. A partial whose base is unknown is reported and
// dropped; a member collision fails the whole definition.
func (g *Graph) ResolvePartials() Stats {
	var st Stats
	for _, p := range g.partials {
		st.Attempted++
		name := p.def.DefName()
		if g.failed[name] {
			st.Failed++
			continue
		}

		n, ok := g.Nodes[name]
		if !ok {
			g.Failures = append(g.Failures, &UnresolvedReference{
				Definition: name,
				Target:     name,
				Reason:     ReasonUnresolvedBase,
				Origin:     p.origin,
			})
			st.Failed++
			continue
		}
		if n.Kind != p.def.DefKind() {
			g.fail(name, &MergeConflict{
				Definition: name,
				Reason:     ReasonKindConflict,
				Existing:   n.Origins[0],
				Incoming:   p.origin,
			})
			st.Failed++
			continue
		}

		c := idl.ContainerOf(p.def)
		exposed, scoped := c.ExtAttrs.Get("Exposed")
		var err error
		for _, m := range c.Members {
			if scoped {
				m = withDefaultExposed(m, exposed)
			}
			if err = n.addMember(m, p.origin, false); err != nil {
				break
			}
		}
		if err != nil {
			g.fail(name, err)
			st.Failed++
			continue
		}
		n.Origins = append(n.Origins, p.origin)
		st.Resolved++
	}
	g.partials = nil
	return st
}

// ResolveIncludes records every includes statement and builds the flattened
// member list of each interface. Mixins are only read.
func (g *Graph) ResolveIncludes() Stats {
	var st Stats
	for _, p := range g.includes {
		st.Attempted++
		inc := p.def.(*idl.Includes)
		if g.failed[inc.Target] || g.failed[inc.Mixin] {
			st.Failed++
			continue
		}
		target, okT := g.Nodes[inc.Target]
		mixin, okM := g.Nodes[inc.Mixin]
		if !okT || !okM || target.Kind != idl.KindInterface || mixin.Kind != idl.KindMixin {
			missing := inc.Mixin
			if !okT || target.Kind != idl.KindInterface {
				missing = inc.Target
			}
			g.Failures = append(g.Failures, &UnresolvedReference{
				Definition: inc.Target,
				Target:     missing,
				Reason:     ReasonUnresolvedInclude,
				Origin:     p.origin,
			})
			st.Failed++
			continue
		}
		if !contains(target.Includes, inc.Mixin) {
			target.Includes = append(target.Includes, inc.Mixin)
		}
		st.Resolved++
	}
	g.includes = nil

	for _, name := range g.Names() {
		n := g.Nodes[name]
		if n.Kind != idl.KindInterface {
			continue
		}
		if err := g.flatten(n); err != nil {
			g.fail(name, err)
		}
	}
	return st
}

func (g *Graph) flatten(n *Node) error {
	flat := make([]Slot, 0, len(n.Members))
	for _, s := range n.Members {
		flat = append(flat, slotOf(s.Member, s.From, s.Origin))
	}

	for _, mixinName := range n.Includes {
		mixin, ok := g.Nodes[mixinName]
		if !ok {
			continue
		}
		exposed, scoped := mixin.ExtAttrs.Get("Exposed")
		for _, s := range mixin.Members {
			m := s.Member
			if scoped {
				m = withDefaultExposed(m, exposed)
			}
			cp := slotOf(m, mixinName, s.Origin)
			var err error
			if flat, err = mergeSlot(n.Name, flat, cp, false); err != nil {
				return err
			}
		}
	}
	n.Flattened = flat
	return nil
}

// CheckInheritance reports parents that do not exist and inheritance cycles.
// Both are warnings; the definitions stay in the graph.
func (g *Graph) CheckInheritance() Stats {
	var st Stats
	for _, name := range g.Names() {
		n := g.Nodes[name]
		if n.Inherits == "" {
			continue
		}
		st.Attempted++

		parent, ok := g.Nodes[n.Inherits]
		if !ok || parent.Kind != n.Kind {
			g.Warnings = append(g.Warnings, &UnresolvedReference{
				Definition: name,
				Target:     n.Inherits,
				Reason:     ReasonUnknownParent,
				Origin:     n.Origins[0],
			})
			st.Failed++
			continue
		}
		if g.inCycle(name) {
			g.Warnings = append(g.Warnings, &UnresolvedReference{
				Definition: name,
				Target:     n.Inherits,
				Reason:     ReasonInheritanceCycle,
				Origin:     n.Origins[0],
			})
			st.Failed++
			continue
		}
		st.Resolved++
	}
	return st
}

// Ancestors returns the inheritance chain of a definition, nearest first.
// The walk stops at an unknown parent or a repeated name.
func (g *Graph) Ancestors(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	for {
		n, ok := g.Nodes[name]
		if !ok || n.Inherits == "" || seen[n.Inherits] {
			return out
		}
		name = n.Inherits
		if _, ok := g.Nodes[name]; !ok {
			return out
		}
		seen[name] = true
		out = append(out, name)
	}
}

func (g *Graph) inCycle(start string) bool {
	seen := map[string]bool{}
	cur := start
	for {
		n, ok := g.Nodes[cur]
		if !ok || n.Inherits == "" {
			return false
		}
		cur = n.Inherits
		if cur == start {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
	}
}

func withDefaultExposed(m idl.Member, exposed string) idl.Member {
	if m.ExtAttrs.Has("Exposed") {
		return m
	}
	attrs := make(idl.ExtAttrs, 0, len(m.ExtAttrs)+1)
	attrs = append(attrs, m.ExtAttrs...)
	m.ExtAttrs = append(attrs, idl.ExtAttr{Name: "Exposed", Value: exposed})
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
