package graph

import (
	"errors"

	"compatcollect/internal/idl"
	"compatcollect/internal/ir"
)

// Snapshot converts the graph into its serialisable form. Definitions are
// sorted by name, members keep their merged order.
func (g *Graph) Snapshot() *ir.GraphSnapshot {
	snap := &ir.GraphSnapshot{Version: ir.SchemaVersion}
	for _, name := range g.Names() {
		n := g.Nodes[name]
		def := ir.DefinitionIR{
			Name:     n.Name,
			Kind:     string(n.Kind),
			Inherits: n.Inherits,
			Exposed:  n.ExtAttrs.Exposed(),
			Includes: n.Includes,
			Values:   n.Values,
			Type:     n.Type,
		}
		if len(n.ExtAttrs) > 0 {
			def.ExtAttrs = make(map[string]string, len(n.ExtAttrs))
			for _, a := range n.ExtAttrs {
				def.ExtAttrs[a.Name] = a.Value
			}
		}
		for _, o := range n.Origins {
			def.Evidence = append(def.Evidence, evidenceOf(o))
		}
		for _, s := range n.AllMembers() {
			m := ir.MemberIR{
				Kind:     string(s.Kind),
				Name:     s.Name,
				Type:     s.Type,
				Args:     s.Args,
				Static:   s.Static,
				Readonly: s.Readonly,
				Exposed:  s.ExtAttrs.Exposed(),
				Text:     s.Text,
				Evidence: evidenceOf(s.Origin),
			}
			if s.From != n.Name {
				m.From = s.From
			}
			def.Members = append(def.Members, m)
		}
		snap.Definitions = append(snap.Definitions, def)
	}

	for _, e := range g.Edges {
		snap.Edges = append(snap.Edges, ir.EdgeIR{From: e.From, To: e.To, Kind: e.Kind})
	}
	snap.Failures = failuresIR(g.Failures)
	snap.Warnings = failuresIR(g.Warnings)
	return snap
}

func evidenceOf(o idl.Origin) ir.Evidence {
	return ir.Evidence{
		Source:   o.Source,
		Priority: o.Priority,
		Filepath: o.File,
		Line:     o.Position.Line,
		Column:   o.Position.Column,
	}
}

func failuresIR(errs []error) []ir.FailureIR {
	var out []ir.FailureIR
	for _, err := range errs {
		f := ir.FailureIR{Message: err.Error()}
		var mc *MergeConflict
		var ur *UnresolvedReference
		switch {
		case errors.As(err, &mc):
			f.Definition, f.Reason = mc.Definition, string(mc.Reason)
		case errors.As(err, &ur):
			f.Definition, f.Reason = ur.Definition, string(ur.Reason)
		}
		out = append(out, f)
	}
	return out
}
