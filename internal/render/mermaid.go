package render

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"compatcollect/internal/graph"
	"compatcollect/internal/idl"
)

// ClassDiagram renders the inherits and includes relations between the named
// definitions as a mermaid class diagram. A nil list renders every interface
// and mixin in the graph.
func ClassDiagram(g *graph.Graph, names []string) string {
	selected := make(map[string]bool)
	if names == nil {
		for name, n := range g.Nodes {
			if diagrammable(n) {
				selected[name] = true
			}
		}
	} else {
		for _, name := range names {
			if n, ok := g.Nodes[name]; ok && diagrammable(n) {
				selected[name] = true
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("classDiagram\n")

	ordered := make([]string, 0, len(selected))
	for name := range selected {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		n := g.Nodes[name]
		sb.WriteString(fmt.Sprintf("    class %s {\n", name))
		switch n.Kind {
		case idl.KindMixin:
			sb.WriteString("        <<mixin>>\n")
		case idl.KindCallbackInterface:
			sb.WriteString("        <<callback>>\n")
		}
		// Included members are drawn on the mixin, not repeated here.
		for _, s := range n.Members {
			if line := memberLine(s.Member); line != "" {
				sb.WriteString("        " + line + "\n")
			}
		}
		sb.WriteString("    }\n")
	}

	for _, e := range g.Edges {
		if !selected[e.From] || !selected[e.To] {
			continue
		}
		switch e.Kind {
		case graph.EdgeInherits:
			sb.WriteString(fmt.Sprintf("    %s <|-- %s\n", e.To, e.From))
		case graph.EdgeIncludes:
			sb.WriteString(fmt.Sprintf("    %s ..> %s : includes\n", e.From, e.To))
		}
	}

	sb.WriteString("```\n")
	return sb.String()
}

func diagrammable(n *graph.Node) bool {
	switch n.Kind {
	case idl.KindInterface, idl.KindMixin, idl.KindCallbackInterface:
		return true
	}
	return false
}

func memberLine(m idl.Member) string {
	if m.Name == "" {
		return ""
	}
	static := ""
	if m.Static {
		static = "$"
	}
	switch m.Kind {
	case idl.MemberAttribute:
		return fmt.Sprintf("+%s %s%s", typeName(m.Type), m.Name, static)
	case idl.MemberOperation:
		return fmt.Sprintf("+%s()%s", m.Name, static)
	case idl.MemberConstant:
		return fmt.Sprintf("+%s$", m.Name)
	}
	return ""
}

// typeName compacts a tokenized IDL type into one mermaid word: generics use
// tildes and multi-word types are joined with underscores.
func typeName(t string) string {
	var b strings.Builder
	prevWord := false
	for _, f := range strings.Fields(t) {
		word := unicode.IsLetter(rune(f[0])) || f[0] == '_'
		if word && prevWord {
			b.WriteByte('_')
		}
		switch f {
		case "<", ">":
			b.WriteByte('~')
		case "(", ")":
		default:
			b.WriteString(f)
		}
		prevWord = word
	}
	return b.String()
}
