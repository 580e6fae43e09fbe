package ir

// SchemaVersion is written into every snapshot.
const SchemaVersion = "1"

// Evidence describes where a definition or member was declared.
type Evidence struct {
	Source   string `json:"source"`
	Priority int    `json:"priority"`
	Filepath string `json:"filepath"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// MemberIR is one flattened member of a merged definition.
type MemberIR struct {
	Kind     string   `json:"kind"`
	Name     string   `json:"name,omitempty"`
	Type     string   `json:"type,omitempty"`
	Args     string   `json:"args,omitempty"`
	Static   bool     `json:"static,omitempty"`
	Readonly bool     `json:"readonly,omitempty"`
	Exposed  []string `json:"exposed,omitempty"`
	Text     string   `json:"text"`
	// From names the mixin a member was copied from; empty for own members.
	From     string   `json:"from,omitempty"`
	Evidence Evidence `json:"evidence"`
}

// DefinitionIR is a merged definition as handed to test generation.
type DefinitionIR struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Inherits string            `json:"inherits,omitempty"`
	ExtAttrs map[string]string `json:"ext_attrs,omitempty"`
	Exposed  []string          `json:"exposed,omitempty"`
	Includes []string          `json:"includes,omitempty"`
	Members  []MemberIR        `json:"members,omitempty"`
	Values   []string          `json:"values,omitempty"`
	Type     string            `json:"type,omitempty"`
	Evidence []Evidence        `json:"evidence"`
}

// EdgeIR is an inherits or includes relation.
type EdgeIR struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// FailureIR is a merge failure kept next to the graph it was excluded from.
type FailureIR struct {
	Definition string `json:"definition"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

// GraphSnapshot is the persisted view of the canonical interface graph.
type GraphSnapshot struct {
	Version     string         `json:"version"`
	Definitions []DefinitionIR `json:"definitions"`
	Edges       []EdgeIR       `json:"edges"`
	Failures    []FailureIR    `json:"failures,omitempty"`
	Warnings    []FailureIR    `json:"warnings,omitempty"`
}

// Definition looks up a definition by name.
func (s *GraphSnapshot) Definition(name string) (DefinitionIR, bool) {
	for _, d := range s.Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return DefinitionIR{}, false
}
