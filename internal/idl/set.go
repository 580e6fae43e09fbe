package idl

// SourceFile is one parsed file of a source.
type SourceFile struct {
	Name        string       `json:"name"`
	Definitions []Definition `json:"-"`
}

// DefinitionSet is every parsed file of one named source. Higher Priority
// sources win merge conflicts over lower ones.
type DefinitionSet struct {
	Source   string       `json:"source"`
	Priority int          `json:"priority"`
	Files    []SourceFile `json:"files"`
}

// Origin identifies where a definition came from.
type Origin struct {
	Source   string   `json:"source"`
	Priority int      `json:"priority"`
	File     string   `json:"file"`
	Position Position `json:"position"`
}

// Each calls fn for every definition in file order.
func (s DefinitionSet) Each(fn func(Definition, Origin)) {
	for _, f := range s.Files {
		for _, d := range f.Definitions {
			fn(d, Origin{Source: s.Source, Priority: s.Priority, File: f.Name, Position: d.Pos()})
		}
	}
}

// Len returns the number of definitions in the set.
func (s DefinitionSet) Len() int {
	n := 0
	for _, f := range s.Files {
		n += len(f.Definitions)
	}
	return n
}
