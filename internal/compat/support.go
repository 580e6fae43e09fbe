package compat

// Range is one supported run of versions. Removed is empty while support continues.
type Range struct {
	Added   string `json:"version_added"`
	Removed string `json:"version_removed,omitempty"`
}

// Ranges walks versions in release order and returns every supported run.
// A run starts at a True cell and ends at the next False cell. Absent and
// Null cells neither start nor end a run.
func (m BrowserSupportMap) Ranges(order []string) []Range {
	var out []Range
	open := -1
	for _, v := range order {
		val, ok := m[v]
		if !ok {
			continue
		}
		switch val {
		case True:
			if open < 0 {
				out = append(out, Range{Added: v})
				open = len(out) - 1
			}
		case False:
			if open >= 0 {
				out[open].Removed = v
				open = -1
			}
		}
	}
	return out
}

// FirstSupported returns the lowest version of the current supported run: the
// first True cell that is not followed by a False. Empty when the browser does
// not currently support the feature.
func (m BrowserSupportMap) FirstSupported(order []string) string {
	ranges := m.Ranges(order)
	if len(ranges) == 0 {
		return ""
	}
	last := ranges[len(ranges)-1]
	if last.Removed != "" {
		return ""
	}
	return last.Added
}
