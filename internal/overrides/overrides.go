package overrides

import (
	"fmt"
	"os"
	"sort"

	"compatcollect/internal/compat"

	"github.com/hashicorp/go-version"
	"github.com/tidwall/gjson"
)

// AnyVersion targets every release of a browser.
const AnyVersion = "*"

// Directive forces one cell (or every release of a browser) to a value.
type Directive struct {
	Feature compat.FeatureID
	Browser string
	Version string
	Value   compat.Value
	Note    string
	// Index is the entry's position in the overrides list.
	Index int
}

// EntryError reports an override entry that could not be understood. The
// entry is skipped.
type EntryError struct {
	Index  int
	Reason string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("override #%d: %s", e.Index, e.Reason)
}

type cellKey struct {
	feature compat.FeatureID
	browser string
	version string
}

// Set is a parsed, read-only overrides table.
type Set struct {
	suppressed map[compat.FeatureID]int
	cells      map[cellKey]Directive
	features   map[compat.FeatureID]bool
}

func NewSet() *Set {
	return &Set{
		suppressed: make(map[compat.FeatureID]int),
		cells:      make(map[cellKey]Directive),
		features:   make(map[compat.FeatureID]bool),
	}
}

// Load reads an overrides file. A missing path yields an empty set.
func Load(path string) (*Set, []error, error) {
	if path == "" {
		return NewSet(), nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	return Parse(data)
}

// Parse decodes an overrides list. Entries are either a bare feature id
// (suppress) or [feature, browser, version, value, note?]. Later entries win
// over earlier ones for the same cell.
func Parse(data []byte) (*Set, []error, error) {
	if !gjson.ValidBytes(data) {
		return nil, nil, fmt.Errorf("overrides are not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, nil, fmt.Errorf("overrides must be a JSON array")
	}

	s := NewSet()
	var errs []error
	for i, entry := range root.Array() {
		if err := s.add(i, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return s, errs, nil
}

func (s *Set) add(i int, entry gjson.Result) error {
	if entry.Type == gjson.String {
		if entry.String() == "" {
			return &EntryError{Index: i, Reason: "empty feature id"}
		}
		id := compat.FeatureID(entry.String())
		s.suppressed[id] = i
		s.features[id] = true
		return nil
	}
	if !entry.IsArray() {
		return &EntryError{Index: i, Reason: "entry must be a feature id or an array"}
	}

	parts := entry.Array()
	if len(parts) != 4 && len(parts) != 5 {
		return &EntryError{Index: i, Reason: fmt.Sprintf("expected 4 or 5 elements, got %d", len(parts))}
	}
	if parts[0].Type != gjson.String || parts[0].String() == "" {
		return &EntryError{Index: i, Reason: "feature id must be a non-empty string"}
	}
	if parts[1].Type != gjson.String || parts[1].String() == "" {
		return &EntryError{Index: i, Reason: "browser must be a non-empty string"}
	}
	if parts[2].Type != gjson.String && parts[2].Type != gjson.Number {
		return &EntryError{Index: i, Reason: "version must be a string or number"}
	}

	d := Directive{
		Feature: compat.FeatureID(parts[0].String()),
		Browser: parts[1].String(),
		// Numbers keep their source text so "13.10" stays distinct from "13.1".
		Version: parts[2].Raw,
		Index:   i,
	}
	if parts[2].Type == gjson.String {
		d.Version = parts[2].String()
	}
	switch parts[3].Type {
	case gjson.True:
		d.Value = compat.True
	case gjson.False:
		d.Value = compat.False
	case gjson.Null:
		d.Value = compat.Null
	default:
		return &EntryError{Index: i, Reason: "value must be true, false or null"}
	}
	if len(parts) == 5 {
		if parts[4].Type != gjson.String {
			return &EntryError{Index: i, Reason: "note must be a string"}
		}
		d.Note = parts[4].String()
	}

	s.cells[cellKey{d.Feature, d.Browser, d.Version}] = d
	s.features[d.Feature] = true
	return nil
}

// Releases is the release list of each known browser, in release order.
type Releases interface {
	Releases(browser string) []string
}

// Resolve returns a copy of the set whose cell directives name catalog
// releases exactly. A version written differently from its release ("90.0"
// for "90") is rewritten to it. Directives for unknown browsers or for
// versions that are not releases never match a cell and are reported.
func (s *Set) Resolve(known Releases) (*Set, []error) {
	out := NewSet()
	for id, i := range s.suppressed {
		out.suppressed[id] = i
		out.features[id] = true
	}

	directives := make([]Directive, 0, len(s.cells))
	for _, d := range s.cells {
		directives = append(directives, d)
	}
	sort.Slice(directives, func(i, j int) bool { return directives[i].Index < directives[j].Index })

	var errs []error
	for _, d := range directives {
		releases := known.Releases(d.Browser)
		if len(releases) == 0 {
			errs = append(errs, &EntryError{Index: d.Index, Reason: fmt.Sprintf("unknown browser %q", d.Browser)})
			continue
		}
		if d.Version != AnyVersion {
			release, ok := matchRelease(releases, d.Version)
			if !ok {
				errs = append(errs, &EntryError{Index: d.Index, Reason: fmt.Sprintf("%s has no release %q", d.Browser, d.Version)})
				continue
			}
			d.Version = release
		}
		// Ascending index order keeps later entries winning after rewrites.
		out.cells[cellKey{d.Feature, d.Browser, d.Version}] = d
		out.features[d.Feature] = true
	}
	return out, errs
}

func matchRelease(releases []string, v string) (string, bool) {
	for _, r := range releases {
		if r == v {
			return r, true
		}
	}
	want, err := version.NewVersion(v)
	if err != nil {
		return "", false
	}
	for _, r := range releases {
		if got, err := version.NewVersion(r); err == nil && got.Equal(want) {
			return r, true
		}
	}
	return "", false
}

// Suppressed reports whether the feature's collected evidence is dropped.
func (s *Set) Suppressed(id compat.FeatureID) bool {
	_, ok := s.suppressed[id]
	return ok
}

// Lookup returns the directive for a cell. An exact version beats "*".
func (s *Set) Lookup(id compat.FeatureID, browser, version string) (Directive, bool) {
	if d, ok := s.cells[cellKey{id, browser, version}]; ok {
		return d, true
	}
	d, ok := s.cells[cellKey{id, browser, AnyVersion}]
	return d, ok
}

// Features returns every feature named by an override, sorted.
func (s *Set) Features() []compat.FeatureID {
	ids := make([]compat.FeatureID, 0, len(s.features))
	for id := range s.features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len is the number of effective entries.
func (s *Set) Len() int {
	return len(s.suppressed) + len(s.cells)
}
