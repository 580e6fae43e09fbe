package matrix

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"compatcollect/internal/compat"
)

// KnownFeatures is the feature namespace derived from the interface graph.
type KnownFeatures interface {
	Has(id compat.FeatureID) bool
}

// ReleaseOrder returns a browser's releases in ascending order.
type ReleaseOrder interface {
	Releases(browser string) []string
}

// OrphanFeatureWarning flags a reduced feature with no matching member in
// the interface graph. The feature stays in the matrix.
type OrphanFeatureWarning struct {
	Feature compat.FeatureID
	// Parent is the closest ancestor that is known, if any.
	Parent compat.FeatureID
}

func (w *OrphanFeatureWarning) Error() string {
	if w.Parent != "" {
		return fmt.Sprintf("%s: not in the interface graph (closest known: %s)", w.Feature, w.Parent)
	}
	return fmt.Sprintf("%s: not in the interface graph", w.Feature)
}

// Matrix is the assembled support table. Known and orphan features are kept
// apart so consumers can flag stale or renamed features.
type Matrix struct {
	Support map[compat.FeatureID]compat.SupportMap `json:"support"`
	Orphans map[compat.FeatureID]compat.SupportMap `json:"orphans"`
}

// Assemble composes reduced maps into a matrix. ids selects and orders the
// features; nil takes every reduced feature. Features without a reduced map
// are skipped. A nil known set classifies nothing as orphan.
func Assemble(ids []compat.FeatureID, reduced map[compat.FeatureID]compat.SupportMap, known KnownFeatures) (*Matrix, []OrphanFeatureWarning) {
	if ids == nil {
		for id := range reduced {
			ids = append(ids, id)
		}
	}
	sorted := append([]compat.FeatureID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	m := &Matrix{
		Support: make(map[compat.FeatureID]compat.SupportMap),
		Orphans: make(map[compat.FeatureID]compat.SupportMap),
	}
	var orphans []OrphanFeatureWarning
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		support, ok := reduced[id]
		if !ok {
			continue
		}
		if known == nil || known.Has(id) {
			m.Support[id] = support.Clone()
			continue
		}
		m.Orphans[id] = support.Clone()
		orphans = append(orphans, OrphanFeatureWarning{Feature: id, Parent: knownAncestor(id, known)})
	}
	return m, orphans
}

func knownAncestor(id compat.FeatureID, known KnownFeatures) compat.FeatureID {
	for p := id.Parent(); p != ""; p = p.Parent() {
		if known.Has(p) {
			return p
		}
	}
	return ""
}

// Features returns every feature in the matrix, orphans included, sorted.
func (m *Matrix) Features() []compat.FeatureID {
	ids := make([]compat.FeatureID, 0, len(m.Support)+len(m.Orphans))
	for id := range m.Support {
		ids = append(ids, id)
	}
	for id := range m.Orphans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lookup returns a feature's support map and whether it is an orphan.
func (m *Matrix) Lookup(id compat.FeatureID) (compat.SupportMap, bool, bool) {
	if s, ok := m.Support[id]; ok {
		return s, false, true
	}
	s, ok := m.Orphans[id]
	return s, true, ok
}

// Cells counts every resolved (feature, browser, version) value.
func (m *Matrix) Cells() int {
	n := 0
	for _, group := range []map[compat.FeatureID]compat.SupportMap{m.Support, m.Orphans} {
		for _, s := range group {
			for _, b := range s {
				n += len(b)
			}
		}
	}
	return n
}

// Summary gives the supported ranges per feature and browser, for
// publishing. Browsers without a supported run are omitted.
func (m *Matrix) Summary(order ReleaseOrder) map[compat.FeatureID]map[string][]compat.Range {
	out := make(map[compat.FeatureID]map[string][]compat.Range)
	for _, id := range m.Features() {
		support, _, _ := m.Lookup(id)
		for browser, versions := range support {
			ranges := versions.Ranges(order.Releases(browser))
			if len(ranges) == 0 {
				continue
			}
			if out[id] == nil {
				out[id] = make(map[string][]compat.Range)
			}
			out[id][browser] = ranges
		}
	}
	return out
}

// WriteFile writes the matrix as indented JSON. Map keys are emitted in
// sorted order, so equal matrices produce identical files.
func (m *Matrix) WriteFile(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal matrix: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write matrix: %w", err)
	}
	return nil
}

// LoadFile reads a matrix written by WriteFile.
func LoadFile(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	m := &Matrix{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse matrix: %w", err)
	}
	if m.Support == nil {
		m.Support = make(map[compat.FeatureID]compat.SupportMap)
	}
	if m.Orphans == nil {
		m.Orphans = make(map[compat.FeatureID]compat.SupportMap)
	}
	return m, nil
}
