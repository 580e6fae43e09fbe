package extractor

import (
	"sort"
	"sync"

	"compatcollect/internal/compat"
	"compatcollect/internal/graph"
	"compatcollect/internal/idl"
)

// Feature kinds.
const (
	KindInterface   = "interface"
	KindMember      = "member"
	KindConstructor = "constructor"
	KindIterator    = "iterator"
	KindCustom      = "custom"
)

// Feature is one known, testable feature identifier.
type Feature struct {
	ID        compat.FeatureID  `json:"id"`
	Kind      string            `json:"kind"`
	Exposures []compat.Exposure `json:"exposures"`
	// Definition is the graph definition or custom test file the feature
	// was derived from.
	Definition string `json:"definition"`
}

// Registry is the set of feature identifiers the interface graph and custom
// tests know about. It is safe for concurrent readers once built.
type Registry struct {
	mu       sync.RWMutex
	features map[compat.FeatureID]*Feature
}

func NewRegistry() *Registry {
	return &Registry{features: make(map[compat.FeatureID]*Feature)}
}

// Add registers a feature. Registering an existing id widens its exposures.
func (r *Registry) Add(f Feature) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.features[f.ID]
	if !ok {
		cp := f
		cp.Exposures = sortExposures(append([]compat.Exposure(nil), f.Exposures...))
		r.features[f.ID] = &cp
		return
	}
	cur.Exposures = sortExposures(unionExposures(cur.Exposures, f.Exposures))
}

// Has reports whether id is a known feature.
func (r *Registry) Has(id compat.FeatureID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.features[id]
	return ok
}

func (r *Registry) Lookup(id compat.FeatureID) (Feature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.features[id]
	if !ok {
		return Feature{}, false
	}
	return *f, true
}

// IDs returns every registered id in sorted order.
func (r *Registry) IDs() []compat.FeatureID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]compat.FeatureID, 0, len(r.features))
	for id := range r.features {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.features)
}

// DeriveFeatures walks the merged graph and registers one feature per
// exposed interface or namespace and one per testable member.
func DeriveFeatures(g *graph.Graph) *Registry {
	r := NewRegistry()
	for _, name := range g.Names() {
		n := g.Nodes[name]
		if !testable(n) {
			continue
		}

		exposures := exposuresOf(n.ExtAttrs, nil)
		if len(exposures) == 0 {
			continue
		}
		base := compat.FeatureID("api." + name)
		r.Add(Feature{ID: base, Kind: KindInterface, Exposures: exposures, Definition: name})

		for _, s := range n.AllMembers() {
			memberExp := exposures
			if s.ExtAttrs.Has("Exposed") {
				memberExp = exposuresOf(s.ExtAttrs, exposures)
				if len(memberExp) == 0 {
					continue
				}
			}
			for _, f := range memberFeatures(base, name, s.Member) {
				f.Exposures = memberExp
				f.Definition = name
				r.Add(f)
			}
		}
	}
	return r
}

func testable(n *graph.Node) bool {
	switch n.Kind {
	case idl.KindInterface, idl.KindNamespace:
		return !n.ExtAttrs.Has("LegacyNoInterfaceObject")
	default:
		return false
	}
}

// exposuresOf canonicalizes [Exposed]. Without the attribute a definition is
// exposed on Window. within narrows the result when non-nil.
func exposuresOf(attrs idl.ExtAttrs, within []compat.Exposure) []compat.Exposure {
	names := attrs.Exposed()
	var out []compat.Exposure
	switch {
	case names == nil:
		out = []compat.Exposure{compat.ExposureWindow}
	case len(names) == 1 && names[0] == "*":
		out = compat.AllExposures()
	default:
		for _, name := range names {
			// Worklets and other globals have no exposure to test under.
			if e, err := compat.ParseExposure(name); err == nil {
				out = unionExposures(out, []compat.Exposure{e})
			}
		}
	}
	if within == nil {
		return sortExposures(out)
	}
	var narrowed []compat.Exposure
	for _, e := range out {
		for _, w := range within {
			if e == w {
				narrowed = append(narrowed, e)
				break
			}
		}
	}
	return sortExposures(narrowed)
}

func memberFeatures(base compat.FeatureID, iface string, m idl.Member) []Feature {
	sub := func(kind string, names ...string) []Feature {
		out := make([]Feature, 0, len(names))
		for _, n := range names {
			out = append(out, Feature{ID: base + compat.FeatureID("."+n), Kind: kind})
		}
		return out
	}

	var out []Feature
	if m.Special == "stringifier" {
		out = append(out, sub(KindMember, "toString")...)
	}
	switch m.Kind {
	case idl.MemberAttribute, idl.MemberOperation, idl.MemberConstant:
		if m.Name != "" {
			out = append(out, sub(KindMember, m.Name)...)
		}
	case idl.MemberConstructor:
		out = append(out, sub(KindConstructor, iface)...)
	case idl.MemberIterable:
		out = append(out, sub(KindIterator, "@@iterator")...)
		out = append(out, sub(KindMember, "entries", "forEach", "keys", "values")...)
	case idl.MemberAsyncIterable:
		out = append(out, sub(KindIterator, "@@asyncIterator")...)
		out = append(out, sub(KindMember, "entries", "keys", "values")...)
	case idl.MemberMaplike:
		out = append(out, sub(KindIterator, "@@iterator")...)
		out = append(out, sub(KindMember, "entries", "forEach", "get", "has", "keys", "size", "values")...)
		if !m.Readonly {
			out = append(out, sub(KindMember, "clear", "delete", "set")...)
		}
	case idl.MemberSetlike:
		out = append(out, sub(KindIterator, "@@iterator")...)
		out = append(out, sub(KindMember, "entries", "forEach", "has", "keys", "size", "values")...)
		if !m.Readonly {
			out = append(out, sub(KindMember, "add", "clear", "delete")...)
		}
	}
	return out
}

func unionExposures(a, b []compat.Exposure) []compat.Exposure {
	out := append([]compat.Exposure(nil), a...)
	for _, e := range b {
		found := false
		for _, x := range out {
			if x == e {
				found = true
				break
			}
		}
		if !found {
			out = append(out, e)
		}
	}
	return out
}

// sortExposures orders exposures canonically.
func sortExposures(list []compat.Exposure) []compat.Exposure {
	rank := make(map[compat.Exposure]int)
	for i, e := range compat.AllExposures() {
		rank[e] = i
	}
	sort.Slice(list, func(i, j int) bool { return rank[list[i]] < rank[list[j]] })
	return list
}
