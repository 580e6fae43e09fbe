package analysis

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"compatcollect/internal/compat"
	"compatcollect/internal/extractor"
	"compatcollect/internal/graph"
	"compatcollect/internal/ir"
)

// ImpactReport summarizes the definitions and features affected by changes.
type ImpactReport struct {
	Changed            []string
	DirectlyAffected   []*graph.Node
	IndirectlyAffected []*graph.Node
	// Features are the feature ids whose tests may need regenerating.
	Features []compat.FeatureID
}

// Analyzer performs impact analysis on the interface graph.
type Analyzer struct {
	g        *graph.Graph
	features *extractor.Registry
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(g *graph.Graph, features *extractor.Registry) *Analyzer {
	return &Analyzer{g: g, features: features}
}

// ChangedDefinitions lists definitions added, removed or altered between two
// snapshots, sorted. Evidence is ignored, so moving a declaration to another
// file is not a change. Definitions are compared by their JSON encoding, so a
// snapshot read back from disk equals the graph it was written from.
func ChangedDefinitions(prev, next *ir.GraphSnapshot) []string {
	before := shapes(prev)
	after := shapes(next)

	var changed []string
	for name, d := range after {
		if old, ok := before[name]; !ok || !bytes.Equal(old, d) {
			changed = append(changed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func shapes(s *ir.GraphSnapshot) map[string][]byte {
	out := make(map[string][]byte)
	if s == nil {
		return out
	}
	for _, d := range s.Definitions {
		d.Evidence = nil
		members := make([]ir.MemberIR, len(d.Members))
		for i, m := range d.Members {
			m.Evidence = ir.Evidence{}
			members[i] = m
		}
		d.Members = members
		// Plain data; encoding cannot fail.
		out[d.Name], _ = json.Marshal(d)
	}
	return out
}

// AnalyzeImpact identifies which definitions and features are affected by
// changes to the named definitions.
func (a *Analyzer) AnalyzeImpact(changed []string) *ImpactReport {
	report := &ImpactReport{
		Changed:            append([]string(nil), changed...),
		DirectlyAffected:   []*graph.Node{},
		IndirectlyAffected: []*graph.Node{},
	}

	seenDirect := make(map[string]bool)
	seenIndirect := make(map[string]bool)

	// 1. Direct impacts: changed definitions still in the graph
	for _, name := range changed {
		if n, ok := a.g.Node(name); ok && !seenDirect[name] {
			report.DirectlyAffected = append(report.DirectlyAffected, n)
			seenDirect[name] = true
		}
	}

	// 2. Indirect impacts: definitions inheriting or including them
	for _, node := range report.DirectlyAffected {
		for _, dep := range a.g.Dependents(node.Name) {
			if !seenDirect[dep.Name] && !seenIndirect[dep.Name] {
				report.IndirectlyAffected = append(report.IndirectlyAffected, dep)
				seenIndirect[dep.Name] = true
			}
		}
	}

	// 3. Features: removed definitions count too, their features are stale
	prefixes := append([]string(nil), changed...)
	for _, n := range report.IndirectlyAffected {
		prefixes = append(prefixes, n.Name)
	}
	if a.features != nil {
		for _, id := range a.features.IDs() {
			if underAny(id, prefixes) {
				report.Features = append(report.Features, id)
			}
		}
	}
	return report
}

func underAny(id compat.FeatureID, names []string) bool {
	for _, name := range names {
		base := "api." + name
		if string(id) == base || strings.HasPrefix(string(id), base+".") {
			return true
		}
	}
	return false
}
