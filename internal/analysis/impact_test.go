package analysis

import (
	"testing"

	"compatcollect/internal/compat"
	"compatcollect/internal/extractor"
	"compatcollect/internal/graph"
	"compatcollect/internal/idl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const before = `
[Exposed=Window] interface Node {};
[Exposed=Window] interface Element : Node { attribute DOMString id; };
[Exposed=Window] interface HTMLElement : Element {};
interface mixin ParentNode { readonly attribute unsigned long childElementCount; };
Element includes ParentNode;
[Exposed=Window] interface Gone {};
`

const after = `
[Exposed=Window] interface Node {};

[Exposed=Window] interface Element : Node { attribute DOMString id; };
[Exposed=Window] interface HTMLElement : Element {};
interface mixin ParentNode {
  readonly attribute unsigned long childElementCount;
  readonly attribute Element? firstElementChild;
};
Element includes ParentNode;
`

func build(t *testing.T, src string) *graph.Graph {
	t.Helper()
	defs, err := idl.Parse("dom.idl", []byte(src))
	require.NoError(t, err)
	return graph.Merge(idl.DefinitionSet{
		Source: "webref",
		Files:  []idl.SourceFile{{Name: "dom.idl", Definitions: defs}},
	})
}

func TestChangedDefinitions(t *testing.T) {
	prev := build(t, before).Snapshot()
	next := build(t, after).Snapshot()

	assert.Equal(t, []string{"Element", "Gone", "ParentNode"}, ChangedDefinitions(prev, next))
	assert.Empty(t, ChangedDefinitions(next, next))
	assert.Len(t, ChangedDefinitions(nil, next), len(next.Definitions))
}

func TestAnalyzeImpact(t *testing.T) {
	prev := build(t, before).Snapshot()
	g := build(t, after)
	changed := ChangedDefinitions(prev, g.Snapshot())

	report := NewAnalyzer(g, extractor.DeriveFeatures(g)).AnalyzeImpact(changed)

	var direct, indirect []string
	for _, n := range report.DirectlyAffected {
		direct = append(direct, n.Name)
	}
	for _, n := range report.IndirectlyAffected {
		indirect = append(indirect, n.Name)
	}
	assert.Equal(t, []string{"Element", "ParentNode"}, direct)
	assert.Equal(t, []string{"HTMLElement"}, indirect)
	assert.Equal(t, []compat.FeatureID{
		"api.Element",
		"api.Element.childElementCount",
		"api.Element.firstElementChild",
		"api.Element.id",
		"api.HTMLElement",
	}, report.Features)
}

func TestAnalyzeImpact_NoRegistry(t *testing.T) {
	report := NewAnalyzer(build(t, after), nil).AnalyzeImpact([]string{"Missing"})
	assert.Empty(t, report.DirectlyAffected)
	assert.Empty(t, report.Features)
	assert.Equal(t, []string{"Missing"}, report.Changed)
}
