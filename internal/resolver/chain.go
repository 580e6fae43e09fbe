package resolver

import "compatcollect/internal/graph"

type ResolveStats struct {
	Attempted int
	Resolved  int
	Failed    int
}

// GraphResolver is one ordered pass over a base-merged graph.
type GraphResolver interface {
	Name() string
	Resolve(g *graph.Graph) (ResolveStats, error)
}

type StageResult struct {
	Stage          string
	Stats          ResolveStats
	FailuresBefore int
	FailuresAfter  int
	Warnings       int
	Nodes          int
	Err            error
}

type ResolverChain struct {
	resolvers []GraphResolver
}

func NewResolverChain(resolvers ...GraphResolver) *ResolverChain {
	return &ResolverChain{resolvers: resolvers}
}

// NewDefaultChain resolves partials, then mixins, then checks inheritance.
// Mixin flattening must see every partial member, so the order is fixed.
func NewDefaultChain() *ResolverChain {
	return NewResolverChain(PartialResolver{}, IncludeResolver{}, InheritanceResolver{})
}

func (c *ResolverChain) Run(g *graph.Graph) []StageResult {
	if g == nil {
		return nil
	}

	var out []StageResult
	for _, r := range c.resolvers {
		before := len(g.Failures)
		stats, err := r.Resolve(g)
		out = append(out, StageResult{
			Stage:          r.Name(),
			Stats:          stats,
			FailuresBefore: before,
			FailuresAfter:  len(g.Failures),
			Warnings:       len(g.Warnings),
			Nodes:          len(g.Nodes),
			Err:            err,
		})
		if err != nil {
			break
		}
	}
	g.LinkEdges()
	return out
}

func fromGraph(st graph.Stats) ResolveStats {
	return ResolveStats{Attempted: st.Attempted, Resolved: st.Resolved, Failed: st.Failed}
}

type PartialResolver struct{}

func (PartialResolver) Name() string { return "partials" }

func (PartialResolver) Resolve(g *graph.Graph) (ResolveStats, error) {
	return fromGraph(g.ResolvePartials()), nil
}

type IncludeResolver struct{}

func (IncludeResolver) Name() string { return "includes" }

func (IncludeResolver) Resolve(g *graph.Graph) (ResolveStats, error) {
	return fromGraph(g.ResolveIncludes()), nil
}

type InheritanceResolver struct{}

func (InheritanceResolver) Name() string { return "inheritance" }

func (InheritanceResolver) Resolve(g *graph.Graph) (ResolveStats, error) {
	return fromGraph(g.CheckInheritance()), nil
}
