package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"compatcollect/internal/crawler"
	"compatcollect/internal/graph"
	"compatcollect/internal/ir"
	"compatcollect/internal/resolver"

	"go.uber.org/zap"
)

// Result is everything a graph build produced besides the graph itself.
type Result struct {
	Sets       int
	LoadErrors []error
	Stages     []resolver.StageResult
}

// Indexer orchestrates source loading, merging and resolution.
type Indexer struct {
	crawler *crawler.Crawler
	chain   *resolver.ResolverChain
	log     *zap.Logger
}

// NewIndexer creates a new indexer.
func NewIndexer(c *crawler.Crawler, log *zap.Logger) *Indexer {
	return &Indexer{
		crawler: c,
		chain:   resolver.NewDefaultChain(),
		log:     log,
	}
}

// BuildGraph loads every source and builds the canonical interface graph.
// Only ErrNoUsableSources and cancellation are returned as errors; everything
// else is reported through the graph's failures and Result.LoadErrors.
func (i *Indexer) BuildGraph(ctx context.Context, sources []crawler.Source) (*graph.Graph, Result, error) {
	sets, loadErrs, err := i.crawler.LoadAll(ctx, sources)
	res := Result{Sets: len(sets), LoadErrors: loadErrs}
	if err != nil {
		return nil, res, fmt.Errorf("load sources: %w", err)
	}

	m := graph.NewMerger()
	m.Add(sets...)
	g := m.Base()

	// Resolve partials and mixins after all bases are loaded
	res.Stages = i.chain.Run(g)
	for _, st := range res.Stages {
		i.log.Debug("resolver stage",
			zap.String("stage", st.Stage),
			zap.Int("attempted", st.Stats.Attempted),
			zap.Int("resolved", st.Stats.Resolved),
			zap.Int("failed", st.Stats.Failed))
		if st.Err != nil {
			return g, res, fmt.Errorf("resolver stage %s: %w", st.Stage, st.Err)
		}
	}

	i.log.Info("interface graph built",
		zap.Int("definitions", len(g.Nodes)),
		zap.Int("failures", len(g.Failures)),
		zap.Int("warnings", len(g.Warnings)))
	return g, res, nil
}

// SaveSnapshot persists the graph snapshot to a JSON file.
func (i *Indexer) SaveSnapshot(g *graph.Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(g.Snapshot()); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot loads a graph snapshot from a JSON file.
func (i *Indexer) LoadSnapshot(path string) (*ir.GraphSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	var snap ir.GraphSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != ir.SchemaVersion {
		return nil, fmt.Errorf("unsupported snapshot version %q", snap.Version)
	}
	return &snap, nil
}
