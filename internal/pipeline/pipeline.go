package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"compatcollect/internal/analysis"
	"compatcollect/internal/browsers"
	"compatcollect/internal/compat"
	"compatcollect/internal/config"
	"compatcollect/internal/crawler"
	"compatcollect/internal/diag"
	"compatcollect/internal/extractor"
	"compatcollect/internal/graph"
	"compatcollect/internal/index"
	"compatcollect/internal/ir"
	"compatcollect/internal/matrix"
	"compatcollect/internal/overrides"
	"compatcollect/internal/reducer"
	"compatcollect/internal/report"
	"compatcollect/internal/storage"
	"compatcollect/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Pipeline runs the collector stages from a loaded configuration. Every
// stage returns its best-effort artifact together with the diagnostics it
// raised; errors are reserved for conditions no artifact can survive.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger
	now func() time.Time
}

func New(cfg *config.Config, log *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log, now: time.Now}
}

// GraphResult is the output of the graph stage.
type GraphResult struct {
	Graph    *graph.Graph
	Features *extractor.Registry
	Custom   *extractor.CustomTests
	Stages   index.Result

	// Impact compares the graph with the previous snapshot. Nil on the
	// first build.
	Impact      *analysis.ImpactReport
	Diagnostics diag.List
}

// MatrixResult is the output of the matrix stage.
type MatrixResult struct {
	Matrix      *matrix.Matrix
	Outcomes    []report.Outcome
	Orphans     []matrix.OrphanFeatureWarning
	Run         storage.Run
	Diagnostics diag.List
}

// Result is a full run.
type Result struct {
	Graph       *GraphResult
	Matrix      *MatrixResult
	Diagnostics diag.List
}

// Sources lists the configured IDL sources plus the custom overlay.
func (p *Pipeline) Sources() []crawler.Source {
	sources := make([]crawler.Source, 0, len(p.cfg.Sources)+1)
	for _, s := range p.cfg.Sources {
		sources = append(sources, crawler.Source{Name: s.Name, Dir: s.Dir, Priority: s.Priority})
	}
	if p.cfg.Custom.IDL != "" {
		sources = append(sources, crawler.Source{Name: "custom", Dir: p.cfg.Custom.IDL, Custom: true})
	}
	return sources
}

// BuildGraph loads, merges and resolves the IDL sources and derives the
// feature namespace.
func (p *Pipeline) BuildGraph(ctx context.Context) (*GraphResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.build_graph")
	defer span.End()

	indexer := index.NewIndexer(crawler.NewCrawler(p.log, p.cfg.Workers), p.log)

	var prev *ir.GraphSnapshot
	if config.Exists(p.cfg.Output.Graph) {
		var err error
		if prev, err = indexer.LoadSnapshot(p.cfg.Output.Graph); err != nil {
			p.log.Warn("ignoring previous graph snapshot", zap.String("path", p.cfg.Output.Graph), zap.Error(err))
			prev = nil
		}
	}

	g, stages, err := indexer.BuildGraph(ctx, p.Sources())
	res := &GraphResult{Graph: g, Stages: stages}
	res.Diagnostics.Add(diag.StageLoad, stages.LoadErrors...)
	if err != nil {
		return res, failSpan(span, err)
	}
	res.Diagnostics.Add(diag.StageMerge, g.Failures...)
	res.Diagnostics.Add(diag.StageMerge, g.Warnings...)

	res.Features = extractor.DeriveFeatures(g)
	if p.cfg.Custom.Tests != "" {
		custom, errs, err := extractor.LoadCustomTests(ctx, p.cfg.Custom.Tests)
		res.Diagnostics.Add(diag.StageFeature, errs...)
		if err != nil {
			res.Diagnostics.Add(diag.StageFeature, err)
		} else {
			custom.Register(res.Features)
			res.Custom = custom
		}
	}

	if prev != nil {
		changed := analysis.ChangedDefinitions(prev, g.Snapshot())
		res.Impact = analysis.NewAnalyzer(g, res.Features).AnalyzeImpact(changed)
		span.SetAttributes(attribute.Int("changed_definitions", len(changed)))
	}

	if p.cfg.Output.Graph != "" {
		if err := ensureDir(p.cfg.Output.Graph); err != nil {
			return res, failSpan(span, err)
		}
		if err := indexer.SaveSnapshot(g, p.cfg.Output.Graph); err != nil {
			return res, failSpan(span, err)
		}
	}

	span.SetAttributes(
		attribute.Int("definitions", len(g.Nodes)),
		attribute.Int("features", res.Features.Len()),
		attribute.Int("diagnostics", len(res.Diagnostics)),
	)
	p.log.Info("graph stage finished",
		zap.Int("definitions", len(g.Nodes)),
		zap.Int("features", res.Features.Len()),
		zap.Int("diagnostics", len(res.Diagnostics)))
	return res, nil
}

// IngestFiles appends report files to the store. Directories are expanded to
// their *.json files in name order. Payloads are stored as-is; validation
// happens when the matrix is built.
func (p *Pipeline) IngestFiles(ctx context.Context, store storage.ReportStore, paths []string) ([]storage.StoredReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.ingest")
	defer span.End()

	files, err := expandReportPaths(paths)
	if err != nil {
		return nil, failSpan(span, err)
	}

	var stored []storage.StoredReport
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return stored, failSpan(span, fmt.Errorf("failed to read report %s: %w", f, err))
		}
		r, err := store.Append(ctx, data, p.now())
		if err != nil {
			return stored, failSpan(span, err)
		}
		p.log.Debug("report stored", zap.String("file", f), zap.String("id", r.ID))
		stored = append(stored, r)
	}

	span.SetAttributes(attribute.Int("reports", len(stored)))
	p.log.Info("reports ingested", zap.Int("files", len(files)))
	return stored, nil
}

// BuildMatrix validates every stored report, reduces support per feature and
// assembles the matrix. gr may be nil, in which case no feature is an orphan.
func (p *Pipeline) BuildMatrix(ctx context.Context, gr *GraphResult, store storage.Store) (*MatrixResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.build_matrix")
	defer span.End()

	started := p.now()
	res := &MatrixResult{}

	catalog, err := browsers.LoadCatalog(p.cfg.Browsers)
	if err != nil {
		return res, failSpan(span, err)
	}
	rules, err := catalog.MirrorRules(p.cfg.Mirrors)
	if err != nil {
		return res, failSpan(span, fmt.Errorf("invalid mirror rules: %w", err))
	}

	ov, entryErrs, err := overrides.Load(p.cfg.Overrides)
	res.Diagnostics.Add(diag.StageReduce, entryErrs...)
	if err != nil {
		// An unusable overrides file costs the corrections, not the run.
		res.Diagnostics.Add(diag.StageReduce, err)
		ov = overrides.NewSet()
	}
	ov, entryErrs = ov.Resolve(catalog)
	res.Diagnostics.Add(diag.StageReduce, entryErrs...)

	stored, err := store.All(ctx)
	if err != nil {
		return res, failSpan(span, err)
	}
	raws := make([]report.RawReport, len(stored))
	for i, s := range stored {
		raws[i] = s.Raw()
	}

	collector, err := report.NewCollector(catalog, p.cfg.Reports.SchemaVersion, p.log, p.cfg.Workers)
	if err != nil {
		return res, failSpan(span, err)
	}
	ix, outcomes, err := p.collect(ctx, collector, raws)
	if err != nil {
		return res, failSpan(span, err)
	}
	res.Outcomes = outcomes
	for _, o := range outcomes {
		if !o.Accepted() {
			res.Diagnostics.Add(diag.StageCollect, o.Err)
		}
	}

	reduced, reduceDiags, err := p.reduce(ctx, reducer.NewReducer(catalog, ov, rules, p.log, p.cfg.Workers), ix)
	if err != nil {
		return res, failSpan(span, err)
	}
	res.Diagnostics.Add(diag.StageReduce, reduceDiags...)

	var known matrix.KnownFeatures
	if gr != nil && gr.Features != nil {
		known = gr.Features
	}
	res.Matrix, res.Orphans = matrix.Assemble(nil, reduced, known)
	for i := range res.Orphans {
		res.Diagnostics.Add(diag.StageMatrix, &res.Orphans[i])
	}

	if p.cfg.Output.Matrix != "" {
		if err := ensureDir(p.cfg.Output.Matrix); err != nil {
			return res, failSpan(span, err)
		}
		if err := res.Matrix.WriteFile(p.cfg.Output.Matrix); err != nil {
			return res, failSpan(span, err)
		}
	}

	res.Run = storage.Run{
		StartedAt:   started,
		Sessions:    ix.Sessions(),
		Rejected:    len(outcomes) - ix.Sessions(),
		Features:    len(res.Matrix.Support),
		Orphans:     len(res.Matrix.Orphans),
		Diagnostics: len(res.Diagnostics),
	}
	if err := store.RecordRun(ctx, res.Run); err != nil {
		return res, failSpan(span, fmt.Errorf("failed to record run: %w", err))
	}

	span.SetAttributes(
		attribute.Int("sessions", res.Run.Sessions),
		attribute.Int("rejected", res.Run.Rejected),
		attribute.Int("features", res.Run.Features),
		attribute.Int("orphans", res.Run.Orphans),
	)
	p.log.Info("matrix stage finished",
		zap.Int("sessions", res.Run.Sessions),
		zap.Int("rejected", res.Run.Rejected),
		zap.Int("features", res.Run.Features),
		zap.Int("orphans", res.Run.Orphans))
	return res, nil
}

func (p *Pipeline) collect(ctx context.Context, c *report.Collector, raws []report.RawReport) (*report.Index, []report.Outcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.collect")
	defer span.End()
	span.SetAttributes(attribute.Int("reports", len(raws)))
	return c.IngestAll(ctx, raws)
}

func (p *Pipeline) reduce(ctx context.Context, r *reducer.Reducer, ix *report.Index) (map[compat.FeatureID]compat.SupportMap, []error, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.reduce")
	defer span.End()
	return r.ReduceAll(ctx, ix)
}

// Run opens the report store and builds the graph and the matrix from what
// the store holds. Diagnostics are written when an output path is configured.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer span.End()

	store, err := storage.NewSQLiteStore(p.cfg.Reports.DB)
	if err != nil {
		return nil, failSpan(span, fmt.Errorf("failed to initialize database: %w", err))
	}
	defer store.Close()

	res := &Result{}
	res.Graph, err = p.BuildGraph(ctx)
	if res.Graph != nil {
		res.Diagnostics = append(res.Diagnostics, res.Graph.Diagnostics...)
	}
	if err != nil {
		return res, err
	}

	res.Matrix, err = p.BuildMatrix(ctx, res.Graph, store)
	if res.Matrix != nil {
		res.Diagnostics = append(res.Diagnostics, res.Matrix.Diagnostics...)
	}
	if err != nil {
		return res, err
	}

	if p.cfg.Output.Diagnostics != "" {
		if err := WriteDiagnostics(p.cfg.Output.Diagnostics, res.Diagnostics); err != nil {
			return res, failSpan(span, err)
		}
	}
	return res, nil
}

// WriteDiagnostics writes diagnostics as a JSON array.
func WriteDiagnostics(path string, list diag.List) error {
	if list == nil {
		list = diag.List{}
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func expandReportPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			files = append(files, filepath.Join(p, n))
		}
	}
	return files, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
