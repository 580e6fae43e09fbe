package reducer

import (
	"context"
	"sort"

	"compatcollect/internal/browsers"
	"compatcollect/internal/compat"
	"compatcollect/internal/overrides"
	"compatcollect/internal/report"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// exposurePrecedence orders exposures when a cell has results from several
// scopes. The first exposure with a conclusive value decides the cell.
var exposurePrecedence = compat.AllExposures()

// Reducer turns observations into per-browser support maps. It only reads
// its catalog, overrides and mirror rules, so one Reducer may serve many
// goroutines.
type Reducer struct {
	catalog   *browsers.Catalog
	overrides *overrides.Set
	rules     map[string]browsers.MirrorRule
	log       *zap.Logger
	workers   int
}

func NewReducer(catalog *browsers.Catalog, ov *overrides.Set, rules []browsers.MirrorRule, log *zap.Logger, workers int) *Reducer {
	if ov == nil {
		ov = overrides.NewSet()
	}
	if workers <= 0 {
		workers = 4
	}
	byChild := make(map[string]browsers.MirrorRule, len(rules))
	for _, r := range rules {
		byChild[r.Child] = r
	}
	return &Reducer{
		catalog:   catalog,
		overrides: ov,
		rules:     byChild,
		log:       log,
		workers:   workers,
	}
}

// Reduce resolves every catalog browser for one feature. Warnings are
// non-fatal; an error (a mirror cycle) means the feature has no result.
func (r *Reducer) Reduce(id compat.FeatureID, obs []report.Observation) (compat.SupportMap, []error, error) {
	cells, warnings, err := r.Resolve(id, obs)
	if err != nil {
		return nil, warnings, err
	}
	support := make(compat.SupportMap)
	for b, rs := range cells {
		m := make(compat.BrowserSupportMap)
		for _, c := range rs {
			if c.HasValue() {
				m[c.Version] = c.Value
			}
		}
		if len(m) > 0 {
			support[b] = m
		}
	}
	return support, warnings, nil
}

// Resolve is Reduce with the per-cell resolution states kept, in release
// order per browser.
func (r *Reducer) Resolve(id compat.FeatureID, obs []report.Observation) (map[string][]Resolution, []error, error) {
	fr := &featureRun{
		r:          r,
		feature:    id,
		evidence:   groupEvidence(obs),
		suppressed: r.overrides.Suppressed(id),
		done:       make(map[string][]Resolution),
	}
	for _, b := range r.catalog.IDs() {
		if err := fr.browser(b); err != nil {
			return nil, fr.warnings, err
		}
	}
	return fr.done, fr.warnings, nil
}

// ReduceAll reduces every feature with observations or overrides. Features
// whose reduction fails are left out of the result and reported with the
// warnings, in feature order.
func (r *Reducer) ReduceAll(ctx context.Context, ix *report.Index) (map[compat.FeatureID]compat.SupportMap, []error, error) {
	features := featureUnion(ix.Features(), r.overrides.Features())

	type outcome struct {
		support  compat.SupportMap
		warnings []error
		err      error
	}
	outcomes := make([]outcome, len(features))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, id := range features {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, w, err := r.Reduce(id, ix.ForFeature(id))
			outcomes[i] = outcome{support: s, warnings: w, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	reduced := make(map[compat.FeatureID]compat.SupportMap, len(features))
	var diags []error
	failed := 0
	for i, id := range features {
		o := outcomes[i]
		diags = append(diags, o.warnings...)
		if o.err != nil {
			r.log.Warn("feature reduction failed", zap.String("feature", string(id)), zap.Error(o.err))
			diags = append(diags, o.err)
			failed++
			continue
		}
		reduced[id] = o.support
	}
	r.log.Info("features reduced",
		zap.Int("features", len(features)),
		zap.Int("failed", failed),
		zap.Int("diagnostics", len(diags)))
	return reduced, diags, nil
}

// featureRun holds the state of one feature's reduction.
type featureRun struct {
	r          *Reducer
	feature    compat.FeatureID
	evidence   map[report.Cell]map[compat.Exposure][]compat.Value
	suppressed bool
	done       map[string][]Resolution
	stack      []string
	warnings   []error
}

func (fr *featureRun) browser(b string) error {
	if _, ok := fr.done[b]; ok {
		return nil
	}
	for i, s := range fr.stack {
		if s == b {
			cycle := append(append([]string(nil), fr.stack[i:]...), b)
			return &MirrorCycleError{Feature: fr.feature, Cycle: cycle}
		}
	}
	fr.stack = append(fr.stack, b)
	defer func() { fr.stack = fr.stack[:len(fr.stack)-1] }()

	rule, mirrored := fr.r.rules[b]
	mirrored = mirrored && !fr.suppressed && rule.Applies(fr.feature)
	if mirrored {
		// The parent is fully reduced, propagation included, before any
		// child cell copies from it.
		if err := fr.browser(rule.Parent); err != nil {
			return err
		}
	}

	releases := fr.r.catalog.Releases(b)
	cells := make([]Resolution, len(releases))
	for i, v := range releases {
		cells[i] = fr.cell(b, v, rule, mirrored)
	}
	if !fr.suppressed {
		fr.propagate(b, cells)
	}
	fr.done[b] = cells
	return nil
}

func (fr *featureRun) cell(b, v string, rule browsers.MirrorRule, mirrored bool) Resolution {
	if d, ok := fr.r.overrides.Lookup(fr.feature, b, v); ok {
		return Resolution{Version: v, State: StateOverride, Value: d.Value}
	}
	if fr.suppressed {
		return Resolution{Version: v, State: StateSuppressed}
	}
	if byExposure, ok := fr.evidence[report.Cell{Browser: b, Version: v}]; ok {
		return Resolution{Version: v, State: StateDirect, Value: reconcile(byExposure)}
	}
	if !mirrored {
		return Resolution{Version: v}
	}
	pv, ok := fr.r.catalog.ParentVersion(rule, v)
	if !ok {
		return Resolution{Version: v}
	}
	i := fr.r.catalog.Index(rule.Parent, pv)
	if i < 0 {
		return Resolution{Version: v}
	}
	parent := fr.done[rule.Parent][i]
	if !parent.HasValue() {
		return Resolution{Version: v}
	}
	return Resolution{
		Version:       v,
		State:         StateMirrored,
		Value:         parent.Value,
		ParentBrowser: rule.Parent,
		ParentVersion: pv,
		Forced:        parent.State == StateOverride || parent.Forced,
	}
}

// propagate carries a supported run forward in release order. Empty and
// inconclusive cells inside a run become true. A plain false inside a run is
// lifted with a warning; only an override false, or a mirrored copy of one,
// ends the run.
func (fr *featureRun) propagate(b string, cells []Resolution) {
	since := ""
	for i := range cells {
		c := &cells[i]
		if c.State == StateOverride || c.Forced {
			switch c.Value {
			case compat.True:
				if since == "" {
					since = c.Version
				}
			case compat.False:
				since = ""
			}
			continue
		}
		if c.State == StateEmpty {
			if since != "" {
				c.State = StatePropagated
				c.Value = compat.True
			}
			continue
		}

		switch {
		case c.Value == compat.True:
			if since == "" {
				since = c.Version
			}
		case since == "":
		case c.Value == compat.False:
			fr.warnings = append(fr.warnings, &RegressionWarning{
				Feature: fr.feature,
				Browser: b,
				Version: c.Version,
				Since:   since,
			})
			c.Value = compat.True
		default:
			c.State = StatePropagated
			c.Value = compat.True
		}
	}
}

func groupEvidence(obs []report.Observation) map[report.Cell]map[compat.Exposure][]compat.Value {
	out := make(map[report.Cell]map[compat.Exposure][]compat.Value)
	for _, o := range obs {
		byExposure, ok := out[o.Cell]
		if !ok {
			byExposure = make(map[compat.Exposure][]compat.Value)
			out[o.Cell] = byExposure
		}
		byExposure[o.Exposure] = append(byExposure[o.Exposure], o.Value)
	}
	return out
}

// reconcile applies compat.Reconcile within each exposure, then takes the
// first conclusive exposure in precedence order. Across exposures this is
// deliberately not "any true wins": a Window false outranks a Worker true,
// since the Window scope is the one the feature id describes.
func reconcile(byExposure map[compat.Exposure][]compat.Value) compat.Value {
	for _, e := range exposurePrecedence {
		values, ok := byExposure[e]
		if !ok {
			continue
		}
		if v := compat.Reconcile(values); v != compat.Null {
			return v
		}
	}
	return compat.Null
}

func featureUnion(lists ...[]compat.FeatureID) []compat.FeatureID {
	seen := make(map[compat.FeatureID]bool)
	var out []compat.FeatureID
	for _, l := range lists {
		for _, id := range l {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
