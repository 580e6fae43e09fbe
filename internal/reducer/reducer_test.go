package reducer

import (
	"context"
	"errors"
	"testing"

	"compatcollect/internal/browsers"
	"compatcollect/internal/compat"
	"compatcollect/internal/overrides"
	"compatcollect/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCatalog = `
browsers:
  chrome:
    releases: ["79", "80", "90", "95"]
  edge:
    releases: ["18", "79", "80", "90"]
    upstream: chrome
    fork: "79"
`

const bar compat.FeatureID = "api.Foo.bar"

func newReducer(t *testing.T, catalogYAML, overridesJSON string) *Reducer {
	t.Helper()
	catalog, err := browsers.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	rules, err := catalog.MirrorRules(nil)
	require.NoError(t, err)

	ov := overrides.NewSet()
	if overridesJSON != "" {
		var errs []error
		ov, errs, err = overrides.Parse([]byte(overridesJSON))
		require.NoError(t, err)
		require.Empty(t, errs)
	}
	return NewReducer(catalog, ov, rules, zap.NewNop(), 2)
}

func obs(browser, version string, v compat.Value) report.Observation {
	return report.Observation{
		Session:  browser + "-" + version,
		Cell:     report.Cell{Browser: browser, Version: version},
		Exposure: compat.ExposureWindow,
		Value:    v,
	}
}

func TestReduce_Scenarios(t *testing.T) {
	t.Run("True beats null for the same release", func(t *testing.T) {
		r := newReducer(t, testCatalog, "")
		support, warnings, err := r.Reduce(bar, []report.Observation{
			obs("chrome", "80", compat.True),
			obs("chrome", "80", compat.Null),
		})
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, compat.True, support["chrome"]["80"])
	})

	t.Run("Support propagates to releases without data", func(t *testing.T) {
		r := newReducer(t, testCatalog, "")
		support, _, err := r.Reduce(bar, []report.Observation{
			obs("chrome", "80", compat.False),
			obs("chrome", "90", compat.True),
		})
		require.NoError(t, err)
		assert.Equal(t, compat.BrowserSupportMap{
			"80": compat.False,
			"90": compat.True,
			"95": compat.True,
		}, support["chrome"])
	})

	t.Run("Override beats reported support", func(t *testing.T) {
		r := newReducer(t, testCatalog, `[["api.Foo.bar", "chrome", "90", false]]`)
		support, warnings, err := r.Reduce(bar, []report.Observation{
			obs("chrome", "80", compat.True),
			obs("chrome", "90", compat.True),
		})
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, compat.BrowserSupportMap{
			"80": compat.True,
			"90": compat.False,
		}, support["chrome"])
	})

	t.Run("Mirrored override false ends the run", func(t *testing.T) {
		r := newReducer(t, testCatalog, `[["api.Foo.bar", "chrome", "90", false]]`)
		cells, warnings, err := r.Resolve(bar, []report.Observation{
			obs("chrome", "80", compat.True),
		})
		require.NoError(t, err)
		assert.Empty(t, warnings)

		edge := cells["edge"]
		require.Len(t, edge, 4)
		assert.Equal(t, StateMirrored, edge[3].State)
		assert.Equal(t, compat.False, edge[3].Value)
		assert.True(t, edge[3].Forced)
		assert.False(t, edge[2].Forced)

		support, _, err := r.Reduce(bar, []report.Observation{obs("chrome", "80", compat.True)})
		require.NoError(t, err)
		assert.Equal(t, support["chrome"], support["edge"])
	})

	t.Run("Mirror after fork point", func(t *testing.T) {
		r := newReducer(t, testCatalog, "")
		cells, _, err := r.Resolve(bar, []report.Observation{
			obs("chrome", "80", compat.True),
		})
		require.NoError(t, err)

		edge := cells["edge"]
		require.Len(t, edge, 4)
		assert.Equal(t, StateEmpty, edge[0].State, "18 predates the fork")
		assert.Equal(t, StateEmpty, edge[1].State, "chrome 79 has no data")
		assert.Equal(t, StateMirrored, edge[2].State)
		assert.Equal(t, compat.True, edge[2].Value)
		assert.Equal(t, "chrome", edge[2].ParentBrowser)
		assert.Equal(t, "80", edge[2].ParentVersion)
		assert.Equal(t, StateMirrored, edge[3].State)
		assert.Equal(t, compat.True, edge[3].Value, "mirrors chrome's propagated cell")
	})
}

func TestReduce_DirectEvidenceBeatsMirror(t *testing.T) {
	r := newReducer(t, testCatalog, "")
	support, _, err := r.Reduce(bar, []report.Observation{
		obs("chrome", "80", compat.True),
		obs("edge", "80", compat.False),
	})
	require.NoError(t, err)
	assert.Equal(t, compat.BrowserSupportMap{
		"80": compat.False,
		"90": compat.True,
	}, support["edge"])
}

func TestReduce_RegressionIgnored(t *testing.T) {
	r := newReducer(t, testCatalog, "")
	cells, warnings, err := r.Resolve(bar, []report.Observation{
		obs("chrome", "80", compat.True),
		obs("chrome", "90", compat.False),
		obs("chrome", "95", compat.Null),
	})
	require.NoError(t, err)

	chrome := cells["chrome"]
	assert.Equal(t, compat.True, chrome[2].Value)
	assert.Equal(t, StateDirect, chrome[2].State)
	assert.Equal(t, compat.True, chrome[3].Value)
	assert.Equal(t, StatePropagated, chrome[3].State)

	require.Len(t, warnings, 1)
	var rw *RegressionWarning
	require.True(t, errors.As(warnings[0], &rw))
	assert.Equal(t, "chrome", rw.Browser)
	assert.Equal(t, "90", rw.Version)
	assert.Equal(t, "80", rw.Since)
}

func TestReduce_Overrides(t *testing.T) {
	t.Run("Wildcard and exact", func(t *testing.T) {
		r := newReducer(t, testCatalog, `[
			["api.Foo.bar", "chrome", "*", false],
			["api.Foo.bar", "chrome", "95", true]
		]`)
		support, _, err := r.Reduce(bar, []report.Observation{obs("chrome", "80", compat.True)})
		require.NoError(t, err)
		assert.Equal(t, compat.BrowserSupportMap{
			"79": compat.False,
			"80": compat.False,
			"90": compat.False,
			"95": compat.True,
		}, support["chrome"])
	})

	t.Run("Null override keeps the run open", func(t *testing.T) {
		r := newReducer(t, testCatalog, `[["api.Foo.bar", "chrome", "90", null]]`)
		support, _, err := r.Reduce(bar, []report.Observation{obs("chrome", "80", compat.True)})
		require.NoError(t, err)
		assert.Equal(t, compat.Null, support["chrome"]["90"])
		assert.Equal(t, compat.True, support["chrome"]["95"])
	})

	t.Run("Suppressed feature keeps only override cells", func(t *testing.T) {
		r := newReducer(t, testCatalog, `["api.Foo.bar", ["api.Foo.bar", "chrome", "80", true]]`)
		cells, _, err := r.Resolve(bar, []report.Observation{
			obs("chrome", "79", compat.True),
			obs("chrome", "90", compat.True),
		})
		require.NoError(t, err)
		assert.Equal(t, StateSuppressed, cells["chrome"][0].State)
		assert.Equal(t, StateOverride, cells["chrome"][1].State)
		assert.Equal(t, StateSuppressed, cells["chrome"][2].State)

		support, _, err := r.Reduce(bar, nil)
		require.NoError(t, err)
		assert.Equal(t, compat.SupportMap{"chrome": {"80": compat.True}}, support)
	})
}

func TestReduce_ExposurePrecedence(t *testing.T) {
	r := newReducer(t, testCatalog, "")
	worker := func(v compat.Value) report.Observation {
		o := obs("chrome", "80", v)
		o.Exposure = compat.ExposureWorker
		return o
	}

	support, _, err := r.Reduce(bar, []report.Observation{obs("chrome", "80", compat.Null), worker(compat.True)})
	require.NoError(t, err)
	assert.Equal(t, compat.True, support["chrome"]["80"])

	support, _, err = r.Reduce(bar, []report.Observation{obs("chrome", "80", compat.False), worker(compat.True)})
	require.NoError(t, err)
	assert.Equal(t, compat.False, support["chrome"]["80"])
}

func TestReduce_MirrorCycle(t *testing.T) {
	r := newReducer(t, `
browsers:
  a:
    releases: ["1", "2"]
    upstream: b
  b:
    releases: ["1", "2"]
    upstream: c
    mirror_features: ["api.Foo"]
  c:
    releases: ["1"]
    upstream: b
`, "")

	_, _, err := r.Reduce(bar, []report.Observation{obs("a", "1", compat.True)})
	var cycle *MirrorCycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, bar, cycle.Feature)
	assert.Equal(t, []string{"b", "c", "b"}, cycle.Cycle)

	// b only mirrors api.Foo, so other features never reach the cycle.
	support, _, err := r.Reduce("css.properties.color", []report.Observation{obs("a", "1", compat.True)})
	require.NoError(t, err)
	assert.Equal(t, compat.True, support["a"]["2"])
}

func TestReduceAll(t *testing.T) {
	r := newReducer(t, testCatalog, `[["api.Only.override", "chrome", "90", true]]`)

	ix := report.NewIndex()
	ix.Add(&report.Session{
		ID:      "s1",
		Browser: "chrome",
		Version: "80",
		Results: map[compat.FeatureID][]report.TestResult{
			bar:       {{Exposure: compat.ExposureWindow, Name: string(bar), Result: compat.True}},
			"api.Foo": {{Exposure: compat.ExposureWindow, Name: "api.Foo", Result: compat.True}},
		},
	})
	ix.Add(&report.Session{
		ID:      "s2",
		Browser: "chrome",
		Version: "90",
		Results: map[compat.FeatureID][]report.TestResult{
			bar: {{Exposure: compat.ExposureWindow, Name: string(bar), Result: compat.False}},
		},
	})

	reduced, diags, err := r.ReduceAll(context.Background(), ix)
	require.NoError(t, err)
	assert.Len(t, reduced, 3)
	assert.Equal(t, compat.True, reduced["api.Only.override"]["chrome"]["90"])
	assert.Equal(t, compat.True, reduced["api.Foo"]["edge"]["90"])

	require.Len(t, diags, 1)
	var rw *RegressionWarning
	assert.True(t, errors.As(diags[0], &rw))

	again, _, err := r.ReduceAll(context.Background(), ix)
	require.NoError(t, err)
	assert.Equal(t, reduced, again, "reduction is idempotent")
}

func TestReduce_Monotonic(t *testing.T) {
	r := newReducer(t, testCatalog, `[["api.Foo.bar", "chrome", "95", false]]`)
	inputs := [][]report.Observation{
		{obs("chrome", "79", compat.True), obs("chrome", "80", compat.False), obs("chrome", "90", compat.Null)},
		{obs("chrome", "80", compat.Null), obs("chrome", "90", compat.True), obs("edge", "18", compat.False)},
		{obs("edge", "80", compat.True), obs("edge", "90", compat.False), obs("chrome", "95", compat.True)},
	}
	for _, in := range inputs {
		cells, _, err := r.Resolve(bar, in)
		require.NoError(t, err)
		for b, rs := range cells {
			supported := false
			for _, c := range rs {
				if c.HasValue() && c.Value == compat.False && supported {
					assert.Equal(t, StateOverride, c.State, "%s %s regressed without an override", b, c.Version)
				}
				if c.HasValue() && c.Value == compat.True {
					supported = true
				}
			}
		}
	}
}

func TestReduceAll_Cancelled(t *testing.T) {
	r := newReducer(t, testCatalog, "")
	ix := report.NewIndex()
	ix.Add(&report.Session{ID: "s", Browser: "chrome", Version: "80", Results: map[compat.FeatureID][]report.TestResult{
		bar: {{Exposure: compat.ExposureWindow, Result: compat.True}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := r.ReduceAll(ctx, ix)
	assert.ErrorIs(t, err, context.Canceled)
}
