package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"compatcollect/internal/browsers"
	"compatcollect/internal/compat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	chromeUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/80.0.3987.132 Safari/537.36"
	firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:78.0) Gecko/20100101 Firefox/78.0"
)

func testCollector(t *testing.T) *Collector {
	t.Helper()
	catalog, err := browsers.ParseCatalog([]byte(`
browsers:
  chrome:
    releases: ["79", "80", "90"]
  safari:
    releases: ["13", "14"]
`))
	require.NoError(t, err)
	c, err := NewCollector(catalog, "10.2", zap.NewNop(), 2)
	require.NoError(t, err)
	return c
}

func payload(schema, ua, results string) []byte {
	return []byte(fmt.Sprintf(`{"__version": %q, "userAgent": %q, "results": %s}`, schema, ua, results))
}

func TestCollector_Ingest(t *testing.T) {
	c := testCollector(t)

	t.Run("Accepted", func(t *testing.T) {
		s, out := c.Ingest(RawReport{ID: "s1", Payload: payload("10.2.0", chromeUA, `{
			"/api/interfaces/Foo": [
				{"exposure": "Window", "name": "api.Foo", "result": true},
				{"exposure": "DedicatedWorker", "name": "api.Foo.bar", "result": null, "message": "threw"}
			],
			"api.Foo.baz": [{"exposure": "Window", "result": false}]
		}`)})
		require.True(t, out.Accepted(), out.Err)
		require.NotNil(t, s)
		assert.Equal(t, "s1", out.SessionID)
		assert.Equal(t, "chrome", s.Browser)
		assert.Equal(t, "80", s.Version)
		assert.Equal(t, "80.0.3987.132", s.ObservedVersion)
		assert.False(t, s.ReceivedAt.IsZero())

		require.Len(t, s.Results["api.Foo.bar"], 1)
		bar := s.Results["api.Foo.bar"][0]
		assert.Equal(t, compat.ExposureWorker, bar.Exposure)
		assert.Equal(t, compat.Null, bar.Result)
		assert.Equal(t, "threw", bar.Message)
		assert.Equal(t, compat.False, s.Results["api.Foo.baz"][0].Result)
	})

	t.Run("Generated session id", func(t *testing.T) {
		_, out := c.Ingest(RawReport{Payload: payload("1", chromeUA, `{}`)})
		assert.True(t, out.Accepted())
		assert.Len(t, out.SessionID, 36)
	})

	t.Run("Newer schema is incompatible", func(t *testing.T) {
		s, out := c.Ingest(RawReport{ID: "s2", Payload: payload("11.0", chromeUA, `{}`)})
		assert.Nil(t, s)
		assert.Equal(t, StatusIncompatibleSchema, out.Status)
		var serr *SchemaVersionError
		require.True(t, errors.As(out.Err, &serr))
		assert.Equal(t, "11.0", serr.Got)
		assert.Equal(t, "10.2", serr.Supported)
	})

	malformed := map[string][]byte{
		"not json":        []byte(`{"__version":`),
		"array":           []byte(`[]`),
		"numeric version": []byte(`{"__version": 10, "userAgent": "x", "results": {}}`),
		"missing ua":      []byte(`{"__version": "10", "results": {}}`),
		"results not obj": payload("10", chromeUA, `[]`),
		"entry not array": payload("10", chromeUA, `{"api.Foo": {"result": true}}`),
		"bad result":      payload("10", chromeUA, `{"api.Foo": [{"name": "api.Foo", "result": "yes"}]}`),
		"bad exposure":    payload("10", chromeUA, `{"api.Foo": [{"name": "api.Foo", "exposure": "Moon", "result": true}]}`),
		"bad version":     payload("ten", chromeUA, `{}`),
	}
	for name, data := range malformed {
		t.Run("Malformed "+name, func(t *testing.T) {
			s, out := c.Ingest(RawReport{ID: "m", Payload: data})
			assert.Nil(t, s)
			assert.Equal(t, StatusMalformed, out.Status)
			var merr *MalformedReportError
			assert.True(t, errors.As(out.Err, &merr))
		})
	}

	t.Run("Unknown browser", func(t *testing.T) {
		_, out := c.Ingest(RawReport{ID: "u", Payload: payload("10", firefoxUA, `{}`)})
		assert.Equal(t, StatusUnknownBrowser, out.Status)
		var uerr *UnknownBrowserError
		assert.True(t, errors.As(out.Err, &uerr))

		_, out = c.Ingest(RawReport{ID: "u", Payload: payload("10", "curl/7.68.0", `{}`)})
		assert.Equal(t, StatusUnknownBrowser, out.Status)
	})
}

func TestCollector_IngestAll(t *testing.T) {
	c := testCollector(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	raws := []RawReport{
		{ID: "a", ReceivedAt: at, Payload: payload("10", chromeUA, `{"x": [{"name": "api.Foo.bar", "result": true}]}`)},
		{ID: "b", ReceivedAt: at, Payload: payload("10", chromeUA, `{"x": [{"name": "api.Foo.bar", "result": null}]}`)},
		{ID: "c", ReceivedAt: at, Payload: payload("99", chromeUA, `{}`)},
		{ID: "d", ReceivedAt: at, Payload: []byte("garbage")},
	}
	ix, outcomes, err := c.IngestAll(context.Background(), raws)
	require.NoError(t, err)

	require.Len(t, outcomes, 4)
	assert.Equal(t, []Status{StatusAccepted, StatusAccepted, StatusIncompatibleSchema, StatusMalformed},
		[]Status{outcomes[0].Status, outcomes[1].Status, outcomes[2].Status, outcomes[3].Status})

	assert.Equal(t, 2, ix.Sessions())
	assert.Equal(t, []compat.FeatureID{"api.Foo.bar"}, ix.Features())
	assert.Equal(t, []string{"a", "b"}, ix.SessionsFor("chrome", "80"))
	assert.Equal(t, []Cell{{Browser: "chrome", Version: "80"}}, ix.Cells())

	obs := ix.ForFeature("api.Foo.bar")
	require.Len(t, obs, 2)
	assert.Equal(t, compat.True, obs[0].Value)
	assert.Equal(t, compat.Null, obs[1].Value)
	assert.Equal(t, "b", obs[1].Session)
}

func TestCollector_IngestAll_Cancelled(t *testing.T) {
	c := testCollector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.IngestAll(ctx, []RawReport{{Payload: payload("10", chromeUA, `{}`)}})
	assert.ErrorIs(t, err, context.Canceled)
}
