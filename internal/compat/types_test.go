package compat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExposure(t *testing.T) {
	cases := map[string]Exposure{
		"Window":                   ExposureWindow,
		"window":                   ExposureWindow,
		"DedicatedWorker":          ExposureWorker,
		"Worker":                   ExposureWorker,
		" sharedworker ":           ExposureSharedWorker,
		"ServiceWorkerGlobalScope": ExposureServiceWorker,
	}
	for in, want := range cases {
		got, err := ParseExposure(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseExposure("AudioWorklet")
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	assert.Equal(t, True, Reconcile([]Value{Null, True}))
	assert.Equal(t, True, Reconcile([]Value{False, True, Null}))
	assert.Equal(t, False, Reconcile([]Value{Null, False}))
	assert.Equal(t, Null, Reconcile([]Value{Null, Null}))
	assert.Equal(t, Null, Reconcile(nil))
}

func TestValue_JSON(t *testing.T) {
	var vals []Value
	require.NoError(t, json.Unmarshal([]byte(`[true,false,null]`), &vals))
	assert.Equal(t, []Value{True, False, Null}, vals)

	out, err := json.Marshal(BrowserSupportMap{"80": True, "81": Null})
	require.NoError(t, err)
	assert.JSONEq(t, `{"80":true,"81":null}`, string(out))

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`"yes"`), &v))
}

func TestBrowserSupportMap_Ranges(t *testing.T) {
	order := []string{"78", "79", "80", "81", "82", "83"}

	t.Run("single open run", func(t *testing.T) {
		m := BrowserSupportMap{"78": False, "80": True, "81": True}
		assert.Equal(t, []Range{{Added: "80"}}, m.Ranges(order))
		assert.Equal(t, "80", m.FirstSupported(order))
	})

	t.Run("removed then re-added", func(t *testing.T) {
		m := BrowserSupportMap{"79": True, "80": False, "82": True, "83": True}
		assert.Equal(t, []Range{{Added: "79", Removed: "80"}, {Added: "82"}}, m.Ranges(order))
		assert.Equal(t, "82", m.FirstSupported(order))
	})

	t.Run("removed for good", func(t *testing.T) {
		m := BrowserSupportMap{"79": True, "81": False}
		assert.Equal(t, "", m.FirstSupported(order))
	})

	t.Run("null does not start a run", func(t *testing.T) {
		m := BrowserSupportMap{"79": Null}
		assert.Empty(t, m.Ranges(order))
	})
}

func TestFeatureID_Parent(t *testing.T) {
	assert.Equal(t, FeatureID("api.Foo"), FeatureID("api.Foo.bar").Parent())
	assert.Equal(t, FeatureID(""), FeatureID("api").Parent())
}
