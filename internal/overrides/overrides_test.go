package overrides

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"compatcollect/internal/compat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	s, errs, err := Parse([]byte(`[
		"api.Legacy",
		["api.Foo.bar", "chrome", "*", true],
		["api.Foo.bar", "chrome", "90", false, "broken in 90"],
		["api.Foo.bar", "safari", 13.1, null],
		["api.Foo.bar", "chrome", "*", null],
		42,
		["api.Foo.bar", "chrome"],
		["api.Foo.bar", "chrome", "80", "yes"],
		["", "chrome", "80", true],
		["api.Foo.bar", "chrome", "80", true, 7]
	]`))
	require.NoError(t, err)

	require.Len(t, errs, 5)
	var entryErr *EntryError
	require.True(t, errors.As(errs[0], &entryErr))
	assert.Equal(t, 5, entryErr.Index)

	assert.True(t, s.Suppressed("api.Legacy"))
	assert.False(t, s.Suppressed("api.Foo.bar"))

	t.Run("Exact beats wildcard", func(t *testing.T) {
		d, ok := s.Lookup("api.Foo.bar", "chrome", "90")
		require.True(t, ok)
		assert.Equal(t, compat.False, d.Value)
		assert.Equal(t, "broken in 90", d.Note)
	})

	t.Run("Later wildcard wins", func(t *testing.T) {
		d, ok := s.Lookup("api.Foo.bar", "chrome", "100")
		require.True(t, ok)
		assert.Equal(t, compat.Null, d.Value)
		assert.Equal(t, 4, d.Index)
	})

	t.Run("Numeric version", func(t *testing.T) {
		d, ok := s.Lookup("api.Foo.bar", "safari", "13.1")
		require.True(t, ok)
		assert.Equal(t, compat.Null, d.Value)
	})

	t.Run("No match", func(t *testing.T) {
		_, ok := s.Lookup("api.Foo.bar", "firefox", "90")
		assert.False(t, ok)
	})

	assert.Equal(t, []compat.FeatureID{"api.Foo.bar", "api.Legacy"}, s.Features())
	assert.Equal(t, 4, s.Len())
}

func TestParse_Invalid(t *testing.T) {
	_, _, err := Parse([]byte(`{"api.Foo": true}`))
	assert.Error(t, err)

	_, _, err = Parse([]byte(`[`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	s, errs, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, errs)
	assert.Equal(t, 0, s.Len())

	path := filepath.Join(t.TempDir(), "overrides.json")
	require.NoError(t, os.WriteFile(path, []byte(`["api.Gone"]`), 0o644))
	s, _, err = Load(path)
	require.NoError(t, err)
	assert.True(t, s.Suppressed("api.Gone"))

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type releases map[string][]string

func (r releases) Releases(browser string) []string { return r[browser] }

func TestSet_Resolve(t *testing.T) {
	s, errs, err := Parse([]byte(`[
		"api.Legacy",
		["api.Foo.bar", "chrome", "90.0", false],
		["api.Foo.bar", "Chrome", "90", false],
		["api.Foo.bar", "chrome", "91", false],
		["api.Foo.bar", "chrome", "*", true],
		["api.Foo.baz", "chrome", "80", true],
		["api.Foo.baz", "chrome", "80.0", null],
		["api.Only.unknown", "opera", "1", true]
	]`))
	require.NoError(t, err)
	require.Empty(t, errs)

	resolved, errs := s.Resolve(releases{"chrome": {"79", "80", "90", "95"}})

	require.Len(t, errs, 3)
	indexes := make([]int, len(errs))
	for i, e := range errs {
		var entryErr *EntryError
		require.True(t, errors.As(e, &entryErr))
		indexes[i] = entryErr.Index
	}
	assert.Equal(t, []int{2, 3, 7}, indexes)
	assert.Contains(t, errs[0].Error(), `unknown browser "Chrome"`)
	assert.Contains(t, errs[1].Error(), `chrome has no release "91"`)

	t.Run("Equivalent version is rewritten", func(t *testing.T) {
		d, ok := resolved.Lookup("api.Foo.bar", "chrome", "90")
		require.True(t, ok)
		assert.Equal(t, compat.False, d.Value)
		assert.Equal(t, "90", d.Version)
	})

	t.Run("Later entry wins after rewrite", func(t *testing.T) {
		d, ok := resolved.Lookup("api.Foo.baz", "chrome", "80")
		require.True(t, ok)
		assert.Equal(t, compat.Null, d.Value)
	})

	t.Run("Wildcard and suppression survive", func(t *testing.T) {
		d, ok := resolved.Lookup("api.Foo.bar", "chrome", "95")
		require.True(t, ok)
		assert.Equal(t, compat.True, d.Value)
		assert.True(t, resolved.Suppressed("api.Legacy"))
	})

	assert.Equal(t, []compat.FeatureID{"api.Foo.bar", "api.Foo.baz", "api.Legacy"}, resolved.Features())
	assert.Equal(t, 8, s.Len(), "the original set is untouched")
	assert.Equal(t, 4, resolved.Len())
}
