package matrix

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"compatcollect/internal/compat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type knownSet map[compat.FeatureID]bool

func (k knownSet) Has(id compat.FeatureID) bool { return k[id] }

type releases map[string][]string

func (r releases) Releases(browser string) []string { return r[browser] }

func reducedFixture() map[compat.FeatureID]compat.SupportMap {
	return map[compat.FeatureID]compat.SupportMap{
		"api.Foo":         {"chrome": {"80": compat.True, "90": compat.True}},
		"api.Foo.bar":     {"chrome": {"80": compat.False, "90": compat.True}, "safari": {"14": compat.Null}},
		"api.Foo.renamed": {"chrome": {"80": compat.True}},
		"api.Gone":        {"safari": {"13": compat.True, "14": compat.False}},
	}
}

func TestAssemble(t *testing.T) {
	known := knownSet{"api.Foo": true, "api.Foo.bar": true}
	ids := []compat.FeatureID{"api.Gone", "api.Foo.renamed", "api.Foo", "api.Foo.bar", "api.Foo", "api.Missing"}

	m, orphans := Assemble(ids, reducedFixture(), known)

	assert.Len(t, m.Support, 2)
	assert.Len(t, m.Orphans, 2)
	assert.Equal(t, []compat.FeatureID{"api.Foo", "api.Foo.bar", "api.Foo.renamed", "api.Gone"}, m.Features())

	require.Len(t, orphans, 2)
	assert.Equal(t, compat.FeatureID("api.Foo.renamed"), orphans[0].Feature)
	assert.Equal(t, compat.FeatureID("api.Foo"), orphans[0].Parent)
	assert.Equal(t, compat.FeatureID("api.Gone"), orphans[1].Feature)
	assert.Empty(t, orphans[1].Parent)

	var err error = &orphans[0]
	var ow *OrphanFeatureWarning
	assert.True(t, errors.As(err, &ow))
	assert.Contains(t, err.Error(), "closest known: api.Foo")

	s, orphan, ok := m.Lookup("api.Gone")
	require.True(t, ok)
	assert.True(t, orphan)
	assert.Equal(t, compat.False, s["safari"]["14"])

	_, _, ok = m.Lookup("api.Missing")
	assert.False(t, ok)

	assert.Equal(t, 8, m.Cells())
}

func TestAssemble_NilInputs(t *testing.T) {
	m, orphans := Assemble(nil, reducedFixture(), nil)
	assert.Empty(t, orphans)
	assert.Len(t, m.Support, 4)
	assert.Empty(t, m.Orphans)
}

func TestAssemble_CopiesInput(t *testing.T) {
	reduced := reducedFixture()
	m, _ := Assemble(nil, reduced, nil)
	reduced["api.Foo"]["chrome"]["80"] = compat.False
	assert.Equal(t, compat.True, m.Support["api.Foo"]["chrome"]["80"])
}

func TestMatrix_Summary(t *testing.T) {
	m, _ := Assemble(nil, reducedFixture(), knownSet{"api.Foo": true, "api.Foo.bar": true})
	summary := m.Summary(releases{
		"chrome": {"80", "90"},
		"safari": {"13", "14"},
	})

	assert.Equal(t, []compat.Range{{Added: "90"}}, summary["api.Foo.bar"]["chrome"])
	assert.NotContains(t, summary["api.Foo.bar"], "safari")
	assert.Equal(t, []compat.Range{{Added: "13", Removed: "14"}}, summary["api.Gone"]["safari"])
	assert.Equal(t, []compat.Range{{Added: "80"}}, summary["api.Foo"]["chrome"])
}

func TestMatrix_WriteFile(t *testing.T) {
	dir := t.TempDir()

	m, _ := Assemble(nil, map[compat.FeatureID]compat.SupportMap{
		"api.Foo": {"chrome": {"80": compat.True, "79": compat.Null}},
	}, nil)
	path := filepath.Join(dir, "matrix.json")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{
  "support": {
    "api.Foo": {
      "chrome": {
        "79": null,
        "80": true
      }
    }
  },
  "orphans": {}
}
`, string(data))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)

	t.Run("Deterministic", func(t *testing.T) {
		ids := []compat.FeatureID{"api.Gone", "api.Foo", "api.Foo.bar", "api.Foo.renamed"}
		reversed := []compat.FeatureID{"api.Foo.renamed", "api.Foo.bar", "api.Foo", "api.Gone"}
		known := knownSet{"api.Foo": true}

		a, _ := Assemble(ids, reducedFixture(), known)
		b, _ := Assemble(reversed, reducedFixture(), known)
		require.NoError(t, a.WriteFile(filepath.Join(dir, "a.json")))
		require.NoError(t, b.WriteFile(filepath.Join(dir, "b.json")))

		da, err := os.ReadFile(filepath.Join(dir, "a.json"))
		require.NoError(t, err)
		db, err := os.ReadFile(filepath.Join(dir, "b.json"))
		require.NoError(t, err)
		assert.Equal(t, string(da), string(db))
	})
}
