package idl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Sample(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "sample.idl"))
	require.NoError(t, err)

	defs, err := Parse("sample.idl", src)
	require.NoError(t, err)

	byName := make(map[string][]Definition)
	for _, d := range defs {
		byName[d.DefName()] = append(byName[d.DefName()], d)
	}

	t.Run("Overall Count", func(t *testing.T) {
		assert.Len(t, defs, 13)
	})

	t.Run("Interface with inheritance", func(t *testing.T) {
		iface, ok := byName["AbortSignal"][0].(*Interface)
		require.True(t, ok)
		assert.Equal(t, KindInterface, iface.DefKind())
		assert.Equal(t, "EventTarget", iface.Inherits)
		assert.Equal(t, []string{"Window", "Worker"}, iface.ExtAttrs.Exposed())
		require.Len(t, iface.Members, 5)

		abort := iface.Members[0]
		assert.Equal(t, MemberOperation, abort.Kind)
		assert.Equal(t, "abort", abort.Name)
		assert.True(t, abort.Static)
		assert.Equal(t, "static abort", abort.Key())
		assert.True(t, abort.ExtAttrs.Has("NewObject"))

		aborted := iface.Members[1]
		assert.Equal(t, MemberAttribute, aborted.Kind)
		assert.Equal(t, "aborted", aborted.Name)
		assert.Equal(t, "boolean", aborted.Type)
		assert.True(t, aborted.Readonly)
	})

	t.Run("Constructor and exposed star", func(t *testing.T) {
		iface := byName["AbortController"][0].(*Interface)
		assert.Equal(t, []string{"*"}, iface.ExtAttrs.Exposed())
		assert.Equal(t, MemberConstructor, iface.Members[0].Kind)
		assert.Equal(t, "@constructor", iface.Members[0].Key())
	})

	t.Run("Mixin and includes", func(t *testing.T) {
		mixin, ok := byName["WindowOrWorkerGlobalScope"][0].(*Mixin)
		require.True(t, ok)
		require.Len(t, mixin.Members, 2)
		assert.Equal(t, "setTimeout", mixin.Members[1].Name)
		assert.Equal(t, "long", mixin.Members[1].Type)

		var inc *Includes
		var partial *Interface
		for _, d := range byName["Window"] {
			switch v := d.(type) {
			case *Includes:
				inc = v
			case *Interface:
				partial = v
			}
		}
		require.NotNil(t, inc)
		assert.Equal(t, "WindowOrWorkerGlobalScope", inc.Mixin)
		require.NotNil(t, partial)
		assert.True(t, partial.IsPartial())
	})

	t.Run("Constants and union return types", func(t *testing.T) {
		var partial *Interface
		for _, d := range byName["Window"] {
			if v, ok := d.(*Interface); ok {
				partial = v
			}
		}
		require.NotNil(t, partial)
		require.Len(t, partial.Members, 2)
		assert.Equal(t, MemberConstant, partial.Members[0].Kind)
		assert.Equal(t, "STATE_A", partial.Members[0].Name)
		assert.Equal(t, "unsigned short", partial.Members[0].Type)
		assert.Equal(t, "namedItem", partial.Members[1].Name)
		assert.Equal(t, "( Element or HTMLCollection ) ?", partial.Members[1].Type)
	})

	t.Run("Special operations and iterable", func(t *testing.T) {
		coll := byName["HTMLCollection"][0].(*Interface)
		require.Len(t, coll.Members, 4)
		assert.Equal(t, "item", coll.Members[1].Name)
		assert.Equal(t, "getter", coll.Members[1].Special)
		assert.Equal(t, "", coll.Members[2].Name)
		assert.Equal(t, "getter", coll.Members[2].Special)
		assert.Equal(t, MemberIterable, coll.Members[3].Kind)
	})

	t.Run("Dictionary fields", func(t *testing.T) {
		dict, ok := byName["EventInit"][0].(*Dictionary)
		require.True(t, ok)
		require.Len(t, dict.Members, 4)
		names := []string{}
		for _, m := range dict.Members {
			assert.Equal(t, MemberField, m.Kind)
			names = append(names, m.Name)
		}
		assert.Equal(t, []string{"bubbles", "type", "mode", "tags"}, names)
		assert.True(t, dict.Members[1].Required)
	})

	t.Run("Other definitions", func(t *testing.T) {
		assert.Equal(t, KindNamespace, byName["console"][0].DefKind())
		enum := byName["ScrollBehavior"][0].(*Enum)
		assert.Equal(t, []string{"auto", "instant", "smooth"}, enum.Values)
		assert.Equal(t, KindTypedef, byName["ArrayBufferView"][0].DefKind())
		assert.Equal(t, KindCallback, byName["TimerHandler"][0].DefKind())
		assert.Equal(t, KindCallbackInterface, byName["EventListener"][0].DefKind())
	})

	t.Run("Declarations without names", func(t *testing.T) {
		headers := byName["Headers"][0].(*Interface)
		require.Len(t, headers.Members, 3)
		assert.Equal(t, MemberAsyncIterable, headers.Members[0].Kind)
		assert.Equal(t, MemberMaplike, headers.Members[1].Kind)
		assert.True(t, headers.Members[1].Readonly)
		assert.Equal(t, MemberStringifier, headers.Members[2].Kind)
	})
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"missing semicolon":    "interface Foo { attribute long bar; }",
		"unterminated string":  "enum E { \"a };",
		"bad top level":        "attribute long x;",
		"partial callback":     "partial callback Foo = undefined ();",
		"partial inheritance":  "partial interface Foo : Bar {};",
		"unterminated body":    "interface Foo { attribute long bar;",
		"unterminated comment": "/* never closed",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("broken.idl", []byte(src))
			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "broken.idl", perr.File)
		})
	}
}

func TestParse_CanonicalText(t *testing.T) {
	a, err := Parse("a.idl", []byte("interface Foo { readonly   attribute long  bar; };"))
	require.NoError(t, err)
	b, err := Parse("b.idl", []byte("interface Foo {\n  readonly attribute long bar;\n};"))
	require.NoError(t, err)

	ma := ContainerOf(a[0]).Members[0]
	mb := ContainerOf(b[0]).Members[0]
	assert.Equal(t, ma.Text, mb.Text)
	assert.NotEqual(t, ma.Position, mb.Position)
}
