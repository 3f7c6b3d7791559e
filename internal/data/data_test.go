package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func TestDecodeKeepsOrder(t *testing.T) {
	s, err := Decode([]byte(`
h1: Title
ul li:
  - one
  - two
.card:
  "@attr":
    class: wide
  "@content": hi
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"h1", "ul li", ".card"}, s.Keys())

	title, ok := s.Get("h1")
	require.True(t, ok)
	assert.Equal(t, "Title", title.Scalar())

	list, _ := s.Get("ul li")
	require.True(t, list.IsStack())
	assert.True(t, list.Stack().Positional())
	assert.Equal(t, []string{"0", "1"}, list.Stack().Keys())

	card, _ := s.Get(".card")
	require.Equal(t, DirectivesKind, card.Kind())
	assert.Equal(t, []Attribute{{Name: "class", Value: "wide", Mode: Replace}}, card.Directives().Attrs())
}

func TestDecodeJSON(t *testing.T) {
	s, err := Decode([]byte(`{"b": "2", "a": {"x": null}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, s.Keys())

	a, _ := s.Get("a")
	x, _ := a.Stack().Get("x")
	assert.True(t, x.IsBlank())
}

func TestDecodeRejectsScalarRoot(t *testing.T) {
	_, err := Decode([]byte(`just text`))
	assert.Error(t, err)
}

func TestDirectiveMapOrder(t *testing.T) {
	s := NewStack().
		Set("@content", Text("hi")).
		Set("@attr:after", Nested(NewStack().Set("class", Text("b")))).
		Set("@params", Nested(NewStack().Set("repeat_fn_y", List(Text("simple"), Text("once"))))).
		Set("@attr", Nested(NewStack().Set("class", Text("a")))).
		Set("@import:before", Text("#frag"))

	m, err := NewDirectiveMap(s)
	require.NoError(t, err)

	var keys []string
	for _, d := range m.Entries() {
		keys = append(keys, d.Key)
	}
	assert.Equal(t, []string{"@params", "@attr", "@attr:after", "@import:before", "@content"}, keys)
	assert.Equal(t, map[string]string{"repeat_fn_y": "simple once"}, m.Params())
	assert.Equal(t, []Attribute{
		{Name: "class", Value: "a", Mode: Replace},
		{Name: "class", Value: "b", Mode: Append},
	}, m.Attrs())
}

func TestDirectiveMapUnknownKeys(t *testing.T) {
	s := NewStack().Set("@bogus", Text("1")).Set("@content", Text("x"))

	_, err := NewDirectiveMap(s)
	require.ErrorIs(t, err, ErrInvalidDirectiveKeys)

	var keysErr *InvalidDirectiveKeysError
	require.ErrorAs(t, err, &keysErr)
	assert.Equal(t, []string{"@bogus"}, keysErr.Unknown)
	assert.Contains(t, keysErr.Known, "@content")
	assert.Contains(t, err.Error(), "@bogus")
}

func TestDirectiveMapPlainKeyBesideDirective(t *testing.T) {
	_, err := Decode([]byte(`{"li": {"@content": "x", "span": "y"}}`))
	assert.ErrorIs(t, err, ErrInvalidDirectiveKeys)
}

func TestDirectiveMapConflictingRecursion(t *testing.T) {
	s := NewStack().
		Set("@children", List(Text("a"))).
		Set("@self", List(Text("b")))

	_, err := NewDirectiveMap(s)
	assert.ErrorIs(t, err, ErrConflictingRecursion)

	// scalar content beside a recursing children is fine
	s = NewStack().Set("@children", List(Text("a"))).Set("@content", Text("b"))
	_, err = NewDirectiveMap(s)
	assert.NoError(t, err)
}

func TestDirectiveMapValueKinds(t *testing.T) {
	tests := []struct {
		name  string
		stack *Stack
	}{
		{"scalar attr", NewStack().Set("@attr", Text("class"))},
		{"list params", NewStack().Set("@params", List(Text("x")))},
		{"stack import", NewStack().Set("@import", List(Text("x")))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDirectiveMap(tt.stack)
			assert.ErrorIs(t, err, ErrInvalidDirectiveValue)
		})
	}
}

func TestParseDirectiveKey(t *testing.T) {
	kind, mode, ok := ParseDirectiveKey("@content:before")
	require.True(t, ok)
	assert.Equal(t, ContentDirective, kind)
	assert.Equal(t, Prepend, mode)

	_, _, ok = ParseDirectiveKey("@content:around")
	assert.False(t, ok)
	_, _, ok = ParseDirectiveKey("@Content")
	assert.False(t, ok)
	_, _, ok = ParseDirectiveKey("content")
	assert.False(t, ok)
}

func TestSplitSelector(t *testing.T) {
	tests := []struct {
		key      string
		selector string
		mode     InsertMode
	}{
		{"h1", "h1", Replace},
		{"h1::before", "h1", Prepend},
		{"p.lead::AFTER", "p.lead", Append},
		{"xpath(//li/following-sibling::li)", "xpath(//li/following-sibling::li)", Replace},
	}
	for _, tt := range tests {
		sel, mode := SplitSelector(tt.key)
		assert.Equal(t, tt.selector, sel, tt.key)
		assert.Equal(t, tt.mode, mode, tt.key)
	}
}

func TestAssign(t *testing.T) {
	t.Run("replace overwrites", func(t *testing.T) {
		s := NewStack().Assign("h1", Text("a"), true, false)
		s.Assign("h1", Text("b"), true, false)
		v, _ := s.Get("h1")
		assert.Equal(t, "b", v.Scalar())
	})

	t.Run("replace recursive keeps untouched keys", func(t *testing.T) {
		s := NewStack().Assign("ul", Nested(NewStack().Set("a", Text("1")).Set("b", Text("2"))), true, true)
		s.Assign("ul", Nested(NewStack().Set("b", Text("3"))), true, true)

		v, _ := s.Get("ul")
		a, _ := v.Stack().Get("a")
		b, _ := v.Stack().Get("b")
		assert.Equal(t, "1", a.Scalar())
		assert.Equal(t, "3", b.Scalar())
	})

	t.Run("merge recursive collects scalars into a list", func(t *testing.T) {
		s := NewStack().Assign("h1", Text("a"), false, true)
		s.Assign("h1", Text("b"), false, true)

		v, _ := s.Get("h1")
		require.True(t, v.IsStack())
		assert.Equal(t, "a b", Flatten(v))
	})

	t.Run("merge appends to positional stacks", func(t *testing.T) {
		s := NewList(Text("a"))
		s.Assign("0", Text("b"), false, false)
		assert.Equal(t, 2, s.Len())
	})
}

func TestClone(t *testing.T) {
	s := NewStack().Set("ul", List(Text("a")))
	c := s.Clone()

	v, _ := c.Get("ul")
	v.Stack().Append(Text("b"))

	orig, _ := s.Get("ul")
	assert.Equal(t, 1, orig.Stack().Len())
}

func TestFromAny(t *testing.T) {
	om := orderedmap.New[string, any]()
	om.Set("z", "last?")
	om.Set("a", []string{"x", "y"})

	v, err := FromAny(om)
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a"}, v.Stack().Keys())

	v, err = FromAny(map[string]any{
		".b": 2,
		".a": map[string]any{"@content": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{".a", ".b"}, v.Stack().Keys())

	a, _ := v.Stack().Get(".a")
	require.Equal(t, DirectivesKind, a.Kind())
	content, ok := a.Directives().Get(ContentDirective)
	require.True(t, ok)
	assert.Equal(t, "true", content.Value.Scalar())

	_, err = FromAny(map[string]any{"x": map[string]any{"@nope": 1}})
	assert.ErrorIs(t, err, ErrInvalidDirectiveKeys)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}
