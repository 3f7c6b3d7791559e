package nodelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeless/internal/html"
	"codeless/internal/repeat"
	"codeless/internal/selector"
)

type fixture struct {
	doc  html.Document
	pop  *Populator
	list html.Node
}

func newFixture(t *testing.T, markup string) *fixture {
	t.Helper()
	doc, err := html.NewParser(nil).Parse(markup)
	require.NoError(t, err)

	sel := selector.NewCompiler(doc, selector.CSS)
	nodes, err := sel.Select("#list", nil)
	require.NoError(t, err)

	f := &fixture{doc: doc, pop: New(doc, sel)}
	if len(nodes) > 0 {
		f.list = nodes[0]
	}
	return f
}

func calls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "item"
	}
	return out
}

func slotTexts(l *NodeList) []string {
	var out []string
	for _, s := range l.Slots() {
		if len(s) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, s[0].Text())
	}
	return out
}

func childTexts(n html.Node) []string {
	var out []string
	for _, c := range n.Children() {
		out = append(out, c.Text())
	}
	return out
}

const abc = `<ul id="list"><li>a</li><li>b</li><li>c</li></ul>`
const abcd = `<ul id="list"><li>a</li><li>b</li><li>c</li><li>d</li></ul>`

func (f *fixture) populate(t *testing.T, expected int, spec string) *NodeList {
	t.Helper()
	l, err := f.pop.Populate(Request{
		Container:  f.list,
		Calls:      calls(expected),
		Positional: true,
		Spec:       repeat.MustParse(spec),
	})
	require.NoError(t, err)
	return l
}

func TestCompleteSimple(t *testing.T) {
	f := newFixture(t, abc)
	l := f.populate(t, 7, "simple")

	assert.Equal(t, 7, l.Len())
	assert.Equal(t, 3, l.Found())
	assert.Equal(t, 4, l.Duplicated())
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, slotTexts(l))
	assert.Equal(t, slotTexts(l), childTexts(f.list))
}

func TestCompleteMirror(t *testing.T) {
	f := newFixture(t, abc)
	l := f.populate(t, 11, "mirror")

	assert.Equal(t, 11, l.Len())
	assert.Equal(t, []string{"a", "b", "c", "c", "b", "a", "a", "b", "c", "c", "b"}, slotTexts(l))
	assert.Equal(t, slotTexts(l), childTexts(f.list))
}

func TestCompleteOnce(t *testing.T) {
	f := newFixture(t, abc)
	l := f.populate(t, 8, "simple once")

	assert.Equal(t, []string{"a", "b", "c", "c", "c", "a", "b", "c"}, slotTexts(l))
}

func TestCompleteInnerPadded(t *testing.T) {
	t.Run("even count pads with the right of middle", func(t *testing.T) {
		f := newFixture(t, abcd)
		original := f.list.Children()
		l := f.populate(t, 6, "inner_padded")

		slots := l.Slots()
		require.Len(t, slots, 6)
		assert.Equal(t, []string{"a", "b", "c", "c", "c", "d"}, slotTexts(l))
		assert.Equal(t, original[0].Key(), slots[0][0].Key())
		assert.Equal(t, original[1].Key(), slots[1][0].Key())
		assert.Equal(t, original[2].Key(), slots[4][0].Key())
		assert.Equal(t, original[3].Key(), slots[5][0].Key())
		assert.NotEqual(t, original[2].Key(), slots[2][0].Key())
		assert.NotEqual(t, original[2].Key(), slots[3][0].Key())
		assert.Equal(t, slotTexts(l), childTexts(f.list))
	})

	t.Run("left variant pads with the left of middle", func(t *testing.T) {
		f := newFixture(t, abcd)
		l := f.populate(t, 5, "#inner_padded")
		assert.Equal(t, []string{"a", "b", "b", "c", "d"}, slotTexts(l))
		assert.Equal(t, slotTexts(l), childTexts(f.list))
	})

	t.Run("odd count pads with the middle", func(t *testing.T) {
		f := newFixture(t, abc)
		l := f.populate(t, 5, "inner_padded")
		assert.Equal(t, []string{"a", "b", "b", "b", "c"}, slotTexts(l))
	})
}

func TestJustify(t *testing.T) {
	t.Run("remainder of one is left alone", func(t *testing.T) {
		f := newFixture(t, abc)
		l := f.populate(t, 7, "simple justify")
		assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, slotTexts(l))
	})

	t.Run("remainder of two relocates one node", func(t *testing.T) {
		f := newFixture(t, abc)
		l := f.populate(t, 8, "simple justify")
		assert.Equal(t, 8, l.Len())
		assert.Equal(t, []string{"b", "c", "a", "b", "c", "a", "b", "c"}, slotTexts(l))
		assert.Equal(t, slotTexts(l), childTexts(f.list))
	})

	t.Run("exact fit is left alone", func(t *testing.T) {
		f := newFixture(t, abc)
		l := f.populate(t, 6, "mirror justify")
		assert.Equal(t, []string{"a", "b", "c", "c", "b", "a"}, slotTexts(l))
	})

	t.Run("mirror after even full rounds keeps the window order", func(t *testing.T) {
		f := newFixture(t, abcd)
		l := f.populate(t, 10, "mirror justify")
		assert.Equal(t, []string{"b", "c", "d", "d", "c", "b", "a", "a", "b", "c"}, slotTexts(l))
		assert.Equal(t, slotTexts(l), childTexts(f.list))
	})

	t.Run("mirror after odd full rounds reverses the window", func(t *testing.T) {
		f := newFixture(t, abcd)
		l := f.populate(t, 14, "mirror justify")
		assert.Equal(t, []string{"b", "c", "d", "d", "c", "b", "a", "a", "b", "c", "d", "d", "c", "b"}, slotTexts(l))
		assert.Equal(t, slotTexts(l), childTexts(f.list))
	})

	t.Run("once without full cycles is left alone", func(t *testing.T) {
		f := newFixture(t, abc)
		l := f.populate(t, 8, "simple once justify")
		assert.Equal(t, []string{"a", "b", "c", "c", "c", "a", "b", "c"}, slotTexts(l))
	})

	t.Run("once under twice the original still justifies", func(t *testing.T) {
		f := newFixture(t, abc)
		l := f.populate(t, 5, "simple once justify")
		assert.Equal(t, []string{"b", "c", "a", "b", "c"}, slotTexts(l))
		assert.Equal(t, slotTexts(l), childTexts(f.list))
	})
}

func TestShuffle(t *testing.T) {
	f := newFixture(t, abc)
	f.pop.WithShuffle(func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	})

	l := f.populate(t, 3, "shuffle")
	assert.Equal(t, []string{"c", "b", "a"}, slotTexts(l))
	assert.Equal(t, []string{"a", "b", "c"}, childTexts(f.list))
}

func TestNoSpecLeavesListShort(t *testing.T) {
	f := newFixture(t, abc)
	l, err := f.pop.Populate(Request{Container: f.list, Calls: calls(5), Positional: true})
	require.NoError(t, err)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 0, l.Duplicated())
}

func TestSeek(t *testing.T) {
	f := newFixture(t, abc)
	l := f.populate(t, 3, "simple")

	assert.Equal(t, "a", l.Seek()[0].Text())
	assert.Equal(t, "b", l.Seek()[0].Text())
	assert.Equal(t, "c", l.Seek()[0].Text())
	assert.Empty(t, l.Seek())
	assert.Empty(t, l.Seek())
}

func TestNamedCalls(t *testing.T) {
	f := newFixture(t, `<div id="list"><p class="a">1</p><p class="a">2</p><span>3</span></div>`)

	l, err := f.pop.Populate(Request{
		Container: f.list,
		Calls:     []string{".a", ".missing", "span"},
		Spec:      repeat.MustParse("simple"),
	})
	require.NoError(t, err)

	require.Equal(t, 3, l.Len())
	assert.Len(t, l.Seek(), 2)
	assert.Empty(t, l.Seek())
	assert.Equal(t, "3", l.Seek()[0].Text())
	assert.Equal(t, 0, l.Duplicated())
}

func TestNamedCallsMalformed(t *testing.T) {
	f := newFixture(t, abc)

	_, err := f.pop.Populate(Request{Container: f.list, Calls: []string{"li:nth-child(1)"}})
	assert.ErrorIs(t, err, selector.ErrUnsupportedPseudo)
}

func TestSelfRepeat(t *testing.T) {
	f := newFixture(t, `<ul id="list"><li class="row">x</li></ul>`)
	rows, err := selector.NewCompiler(f.doc, selector.CSS).Select(".row", nil)
	require.NoError(t, err)

	l, err := f.pop.Populate(Request{
		Container:  rows[0],
		Calls:      calls(3),
		Positional: true,
		Spec:       repeat.MustParse("simple"),
		SelfRepeat: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"x", "x", "x"}, childTexts(f.list))
}

func TestSubChild(t *testing.T) {
	f := newFixture(t, `<p id="list">hello</p>`)
	l := f.populate(t, 2, "simple")

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, `<p id="list">hello</p><p id="list">hello</p>`, f.list.InnerHTML())
}

func TestFormatCopiesWhitespace(t *testing.T) {
	f := newFixture(t, "<ul id=\"list\">\n  <li>a</li>\n</ul>")

	_, err := f.pop.Populate(Request{
		Container:  f.list,
		Calls:      calls(2),
		Positional: true,
		Spec:       repeat.MustParse("simple"),
		Format:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, "\n  <li>a</li>\n  <li>a</li>\n", f.list.InnerHTML())
}
