package codeless

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeless/internal/config"
	"codeless/internal/data"
	"codeless/internal/html"
)

const page = `<html><head><title></title></head><body>` +
	`<h1></h1><ul id="menu"><li><a href="#">item</a></li></ul><div id="footer"><p class="note"></p></div>` +
	`</body></html>`

func newMachine(t *testing.T, files map[string]string) *Machine {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	cfg := config.Default()
	cfg.FormatHTML = false
	return New(cfg, WithFilesystem(fs), WithBaseDir("/site"))
}

func TestRender(t *testing.T) {
	m := newMachine(t, nil)
	require.NoError(t, m.SetTemplate(page))

	require.NoError(t, m.AssignData("title", "Home", true, true))
	require.NoError(t, m.AssignData("h1", "Welcome", true, true))
	require.NoError(t, m.AssignData("#menu", []any{
		map[string]any{"a": map[string]any{"@attr": map[string]any{"href": "/a"}, "@content": "A"}},
		map[string]any{"a": map[string]any{"@attr": map[string]any{"href": "/b"}, "@content": "B"}},
	}, true, true))

	result, err := m.Render(context.Background())
	require.NoError(t, err)

	assert.Contains(t, result.HTML, "<title>Home</title>")
	assert.Contains(t, result.HTML, "<h1>Welcome</h1>")
	assert.Contains(t, result.HTML, `<ul id="menu"><li><a href="/a">A</a></li><li><a href="/b">B</a></li></ul>`)
	assert.Equal(t, 1, result.ProcessingStats.NodesDuplicated)
	assert.Equal(t, 1, result.ProcessingStats.Passes)
}

func TestRenderErrors(t *testing.T) {
	m := newMachine(t, nil)

	_, err := m.Render(context.Background())
	assert.ErrorIs(t, err, ErrNoTemplate)

	assert.ErrorIs(t, m.SetTemplate("  \n"), ErrEmptyTemplate)

	err = m.AssignData(".target", map[string]any{"@bogus": 1, "@content": "x"}, true, true)
	require.ErrorIs(t, err, ErrInvalidDirectiveKeys)
	assert.Contains(t, err.Error(), "@bogus")

	err = m.AssignData(".target", map[string]any{"@children": []any{"a"}, "@content": []any{"b"}}, true, true)
	assert.ErrorIs(t, err, ErrConflictingRecursion)

	require.NoError(t, m.SetTemplate(page))
	require.NoError(t, m.AssignData("li:first-child", "x", true, true))
	_, err = m.Render(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedPseudo)
}

func TestAssignData(t *testing.T) {
	m := newMachine(t, nil)

	require.NoError(t, m.AssignData("h1", "a", true, true))
	require.NoError(t, m.AssignData("h1", "b", false, true))
	v, ok := m.ObtainData("h1")
	require.True(t, ok)
	assert.Equal(t, "a b", data.Flatten(v))

	require.NoError(t, m.AssignData("h1", "c", true, false))
	v, _ = m.ObtainData("h1")
	assert.Equal(t, "c", v.Scalar())

	_, ok = m.ObtainData("h2")
	assert.False(t, ok)

	require.NoError(t, m.AssignDataStack(map[string]any{"p": "x"}))
	assert.Equal(t, []string{"p"}, m.ObtainDataStack().Keys())

	assert.Error(t, m.AssignDataStack("scalar"))
}

func TestFiles(t *testing.T) {
	m := newMachine(t, map[string]string{
		"/site/index.html":         page,
		"/site/data.yaml":          "h1: From file\n\"#footer .note\":\n  \"@import\": file:partials/note.html\n",
		"/site/partials/note.html": "<em>imported</em>",
		"/site/partials/nav.html":  `<li class="extra">extra</li>`,
	})

	require.NoError(t, m.SetTemplateFile("index.html"))
	require.NoError(t, m.AssignDataFile("data.yaml"))
	m.SetInclude("#menu", "partials/nav.html", true)

	paths, ok := m.ObtainInclude("#menu")
	require.True(t, ok)
	assert.Equal(t, []string{"partials/nav.html"}, paths)

	out, err := m.Rendered(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>From file</h1>")
	assert.Contains(t, out, `<p class="note"><em>imported</em></p>`)
	assert.Contains(t, out, `<li class="extra">extra</li>`)
	assert.Equal(t, 1, m.Stats().Includes)
	assert.Equal(t, 1, m.Stats().Imports)

	assert.Error(t, m.SetTemplateFile("missing.html"))
}

func TestRenderedFragment(t *testing.T) {
	m := newMachine(t, nil)
	require.NoError(t, m.SetTemplate(page))
	require.NoError(t, m.AssignData("#footer .note", "fine print", true, true))

	out, err := m.Rendered(context.Background(), "footer")
	require.NoError(t, err)
	assert.Equal(t, `<div id="footer"><p class="note">fine print</p></div>`, out)

	_, err = m.Rendered(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFragmentNotFound)
}

func TestSetRepeatFunctions(t *testing.T) {
	m := newMachine(t, nil)
	assert.ErrorIs(t, m.SetRepeatFunctions("simple", "mirror shuffle"), ErrInvalidRepeatSpec)

	require.NoError(t, m.SetRepeatFunctions("", ""))
	require.NoError(t, m.SetTemplate(`<ul id="l"><li>a</li></ul>`))
	require.NoError(t, m.AssignData("#l", []string{"1", "2", "3"}, true, true))

	out, err := m.Rendered(context.Background(), "l")
	require.NoError(t, err)
	assert.Equal(t, `<ul id="l"><li>1</li></ul>`, out)
}

func TestReparse(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/late.html", []byte(`<b class="late"></b>`), 0o644))

	cfg := config.Default()
	cfg.ParseInsertedData = true
	m := New(cfg, WithFilesystem(fs))
	require.NoError(t, m.SetTemplate(`<div id="slot"></div>`))
	require.NoError(t, m.AssignData(".late::after", "!", true, true))
	require.NoError(t, m.AssignData("#slot", map[string]any{"@import": "file:/late.html"}, true, true))

	out, err := m.Rendered(context.Background(), "slot")
	require.NoError(t, err)
	assert.Equal(t, `<div id="slot"><b class="late">!</b></div>`, out)
	assert.Equal(t, 2, m.Stats().Passes)
}

func TestValueModifierAndShuffle(t *testing.T) {
	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	cfg := config.Default()
	cfg.FormatHTML = false
	m := New(cfg, WithFilesystem(memfs.New()), WithShuffle(reverse))

	require.NoError(t, m.SetTemplate(`<ol id="l"><li>a</li><li>b</li><li>c</li></ol>`))
	require.NoError(t, m.SetRepeatFunctions("shuffle", ""))
	require.NoError(t, m.AssignData("#l", []string{"1", "2", "3"}, true, true))
	m.SetValueModifier("0", func(_ html.Node, v data.Value) (data.Value, error) {
		return data.Text(v.Scalar() + "st"), nil
	})

	out, err := m.Rendered(context.Background(), "l")
	require.NoError(t, err)
	assert.Equal(t, `<ol id="l"><li>3</li><li>2</li><li>1st</li></ol>`, out)
}

func TestCompile(t *testing.T) {
	m := NewWithDefaults()

	q, err := m.Compile("ul > li.active")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(q, "//ul/li"))

	q, err = m.Compile("xpath(//a[@href])")
	require.NoError(t, err)
	assert.Equal(t, "//a[@href]", q)

	_, err = m.Compile("li:only-child")
	assert.ErrorIs(t, err, ErrUnsupportedPseudo)
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML(context.Background(), `<p class="greeting"></p>`, map[string]string{".greeting": "hello"})
	require.NoError(t, err)
	assert.Contains(t, out, `<p class="greeting">hello</p>`)

	cfg := config.Default()
	cfg.SelectorDialect = "xpath"
	out, err = RenderHTMLWithConfig(context.Background(), `<p class="greeting"></p>`, map[string]string{"//p": "hi"}, cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `<p class="greeting">hi</p>`)

	cfg.OnContentEmpty = "sometimes"
	_, err = RenderHTMLWithConfig(context.Background(), `<p></p>`, map[string]string{}, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRenderAppliesLogLevel(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	defer log.SetLevel(log.LevelWarn)

	log.SetLevel(log.LevelTrace)
	_, err := RenderHTML(context.Background(), `<ul id="l"><li></li></ul>`, map[string]any{"#l": []string{"a", "b"}})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "[Debug]")

	cfg := config.Default()
	cfg.LogLevel = "debug"
	_, err = RenderHTMLWithConfig(context.Background(), `<ul id="l"><li></li></ul>`, map[string]any{"#l": []string{"a", "b"}}, cfg)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "render:")
	assert.Contains(t, buf.String(), "nodelist:")
}
