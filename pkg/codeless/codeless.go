package codeless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofiber/fiber/v2/log"

	"codeless/internal/config"
	"codeless/internal/data"
	"codeless/internal/html"
	"codeless/internal/importer"
	"codeless/internal/render"
	"codeless/internal/repeat"
	"codeless/internal/selector"
)

// Errors callers can match with errors.Is
var (
	ErrMalformedSelector    = selector.ErrMalformedSelector
	ErrUnsupportedPseudo    = selector.ErrUnsupportedPseudo
	ErrUnreadableImport     = importer.ErrUnreadableImport
	ErrInvalidDirectiveKeys = data.ErrInvalidDirectiveKeys
	ErrConflictingRecursion = data.ErrConflictingRecursion
	ErrEmptyTemplate        = html.ErrEmptyTemplate
	ErrInvalidRepeatSpec    = repeat.ErrInvalidRepeatSpec
	ErrInvalidConfig        = config.ErrInvalidConfig

	// ErrNoTemplate is returned when rendering before a template is set
	ErrNoTemplate = errors.New("no template set")

	// ErrFragmentNotFound is returned by Rendered for an unknown element id
	ErrFragmentNotFound = errors.New("fragment not found")
)

// ValueModifier may rewrite the value bound to an element before it is applied
type ValueModifier = render.ValueModifier

// Machine binds data onto an HTML template by selector
// A Machine is not safe for concurrent use.
type Machine struct {
	config   config.Config
	fs       billy.Filesystem
	baseDir  string
	client   *http.Client
	shuffle  func(n int, swap func(i, j int))
	parser   html.Parser
	doc      html.Document
	data     *data.Stack
	includes *data.Stack

	modifiers []modifier
	rendered  bool
	stats     ProcessingStats
}

type modifier struct {
	key string
	fn  ValueModifier
}

// Option configures a Machine
type Option func(*Machine)

// WithFilesystem reads templates, includes and file: imports from fs
func WithFilesystem(fs billy.Filesystem) Option {
	return func(m *Machine) { m.fs = fs }
}

// WithBaseDir resolves relative include and import paths against dir
func WithBaseDir(dir string) Option {
	return func(m *Machine) { m.baseDir = dir }
}

// WithHTTPClient sets the client used for url: imports
func WithHTTPClient(c *http.Client) Option {
	return func(m *Machine) { m.client = c }
}

// WithShuffle replaces the random source of the shuffle repeat flag
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(m *Machine) { m.shuffle = fn }
}

// New creates a new Machine with the given configuration
func New(cfg config.Config, opts ...Option) *Machine {
	m := &Machine{
		config:   cfg,
		data:     data.NewStack(),
		includes: data.NewStack(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fs == nil {
		m.fs = osfs.New("/")
		if m.baseDir == "" {
			m.baseDir, _ = os.Getwd()
		}
	}
	m.parser = html.NewParser(m.fs)
	return m
}

// NewWithDefaults creates a new Machine with the default configuration
func NewWithDefaults(opts ...Option) *Machine {
	return New(config.Default(), opts...)
}

// RenderResult contains the result of a render
type RenderResult struct {
	HTML            string          // Final HTML
	ProcessingStats ProcessingStats // Processing statistics
}

// ProcessingStats contains metrics from the rendering process
type ProcessingStats struct {
	ElementsBound    int   // Elements that received a value
	NodesDuplicated  int   // Nodes inserted by repeat completion
	Imports          int   // @import directives resolved
	Includes         int   // Include files inserted
	Passes           int   // Binding passes run, 2 with reparse
	ProcessingTimeMs int64 // Processing time in milliseconds
}

// SetTemplate loads the template markup, discarding any earlier render
func (m *Machine) SetTemplate(markup string) error {
	doc, err := m.parser.Parse(markup)
	if err != nil {
		return fmt.Errorf("failed to set template: %w", err)
	}
	m.doc, m.rendered = doc, false
	return nil
}

// SetTemplateFile loads the template from a file
func (m *Machine) SetTemplateFile(filename string) error {
	doc, err := m.parser.ParseFile(m.path(filename))
	if err != nil {
		return fmt.Errorf("failed to set template: %w", err)
	}
	m.doc, m.rendered = doc, false
	return nil
}

// AssignData adds value for selector. With replace an existing entry is replaced,
// otherwise values are merged; recurse applies either recursively into nested data.
func (m *Machine) AssignData(selector string, value any, replace, recurse bool) error {
	v, err := data.FromAny(value)
	if err != nil {
		return fmt.Errorf("failed to assign %q: %w", selector, err)
	}
	m.data.Assign(selector, v, replace, recurse)
	return nil
}

// AssignDataStack replaces the whole data stack. stack may be a *data.Stack, an
// ordered map, or any Go mapping.
func (m *Machine) AssignDataStack(stack any) error {
	s, err := data.StackFromAny(stack)
	if err != nil {
		return fmt.Errorf("failed to assign data stack: %w", err)
	}
	m.data = s
	return nil
}

// AssignDataFile replaces the data stack with a YAML or JSON file's content
func (m *Machine) AssignDataFile(filename string) error {
	raw, err := util.ReadFile(m.fs, m.path(filename))
	if err != nil {
		return fmt.Errorf("failed to read data %s: %w", filename, err)
	}
	s, err := data.Decode(raw)
	if err != nil {
		return fmt.Errorf("failed to load data %s: %w", filename, err)
	}
	m.data = s
	return nil
}

// SetInclude assigns an include file to every element matching selector.
// Without replace the path is added to those already assigned.
func (m *Machine) SetInclude(selector, path string, replace bool) {
	m.includes.Assign(selector, data.Text(path), replace, !replace)
}

// SetValueModifier registers fn for a data key; several modifiers run in order
func (m *Machine) SetValueModifier(selector string, fn ValueModifier) {
	m.modifiers = append(m.modifiers, modifier{key: selector, fn: fn})
}

// SetRepeatFunctions sets the global repeat specs. x falls back to y when empty.
func (m *Machine) SetRepeatFunctions(y, x string) error {
	if x == "" {
		x = y
	}
	for _, spec := range []string{y, x} {
		if _, err := repeat.Parse(spec); err != nil {
			return err
		}
	}
	m.config.RepeatX, m.config.RepeatY = x, y
	return nil
}

// ObtainData returns the value assigned to selector
func (m *Machine) ObtainData(selector string) (data.Value, bool) {
	return m.data.Get(selector)
}

// ObtainDataStack returns the whole data stack
func (m *Machine) ObtainDataStack() *data.Stack {
	return m.data
}

// ObtainInclude returns the include paths assigned to selector
func (m *Machine) ObtainInclude(selector string) ([]string, bool) {
	v, ok := m.includes.Get(selector)
	if !ok {
		return nil, false
	}
	if !v.IsStack() {
		return []string{v.Scalar()}, true
	}
	var paths []string
	_ = v.Stack().Each(func(_ string, item data.Value) error {
		paths = append(paths, data.Flatten(item))
		return nil
	})
	return paths, true
}

// Render binds the data stack onto the template and returns the document
func (m *Machine) Render(ctx context.Context) (*RenderResult, error) {
	if m.doc == nil {
		return nil, ErrNoTemplate
	}
	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(m.config.Level())

	r := render.New(m.doc, m.config, m.importer())
	r.SetIncludes(m.includes)
	for _, mod := range m.modifiers {
		r.AddValueModifier(mod.key, mod.fn)
	}
	if m.shuffle != nil {
		r.SetShuffle(m.shuffle)
	}

	stats, err := r.Render(ctx, m.data)
	if err != nil {
		return nil, fmt.Errorf("failed to render: %w", err)
	}
	m.rendered = true
	m.stats = ProcessingStats{
		ElementsBound:    stats.ElementsBound,
		NodesDuplicated:  stats.NodesDuplicated,
		Imports:          stats.Imports,
		Includes:         stats.Includes,
		Passes:           stats.Passes,
		ProcessingTimeMs: stats.ProcessingTime.Milliseconds(),
	}

	out, err := m.doc.HTML()
	if err != nil {
		return nil, err
	}
	return &RenderResult{HTML: out, ProcessingStats: m.stats}, nil
}

// Rendered renders once if needed and serializes the document, or only the
// element with fragmentID when it is set
func (m *Machine) Rendered(ctx context.Context, fragmentID string) (string, error) {
	if !m.rendered {
		if _, err := m.Render(ctx); err != nil {
			return "", err
		}
	}
	if fragmentID == "" {
		return m.doc.HTML()
	}
	node := m.doc.ElementByID(fragmentID)
	if node == nil {
		return "", fmt.Errorf("%w: #%s", ErrFragmentNotFound, fragmentID)
	}
	return m.doc.Serialize(node)
}

// Stats returns the statistics of the last render
func (m *Machine) Stats() ProcessingStats {
	return m.stats
}

// Compile returns the XPath query a selector compiles to
func (m *Machine) Compile(sel string) (string, error) {
	c := selector.NewCompiler(nil, m.config.Dialect())
	q, err := c.Compile(sel)
	if err != nil {
		return "", err
	}
	return q.Expr, nil
}

func (m *Machine) importer() *importer.Importer {
	opts := []importer.Option{importer.WithBaseDir(m.baseDir)}
	if m.client != nil {
		opts = append(opts, importer.WithHTTPClient(m.client))
	}
	return importer.New(m.fs, opts...)
}

func (m *Machine) path(filename string) string {
	if filepath.IsAbs(filename) || m.baseDir == "" {
		return filename
	}
	return filepath.Join(m.baseDir, filename)
}

// RenderHTML is a convenience function that renders markup with stack using the default configuration
func RenderHTML(ctx context.Context, markup string, stack any) (string, error) {
	return RenderHTMLWithConfig(ctx, markup, stack, config.Default())
}

// RenderHTMLWithConfig is a convenience function that renders markup with stack using cfg
func RenderHTMLWithConfig(ctx context.Context, markup string, stack any, cfg config.Config) (string, error) {
	m := New(cfg)
	if err := m.SetTemplate(markup); err != nil {
		return "", err
	}
	if err := m.AssignDataStack(stack); err != nil {
		return "", err
	}
	result, err := m.Render(ctx)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}
