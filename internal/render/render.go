// Package render walks a data stack and binds it onto a document.
package render

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"codeless/internal/config"
	"codeless/internal/data"
	"codeless/internal/html"
	"codeless/internal/importer"
	"codeless/internal/nodelist"
	"codeless/internal/resolver"
	"codeless/internal/selector"
)

// EmptyFlag is set on elements bound to blank content under the set_flag policies
const EmptyFlag = resolver.AttrPrefix + "content_empty"

var markupPattern = regexp.MustCompile(`<[^<].*>`)

// ValueModifier may rewrite the value bound to element
type ValueModifier func(element html.Node, v data.Value) (data.Value, error)

// Stats tracks what a render did
type Stats struct {
	ElementsBound   int
	NodesDuplicated int
	Imports         int
	Includes        int
	Passes          int
	ProcessingTime  time.Duration
}

// Renderer binds data stacks onto one document
type Renderer struct {
	doc      html.Document
	sel      *selector.Compiler
	pop      *nodelist.Populator
	res      *resolver.Resolver
	imp      *importer.Importer
	format   bool
	reparse  bool
	includes *data.Stack

	modifiers map[string][]ValueModifier
	consumed  map[uint64]struct{}
	tracking  bool
	stats     Stats
}

// state is threaded through recursion; each level gets its own copy
type state struct {
	ctx   context.Context
	depth int
}

// New creates a renderer for doc; imp may be nil when no imports are used
func New(doc html.Document, cfg config.Config, imp *importer.Importer) *Renderer {
	sel := selector.NewCompiler(doc, cfg.Dialect())
	if imp == nil {
		imp = importer.New(nil)
	}
	return &Renderer{
		doc:       doc,
		sel:       sel,
		pop:       nodelist.New(doc, sel),
		res:       resolver.New(cfg),
		imp:       imp,
		format:    cfg.FormatHTML,
		reparse:   cfg.ParseInsertedData,
		modifiers: make(map[string][]ValueModifier),
		consumed:  make(map[uint64]struct{}),
	}
}

// Document returns the document being rendered
func (r *Renderer) Document() html.Document { return r.doc }

// Compiler returns the selector compiler bound to the document
func (r *Renderer) Compiler() *selector.Compiler { return r.sel }

// Resolver returns the property resolver holding the ambient defaults
func (r *Renderer) Resolver() *resolver.Resolver { return r.res }

// SetShuffle replaces the shuffle source used by the shuffle repeat flag
func (r *Renderer) SetShuffle(fn func(n int, swap func(i, j int))) {
	r.pop.WithShuffle(fn)
}

// SetIncludes sets the selector → include path stack applied before binding
func (r *Renderer) SetIncludes(includes *data.Stack) {
	r.includes = includes
}

// AddValueModifier registers fn for a data key; modifiers run in registration order
func (r *Renderer) AddValueModifier(key string, fn ValueModifier) {
	r.modifiers[key] = append(r.modifiers[key], fn)
}

// Render applies includes, binds stack, and runs the reparse pass when enabled
func (r *Renderer) Render(ctx context.Context, stack *data.Stack) (Stats, error) {
	start := time.Now()
	r.stats = Stats{}

	if err := r.applyIncludes(); err != nil {
		return r.stats, err
	}

	r.tracking = r.reparse
	err := r.pass(ctx, stack)
	r.tracking = false
	if err != nil {
		return r.stats, err
	}

	if r.reparse {
		log.Debugf("render: reparse pass excluding %d consumed elements", len(r.consumed))
		r.sel.SetExclusion(r.isConsumed)
		err = r.pass(ctx, stack)
		r.sel.SetExclusion(nil)
		r.consumed = make(map[uint64]struct{})
		if err != nil {
			return r.stats, err
		}
	}

	r.stats.ProcessingTime = time.Since(start)
	log.Debugf("render: bound=%d duplicated=%d imports=%d passes=%d in %s",
		r.stats.ElementsBound, r.stats.NodesDuplicated, r.stats.Imports, r.stats.Passes, r.stats.ProcessingTime)
	return r.stats, nil
}

// pass binds every root key against the whole document
func (r *Renderer) pass(ctx context.Context, stack *data.Stack) error {
	r.stats.Passes++
	st := state{ctx: ctx}

	return stack.Each(func(key string, v data.Value) error {
		sel, mode := data.SplitSelector(key)
		nodes, err := r.sel.Select(sel, nil)
		if err != nil {
			return fmt.Errorf("failed to render %q: %w", key, err)
		}
		for _, el := range nodes {
			if err := r.bind(st, key, el, v, mode); err != nil {
				return fmt.Errorf("failed to render %q: %w", key, err)
			}
		}
		return nil
	})
}

func (r *Renderer) applyIncludes() error {
	if r.includes.Len() == 0 {
		return nil
	}
	return r.includes.Each(func(key string, v data.Value) error {
		nodes, err := r.sel.Select(key, nil)
		if err != nil {
			return fmt.Errorf("failed to include into %q: %w", key, err)
		}
		paths := strings.Fields(data.Flatten(v))
		for _, el := range nodes {
			for _, p := range paths {
				markup, err := r.imp.Include(p)
				if err != nil {
					return fmt.Errorf("failed to include into %q: %w", key, err)
				}
				fragment, err := r.doc.CreateFragment(markup, el)
				if err != nil {
					return fmt.Errorf("failed to include %s: %w", p, err)
				}
				for _, n := range fragment {
					r.doc.AppendChild(el, n)
				}
				r.stats.Includes++
			}
		}
		return nil
	})
}

// bind applies one value to one element
func (r *Renderer) bind(st state, key string, el html.Node, v data.Value, mode data.InsertMode) error {
	for _, fn := range r.modifiers[key] {
		modified, err := fn(el, v)
		if err != nil {
			return fmt.Errorf("value modifier for %s: %w", el.Path(), err)
		}
		v = modified
	}

	r.consume(el)
	r.stats.ElementsBound++

	switch v.Kind() {
	case data.DirectivesKind:
		return r.applyDirectives(st, el, v.Directives())
	case data.StackKind:
		return r.recurse(st, el, v.Stack(), false, nil)
	}
	_, err := r.insert(el, v.Scalar(), mode, nil)
	return err
}

// applyDirectives dispatches in params, attr, import, children, content, self order.
// A no_render removal makes the parent the target of the remaining directives.
func (r *Renderer) applyDirectives(st state, el html.Node, m *data.DirectiveMap) error {
	params := m.Params()
	active := el

	for _, d := range m.Entries() {
		var err error
		switch d.Kind {
		case data.ParamsDirective:
			continue

		case data.AttrDirective:
			_ = d.Value.Stack().Each(func(name string, v data.Value) error {
				setAttr(active, name, data.Flatten(v), d.Mode)
				return nil
			})

		case data.ImportDirective:
			var content string
			content, err = r.imp.Import(st.ctx, d.Value.Scalar(), r.doc, r.sel, active)
			if err == nil {
				r.stats.Imports++
				active, err = r.insert(active, content, d.Mode, params)
			}

		case data.ChildrenDirective, data.ContentDirective, data.SelfDirective:
			if d.Value.IsStack() {
				err = r.recurse(st, active, d.Value.Stack(), d.Kind == data.SelfDirective, params)
			} else {
				active, err = r.insert(active, d.Value.Scalar(), d.Mode, params)
			}
		}
		if err != nil {
			return fmt.Errorf("%s: %w", d.Key, err)
		}
		if active == nil {
			return nil
		}
	}
	return nil
}

// recurse populates a node list under container for stack and binds each entry
// to its slot one level deeper
func (r *Renderer) recurse(st state, container html.Node, stack *data.Stack, self bool, params map[string]string) error {
	if stack.Len() == 0 {
		return nil
	}
	child := state{ctx: st.ctx, depth: st.depth + 1}
	axis := resolver.AxisForDepth(child.depth)

	spec, res, err := r.res.RepeatSpec(axis, container, params)
	if err != nil {
		return err
	}

	keys := stack.Keys()
	positional := stack.Positional() || numeric(keys)
	calls := keys
	if !positional {
		calls = make([]string, len(keys))
		for i, k := range keys {
			calls[i], _ = data.SplitSelector(k)
		}
	}

	log.Debugf("render: depth=%d axis=%s spec=%q (%s) container=%s", child.depth, axis, spec.String(), res.Source, container.Path())

	list, err := r.pop.Populate(nodelist.Request{
		Container:  container,
		Calls:      calls,
		Positional: positional,
		Spec:       spec,
		SelfRepeat: self,
		Format:     r.format,
	})
	if err != nil {
		return err
	}
	r.stats.NodesDuplicated += list.Duplicated()

	return stack.Each(func(key string, v data.Value) error {
		slot := list.Seek()
		mode := data.Replace
		if !positional {
			_, mode = data.SplitSelector(key)
		}
		for _, el := range slot {
			if err := r.bind(child, key, el, v, mode); err != nil {
				return err
			}
		}
		return nil
	})
}

// insert puts text or markup into el and returns the element follow-on directives target
func (r *Renderer) insert(el html.Node, content string, mode data.InsertMode, params map[string]string) (html.Node, error) {
	if strings.TrimSpace(content) == "" {
		return r.empty(el, params)
	}

	var nodes []html.Node
	if markupPattern.MatchString(content) {
		fragment, err := r.doc.CreateFragment(content, el)
		if err != nil {
			return nil, err
		}
		nodes = fragment
	} else {
		nodes = []html.Node{r.doc.CreateText(content)}
	}

	switch mode {
	case data.Prepend:
		ref := el.FirstChild()
		for _, n := range nodes {
			r.doc.InsertBefore(el, n, ref)
		}
	default:
		if mode == data.Replace {
			el.Empty()
		}
		for _, n := range nodes {
			r.doc.AppendChild(el, n)
		}
	}
	return el, nil
}

// empty applies the on_content_empty policy
func (r *Renderer) empty(el html.Node, params map[string]string) (html.Node, error) {
	policy, err := r.res.EmptyPolicy(el, params)
	if err != nil {
		return nil, err
	}

	switch policy {
	case config.Clear:
		el.Empty()
	case config.SetFlag:
		el.SetAttribute(EmptyFlag, "true")
	case config.ClearAndSetFlag:
		el.Empty()
		el.SetAttribute(EmptyFlag, "true")
	case config.NoRender:
		parent := el.Parent()
		r.doc.Remove(el)
		return parent, nil
	}
	return el, nil
}

func (r *Renderer) consume(el html.Node) {
	if r.tracking {
		r.consumed[el.Key()] = struct{}{}
	}
}

func (r *Renderer) isConsumed(n html.Node) bool {
	_, ok := r.consumed[n.Key()]
	return ok
}

// setAttr writes an attribute, joining with a single space for append and prepend
func setAttr(el html.Node, name, value string, mode data.InsertMode) {
	if current, _ := el.Attr(name); current != "" {
		switch mode {
		case data.Append:
			value = current + " " + value
		case data.Prepend:
			value = value + " " + current
		}
	}
	el.SetAttribute(name, value)
}

func numeric(keys []string) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if _, err := strconv.Atoi(k); err != nil {
			return false
		}
	}
	return true
}
