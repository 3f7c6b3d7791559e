package selector

import (
	"regexp"
	"strconv"
	"strings"

	"codeless/internal/html"
)

// Querier executes compiled queries; html.Document satisfies it
type Querier interface {
	Query(expr string, context html.Node) ([]html.Node, error)
}

// Compiler translates selectors into XPath and evaluates them against a document
type Compiler struct {
	doc     Querier
	dialect Dialect
	exclude func(html.Node) bool

	// Normalization and unit parsing
	spaceRegex *regexp.Regexp
	tagRegex   *regexp.Regexp
	nameRegex  *regexp.Regexp
	attrRegex  *regexp.Regexp
}

// NewCompiler creates a compiler bound to doc using the given default dialect
func NewCompiler(doc Querier, dialect Dialect) *Compiler {
	if dialect == "" {
		dialect = CSS
	}
	return &Compiler{
		doc:     doc,
		dialect: dialect,

		spaceRegex: regexp.MustCompile(`\s+`),
		tagRegex:   regexp.MustCompile(`^(\*|[a-z][a-z0-9_-]*)`),
		nameRegex:  regexp.MustCompile(`^[\w-]+`),
		// [name], [name=value], [name^=value], ... value optionally quoted
		attrRegex: regexp.MustCompile(`^\[\s*([\w:-]+)\s*(?:([\^$*|~]?=)\s*(?:"([^"]*)"|'([^']*)'|([^\]\s]*))\s*)?\]`),
	}
}

// SetExclusion installs the predicate removing already consumed nodes from every result set
func (c *Compiler) SetExclusion(fn func(html.Node) bool) {
	c.exclude = fn
}

// Dialect returns the default dialect
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Compile interprets a selector, honoring css(...), xpath(...), css: and xpath: overrides
func (c *Compiler) Compile(selector string) (Query, error) {
	raw := strings.TrimSpace(selector)
	dialect, body := splitDialect(raw, c.dialect)

	if dialect == XPath {
		if body == "" {
			return Query{}, &MalformedSelectorError{Selector: selector, Reason: "empty query"}
		}
		return Query{Source: selector, Dialect: XPath, Expr: body}, nil
	}

	expr, err := c.translate(selector, body)
	if err != nil {
		return Query{}, err
	}
	return Query{Source: selector, Dialect: CSS, Expr: expr}, nil
}

// Translate returns the XPath query string for a CSS dialect selector
func (c *Compiler) Translate(selector string) (string, error) {
	_, body := splitDialect(strings.TrimSpace(selector), CSS)
	return c.translate(selector, body)
}

// Select compiles selector and evaluates it from context, the document root when nil.
// Excluded nodes never appear in the result.
func (c *Compiler) Select(selector string, context html.Node) ([]html.Node, error) {
	q, err := c.Compile(selector)
	if err != nil {
		return nil, err
	}
	return c.Execute(q, context)
}

// Execute evaluates a compiled query from context
func (c *Compiler) Execute(q Query, context html.Node) ([]html.Node, error) {
	expr := q.Expr
	if strings.HasPrefix(expr, "/") {
		expr = "." + expr
	}

	nodes, err := c.doc.Query(expr, context)
	if err != nil {
		return nil, &MalformedSelectorError{Selector: q.Source, Query: expr, Err: err}
	}

	if c.exclude == nil {
		return nodes, nil
	}

	kept := nodes[:0]
	for _, n := range nodes {
		if !c.exclude(n) {
			kept = append(kept, n)
		}
	}
	return kept, nil
}

// splitDialect strips an explicit dialect wrapper or prefix from a selector
func splitDialect(s string, fallback Dialect) (Dialect, string) {
	lower := strings.ToLower(s)
	for _, d := range []Dialect{CSS, XPath} {
		name := string(d)
		if strings.HasPrefix(lower, name+"(") && strings.HasSuffix(s, ")") {
			return d, strings.TrimSpace(s[len(name)+1 : len(s)-1])
		}
		if strings.HasPrefix(lower, name+":") {
			return d, strings.TrimSpace(s[len(name)+1:])
		}
	}
	return fallback, s
}

// normalize lowercases, trims, collapses whitespace and turns :: into :
func (c *Compiler) normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = c.spaceRegex.ReplaceAllString(s, " ")
	return strings.ReplaceAll(s, "::", ":")
}

func (c *Compiler) translate(source, body string) (string, error) {
	norm := c.normalize(body)
	if norm == "" {
		return "", &MalformedSelectorError{Selector: source, Reason: "empty selector"}
	}

	tokens, err := tokenize(norm)
	if err != nil {
		return "", &MalformedSelectorError{Selector: source, Reason: err.Error()}
	}

	var build strings.Builder
	join := Descendant
	pendingCombinator := false

	for _, token := range tokens {
		if comb, ok := combinatorFor(token); ok {
			if pendingCombinator {
				return "", &MalformedSelectorError{Selector: source, Reason: "consecutive combinators"}
			}
			join = comb
			pendingCombinator = true
			continue
		}

		unit, err := c.compileUnit(source, token)
		if err != nil {
			return "", err
		}

		build.WriteString(join.Join())
		build.WriteString(unit)
		join = Descendant
		pendingCombinator = false
	}

	if pendingCombinator {
		return "", &MalformedSelectorError{Selector: source, Reason: "dangling combinator"}
	}
	if build.Len() == 0 {
		return "", &MalformedSelectorError{Selector: source, Reason: "no selector units"}
	}

	return build.String(), nil
}

// compileUnit turns one compound selector (tag, predicates, pseudo-classes) into an XPath step
func (c *Compiler) compileUnit(source, token string) (string, error) {
	base, pseudos, err := splitPseudos(token)
	if err != nil {
		return "", &MalformedSelectorError{Selector: source, Reason: err.Error()}
	}

	step, err := c.rewrite(source, base)
	if err != nil {
		return "", err
	}

	for _, p := range pseudos {
		pred, err := c.pseudoPredicate(source, p)
		if err != nil {
			return "", err
		}
		step += pred
	}
	return step, nil
}

// rewrite translates tag, #id, .class and [attribute] parts of a unit
func (c *Compiler) rewrite(source, unit string) (string, error) {
	var b strings.Builder

	rest := unit
	if tag := c.tagRegex.FindString(rest); tag != "" {
		b.WriteString(tag)
		rest = rest[len(tag):]
	} else {
		b.WriteString("*")
	}

	for rest != "" {
		switch rest[0] {
		case '#':
			name := c.nameRegex.FindString(rest[1:])
			if name == "" {
				return "", &MalformedSelectorError{Selector: source, Reason: "empty id in " + unit}
			}
			b.WriteString(`[@id=` + literal(name) + `]`)
			rest = rest[1+len(name):]

		case '.':
			name := c.nameRegex.FindString(rest[1:])
			if name == "" {
				return "", &MalformedSelectorError{Selector: source, Reason: "empty class in " + unit}
			}
			b.WriteString(`[contains(concat(" ",@class," ")," ` + name + ` ")]`)
			rest = rest[1+len(name):]

		case '[':
			m := c.attrRegex.FindStringSubmatch(rest)
			if m == nil {
				return "", &MalformedSelectorError{Selector: source, Reason: "bad attribute predicate in " + unit}
			}
			b.WriteString(attributePredicate(m[1], m[2], m[3]+m[4]+m[5]))
			rest = rest[len(m[0]):]

		default:
			return "", &MalformedSelectorError{Selector: source, Reason: "unexpected " + strconv.Quote(rest[:1]) + " in " + unit}
		}
	}

	return b.String(), nil
}

// attributePredicate rewrites an attribute selector by operator
func attributePredicate(name, op, value string) string {
	switch op {
	case "":
		return "[@" + name + "]"
	case "^=":
		return `[contains(concat(" ",@` + name + `),` + literal(" "+value) + `)]`
	case "$=":
		return `[contains(concat(@` + name + `," "),` + literal(value+" ") + `)]`
	case "*=":
		return `[contains(@` + name + `,` + literal(value) + `)]`
	case "|=":
		return `[contains(concat("-",@` + name + `,"-"),` + literal("-"+value+"-") + `)]`
	case "~=":
		return `[contains(concat(" ",@` + name + `," "),` + literal(" "+value+" ") + `)]`
	default:
		return "[@" + name + "=" + literal(value) + "]"
	}
}

// pseudoPredicate translates one pseudo-class into a positional or negation predicate
func (c *Compiler) pseudoPredicate(source string, p pseudo) (string, error) {
	switch p.name {
	case "first-of-type":
		return "[1]", nil
	case "last-of-type":
		return "[last()]", nil
	case "nth-of-type":
		n, err := strconv.Atoi(strings.TrimSpace(p.arg))
		if err != nil || n < 1 {
			return "", &MalformedSelectorError{Selector: source, Reason: "nth-of-type needs a positive integer, got " + strconv.Quote(p.arg)}
		}
		return "[" + strconv.Itoa(n) + "]", nil
	case "not":
		return c.negation(source, p.arg)
	case "before", "after":
		// insertion markers, consumed by the renderer
		return "", nil
	}
	return "", &UnsupportedPseudoError{Selector: source, Pseudo: p.name}
}

// negation compiles :not(sub). A single unit is tested on the node itself; a compound
// selector is tested by node-set membership.
func (c *Compiler) negation(source, sub string) (string, error) {
	if strings.TrimSpace(sub) == "" {
		return "", &MalformedSelectorError{Selector: source, Reason: "empty :not()"}
	}

	tokens, err := tokenize(c.normalize(sub))
	if err != nil {
		return "", &MalformedSelectorError{Selector: source, Reason: err.Error()}
	}

	if len(tokens) == 1 {
		unit, err := c.compileUnit(source, tokens[0])
		if err != nil {
			return "", err
		}
		return "[not(self::" + unit + ")]", nil
	}

	q, err := c.translate(source, sub)
	if err != nil {
		return "", err
	}
	return "[not(count(.|" + q + ")=count(" + q + "))]", nil
}

// literal quotes s as an XPath string literal
func literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(parts, `,'"',`) + ")"
}
