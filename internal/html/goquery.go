package html

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// GoQueryDocument wraps goquery.Document to implement our Document interface
type GoQueryDocument struct {
	doc  *goquery.Document
	keys map[*html.Node]uint64
	next uint64
}

// GoQueryNode wraps a single x/net/html node together with its owning document
// Export this type so it can be used in type assertions if needed
type GoQueryNode struct {
	node *html.Node
	doc  *GoQueryDocument
}

// GoQueryParser implements our Parser interface using goquery
type GoQueryParser struct {
	fs billy.Filesystem
}

// NewParser creates a new GoQuery-based HTML parser reading files from fs
func NewParser(fs billy.Filesystem) *GoQueryParser {
	return &GoQueryParser{fs: fs}
}

// Parse parses HTML string into a Document
func (p *GoQueryParser) Parse(markup string) (Document, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, ErrEmptyTemplate
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := newDocument(doc)
	d.Normalize()
	return d, nil
}

// ParseFile parses HTML file into a Document
func (p *GoQueryParser) ParseFile(filename string) (Document, error) {
	if p.fs == nil {
		return nil, fmt.Errorf("failed to read file %s: no filesystem configured", filename)
	}

	content, err := util.ReadFile(p.fs, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	doc, err := p.Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML file %s: %w", filename, err)
	}

	return doc, nil
}

func newDocument(doc *goquery.Document) *GoQueryDocument {
	return &GoQueryDocument{doc: doc, keys: make(map[*html.Node]uint64)}
}

// NewDocumentFromNode wraps an already parsed tree
func NewDocumentFromNode(root *html.Node) *GoQueryDocument {
	return newDocument(goquery.NewDocumentFromNode(root))
}

func (d *GoQueryDocument) wrap(n *html.Node) Node {
	if n == nil {
		return nil
	}
	return &GoQueryNode{node: n, doc: d}
}

func (d *GoQueryDocument) wrapAll(nodes []*html.Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.wrap(n))
	}
	return out
}

func (d *GoQueryDocument) key(n *html.Node) uint64 {
	if k, ok := d.keys[n]; ok {
		return k
	}
	d.next++
	d.keys[n] = d.next
	return d.next
}

// Document implementation

// Root returns the document node, the context for absolute queries
func (d *GoQueryDocument) Root() Node {
	return d.wrap(d.doc.Get(0))
}

// Body returns the body element
func (d *GoQueryDocument) Body() Node {
	selection := d.doc.Find("body").First()
	if selection.Length() == 0 {
		return nil
	}
	return d.wrap(selection.Get(0))
}

// ElementByID returns the first element carrying the given id
func (d *GoQueryDocument) ElementByID(id string) Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val == id {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.doc.Get(0))
	return d.wrap(found)
}

// Query evaluates an XPath expression relative to context
func (d *GoQueryDocument) Query(expr string, context Node) (nodes []Node, err error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}

	top := d.doc.Get(0)
	if context != nil {
		top = rawNode(context)
	}

	// Evaluation of some malformed but compilable expressions panics inside xpath
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
			err = fmt.Errorf("failed to evaluate xpath %q: %v", expr, r)
		}
	}()

	return d.wrapAll(htmlquery.QuerySelectorAll(top, compiled)), nil
}

// CreateText creates a detached text node
func (d *GoQueryDocument) CreateText(text string) Node {
	return d.wrap(&html.Node{Type: html.TextNode, Data: text})
}

// CreateFragment parses markup in the context of an element and returns the detached nodes
func (d *GoQueryDocument) CreateFragment(markup string, context Node) ([]Node, error) {
	ctx := rawNode(context)
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML fragment: %w", err)
	}

	return d.wrapAll(nodes), nil
}

// Clone returns a detached deep copy of node
func (d *GoQueryDocument) Clone(node Node) Node {
	return d.wrap(cloneNode(rawNode(node)))
}

// InsertBefore inserts child into parent before ref, appending when ref is nil
func (d *GoQueryDocument) InsertBefore(parent, child, ref Node) {
	c := rawNode(child)
	if c.Parent != nil {
		c.Parent.RemoveChild(c)
	}
	rawNode(parent).InsertBefore(c, rawNode(ref))
}

// AppendChild appends child to parent
func (d *GoQueryDocument) AppendChild(parent, child Node) {
	d.InsertBefore(parent, child, nil)
}

// Remove detaches node from its parent
func (d *GoQueryDocument) Remove(node Node) {
	n := rawNode(node)
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Serialize returns the outer HTML of node, or the whole document when node is nil
func (d *GoQueryDocument) Serialize(node Node) (string, error) {
	if node == nil {
		return d.HTML()
	}

	out, err := goquery.OuterHtml(selectionOf(rawNode(node)))
	if err != nil {
		return "", fmt.Errorf("failed to serialize node %s: %w", node.Path(), err)
	}
	return out, nil
}

// HTML returns the complete HTML document as string
func (d *GoQueryDocument) HTML() (string, error) {
	html, err := d.doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return html, nil
}

// Normalize merges adjacent text nodes and drops empty ones
func (d *GoQueryDocument) Normalize() {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.TextNode {
				for next != nil && next.Type == html.TextNode {
					c.Data += next.Data
					after := next.NextSibling
					n.RemoveChild(next)
					next = after
				}
				if c.Data == "" {
					n.RemoveChild(c)
				}
			} else {
				walk(c)
			}
			c = next
		}
	}
	walk(d.doc.Get(0))
}

// Node implementation

// Kind classifies the node
func (n *GoQueryNode) Kind() NodeKind {
	switch n.node.Type {
	case html.ElementNode:
		return ElementNode
	case html.TextNode:
		return TextNode
	case html.CommentNode:
		return CommentNode
	case html.DocumentNode:
		return DocumentNode
	default:
		return OtherNode
	}
}

// TagName returns the element's tag name
func (n *GoQueryNode) TagName() string {
	if n.node.Type != html.ElementNode {
		return ""
	}
	return n.node.Data
}

// ID returns the element's ID attribute
func (n *GoQueryNode) ID() string {
	id, _ := n.Attr("id")
	return id
}

// Key returns an identity stable for the lifetime of the document
func (n *GoQueryNode) Key() uint64 {
	return n.doc.key(n.node)
}

// Attr returns a single attribute value
func (n *GoQueryNode) Attr(name string) (string, bool) {
	return selectionOf(n.node).Attr(name)
}

// Attributes returns all attributes as a map
func (n *GoQueryNode) Attributes() map[string]string {
	attrs := make(map[string]string, len(n.node.Attr))
	for _, attr := range n.node.Attr {
		attrs[attr.Key] = attr.Val
	}
	return attrs
}

// SetAttribute sets an attribute on the element
func (n *GoQueryNode) SetAttribute(name, value string) {
	selectionOf(n.node).SetAttr(name, value)
}

// RemoveAttribute removes an attribute from the element
func (n *GoQueryNode) RemoveAttribute(name string) {
	selectionOf(n.node).RemoveAttr(name)
}

// Text returns the text content
func (n *GoQueryNode) Text() string {
	if n.node.Type == html.TextNode || n.node.Type == html.CommentNode {
		return n.node.Data
	}
	return selectionOf(n.node).Text()
}

// InnerHTML returns the inner HTML content
func (n *GoQueryNode) InnerHTML() string {
	html, _ := selectionOf(n.node).Html()
	return html
}

// OuterHTML returns the outer HTML content
func (n *GoQueryNode) OuterHTML() string {
	var buf strings.Builder
	if err := html.Render(&buf, n.node); err != nil {
		return ""
	}
	return buf.String()
}

// Path returns an XPath-like location of the node, e.g. /html/body/ul/li[2]
func (n *GoQueryNode) Path() string {
	var parts []string
	for cur := n.node; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		switch cur.Type {
		case html.ElementNode:
			parts = append(parts, cur.Data+positionSuffix(cur))
		case html.TextNode:
			parts = append(parts, "text()")
		case html.CommentNode:
			parts = append(parts, "comment()")
		}
	}
	if len(parts) == 0 {
		return "/"
	}

	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(parts[i])
	}
	return b.String()
}

func positionSuffix(n *html.Node) string {
	if n.Parent == nil {
		return ""
	}
	pos, total := 0, 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == n.Data {
			total++
			if c == n {
				pos = total
			}
		}
	}
	if total < 2 {
		return ""
	}
	return "[" + strconv.Itoa(pos) + "]"
}

// Parent returns the parent node
func (n *GoQueryNode) Parent() Node {
	return n.doc.wrap(n.node.Parent)
}

// FirstChild returns the first child node of any kind
func (n *GoQueryNode) FirstChild() Node {
	return n.doc.wrap(n.node.FirstChild)
}

// LastChild returns the last child node of any kind
func (n *GoQueryNode) LastChild() Node {
	return n.doc.wrap(n.node.LastChild)
}

// PrevSibling returns the previous sibling node of any kind
func (n *GoQueryNode) PrevSibling() Node {
	return n.doc.wrap(n.node.PrevSibling)
}

// NextSibling returns the next sibling node of any kind
func (n *GoQueryNode) NextSibling() Node {
	return n.doc.wrap(n.node.NextSibling)
}

// ChildNodes returns all child nodes including text and comments
func (n *GoQueryNode) ChildNodes() []Node {
	var nodes []Node
	for c := n.node.FirstChild; c != nil; c = c.NextSibling {
		nodes = append(nodes, n.doc.wrap(c))
	}
	return nodes
}

// Children returns all child elements
func (n *GoQueryNode) Children() []Node {
	return n.doc.wrapAll(selectionOf(n.node).Children().Nodes)
}

// Empty removes every child node
func (n *GoQueryNode) Empty() {
	selectionOf(n.node).Empty()
}

// SetText replaces the children with a single text node
func (n *GoQueryNode) SetText(content string) {
	selectionOf(n.node).SetText(content)
}

// Helper functions

func rawNode(n Node) *html.Node {
	if n == nil {
		return nil
	}
	if g, ok := n.(*GoQueryNode); ok {
		return g.node
	}
	panic(fmt.Sprintf("html: foreign node type %T", n))
}

func selectionOf(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

func cloneNode(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	m := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      make([]html.Attribute, len(n.Attr)),
	}
	copy(m.Attr, n.Attr)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		m.AppendChild(cloneNode(c))
	}
	return m
}
