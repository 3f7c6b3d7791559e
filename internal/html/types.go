package html

import "errors"

// ErrEmptyTemplate is returned when a document is requested from empty markup
var ErrEmptyTemplate = errors.New("no HTML data provided")

// NodeKind classifies a node in the document tree
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
	CommentNode
	DocumentNode
	OtherNode
)

// Node represents a single node in the document tree
// This interface can be implemented by any HTML tree backend
type Node interface {
	// Core node information
	Kind() NodeKind
	TagName() string
	ID() string
	Key() uint64

	// Attributes
	Attr(name string) (string, bool)
	Attributes() map[string]string
	SetAttribute(name, value string)
	RemoveAttribute(name string)

	// Content access
	Text() string
	InnerHTML() string
	OuterHTML() string
	Path() string

	// Tree navigation
	Parent() Node
	FirstChild() Node
	LastChild() Node
	PrevSibling() Node
	NextSibling() Node
	ChildNodes() []Node
	Children() []Node

	// Modification
	Empty()
	SetText(content string)
}

// Document represents the complete HTML document and owns every structural mutation
type Document interface {
	// Root access
	Root() Node
	Body() Node
	ElementByID(id string) Node

	// Query evaluates an XPath expression from the context node, the document root when nil
	Query(expr string, context Node) ([]Node, error)

	// Node construction
	CreateText(text string) Node
	CreateFragment(markup string, context Node) ([]Node, error)
	Clone(node Node) Node

	// Structure mutation
	InsertBefore(parent, child, ref Node)
	AppendChild(parent, child Node)
	Remove(node Node)

	// Serialization
	Serialize(node Node) (string, error)
	HTML() (string, error)
	Normalize()
}

// Parser handles parsing HTML documents
type Parser interface {
	Parse(markup string) (Document, error)
	ParseFile(filename string) (Document, error)
}

// IsWhitespace reports whether a node is a text node holding only whitespace
func IsWhitespace(n Node) bool {
	if n == nil || n.Kind() != TextNode {
		return false
	}
	for _, r := range n.Text() {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
		default:
			return false
		}
	}
	return n.Text() != ""
}
