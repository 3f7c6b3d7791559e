// Package data holds the selector-keyed data stack bound onto a document.
package data

import "strings"

// Kind tags the variant held by a Value
type Kind int

const (
	ScalarKind Kind = iota
	DirectivesKind
	StackKind
)

func (k Kind) String() string {
	switch k {
	case DirectivesKind:
		return "directives"
	case StackKind:
		return "stack"
	default:
		return "scalar"
	}
}

// Value is one of: a scalar (text or markup), a directive map, or a nested stack
type Value struct {
	kind       Kind
	text       string
	directives *DirectiveMap
	stack      *Stack
}

// Text wraps text or markup
func Text(s string) Value {
	return Value{kind: ScalarKind, text: s}
}

// Nested wraps a nested stack, rendered as an implicit children recursion
func Nested(s *Stack) Value {
	if s == nil {
		s = NewStack()
	}
	return Value{kind: StackKind, stack: s}
}

// List wraps values as a positional stack
func List(values ...Value) Value {
	return Nested(NewList(values...))
}

// WithDirectives wraps a directive map
func WithDirectives(d *DirectiveMap) Value {
	return Value{kind: DirectivesKind, directives: d}
}

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// Scalar returns the text of a scalar value
func (v Value) Scalar() string { return v.text }

// Stack returns the nested stack, nil for other variants
func (v Value) Stack() *Stack { return v.stack }

// Directives returns the directive map, nil for other variants
func (v Value) Directives() *DirectiveMap { return v.directives }

// IsStack reports whether v recurses when bound
func (v Value) IsStack() bool { return v.kind == StackKind }

// IsBlank reports a scalar with no visible content
func (v Value) IsBlank() bool {
	return v.kind == ScalarKind && strings.TrimSpace(v.text) == ""
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	switch v.kind {
	case StackKind:
		return Nested(v.stack.Clone())
	case DirectivesKind:
		return WithDirectives(v.directives.Clone())
	}
	return v
}

// InsertMode selects how content or attribute values combine with what is present
type InsertMode int

const (
	Replace InsertMode = iota
	Append
	Prepend
)

func (m InsertMode) String() string {
	switch m {
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	default:
		return "replace"
	}
}

// SplitSelector strips a trailing ::before or ::after from a data key and returns the mode it selects
func SplitSelector(key string) (string, InsertMode) {
	trimmed := strings.TrimSpace(key)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasSuffix(lower, "::before"):
		return strings.TrimSpace(trimmed[:len(trimmed)-len("::before")]), Prepend
	case strings.HasSuffix(lower, "::after"):
		return strings.TrimSpace(trimmed[:len(trimmed)-len("::after")]), Append
	}
	return trimmed, Replace
}
