package data

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DirectiveKind names a reserved key in a data value, in dispatch order
type DirectiveKind int

const (
	ParamsDirective DirectiveKind = iota
	AttrDirective
	ImportDirective
	ChildrenDirective
	ContentDirective
	SelfDirective
)

var directiveNames = map[DirectiveKind]string{
	ParamsDirective:   "params",
	AttrDirective:     "attr",
	ImportDirective:   "import",
	ChildrenDirective: "children",
	ContentDirective:  "content",
	SelfDirective:     "self",
}

func (k DirectiveKind) String() string {
	return directiveNames[k]
}

var (
	// ErrInvalidDirectiveKeys reports unrecognized keys in a directive map
	ErrInvalidDirectiveKeys = errors.New("invalid directive keys")

	// ErrConflictingRecursion reports more than one recursing directive on one element
	ErrConflictingRecursion = errors.New("conflicting recursion")

	// ErrInvalidDirectiveValue reports a directive holding the wrong kind of value
	ErrInvalidDirectiveValue = errors.New("invalid directive value")
)

// InvalidDirectiveKeysError lists the offending keys next to the recognized ones
type InvalidDirectiveKeysError struct {
	Unknown []string
	Known   []string
}

func (e *InvalidDirectiveKeysError) Error() string {
	return fmt.Sprintf("invalid directive keys %s (recognized: %s)",
		strings.Join(e.Unknown, ", "), strings.Join(e.Known, ", "))
}

func (e *InvalidDirectiveKeysError) Is(target error) bool {
	return target == ErrInvalidDirectiveKeys
}

// Directive is one dispatched entry of a directive map
type Directive struct {
	Kind  DirectiveKind
	Mode  InsertMode
	Key   string
	Value Value
}

// Recurses reports whether applying the directive walks a nested stack
func (d Directive) Recurses() bool {
	switch d.Kind {
	case ChildrenDirective, ContentDirective, SelfDirective:
		return d.Value.IsStack()
	}
	return false
}

// DirectiveMap holds validated directives sorted into dispatch order
type DirectiveMap struct {
	entries []Directive
}

// IsDirectiveKey reports whether key is reserved for directives
func IsDirectiveKey(key string) bool {
	return strings.HasPrefix(key, "@")
}

// ParseDirectiveKey reads "@kind" with an optional ":before" or ":after" suffix
func ParseDirectiveKey(key string) (DirectiveKind, InsertMode, bool) {
	if !IsDirectiveKey(key) {
		return 0, Replace, false
	}
	name, mode := key[1:], Replace
	if base, suffix, ok := strings.Cut(name, ":"); ok {
		switch suffix {
		case "before":
			mode = Prepend
		case "after":
			mode = Append
		default:
			return 0, Replace, false
		}
		name = base
	}
	for kind, n := range directiveNames {
		if n == name {
			return kind, mode, true
		}
	}
	return 0, Replace, false
}

// KnownDirectiveKeys lists every accepted key
func KnownDirectiveKeys() []string {
	var out []string
	for kind := ParamsDirective; kind <= SelfDirective; kind++ {
		out = append(out, "@"+kind.String(), "@"+kind.String()+":before", "@"+kind.String()+":after")
	}
	return out
}

// NewDirectiveMap validates a stack of "@" keys and sorts it into dispatch order
func NewDirectiveMap(s *Stack) (*DirectiveMap, error) {
	m := &DirectiveMap{}
	var unknown []string
	recursing := 0

	err := s.Each(func(key string, v Value) error {
		kind, mode, ok := ParseDirectiveKey(key)
		if !ok {
			unknown = append(unknown, key)
			return nil
		}

		switch kind {
		case ParamsDirective, AttrDirective:
			if v.Kind() != StackKind || v.Stack().Positional() {
				return fmt.Errorf("%w: %s expects a mapping, got %s", ErrInvalidDirectiveValue, key, v.Kind())
			}
		case ImportDirective:
			if v.Kind() != ScalarKind {
				return fmt.Errorf("%w: %s expects a locator string, got %s", ErrInvalidDirectiveValue, key, v.Kind())
			}
		case ChildrenDirective, ContentDirective, SelfDirective:
			if v.Kind() == DirectivesKind {
				return fmt.Errorf("%w: %s cannot hold directives", ErrInvalidDirectiveValue, key)
			}
		}

		d := Directive{Kind: kind, Mode: mode, Key: key, Value: v}
		if d.Recurses() {
			recursing++
		}
		m.entries = append(m.entries, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(unknown) > 0 {
		return nil, &InvalidDirectiveKeysError{Unknown: unknown, Known: KnownDirectiveKeys()}
	}
	if recursing > 1 {
		return nil, fmt.Errorf("%w: only one of @children, @content or @self may hold a stack", ErrConflictingRecursion)
	}

	sort.SliceStable(m.entries, func(i, j int) bool {
		a, b := m.entries[i], m.entries[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Mode < b.Mode
	})
	return m, nil
}

// Entries returns the directives in dispatch order
func (m *DirectiveMap) Entries() []Directive {
	if m == nil {
		return nil
	}
	out := make([]Directive, len(m.entries))
	copy(out, m.entries)
	return out
}

// Get returns the first directive of kind
func (m *DirectiveMap) Get(kind DirectiveKind) (Directive, bool) {
	for _, d := range m.Entries() {
		if d.Kind == kind {
			return d, true
		}
	}
	return Directive{}, false
}

// Params merges every @params entry; later entries win and lists join with spaces
func (m *DirectiveMap) Params() map[string]string {
	out := map[string]string{}
	for _, d := range m.Entries() {
		if d.Kind != ParamsDirective {
			continue
		}
		_ = d.Value.Stack().Each(func(key string, v Value) error {
			out[key] = Flatten(v)
			return nil
		})
	}
	return out
}

// Attribute is one attribute assignment from an @attr directive
type Attribute struct {
	Name  string
	Value string
	Mode  InsertMode
}

// Attrs lists every attribute assignment in dispatch order
func (m *DirectiveMap) Attrs() []Attribute {
	var out []Attribute
	for _, d := range m.Entries() {
		if d.Kind != AttrDirective {
			continue
		}
		_ = d.Value.Stack().Each(func(name string, v Value) error {
			out = append(out, Attribute{Name: name, Value: Flatten(v), Mode: d.Mode})
			return nil
		})
	}
	return out
}

// Clone returns a deep copy
func (m *DirectiveMap) Clone() *DirectiveMap {
	if m == nil {
		return nil
	}
	out := &DirectiveMap{entries: make([]Directive, len(m.entries))}
	for i, d := range m.entries {
		d.Value = d.Value.Clone()
		out.entries[i] = d
	}
	return out
}

// Flatten renders a value as a single string, joining list items with spaces
func Flatten(v Value) string {
	if v.Kind() != StackKind {
		return v.Scalar()
	}
	var parts []string
	_ = v.Stack().Each(func(_ string, item Value) error {
		if s := Flatten(item); s != "" {
			parts = append(parts, s)
		}
		return nil
	})
	return strings.Join(parts, " ")
}

// FromStack classifies a decoded mapping: any "@" key makes it a directive map
func FromStack(s *Stack) (Value, error) {
	for _, key := range s.Keys() {
		if IsDirectiveKey(key) {
			m, err := NewDirectiveMap(s)
			if err != nil {
				return Value{}, err
			}
			return WithDirectives(m), nil
		}
	}
	return Nested(s), nil
}
