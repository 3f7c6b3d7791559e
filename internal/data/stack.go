package data

import (
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Stack is an insertion-ordered mapping from selector to Value.
// A positional stack comes from a list and its keys are the item indexes.
type Stack struct {
	entries    *orderedmap.OrderedMap[string, Value]
	positional bool
}

// NewStack creates an empty selector-keyed stack
func NewStack() *Stack {
	return &Stack{entries: orderedmap.New[string, Value]()}
}

// NewList creates a positional stack holding values in order
func NewList(values ...Value) *Stack {
	s := &Stack{entries: orderedmap.New[string, Value](), positional: true}
	for _, v := range values {
		s.Append(v)
	}
	return s
}

// Positional reports whether the stack was built from a list
func (s *Stack) Positional() bool {
	return s.positional
}

// Set stores v under key, keeping the key's original position when it exists
func (s *Stack) Set(key string, v Value) *Stack {
	s.entries.Set(key, v)
	return s
}

// Append adds v under the next list index
func (s *Stack) Append(v Value) *Stack {
	s.entries.Set(strconv.Itoa(s.entries.Len()), v)
	return s
}

// Get returns the value stored under key
func (s *Stack) Get(key string) (Value, bool) {
	return s.entries.Get(key)
}

// Delete removes key
func (s *Stack) Delete(key string) {
	s.entries.Delete(key)
}

// Len returns the number of entries
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return s.entries.Len()
}

// Keys returns the keys in insertion order
func (s *Stack) Keys() []string {
	keys := make([]string, 0, s.Len())
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Each visits entries in insertion order, stopping at the first error
func (s *Stack) Each(fn func(key string, v Value) error) error {
	if s == nil {
		return nil
	}
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		if err := fn(pair.Key, pair.Value); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy
func (s *Stack) Clone() *Stack {
	if s == nil {
		return nil
	}
	out := &Stack{entries: orderedmap.New[string, Value](), positional: s.positional}
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		out.entries.Set(pair.Key, pair.Value.Clone())
	}
	return out
}

// Assign stores v under key the way repeated data assignment builds up a stack.
//
//   - replace, recurse: nested stacks are replaced key by key, anything else is overwritten
//   - replace only: the entry is overwritten
//   - recurse only: nested stacks are merged, colliding scalars become a list
//   - neither: positional stacks append, selector keys are overwritten
func (s *Stack) Assign(key string, v Value, replace, recurse bool) *Stack {
	existing, ok := s.Get(key)
	if !ok {
		if s.positional && !replace {
			return s.Append(v)
		}
		return s.Set(key, v)
	}

	switch {
	case replace && recurse:
		if existing.IsStack() && v.IsStack() {
			merged := existing.Stack().Clone()
			_ = v.Stack().Each(func(k string, item Value) error {
				merged.Assign(k, item, true, true)
				return nil
			})
			return s.Set(key, Nested(merged))
		}
		return s.Set(key, v)

	case replace:
		return s.Set(key, v)

	case recurse:
		return s.Set(key, mergeRecursive(existing, v))

	default:
		if s.positional {
			return s.Append(v)
		}
		return s.Set(key, v)
	}
}

func mergeRecursive(existing, v Value) Value {
	if existing.IsStack() && v.IsStack() {
		merged := existing.Stack().Clone()
		_ = v.Stack().Each(func(k string, item Value) error {
			if merged.Positional() {
				merged.Append(item)
				return nil
			}
			if prev, ok := merged.Get(k); ok {
				merged.Set(k, mergeRecursive(prev, item))
			} else {
				merged.Set(k, item)
			}
			return nil
		})
		return Nested(merged)
	}

	list := NewList()
	for _, part := range []Value{existing, v} {
		if part.IsStack() && part.Stack().Positional() {
			_ = part.Stack().Each(func(_ string, item Value) error {
				list.Append(item)
				return nil
			})
			continue
		}
		list.Append(part)
	}
	return Nested(list)
}
