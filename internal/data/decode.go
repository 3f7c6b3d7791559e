package data

import (
	"fmt"
	"reflect"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Decode reads a YAML or JSON document into a data stack, keeping key order
func Decode(raw []byte) (*Stack, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to decode data stack: %w", err)
	}
	if root.Kind == 0 {
		return NewStack(), nil
	}

	node := &root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return NewStack(), nil
		}
		node = node.Content[0]
	}
	node = resolveAlias(node)

	switch node.Kind {
	case yaml.MappingNode:
		return decodeMapping(node)
	case yaml.SequenceNode:
		return decodeSequence(node)
	}
	return nil, fmt.Errorf("data stack must be a mapping or list, got %s at line %d", nodeKind(node), node.Line)
}

func decodeValue(node *yaml.Node) (Value, error) {
	node = resolveAlias(node)

	switch node.Kind {
	case yaml.MappingNode:
		s, err := decodeMapping(node)
		if err != nil {
			return Value{}, err
		}
		v, err := FromStack(s)
		if err != nil {
			return Value{}, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil

	case yaml.SequenceNode:
		s, err := decodeSequence(node)
		if err != nil {
			return Value{}, err
		}
		return Nested(s), nil

	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return Text(""), nil
		}
		return Text(node.Value), nil
	}
	return Value{}, fmt.Errorf("unsupported %s at line %d", nodeKind(node), node.Line)
}

func decodeMapping(node *yaml.Node) (*Stack, error) {
	s := NewStack()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := resolveAlias(node.Content[i])
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("non-scalar key at line %d", key.Line)
		}
		v, err := decodeValue(node.Content[i+1])
		if err != nil {
			return nil, err
		}
		s.Set(key.Value, v)
	}
	return s, nil
}

func decodeSequence(node *yaml.Node) (*Stack, error) {
	s := NewList()
	for _, item := range node.Content {
		v, err := decodeValue(item)
		if err != nil {
			return nil, err
		}
		s.Append(v)
	}
	return s, nil
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "node"
}

// FromAny converts Go data into a Value. Plain Go maps are walked in sorted key
// order; use an ordered map to control binding order.
func FromAny(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Text(""), nil
	case Value:
		return v, nil
	case *Stack:
		return FromStack(v)
	case string:
		return Text(v), nil
	case fmt.Stringer:
		return Text(v.String()), nil
	case *orderedmap.OrderedMap[string, any]:
		s := NewStack()
		for pair := v.Oldest(); pair != nil; pair = pair.Next() {
			item, err := FromAny(pair.Value)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", pair.Key, err)
			}
			s.Set(pair.Key, item)
		}
		return FromStack(s)
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)

		s := NewStack()
		for _, k := range keys {
			item, err := FromAny(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			s.Set(k, item)
		}
		return FromStack(s)

	case reflect.Slice, reflect.Array:
		s := NewList()
		for i := 0; i < rv.Len(); i++ {
			item, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			s.Append(item)
		}
		return Nested(s), nil

	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Text(fmt.Sprint(in)), nil
	}
	return Value{}, fmt.Errorf("unsupported data type %T", in)
}

// StackFromAny converts a Go mapping or list into a top-level data stack
func StackFromAny(in any) (*Stack, error) {
	if s, ok := in.(*Stack); ok {
		return s, nil
	}
	v, err := FromAny(in)
	if err != nil {
		return nil, err
	}
	if v.Kind() != StackKind {
		return nil, fmt.Errorf("data stack must be a mapping or list, got %s", v.Kind())
	}
	return v.Stack(), nil
}
