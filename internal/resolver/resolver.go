// Package resolver computes per-element render properties from element
// attributes, @params entries and configured defaults.
package resolver

import (
	"fmt"
	"strings"

	"codeless/internal/config"
	"codeless/internal/html"
	"codeless/internal/repeat"
)

// AttrPrefix marks element attributes that override render properties
const AttrPrefix = "data-codelessui-"

// Property keys understood by the renderer
const (
	RepeatX        = "repeat_fn_x"
	RepeatY        = "repeat_fn_y"
	OnContentEmpty = "on_content_empty"
)

// Axis selects which repeat spec applies at a recursion depth
type Axis string

const (
	X Axis = "x"
	Y Axis = "y"
)

// AxisForDepth alternates axes by depth: even depths repeat on x, odd on y
func AxisForDepth(depth int) Axis {
	if depth%2 == 0 {
		return X
	}
	return Y
}

// Key returns the property key holding the axis's repeat spec
func (a Axis) Key() string {
	if a == Y {
		return RepeatY
	}
	return RepeatX
}

// Source tells where a resolved value came from
type Source int

const (
	FromDefault Source = iota
	FromParams
	FromElement
)

func (s Source) String() string {
	switch s {
	case FromParams:
		return "params"
	case FromElement:
		return "element"
	default:
		return "default"
	}
}

// Resolution is a resolved property value with its origin
type Resolution struct {
	Key    string
	Value  string
	Source Source
}

// Resolve picks the value for key with precedence element attribute > params > defaults.
// Blank values count as absent.
func Resolve(key string, element html.Node, params, defaults map[string]string) Resolution {
	if element != nil {
		if v, ok := element.Attr(AttrPrefix + key); ok && strings.TrimSpace(v) != "" {
			return Resolution{Key: key, Value: v, Source: FromElement}
		}
	}
	if v, ok := params[key]; ok && strings.TrimSpace(v) != "" {
		return Resolution{Key: key, Value: v, Source: FromParams}
	}
	return Resolution{Key: key, Value: defaults[key], Source: FromDefault}
}

// Resolver carries the ambient defaults
type Resolver struct {
	defaults map[string]string
}

// New creates a resolver seeded from cfg
func New(cfg config.Config) *Resolver {
	return &Resolver{defaults: map[string]string{
		RepeatX:        cfg.RepeatX,
		RepeatY:        cfg.RepeatY,
		OnContentEmpty: cfg.OnContentEmpty,
	}}
}

// SetDefault overrides one ambient default
func (r *Resolver) SetDefault(key, value string) {
	r.defaults[key] = value
}

// Default returns the ambient default for key
func (r *Resolver) Default(key string) string {
	return r.defaults[key]
}

// RepeatSpec resolves and parses the repeat spec for axis on element
func (r *Resolver) RepeatSpec(axis Axis, element html.Node, params map[string]string) (repeat.Spec, Resolution, error) {
	res := Resolve(axis.Key(), element, params, r.defaults)
	spec, err := repeat.Parse(res.Value)
	if err != nil {
		return repeat.Spec{}, res, fmt.Errorf("%s from %s%s: %w", res.Key, res.Source, located(element), err)
	}
	return spec, res, nil
}

// EmptyPolicy resolves the empty-content policy for element
func (r *Resolver) EmptyPolicy(element html.Node, params map[string]string) (config.EmptyPolicy, error) {
	res := Resolve(OnContentEmpty, element, params, r.defaults)
	policy, err := config.ParseEmptyPolicy(res.Value)
	if err != nil {
		return "", fmt.Errorf("%s from %s%s: %w", res.Key, res.Source, located(element), err)
	}
	return policy, nil
}

func located(element html.Node) string {
	if element == nil {
		return ""
	}
	return " at " + element.Path()
}
