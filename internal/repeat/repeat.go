// Package repeat parses the flag sets that drive node list completion.
package repeat

import (
	"errors"
	"fmt"
	"strings"
)

// Flag is a single repeat algorithm switch
type Flag uint8

const (
	Simple Flag = 1 << iota
	Mirror
	Once
	InnerPadded
	InnerPaddedLeft
	Justify
	Shuffle
)

var names = []struct {
	flag Flag
	name string
}{
	{Simple, "simple"},
	{Mirror, "mirror"},
	{Once, "once"},
	{InnerPadded, "inner_padded"},
	{InnerPaddedLeft, "#inner_padded"},
	{Justify, "justify"},
	{Shuffle, "shuffle"},
}

// ErrInvalidRepeatSpec reports unknown or conflicting repeat flags
var ErrInvalidRepeatSpec = errors.New("invalid repeat spec")

// Spec is an immutable set of repeat flags
type Spec struct {
	flags Flag
}

// Of builds a spec from flags without validation
func Of(flags ...Flag) Spec {
	var s Spec
	for _, f := range flags {
		s.flags |= f
	}
	return s
}

// Parse reads a spec from names separated by spaces, commas or pipes
func Parse(s string) (Spec, error) {
	return ParseNames(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '|' || r == '\t'
	}))
}

// ParseNames reads a spec from a list of flag names
func ParseNames(list []string) (Spec, error) {
	var s Spec
	for _, raw := range list {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		flag, ok := lookup(name)
		if !ok {
			return Spec{}, fmt.Errorf("%w: unknown flag %q", ErrInvalidRepeatSpec, raw)
		}
		s.flags |= flag
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// MustParse is Parse that panics, for static defaults
func MustParse(s string) Spec {
	spec, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return spec
}

func lookup(name string) (Flag, bool) {
	for _, n := range names {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}

// Validate rejects flag combinations that cannot be honored together
func (s Spec) Validate() error {
	switch {
	case s.Has(Simple) && s.Has(Mirror):
		return fmt.Errorf("%w: simple and mirror are mutually exclusive", ErrInvalidRepeatSpec)
	case s.Padded() && (s.Has(Justify) || s.Wraps()):
		return fmt.Errorf("%w: inner padding cannot be combined with wrap or justify", ErrInvalidRepeatSpec)
	case s.Has(Justify) && !s.Wraps():
		return fmt.Errorf("%w: justify requires simple or mirror", ErrInvalidRepeatSpec)
	case s.Has(Shuffle) && (s.Wraps() || s.Padded() || s.Has(Justify)):
		return fmt.Errorf("%w: shuffle cannot be combined with wrap, padding or justify", ErrInvalidRepeatSpec)
	}
	return nil
}

// Has reports whether flag is set
func (s Spec) Has(flag Flag) bool {
	return s.flags&flag != 0
}

// Empty reports whether no flag is set, which disables completion
func (s Spec) Empty() bool {
	return s.flags == 0
}

// Wraps reports whether a wrap strategy is selected
func (s Spec) Wraps() bool {
	return s.Has(Simple) || s.Has(Mirror)
}

// Padded reports whether mid-list insertion is selected
func (s Spec) Padded() bool {
	return s.Has(InnerPadded) || s.Has(InnerPaddedLeft)
}

// Names lists the set flags in canonical order
func (s Spec) Names() []string {
	var out []string
	for _, n := range names {
		if s.Has(n.flag) {
			out = append(out, n.name)
		}
	}
	return out
}

func (s Spec) String() string {
	return strings.Join(s.Names(), " ")
}
