package selector

import (
	"errors"
	"fmt"
)

// Dialect names how a selector string is interpreted
type Dialect string

const (
	CSS   Dialect = "css"
	XPath Dialect = "xpath"
)

// ParseDialect validates a dialect name
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case CSS, XPath:
		return Dialect(s), nil
	case "":
		return CSS, nil
	}
	return "", fmt.Errorf("unknown selector dialect %q (valid: css, xpath)", s)
}

// Combinator joins two selector units
type Combinator int

const (
	Descendant Combinator = iota
	Child
	Adjacent
	General
)

// Join returns the XPath step separator for the combinator
func (c Combinator) Join() string {
	switch c {
	case Child:
		return "/"
	case Adjacent:
		return "/following-sibling::"
	case General:
		return "/../"
	default:
		return "//"
	}
}

func combinatorFor(token string) (Combinator, bool) {
	switch token {
	case ">":
		return Child, true
	case "+":
		return Adjacent, true
	case "~":
		return General, true
	}
	return Descendant, false
}

// Query is a compiled selector ready for execution
type Query struct {
	Source  string  // Selector as supplied by the caller
	Dialect Dialect // Dialect the selector was interpreted in
	Expr    string  // XPath expression, relative to the context once executed
}

var (
	// ErrMalformedSelector reports a selector that cannot be turned into a valid query
	ErrMalformedSelector = errors.New("malformed selector")

	// ErrUnsupportedPseudo reports a recognized but unimplemented pseudo-class
	ErrUnsupportedPseudo = errors.New("unsupported pseudo-class")
)

// MalformedSelectorError carries the offending selector and, when built, the query
type MalformedSelectorError struct {
	Selector string
	Query    string
	Reason   string
	Err      error
}

func (e *MalformedSelectorError) Error() string {
	msg := fmt.Sprintf("malformed selector %q", e.Selector)
	if e.Query != "" {
		msg += fmt.Sprintf(" (query %s)", e.Query)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSelectorError) Is(target error) bool { return target == ErrMalformedSelector }

func (e *MalformedSelectorError) Unwrap() error { return e.Err }

// UnsupportedPseudoError names the pseudo-class that cannot be compiled
type UnsupportedPseudoError struct {
	Selector string
	Pseudo   string
}

func (e *UnsupportedPseudoError) Error() string {
	return fmt.Sprintf("selector %q: pseudo-class :%s is not supported", e.Selector, e.Pseudo)
}

func (e *UnsupportedPseudoError) Is(target error) bool { return target == ErrUnsupportedPseudo }
