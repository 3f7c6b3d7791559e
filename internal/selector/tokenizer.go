package selector

import (
	"errors"
	"strings"
)

// tokenize splits a normalized selector on spaces outside brackets, parentheses and quotes.
// Combinators become tokens of their own even when written without surrounding spaces.
func tokenize(s string) ([]string, error) {
	var tokens []string
	var current strings.Builder
	var quoteChar rune
	depth := 0

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range s {
		switch {
		case quoteChar != 0:
			current.WriteRune(char)
			if char == quoteChar {
				quoteChar = 0
			}
		case char == '"' || char == '\'':
			quoteChar = char
			current.WriteRune(char)
		case char == '[' || char == '(':
			depth++
			current.WriteRune(char)
		case char == ']' || char == ')':
			if depth == 0 {
				return nil, errors.New("unbalanced " + string(char))
			}
			depth--
			current.WriteRune(char)
		case depth == 0 && char == ' ':
			flush()
		case depth == 0 && (char == '>' || char == '+' || char == '~'):
			flush()
			tokens = append(tokens, string(char))
		default:
			current.WriteRune(char)
		}
	}

	if quoteChar != 0 {
		return nil, errors.New("unterminated quote")
	}
	if depth != 0 {
		return nil, errors.New("unbalanced brackets")
	}

	flush()
	return tokens, nil
}

type pseudo struct {
	name string
	arg  string
}

// splitPseudos separates a unit into its base and trailing pseudo-classes
func splitPseudos(token string) (string, []pseudo, error) {
	colon := findUnquotedChar(token, ':')
	if colon == -1 {
		return token, nil, nil
	}

	base := token[:colon]
	rest := token[colon:]

	var pseudos []pseudo
	for rest != "" {
		if rest[0] != ':' {
			return "", nil, errors.New("unexpected " + rest + " after pseudo-class")
		}
		rest = rest[1:]

		// a pseudo name ends where predicates would start; any predicate left is rejected below
		end := strings.IndexAny(rest, ":(.#[")
		if end == -1 {
			end = len(rest)
		}
		p := pseudo{name: rest[:end]}
		if p.name == "" {
			return "", nil, errors.New("empty pseudo-class")
		}
		rest = rest[end:]

		if rest != "" && rest[0] == '(' {
			closing := matchingParen(rest)
			if closing == -1 {
				return "", nil, errors.New("unterminated pseudo-class argument")
			}
			p.arg = rest[1:closing]
			rest = rest[closing+1:]
		}
		pseudos = append(pseudos, p)
	}

	return base, pseudos, nil
}

// matchingParen returns the index of the parenthesis closing the one at s[0]
func matchingParen(s string) int {
	depth := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// findUnquotedChar finds the first occurrence of char outside quotes and brackets
func findUnquotedChar(s string, char rune) int {
	var inQuotes bool
	var quoteChar rune
	depth := 0

	for i, c := range s {
		switch {
		case !inQuotes && (c == '"' || c == '\''):
			inQuotes = true
			quoteChar = c
		case inQuotes && c == quoteChar:
			inQuotes = false
		case !inQuotes && c == '[':
			depth++
		case !inQuotes && c == ']':
			depth--
		case !inQuotes && depth == 0 && c == char:
			return i
		}
	}

	return -1
}
