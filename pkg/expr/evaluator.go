// Package expr evaluates the restricted boolean expression language used by
// workflow business rules and transition guards: clauses of the form
// `field OP literal` joined by AND/OR with equal precedence, left to right.
package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrInvalidExpression indicates the expression could not be parsed, or a
	// numeric comparison was attempted against a non-numeric context value.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrUnknownField indicates the expression references a field absent from
	// the evaluation context. Callers typically treat this as "rule did not
	// match" rather than as false.
	ErrUnknownField = errors.New("unknown field")
)

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenOp
	tokenNumber
	tokenString
	tokenAnd
	tokenOr
)

type token struct {
	kind tokenKind
	text string
}

// Evaluate parses expression and evaluates it against context. An empty or
// whitespace-only expression evaluates to true (the "no condition" case).
func Evaluate(expression string, context map[string]string) (bool, error) {
	clauses, connectors, err := parse(expression)
	if err != nil {
		return false, err
	}

	if len(clauses) == 0 {
		return true, nil
	}

	result, err := clauses[0].eval(context)
	if err != nil {
		return false, err
	}

	for i, connector := range connectors {
		next, err := clauses[i+1].eval(context)
		if err != nil {
			return false, err
		}

		if connector == tokenAnd {
			result = result && next
		} else {
			result = result || next
		}
	}

	return result, nil
}

// Check parses expression without evaluating it, so workflow authors get
// malformed conditions reported at publish time instead of at runtime.
func Check(expression string) error {
	_, _, err := parse(expression)

	return err
}

type clause struct {
	field   string
	op      string
	literal string
	numeric bool
}

func (c clause) eval(context map[string]string) (bool, error) {
	value, ok := context[c.field]
	if !ok {
		return false, fmt.Errorf("%w: %q not present in context", ErrUnknownField, c.field)
	}

	if c.numeric {
		left, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return false, fmt.Errorf("%w: field %q value %q is not numeric", ErrInvalidExpression, c.field, value)
		}

		right, err := strconv.ParseFloat(c.literal, 64)
		if err != nil {
			return false, fmt.Errorf("%w: literal %q is not numeric", ErrInvalidExpression, c.literal)
		}

		switch c.op {
		case ">":
			return left > right, nil
		case "<":
			return left < right, nil
		case ">=":
			return left >= right, nil
		case "<=":
			return left <= right, nil
		case "==":
			return left == right, nil
		case "!=":
			return left != right, nil
		}

		return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidExpression, c.op)
	}

	// String comparison is exact and case-sensitive; ordering operators do not
	// apply to quoted literals.
	switch c.op {
	case "==":
		return value == c.literal, nil
	case "!=":
		return value != c.literal, nil
	}

	return false, fmt.Errorf("%w: operator %q not applicable to string literal", ErrInvalidExpression, c.op)
}

// parse splits the expression into comparison clauses joined by AND/OR
// connectors. Returned connectors has len(clauses)-1 entries.
func parse(expression string) ([]clause, []tokenKind, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return nil, nil, err
	}

	if len(tokens) == 0 {
		return nil, nil, nil
	}

	clauses := make([]clause, 0, 1)
	connectors := make([]tokenKind, 0)

	pos := 0

	for {
		if pos+3 > len(tokens) {
			return nil, nil, fmt.Errorf("%w: incomplete clause at end of expression", ErrInvalidExpression)
		}

		ident := tokens[pos]
		if ident.kind != tokenIdent {
			return nil, nil, fmt.Errorf("%w: expected field name, got %q", ErrInvalidExpression, ident.text)
		}

		op := tokens[pos+1]
		if op.kind != tokenOp {
			return nil, nil, fmt.Errorf("%w: expected operator after %q, got %q", ErrInvalidExpression, ident.text, op.text)
		}

		literal := tokens[pos+2]
		if literal.kind != tokenNumber && literal.kind != tokenString {
			return nil, nil, fmt.Errorf("%w: expected literal after %q, got %q", ErrInvalidExpression, op.text, literal.text)
		}

		clauses = append(clauses, clause{
			field:   ident.text,
			op:      op.text,
			literal: literal.text,
			numeric: literal.kind == tokenNumber,
		})

		pos += 3
		if pos == len(tokens) {
			break
		}

		connector := tokens[pos]
		if connector.kind != tokenAnd && connector.kind != tokenOr {
			return nil, nil, fmt.Errorf("%w: expected AND or OR, got %q", ErrInvalidExpression, connector.text)
		}

		connectors = append(connectors, connector.kind)
		pos++

		if pos == len(tokens) {
			return nil, nil, fmt.Errorf("%w: trailing %q", ErrInvalidExpression, connector.text)
		}
	}

	return clauses, connectors, nil
}

func tokenize(expression string) ([]token, error) {
	input := []rune(expression)
	tokens := make([]token, 0)

	i := 0
	for i < len(input) {
		r := input[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '\'':
			end := -1

			for j := i + 1; j < len(input); j++ {
				if input[j] == '\'' {
					end = j

					break
				}
			}

			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrInvalidExpression)
			}

			tokens = append(tokens, token{kind: tokenString, text: string(input[i+1 : end])})
			i = end + 1

		case r == '>' || r == '<' || r == '=' || r == '!':
			op := string(r)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
				i++
			}

			if op == "=" || op == "!" {
				return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidExpression, op)
			}

			tokens = append(tokens, token{kind: tokenOp, text: op})
			i++

		case unicode.IsDigit(r) || r == '-':
			start := i
			i++

			for i < len(input) && (unicode.IsDigit(input[i]) || input[i] == '.') {
				i++
			}

			text := string(input[start:i])
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("%w: malformed number %q", ErrInvalidExpression, text)
			}

			tokens = append(tokens, token{kind: tokenNumber, text: text})

		case unicode.IsLetter(r) || r == '_':
			start := i

			for i < len(input) && (unicode.IsLetter(input[i]) || unicode.IsDigit(input[i]) || input[i] == '_') {
				i++
			}

			word := string(input[start:i])

			switch word {
			case "AND":
				tokens = append(tokens, token{kind: tokenAnd, text: word})
			case "OR":
				tokens = append(tokens, token{kind: tokenOr, text: word})
			default:
				tokens = append(tokens, token{kind: tokenIdent, text: word})
			}

		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrInvalidExpression, string(r))
		}
	}

	return tokens, nil
}
