package spkgrecipe

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no store holds a recipe for the name.
var ErrNotFound = errors.New("recipe not found")

// ParseError reports a malformed recipe file.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("recipe parse error at line %d: %s", e.Line, e.Reason)
	}
	return "recipe parse error: " + e.Reason
}

// LintError reports an invariant violation, naming the offending field.
type LintError struct {
	Field  string
	Reason string
}

func (e *LintError) Error() string {
	return fmt.Sprintf("recipe field %s: %s", e.Field, e.Reason)
}
