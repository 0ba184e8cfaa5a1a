package hostval

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ErrTypeMismatch is matched by every TypeMismatchError via errors.Is.
var ErrTypeMismatch = errors.New("type mismatch")

// TypeMismatchError reports a host value whose runtime type is not the one
// an operation requires.
type TypeMismatchError struct {
	// Expected is the required type, e.g. "path" or "list".
	Expected string

	// Actual describes the value that was supplied, e.g. "a string".
	Actual string

	// Context names the construct being evaluated when the mismatch was
	// found. It is optional.
	Context string

	// Pos is the source position of the offending call, when known.
	Pos syntax.Position
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("value is %s while %s was expected", e.Actual, article(e.Expected))
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	if e.Pos.IsValid() {
		msg += " at " + e.Pos.String()
	}
	return msg
}

// Is reports whether target is ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// At records the source position of the mismatch and returns e.
func (e *TypeMismatchError) At(pos syntax.Position) *TypeMismatchError {
	e.Pos = pos
	return e
}

// While records the construct being evaluated and returns e.
func (e *TypeMismatchError) While(context string) *TypeMismatchError {
	e.Context = context
	return e
}

// NewTypeMismatch reports that v is not of the expected type.
func NewTypeMismatch(expected string, v starlark.Value) *TypeMismatchError {
	return &TypeMismatchError{
		Expected: expected,
		Actual:   describeType(v),
	}
}

// article prefixes a type name with "a" or "an".
func article(name string) string {
	if name == "" {
		return "a value"
	}
	switch name[0] {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return "an " + name
	}
	return "a " + name
}
