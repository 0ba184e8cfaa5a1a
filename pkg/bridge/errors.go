package bridge

import (
	"errors"
	"strings"

	"go.starlark.net/syntax"
)

var (
	// ErrDecryptionFailed is matched by every DecryptionError.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrHostParse is matched by a TraceError raised while parsing
	// decrypted content.
	ErrHostParse = errors.New("failed to parse decrypted content")

	// ErrHostEval is matched by a TraceError raised while evaluating
	// decrypted content.
	ErrHostEval = errors.New("failed to evaluate decrypted content")
)

const (
	decryptErrorPrefix = "decrypt error while evaluation: "
	unknownError       = "unknown error"
)

// DecryptionError reports that the collaborator produced no plaintext.
type DecryptionError struct {
	// Detail is the collaborator's message, or "unknown error" when it
	// supplied none.
	Detail string

	// Pos is the call site of the builtin, when known.
	Pos syntax.Position
}

// Error implements the error interface.
func (e *DecryptionError) Error() string {
	return decryptErrorPrefix + e.Detail
}

// Is reports whether target is ErrDecryptionFailed.
func (e *DecryptionError) Is(target error) bool {
	return target == ErrDecryptionFailed
}

// Phase identifies where materialization of decrypted content failed.
type Phase int

const (
	PhaseParse Phase = iota
	PhaseEval
)

func (p Phase) String() string {
	if p == PhaseParse {
		return "parse"
	}
	return "eval"
}

// Frame is one entry of context added on top of a host error.
type Frame struct {
	Pos     syntax.Position
	Message string
}

// TraceError wraps an error from the host parser or evaluator with the
// context of the builtin call that triggered it. The wrapped error is
// preserved unchanged and remains reachable with errors.As.
type TraceError struct {
	Err    error
	Phase  Phase
	Frames []Frame
}

// Error renders the original message followed by one line per frame.
func (e *TraceError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	for _, f := range e.Frames {
		sb.WriteString("\n")
		sb.WriteString(f.Message)
		if f.Pos.IsValid() {
			sb.WriteString(" at ")
			sb.WriteString(f.Pos.String())
		}
	}
	return sb.String()
}

// Unwrap returns the host error.
func (e *TraceError) Unwrap() error {
	return e.Err
}

// Is matches ErrHostParse or ErrHostEval according to the phase.
func (e *TraceError) Is(target error) bool {
	switch target {
	case ErrHostParse:
		return e.Phase == PhaseParse
	case ErrHostEval:
		return e.Phase == PhaseEval
	}
	return false
}

func newTraceError(err error, phase Phase, pos syntax.Position, message string) *TraceError {
	return &TraceError{
		Err:    err,
		Phase:  phase,
		Frames: []Frame{{Pos: pos, Message: message}},
	}
}
