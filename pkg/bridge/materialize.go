package bridge

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Host is the evaluator that decrypted content is handed back to.
type Host interface {
	// ParseExpr parses src as a single expression.
	ParseExpr(filename, src string) (syntax.Expr, error)

	// EvalExpr evaluates expr on thread. Relative paths inside expr
	// resolve against baseDir.
	EvalExpr(thread *starlark.Thread, expr syntax.Expr, baseDir string) (starlark.Value, error)
}

// importBaseDir is the resolution base for content produced by importAge.
const importBaseDir = "/"

// materializeImport parses and evaluates the plaintext. pt is released on
// every path.
func materializeImport(thread *starlark.Thread, host Host, name string, pos syntax.Position, pt Plaintext) (starlark.Value, error) {
	defer pt.Release()

	expr, err := host.ParseExpr(outputFilename(name, pos), string(pt.Bytes()))
	if err != nil {
		return nil, newTraceError(err, PhaseParse, pos, fmt.Sprintf("while parsing the output from '%s'", name))
	}

	v, err := host.EvalExpr(thread, expr, importBaseDir)
	if err != nil {
		return nil, newTraceError(err, PhaseEval, pos, fmt.Sprintf("while evaluating the output from '%s'", name))
	}
	return v, nil
}

// materializeRead copies the plaintext into a string and releases pt.
func materializeRead(pt Plaintext) starlark.Value {
	defer pt.Release()
	return starlark.String(pt.Bytes())
}

// outputFilename names decrypted content in parser positions.
func outputFilename(name string, pos syntax.Position) string {
	if !pos.IsValid() {
		return fmt.Sprintf("<%s output>", name)
	}
	return fmt.Sprintf("<%s output at %s>", name, pos)
}
