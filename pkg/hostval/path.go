package hostval

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Path is a Starlark value naming a filesystem location. Its text is always
// absolute and cleaned.
type Path struct {
	text string
}

var (
	_ starlark.Value      = Path{}
	_ starlark.Comparable = Path{}
	_ starlark.HasAttrs   = Path{}
)

// NewPath resolves text against base and returns the resulting path value.
// base is ignored when text is already absolute.
func NewPath(text, base string) (Path, error) {
	if text == "" {
		return Path{}, fmt.Errorf("path: empty path")
	}
	if !filepath.IsAbs(text) {
		if base == "" {
			base = string(filepath.Separator)
		}
		text = filepath.Join(base, text)
	}
	return Path{text: filepath.Clean(text)}, nil
}

// String returns the path text, so str(p) yields the bare path.
func (p Path) String() string { return p.text }

// Type implements starlark.Value.
func (p Path) Type() string { return "path" }

// Freeze implements starlark.Value. Paths are immutable.
func (p Path) Freeze() {}

// Truth implements starlark.Value.
func (p Path) Truth() starlark.Bool { return p.text != "" }

// Hash implements starlark.Value.
func (p Path) Hash() (uint32, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.text))
	return h.Sum32(), nil
}

// CompareSameType implements starlark.Comparable.
func (p Path) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	q := y.(Path)
	switch op {
	case syntax.EQL:
		return p.text == q.text, nil
	case syntax.NEQ:
		return p.text != q.text, nil
	case syntax.LT:
		return p.text < q.text, nil
	case syntax.LE:
		return p.text <= q.text, nil
	case syntax.GT:
		return p.text > q.text, nil
	case syntax.GE:
		return p.text >= q.text, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", p.Type(), op, y.Type())
}

// Attr implements starlark.HasAttrs.
func (p Path) Attr(name string) (starlark.Value, error) {
	switch name {
	case "basename":
		return starlark.String(filepath.Base(p.text)), nil
	case "dirname":
		return Path{text: filepath.Dir(p.text)}, nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (p Path) AttrNames() []string {
	return []string{"basename", "dirname"}
}

// PathBuiltin returns the path() builtin. Relative arguments resolve against
// base.
func PathBuiltin(base string) *starlark.Builtin {
	return starlark.NewBuiltin("path", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		p, err := NewPath(text, base)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

const contextKey = "froyo.context"

// SetContext attaches ctx to thread. It must be called before execution
// begins.
func SetContext(thread *starlark.Thread, ctx context.Context) {
	thread.SetLocal(contextKey, ctx)
}

// Context returns the context attached to thread, or context.Background.
func Context(thread *starlark.Thread) context.Context {
	if thread != nil {
		if ctx, ok := thread.Local(contextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}
