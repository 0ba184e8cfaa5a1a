package hostval

import (
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Kind is the runtime type tag of a host value.
type Kind int

const (
	KindOther Kind = iota
	KindNone
	KindBool
	KindInt
	KindFloat
	KindString
	KindPath
	KindList
	KindRecord
)

// String returns the type name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindPath:
		return "path"
	case KindList:
		return "list"
	case KindRecord:
		return "record"
	default:
		return "value"
	}
}

// KindOf returns the runtime type tag of v.
func KindOf(v starlark.Value) Kind {
	switch v.(type) {
	case nil:
		return KindOther
	case starlark.NoneType:
		return KindNone
	case starlark.Bool:
		return KindBool
	case starlark.Int:
		return KindInt
	case starlark.Float:
		return KindFloat
	case starlark.String:
		return KindString
	case Path:
		return KindPath
	case *starlark.List:
		return KindList
	case *starlark.Dict, *starlarkstruct.Struct:
		return KindRecord
	default:
		return KindOther
	}
}

// describeType renders the actual type of v for TypeMismatchError.
func describeType(v starlark.Value) string {
	switch k := KindOf(v); k {
	case KindNone:
		return "None"
	case KindOther:
		if v == nil {
			return "nothing"
		}
		return article(v.Type())
	default:
		return article(k.String())
	}
}

// AsList returns v as a list or a TypeMismatchError.
func AsList(v starlark.Value) (*starlark.List, error) {
	if l, ok := v.(*starlark.List); ok {
		return l, nil
	}
	return nil, NewTypeMismatch(KindList.String(), v)
}

// AsPath returns v as a path or a TypeMismatchError.
func AsPath(v starlark.Value) (Path, error) {
	if p, ok := v.(Path); ok {
		return p, nil
	}
	return Path{}, NewTypeMismatch(KindPath.String(), v)
}

// AsBool returns v as a Go bool or a TypeMismatchError.
// Starlark truthiness is deliberately not applied.
func AsBool(v starlark.Value) (bool, error) {
	if b, ok := v.(starlark.Bool); ok {
		return bool(b), nil
	}
	return false, NewTypeMismatch(KindBool.String(), v)
}

// AsString returns v as a Go string or a TypeMismatchError.
func AsString(v starlark.Value) (string, error) {
	if s, ok := v.(starlark.String); ok {
		return string(s), nil
	}
	return "", NewTypeMismatch(KindString.String(), v)
}

// PathText returns the raw text of a path value. It is the single place
// where a path payload is read.
func PathText(p Path) string {
	return p.text
}

// Record is a read-only view of a string-keyed mapping: a dict or a struct.
type Record struct {
	dict *starlark.Dict
	st   *starlarkstruct.Struct
}

// AsRecord returns v as a Record or a TypeMismatchError.
func AsRecord(v starlark.Value) (Record, error) {
	switch r := v.(type) {
	case *starlark.Dict:
		return Record{dict: r}, nil
	case *starlarkstruct.Struct:
		return Record{st: r}, nil
	}
	return Record{}, NewTypeMismatch(KindRecord.String(), v)
}

// Get looks up a textual key.
func (r Record) Get(key string) (starlark.Value, bool) {
	switch {
	case r.dict != nil:
		v, found, err := r.dict.Get(starlark.String(key))
		if err != nil || !found {
			return nil, false
		}
		return v, true
	case r.st != nil:
		v, err := r.st.Attr(key)
		if err != nil || v == nil {
			return nil, false
		}
		return v, true
	}
	return nil, false
}

// Keys returns the record's textual keys in sorted order. Non-string dict
// keys are skipped.
func (r Record) Keys() []string {
	var keys []string
	switch {
	case r.dict != nil:
		for _, item := range r.dict.Items() {
			if s, ok := item[0].(starlark.String); ok {
				keys = append(keys, string(s))
			}
		}
	case r.st != nil:
		keys = r.st.AttrNames()
	}
	sort.Strings(keys)
	return keys
}
