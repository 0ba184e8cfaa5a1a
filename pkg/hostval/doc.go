// Package hostval gives the age bridge a typed view of Starlark values.
//
// Starlark has no native filesystem path type, so this package adds one:
// [Path] reports type "path" and is created by the predeclared path()
// builtin returned from [PathBuiltin]. Relative paths are resolved against
// a base directory bound into the builtin, which lets one evaluation use the
// script's directory while content materialized from a decrypted file uses
// the process root.
//
// # Capability accessors
//
// The bridge never compares type strings directly. Instead it asks for a
// capability and gets either the payload or a [TypeMismatchError]:
//
//	list, err := hostval.AsList(v)     // *starlark.List
//	p, err := hostval.AsPath(v)        // Path
//	rec, err := hostval.AsRecord(v)    // Record (dict or struct)
//	b, err := hostval.AsBool(v)
//	s, err := hostval.AsString(v)
//
// [PathText] is the only place that extracts the raw text of a path value.
//
// # Thread context
//
// [SetContext] and [Context] carry a context.Context on a starlark.Thread so
// builtins can reach logging, tracing and metrics set up by the caller.
package hostval
