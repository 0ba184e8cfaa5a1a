package bridge

import (
	"fmt"

	"github.com/openfroyo/froyo-age/pkg/hostval"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Record keys understood by importAge and readAgeFile.
const (
	OptionCache    = "cache"
	OptionCacheDir = "cache_dir"
)

// CacheDirMode selects how a cache_dir option of an unexpected type is
// treated.
type CacheDirMode int

const (
	// CacheDirLenient accepts a path or a string and silently ignores
	// any other value.
	CacheDirLenient CacheDirMode = iota

	// CacheDirStrict accepts a path or a string and rejects any other
	// value with a TypeMismatchError.
	CacheDirStrict
)

// String returns the mode name used in settings files.
func (m CacheDirMode) String() string {
	if m == CacheDirStrict {
		return "strict"
	}
	return "lenient"
}

// ParseCacheDirMode parses "lenient" or "strict". The empty string selects
// CacheDirLenient.
func ParseCacheDirMode(s string) (CacheDirMode, error) {
	switch s {
	case "", "lenient":
		return CacheDirLenient, nil
	case "strict":
		return CacheDirStrict, nil
	}
	return CacheDirLenient, fmt.Errorf("unknown cache_dir mode %q (must be 'lenient' or 'strict')", s)
}

// Args are the primitives handed to the collaborator.
type Args struct {
	Identities []string
	Path       string
	Cache      bool
	CacheDir   *string
}

// Extract validates the three builtin arguments and converts them to Args.
// Checks run in a fixed order: the identity list, the ciphertext path, the
// configuration record, each identity, then the cache and cache_dir
// options. The first failure is returned as a *hostval.TypeMismatchError
// positioned at pos.
//
// ignored, when non-nil, is called with a cache_dir value that lenient
// mode discarded.
func Extract(name string, mode CacheDirMode, pos syntax.Position, identities, path, configs starlark.Value, ignored func(starlark.Value)) (Args, error) {
	list, err := hostval.AsList(identities)
	if err != nil {
		return Args{}, annotate(err, pos, fmt.Sprintf("while evaluating the first argument passed to '%s'", name))
	}

	target, err := hostval.AsPath(path)
	if err != nil {
		return Args{}, annotate(err, pos, "")
	}

	record, err := hostval.AsRecord(configs)
	if err != nil {
		return Args{}, annotate(err, pos, fmt.Sprintf("while evaluating the third argument passed to '%s'", name))
	}

	args := Args{
		Identities: make([]string, 0, list.Len()),
		Path:       hostval.PathText(target),
		Cache:      true,
	}

	for i := 0; i < list.Len(); i++ {
		identity, err := hostval.AsPath(list.Index(i))
		if err != nil {
			return Args{}, annotate(err, pos, fmt.Sprintf("while evaluating identity %d passed to '%s'", i, name))
		}
		args.Identities = append(args.Identities, hostval.PathText(identity))
	}

	if v, ok := record.Get(OptionCache); ok {
		cache, err := hostval.AsBool(v)
		if err != nil {
			return Args{}, annotate(err, pos, fmt.Sprintf("while evaluating the '%s' option passed to '%s'", OptionCache, name))
		}
		args.Cache = cache
	}

	if v, ok := record.Get(OptionCacheDir); ok {
		dir, known := cacheDirText(v)
		switch {
		case known:
			args.CacheDir = &dir
		case mode == CacheDirStrict:
			mismatch := hostval.NewTypeMismatch("path or string", v)
			return Args{}, mismatch.At(pos).While(fmt.Sprintf("while evaluating the '%s' option passed to '%s'", OptionCacheDir, name))
		case ignored != nil:
			ignored(v)
		}
	}

	return args, nil
}

// cacheDirText returns the text of a path or string value.
func cacheDirText(v starlark.Value) (string, bool) {
	if p, err := hostval.AsPath(v); err == nil {
		return hostval.PathText(p), true
	}
	if s, err := hostval.AsString(v); err == nil {
		return s, true
	}
	return "", false
}

func annotate(err error, pos syntax.Position, context string) error {
	mismatch, ok := err.(*hostval.TypeMismatchError)
	if !ok {
		return err
	}
	mismatch.At(pos)
	if context != "" {
		mismatch.While(context)
	}
	return mismatch
}
