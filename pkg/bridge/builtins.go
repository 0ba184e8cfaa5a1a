package bridge

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/openfroyo/froyo-age/pkg/hostval"
	"github.com/openfroyo/froyo-age/pkg/telemetry"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Builtin names.
const (
	ImportAgeName   = "importAge"
	ReadAgeFileName = "readAgeFile"
)

// Options configures a Bridge.
type Options struct {
	// CacheDirMode controls how a cache_dir option of the wrong type is
	// handled.
	CacheDirMode CacheDirMode
}

// Bridge provides the importAge and readAgeFile builtins.
type Bridge struct {
	invoker *Invoker
	host    Host
	opts    Options
}

// New creates a Bridge that decrypts with collab and re-enters host for
// importAge.
func New(collab Collaborator, host Host, opts Options) *Bridge {
	return &Bridge{
		invoker: NewInvoker(collab),
		host:    host,
		opts:    opts,
	}
}

// Builtins returns importAge and readAgeFile keyed by name.
func (b *Bridge) Builtins() starlark.StringDict {
	return starlark.StringDict{
		ImportAgeName:   starlark.NewBuiltin(ImportAgeName, b.importAge),
		ReadAgeFileName: starlark.NewBuiltin(ReadAgeFileName, b.readAgeFile),
	}
}

func (b *Bridge) importAge(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return b.call(thread, fn, args, kwargs, func(pos syntax.Position, pt Plaintext) (starlark.Value, error) {
		return materializeImport(thread, b.host, fn.Name(), pos, pt)
	})
}

func (b *Bridge) readAgeFile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return b.call(thread, fn, args, kwargs, func(_ syntax.Position, pt Plaintext) (starlark.Value, error) {
		return materializeRead(pt), nil
	})
}

type materializer func(pos syntax.Position, pt Plaintext) (starlark.Value, error)

// call runs the shared pipeline: extract, invoke, materialize.
func (b *Bridge) call(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, materialize materializer) (result starlark.Value, err error) {
	name := fn.Name()

	var identities, path, configs starlark.Value
	if err := starlark.UnpackArgs(name, args, kwargs, "identities", &identities, "path", &path, "configs", &configs); err != nil {
		return nil, err
	}

	pos := callerPosition(thread)
	op := telemetry.StartOperation(hostval.Context(thread), "bridge."+name, telemetry.AttrOperation.String(name))
	defer func() {
		if err != nil {
			kind := errorKind(err)
			op.SetAttributes(telemetry.AttrErrorKind.String(kind))
			telemetry.RecordBridgeError(op.Ctx, kind)
		}
		op.End(err)
	}()

	extracted, err := Extract(name, b.opts.CacheDirMode, pos, identities, path, configs, func(v starlark.Value) {
		op.Logger.Debugf("Ignoring %s of type %s", OptionCacheDir, v.Type())
	})
	if err != nil {
		return nil, err
	}

	op.SetAttributes(
		telemetry.AttrCiphertextPath.String(extracted.Path),
		telemetry.AttrIdentityCount.Int(len(extracted.Identities)),
		telemetry.AttrCacheEnabled.Bool(extracted.Cache),
	)
	logger := op.Logger.WithCiphertext(extracted.Path)
	info := telemetry.DecryptInfo{
		Operation:      name,
		CiphertextPath: extracted.Path,
		IdentityCount:  len(extracted.Identities),
		CacheEnabled:   extracted.Cache,
	}
	if extracted.CacheDir != nil {
		info.CacheDir = *extracted.CacheDir
	}

	timer := telemetry.NewTimer()
	pt, err := b.invoker.Invoke(extracted)
	info.Duration = timer.Duration()
	telemetry.RecordDecrypt(op.Ctx, info, err)
	if err != nil {
		var decErr *DecryptionError
		if errors.As(err, &decErr) {
			decErr.Pos = pos
		}
		logger.WithError(err).Debug("Decryption failed")
		return nil, err
	}
	logger.Debug("Decrypted")

	return materialize(pos, pt)
}

// callerPosition returns the position of the call to the running builtin,
// or the zero Position when it was called from Go.
func callerPosition(thread *starlark.Thread) syntax.Position {
	if thread == nil || thread.CallStackDepth() < 2 {
		return syntax.Position{}
	}
	return thread.CallFrame(1).Pos
}

// errorKind labels an error for the bridge_errors_total metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, hostval.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrDecryptionFailed):
		return "decryption_failed"
	case errors.Is(err, ErrHostParse):
		return "parse"
	case errors.Is(err, ErrHostEval):
		return "eval"
	}
	return "other"
}

// Request describes a decryption requested from Go rather than from a
// script. Relative paths resolve against the working directory.
type Request struct {
	Identities []string
	Path       string

	// Cache and CacheDir become the configs record. A nil Cache leaves the
	// option out, which means caching is enabled.
	Cache    *bool
	CacheDir string
}

// localPath resolves text against the working directory.
func localPath(text string) (hostval.Path, error) {
	if text == "" {
		return hostval.NewPath(text, "")
	}
	abs, err := filepath.Abs(text)
	if err != nil {
		return hostval.Path{}, err
	}
	return hostval.NewPath(abs, "")
}

// Call invokes the named builtin on thread with host values built from req.
func (b *Bridge) Call(thread *starlark.Thread, name string, req Request) (starlark.Value, error) {
	fn, ok := b.Builtins()[name]
	if !ok {
		return nil, fmt.Errorf("unknown builtin %q", name)
	}

	identities := make([]starlark.Value, 0, len(req.Identities))
	for _, id := range req.Identities {
		p, err := localPath(id)
		if err != nil {
			return nil, fmt.Errorf("identity %q: %w", id, err)
		}
		identities = append(identities, p)
	}
	target, err := localPath(req.Path)
	if err != nil {
		return nil, fmt.Errorf("ciphertext %q: %w", req.Path, err)
	}

	configs := starlark.NewDict(2)
	if req.Cache != nil {
		_ = configs.SetKey(starlark.String(OptionCache), starlark.Bool(*req.Cache))
	}
	if req.CacheDir != "" {
		_ = configs.SetKey(starlark.String(OptionCacheDir), starlark.String(req.CacheDir))
	}

	args := starlark.Tuple{starlark.NewList(identities), target, configs}
	return starlark.Call(thread, fn, args, nil)
}
