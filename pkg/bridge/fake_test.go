package bridge

import (
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

type decryptCall struct {
	Identities []string
	Path       string
	Cache      bool
	CacheDir   *string
}

type fakePlaintext struct {
	data     []byte
	released *int
}

func (p *fakePlaintext) Bytes() []byte { return p.data }

func (p *fakePlaintext) Release() { *p.released++ }

// fakeCollaborator returns plaintext when set and records every call.
type fakeCollaborator struct {
	mu        sync.Mutex
	plaintext *string
	lastError *string
	calls     []decryptCall
	released  int
}

func (f *fakeCollaborator) Decrypt(identities []string, path string, cache bool, cacheDir *string) Plaintext {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := decryptCall{Identities: identities, Path: path, Cache: cache}
	if cacheDir != nil {
		dir := *cacheDir
		call.CacheDir = &dir
	}
	f.calls = append(f.calls, call)
	if f.plaintext == nil {
		return nil
	}
	return &fakePlaintext{data: []byte(*f.plaintext), released: &f.released}
}

func (f *fakeCollaborator) LastError() *string {
	return f.lastError
}

func ptr(s string) *string { return &s }

// starlarkHost is a minimal Host over go.starlark.net.
type starlarkHost struct {
	env starlark.StringDict
}

func (h *starlarkHost) ParseExpr(filename, src string) (syntax.Expr, error) {
	return (&syntax.FileOptions{}).ParseExpr(filename, src, 0)
}

func (h *starlarkHost) EvalExpr(thread *starlark.Thread, expr syntax.Expr, baseDir string) (starlark.Value, error) {
	return starlark.EvalExprOptions(&syntax.FileOptions{}, thread, expr, h.env)
}
