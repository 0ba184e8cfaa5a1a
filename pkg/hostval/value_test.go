package hostval

import (
	"errors"
	"strings"
	"testing"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

func mustPath(t *testing.T, text string) Path {
	t.Helper()
	p, err := NewPath(text, "/base")
	if err != nil {
		t.Fatalf("NewPath(%q) failed: %v", text, err)
	}
	return p
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name  string
		value starlark.Value
		want  Kind
	}{
		{name: "none", value: starlark.None, want: KindNone},
		{name: "bool", value: starlark.True, want: KindBool},
		{name: "int", value: starlark.MakeInt(3), want: KindInt},
		{name: "float", value: starlark.Float(1.5), want: KindFloat},
		{name: "string", value: starlark.String("x"), want: KindString},
		{name: "path", value: mustPath(t, "/etc/key.txt"), want: KindPath},
		{name: "list", value: starlark.NewList(nil), want: KindList},
		{name: "dict", value: starlark.NewDict(0), want: KindRecord},
		{name: "struct", value: starlarkstruct.FromStringDict(starlarkstruct.Default, nil), want: KindRecord},
		{name: "tuple", value: starlark.Tuple{}, want: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.value); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsPath(t *testing.T) {
	p := mustPath(t, "secrets/db.age")
	got, err := AsPath(p)
	if err != nil {
		t.Fatalf("AsPath failed: %v", err)
	}
	if PathText(got) != "/base/secrets/db.age" {
		t.Errorf("expected /base/secrets/db.age, got %s", PathText(got))
	}

	_, err = AsPath(starlark.String("/etc/key.txt"))
	if err == nil {
		t.Fatal("expected error for string argument")
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if err.Error() != "value is a string while a path was expected" {
		t.Errorf("unexpected message: %s", err.Error())
	}

	_, err = AsPath(starlark.MakeInt(1))
	if err == nil || !strings.Contains(err.Error(), "value is an integer") {
		t.Errorf("expected integer mismatch, got %v", err)
	}
}

func TestAsList(t *testing.T) {
	list := starlark.NewList([]starlark.Value{mustPath(t, "/k")})
	got, err := AsList(list)
	if err != nil {
		t.Fatalf("AsList failed: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("expected length 1, got %d", got.Len())
	}

	_, err = AsList(starlark.Tuple{})
	var mismatchErr *TypeMismatchError
	if !errors.As(err, &mismatchErr) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if mismatchErr.Expected != "list" || mismatchErr.Actual != "a tuple" {
		t.Errorf("unexpected mismatch: %+v", mismatchErr)
	}
}

func TestAsBoolAndString(t *testing.T) {
	b, err := AsBool(starlark.False)
	if err != nil || b {
		t.Errorf("AsBool(False) = %v, %v", b, err)
	}
	if _, err := AsBool(starlark.MakeInt(1)); err == nil {
		t.Error("expected AsBool to reject an integer")
	}
	if _, err := AsBool(starlark.String("")); err == nil {
		t.Error("expected AsBool to reject a string")
	}

	s, err := AsString(starlark.String("/tmp/x"))
	if err != nil || s != "/tmp/x" {
		t.Errorf("AsString = %q, %v", s, err)
	}
	if _, err := AsString(mustPath(t, "/tmp/x")); err == nil {
		t.Error("expected AsString to reject a path")
	}
}

func TestRecord(t *testing.T) {
	dict := starlark.NewDict(2)
	_ = dict.SetKey(starlark.String("cache"), starlark.False)
	_ = dict.SetKey(starlark.MakeInt(1), starlark.True)

	rec, err := AsRecord(dict)
	if err != nil {
		t.Fatalf("AsRecord failed: %v", err)
	}
	v, ok := rec.Get("cache")
	if !ok || v != starlark.False {
		t.Errorf("Get(cache) = %v, %v", v, ok)
	}
	if _, ok := rec.Get("cache_dir"); ok {
		t.Error("expected cache_dir to be absent")
	}
	if keys := rec.Keys(); len(keys) != 1 || keys[0] != "cache" {
		t.Errorf("unexpected keys: %v", keys)
	}

	st := starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"cache_dir": starlark.String("/tmp/x"),
	})
	rec, err = AsRecord(st)
	if err != nil {
		t.Fatalf("AsRecord(struct) failed: %v", err)
	}
	v, ok = rec.Get("cache_dir")
	if !ok || v != starlark.String("/tmp/x") {
		t.Errorf("Get(cache_dir) = %v, %v", v, ok)
	}

	if _, err := AsRecord(starlark.NewList(nil)); err == nil {
		t.Error("expected AsRecord to reject a list")
	}
}

func TestTypeMismatchError_Context(t *testing.T) {
	_, err := AsList(starlark.String("x"))
	var mismatchErr *TypeMismatchError
	if !errors.As(err, &mismatchErr) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	mismatchErr.While("while evaluating the first argument passed to 'importAge'")

	want := "value is a string while a list was expected (while evaluating the first argument passed to 'importAge')"
	if mismatchErr.Error() != want {
		t.Errorf("got %q, want %q", mismatchErr.Error(), want)
	}

	file := "main.star"
	mismatchErr.At(syntax.MakePosition(&file, 3, 14))
	if want := want + " at main.star:3:14"; mismatchErr.Error() != want {
		t.Errorf("got %q, want %q", mismatchErr.Error(), want)
	}
}
