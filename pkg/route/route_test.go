package route

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"clocktick/pkg/codec"
)

func decoder() Decoder {
	return func(raw []byte, t reflect.Type) (reflect.Value, error) {
		return codec.DecodeInto(raw, t)
	}
}

func encode(t *testing.T, args ...any) [][]byte {
	t.Helper()
	b, err := codec.EncodeArgs(args)
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	raws, err := codec.DecodeArgs(b)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	out := make([][]byte, len(raws))
	for i, r := range raws {
		out[i] = r
	}
	return out
}

func TestResolvePathsAndEndpoints(t *testing.T) {
	t.Parallel()
	noop := func(ctx context.Context) {}
	tree, err := New(Group{
		"test1": Handler(noop),
		"a": Endpoint("E2", Group{
			"b": Group{
				"c": Handler(noop),
				"d": Endpoint("E3", Group{
					"e": Handler(func(ctx context.Context, s string) {}),
				}),
			},
		}),
	}, "default")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		path     string
		endpoint string
		arity    int
	}{
		{path: "test1", endpoint: "default", arity: 0},
		// Wrapping a subtree for an endpoint override must not change the
		// dotted address of its leaves.
		{path: "a.b.c", endpoint: "E2", arity: 0},
		// Innermost override wins.
		{path: "a.b.d.e", endpoint: "E3", arity: 1},
	}
	for _, tt := range tests {
		l, err := tree.Resolve(tt.path)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.path, err)
		}
		if l.Path != tt.path {
			t.Fatalf("Path = %q, want %q", l.Path, tt.path)
		}
		if l.Endpoint != tt.endpoint {
			t.Fatalf("Resolve(%q).Endpoint = %q, want %q", tt.path, l.Endpoint, tt.endpoint)
		}
		if l.Arity() != tt.arity {
			t.Fatalf("Resolve(%q).Arity = %d, want %d", tt.path, l.Arity(), tt.arity)
		}
	}

	for _, missing := range []string{"", "nope", "a.b", "a.b.c.d", "a..b"} {
		if _, err := tree.Resolve(missing); !errors.Is(err, ErrRouteNotFound) {
			t.Fatalf("Resolve(%q): expected ErrRouteNotFound, got %v", missing, err)
		}
	}

	want := []string{"a.b.c", "a.b.d.e", "test1"}
	if got := tree.Paths(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Paths = %v, want %v", got, want)
	}
}

func TestDispatchInvokesHandler(t *testing.T) {
	t.Parallel()
	var gotName string
	var gotCount int
	tree, err := New(Group{
		"report": Group{
			"send": Handler(func(ctx context.Context, name string, count int) {
				gotName = name
				gotCount = count
			}),
		},
	}, "default")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tree.Dispatch(context.Background(), "report.send", encode(t, "daily", 3), decoder()); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotName != "daily" || gotCount != 3 {
		t.Fatalf("handler saw (%q, %d)", gotName, gotCount)
	}
}

func TestDispatchArityMismatch(t *testing.T) {
	t.Parallel()
	tree, err := New(Group{
		"one": Handler(func(ctx context.Context, s string) {}),
	}, "default")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tree.Dispatch(context.Background(), "one", encode(t, "a", "b"), decoder()); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ErrArityMismatch, got %v", err)
	}
	if err := tree.Dispatch(context.Background(), "one", encode(t), decoder()); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("expected ErrArityMismatch for missing args, got %v", err)
	}
}

func TestDispatchBadArguments(t *testing.T) {
	t.Parallel()
	tree, err := New(Group{
		"typed": Handler(func(ctx context.Context, n int) {}),
	}, "default")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tree.Dispatch(context.Background(), "typed", encode(t, "not a number"), decoder()); !errors.Is(err, ErrBadArguments) {
		t.Fatalf("expected ErrBadArguments, got %v", err)
	}
}

func TestDispatchIsolatesPanics(t *testing.T) {
	t.Parallel()
	var reportedPath string
	var reported any
	tree, err := New(Group{
		"boom": Handler(func(ctx context.Context) { panic("kaboom") }),
		"ok":   Handler(func(ctx context.Context) {}),
	}, "default", WithFailureHook(func(path string, v any, stack string) {
		reportedPath = path
		reported = v
	}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tree.Dispatch(context.Background(), "boom", encode(t), decoder()); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if reportedPath != "boom" || reported != "kaboom" {
		t.Fatalf("failure hook saw (%q, %v)", reportedPath, reported)
	}

	// One handler's panic must not poison subsequent dispatches.
	if err := tree.Dispatch(context.Background(), "ok", encode(t), decoder()); err != nil {
		t.Fatalf("Dispatch after panic: %v", err)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("db offline")
	var reported any
	tree, err := New(Group{
		"job": Handler(func(ctx context.Context) error { return sentinel }),
	}, "default", WithFailureHook(func(path string, v any, stack string) { reported = v }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := tree.Dispatch(context.Background(), "job", encode(t), decoder()); !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}
	if reported != sentinel {
		t.Fatalf("failure hook saw %v, want %v", reported, sentinel)
	}
}

func TestNewRejectsBadRegistrations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		routes Group
	}{
		{name: "not a function", routes: Group{"x": Handler("nope")}},
		{name: "missing context", routes: Group{"x": Handler(func(s string) {})}},
		{name: "bad return", routes: Group{"x": Handler(func(ctx context.Context) int { return 0 })}},
		{name: "variadic", routes: Group{"x": Handler(func(ctx context.Context, rest ...string) {})}},
		{name: "empty segment", routes: Group{"": Handler(func(ctx context.Context) {})}},
		{name: "dotted segment", routes: Group{"a.b": Handler(func(ctx context.Context) {})}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.routes, "default"); err == nil {
				t.Fatal("expected construction error")
			}
		})
	}
}
