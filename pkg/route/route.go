// Package route maps dotted path strings to registered handler functions.
//
// The tree is built once from a nested Group literal and is immutable
// afterwards, so concurrent lookups need no synchronization. Branches may be
// wrapped with Endpoint() to pin every handler beneath them to a specific
// delivery endpoint; the innermost wrapper wins and wrapping never changes
// the dotted path used to address a handler.
package route

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"
)

var (
	ErrRouteNotFound = errors.New("route: not found")
	ErrArityMismatch = errors.New("route: argument count mismatch")
	ErrBadArguments  = errors.New("route: arguments do not decode into handler parameters")
	ErrHandlerFailed = errors.New("route: handler failed")
)

// Node is one entry in a route namespace: a Group, an Endpoint wrapper or a
// Handler leaf.
type Node interface {
	isNode()
}

// Group maps path segments to child nodes.
type Group map[string]Node

func (Group) isNode() {}

type leaf struct {
	fn any
}

func (leaf) isNode() {}

// Handler declares a leaf. fn must be a function whose first parameter is a
// context.Context; it may optionally return a single error.
func Handler(fn any) Node { return leaf{fn: fn} }

type override struct {
	endpoint string
	children Group
}

func (override) isNode() {}

// Endpoint wraps a Group so that every handler beneath it is delivered to
// the given endpoint id unless a nested Endpoint redeclares its own.
func Endpoint(id string, children Group) Node {
	return override{endpoint: id, children: children}
}

// Leaf is a resolved handler.
type Leaf struct {
	Path     string
	Endpoint string

	fn     reflect.Value
	in     []reflect.Type // parameters after the leading context.Context
	hasErr bool
}

// Arity is the number of job arguments the handler takes, excluding the
// leading context.
func (l *Leaf) Arity() int { return len(l.in) }

type node struct {
	leaf     *Leaf
	children map[string]*node
}

// Decoder materializes one still-encoded argument as a value of type t.
// It decouples the tree from the wire codec.
type Decoder func(raw []byte, t reflect.Type) (reflect.Value, error)

// FailureHook observes recovered handler panics and handler errors. It must
// not panic itself.
type FailureHook func(path string, v any, stack string)

// Tree is an immutable dotted-path router.
type Tree struct {
	root      *node
	onFailure FailureHook
}

// Option adjusts Tree construction.
type Option func(*Tree)

// WithFailureHook installs the failure reporter. The default discards.
func WithFailureHook(h FailureHook) Option {
	return func(t *Tree) {
		if h != nil {
			t.onFailure = h
		}
	}
}

var ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
var errType = reflect.TypeOf((*error)(nil)).Elem()

// New builds the tree. defaultEndpoint applies to every handler that no
// Endpoint wrapper covers. Registration mistakes (non-func handlers, missing
// context parameter, empty or dotted segment names) fail here, before any
// request is served.
func New(routes Group, defaultEndpoint string, opts ...Option) (*Tree, error) {
	t := &Tree{
		root:      &node{children: map[string]*node{}},
		onFailure: func(string, any, string) {},
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := build(t.root, routes, nil, defaultEndpoint); err != nil {
		return nil, err
	}
	return t, nil
}

func build(dst *node, g Group, prefix []string, endpoint string) error {
	for _, name := range sortedKeys(g) {
		if name == "" {
			return fmt.Errorf("route: empty segment under %q", strings.Join(prefix, "."))
		}
		if strings.Contains(name, ".") {
			return fmt.Errorf("route: segment %q must not contain '.'", name)
		}
		path := append(append([]string(nil), prefix...), name)
		child := &node{children: map[string]*node{}}
		dst.children[name] = child

		switch n := g[name].(type) {
		case Group:
			if err := build(child, n, path, endpoint); err != nil {
				return err
			}
		case override:
			if err := build(child, n.children, path, n.endpoint); err != nil {
				return err
			}
		case leaf:
			l, err := newLeaf(strings.Join(path, "."), endpoint, n.fn)
			if err != nil {
				return err
			}
			child.leaf = l
		default:
			return fmt.Errorf("route: %q: unsupported node %T", strings.Join(path, "."), g[name])
		}
	}
	return nil
}

func sortedKeys(g Group) []string {
	out := make([]string, 0, len(g))
	for k := range g {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func newLeaf(path, endpoint string, fn any) (*Leaf, error) {
	fv := reflect.ValueOf(fn)
	if !fv.IsValid() || fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("route: %q: handler must be a function, got %T", path, fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("route: %q: variadic handlers are not supported", path)
	}
	if ft.NumIn() < 1 || ft.In(0) != ctxType {
		return nil, fmt.Errorf("route: %q: handler must take context.Context as its first parameter", path)
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errType {
			return nil, fmt.Errorf("route: %q: handler may only return error", path)
		}
	default:
		return nil, fmt.Errorf("route: %q: handler may only return error", path)
	}

	in := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	return &Leaf{
		Path:     path,
		Endpoint: endpoint,
		fn:       fv,
		in:       in,
		hasErr:   ft.NumOut() == 1,
	}, nil
}

// Resolve walks the tree along the '.'-separated path.
func (t *Tree) Resolve(path string) (*Leaf, error) {
	cur := t.root
	for _, seg := range strings.Split(path, ".") {
		next, ok := cur.children[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, path)
		}
		cur = next
	}
	if cur.leaf == nil {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, path)
	}
	return cur.leaf, nil
}

// Paths lists every registered path in sorted order.
func (t *Tree) Paths() []string {
	var out []string
	var walk func(n *node)
	walk = func(n *node) {
		if n.leaf != nil {
			out = append(out, n.leaf.Path)
		}
		for _, name := range sortedNodeKeys(n.children) {
			walk(n.children[name])
		}
	}
	walk(t.root)
	sort.Strings(out)
	return out
}

func sortedNodeKeys(m map[string]*node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch resolves path, decodes rawArgs into the handler's parameter types
// and invokes it. A panicking or erroring handler is contained: the failure
// is reported through the failure hook and comes back as ErrHandlerFailed,
// never as a crash of the caller.
func (t *Tree) Dispatch(ctx context.Context, path string, rawArgs [][]byte, dec Decoder) error {
	l, err := t.Resolve(path)
	if err != nil {
		return err
	}
	if len(rawArgs) != len(l.in) {
		return fmt.Errorf("%w: %q takes %d, got %d", ErrArityMismatch, path, len(l.in), len(rawArgs))
	}

	args := make([]reflect.Value, 0, len(l.in)+1)
	args = append(args, reflect.ValueOf(ctx))
	for i, raw := range rawArgs {
		v, err := dec(raw, l.in[i])
		if err != nil {
			return fmt.Errorf("%w: arg %d of %q: %v", ErrBadArguments, i, path, err)
		}
		args = append(args, v)
	}

	return l.call(args, t.onFailure)
}

func (l *Leaf) call(args []reflect.Value, onFailure FailureHook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			onFailure(l.Path, r, stackFromPanic())
			err = fmt.Errorf("%w: %q panicked", ErrHandlerFailed, l.Path)
		}
	}()
	out := l.fn.Call(args)
	if l.hasErr && !out[0].IsNil() {
		herr := out[0].Interface().(error)
		onFailure(l.Path, herr, "")
		return fmt.Errorf("%w: %q: %v", ErrHandlerFailed, l.Path, herr)
	}
	return nil
}

func stackFromPanic() string {
	return string(debug.Stack())
}
