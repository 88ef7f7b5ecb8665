package facets

import "maps"

// DefaultSpec computes the value of an attribute that has never been
// assigned.
type DefaultSpec interface {
	value(f *Facet, h *Host, name string) (any, error)
}

type literalDefault struct{ v any }

func (d literalDefault) value(*Facet, *Host, string) (any, error) { return d.v, nil }

// Literal returns v itself on every read. Mutable values are shared; use
// List or Map for containers.
func Literal(v any) DefaultSpec { return literalDefault{v: v} }

type selfDefault struct{}

func (selfDefault) value(_ *Facet, h *Host, _ string) (any, error) { return h, nil }

// Self defaults an attribute to the host that owns it.
func Self() DefaultSpec { return selfDefault{} }

type listDefault struct{ items []any }

func (d listDefault) value(*Facet, *Host, string) (any, error) {
	out := make([]any, len(d.items))
	copy(out, d.items)
	return out, nil
}

// List defaults to a fresh copy of items on every read.
func List(items ...any) DefaultSpec { return listDefault{items: items} }

type mapDefault struct{ m map[string]any }

func (d mapDefault) value(*Facet, *Host, string) (any, error) {
	out := make(map[string]any, len(d.m))
	maps.Copy(out, d.m)
	return out, nil
}

// Map defaults to a fresh copy of m on every read.
func Map(m map[string]any) DefaultSpec { return mapDefault{m: m} }

type factoryDefault struct {
	fn   func(args ...any) (any, error)
	args []any
}

func (d factoryDefault) value(f *Facet, h *Host, name string) (any, error) {
	v, err := d.fn(d.args...)
	if err != nil {
		return nil, err
	}
	return f.validate(h, name, v)
}

// Factory calls fn with fixed arguments and validates the result.
func Factory(fn func(args ...any) (any, error), args ...any) DefaultSpec {
	return factoryDefault{fn: fn, args: args}
}

type callDefault struct {
	fn     func(args []any, kw map[string]any) (any, error)
	args   []any
	kwargs map[string]any
}

func (d callDefault) value(*Facet, *Host, string) (any, error) {
	return d.fn(d.args, d.kwargs)
}

// Call invokes fn with positional and keyword arguments. The result is used
// as is.
func Call(fn func(args []any, kw map[string]any) (any, error), args []any, kw map[string]any) DefaultSpec {
	return callDefault{fn: fn, args: args, kwargs: kw}
}

type computedDefault struct {
	fn func(h *Host) (any, error)
}

func (d computedDefault) value(f *Facet, h *Host, name string) (any, error) {
	v, err := d.fn(h)
	if err != nil {
		return nil, err
	}
	return f.validate(h, name, v)
}

// Computed calls fn with the host and passes the result through the facet's
// validator, if any.
func Computed(fn func(h *Host) (any, error)) DefaultSpec {
	return computedDefault{fn: fn}
}

func isUndefinedDefault(d DefaultSpec) bool {
	l, ok := d.(literalDefault)
	return ok && l.v == Undefined
}
