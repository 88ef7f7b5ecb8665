package facets

// Arity is the number of arguments a property callback takes.
type Arity int

// Callback arities.
const (
	Arity0 Arity = iota
	Arity1
	Arity2
	Arity3
)

// Getter is a property read callback together with its arity.
type Getter struct {
	arity Arity
	call  func(f *Facet, h *Host, name string) (any, error)
}

// Arity reports how many arguments the callback takes.
func (g Getter) Arity() Arity { return g.arity }

// Get0 wraps a getter taking no arguments.
func Get0(fn func() (any, error)) Getter {
	return Getter{Arity0, func(*Facet, *Host, string) (any, error) { return fn() }}
}

// Get1 wraps a getter taking the host.
func Get1(fn func(h *Host) (any, error)) Getter {
	return Getter{Arity1, func(_ *Facet, h *Host, _ string) (any, error) { return fn(h) }}
}

// Get2 wraps a getter taking the host and attribute name.
func Get2(fn func(h *Host, name string) (any, error)) Getter {
	return Getter{Arity2, func(_ *Facet, h *Host, name string) (any, error) { return fn(h, name) }}
}

// Get3 wraps a getter taking the host, attribute name and facet.
func Get3(fn func(h *Host, name string, f *Facet) (any, error)) Getter {
	return Getter{Arity3, func(f *Facet, h *Host, name string) (any, error) { return fn(h, name, f) }}
}

// Setter is a property write callback together with its arity.
type Setter struct {
	arity Arity
	call  func(h *Host, name string, v any) error
}

// Arity reports how many arguments the callback takes.
func (s Setter) Arity() Arity { return s.arity }

// Set0 wraps a setter that ignores the value.
func Set0(fn func() error) Setter {
	return Setter{Arity0, func(*Host, string, any) error { return fn() }}
}

// Set1 wraps a setter taking the value.
func Set1(fn func(v any) error) Setter {
	return Setter{Arity1, func(_ *Host, _ string, v any) error { return fn(v) }}
}

// Set2 wraps a setter taking the host and value.
func Set2(fn func(h *Host, v any) error) Setter {
	return Setter{Arity2, func(h *Host, _ string, v any) error { return fn(h, v) }}
}

// Set3 wraps a setter taking the host, attribute name and value.
func Set3(fn func(h *Host, name string, v any) error) Setter {
	return Setter{Arity3, func(h *Host, name string, v any) error { return fn(h, name, v) }}
}

// Check is a property validator with the setter calling convention. Unlike
// Function, its errors are returned unchanged.
type Check struct {
	arity Arity
	call  func(h *Host, name string, v any) (any, error)
}

// Arity reports how many arguments the callback takes.
func (c Check) Arity() Arity { return c.arity }

// Validate implements Validator.
func (c Check) Validate(_ *Facet, h *Host, name string, v any) (any, error) {
	return c.call(h, name, v)
}

// Check0 wraps a validator that produces the value to store.
func Check0(fn func() (any, error)) Check {
	return Check{Arity0, func(*Host, string, any) (any, error) { return fn() }}
}

// Check1 wraps a validator taking the value.
func Check1(fn func(v any) (any, error)) Check {
	return Check{Arity1, func(_ *Host, _ string, v any) (any, error) { return fn(v) }}
}

// Check2 wraps a validator taking the host and value.
func Check2(fn func(h *Host, v any) (any, error)) Check {
	return Check{Arity2, func(h *Host, _ string, v any) (any, error) { return fn(h, v) }}
}

// Check3 wraps a validator taking the host, attribute name and value.
func Check3(fn func(h *Host, name string, v any) (any, error)) Check {
	return Check{Arity3, func(h *Host, name string, v any) (any, error) { return fn(h, name, v) }}
}

func getProperty(f *Facet, h *Host, name string) (any, error) {
	return f.getter.call(f, h, name)
}

func setProperty(fo, fd *Facet, h *Host, name string, v any) error {
	if v == deleted {
		return attributeError(h, name, ErrDeleteProperty)
	}
	if fd.setter.call == nil {
		return attributeError(h, name, ErrReadOnly)
	}
	v, err := fd.validate(h, name, v)
	if err != nil {
		return err
	}
	return fd.setter.call(h, name, v)
}
