package facets

import (
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"
)

// FacetAdded is the event attribute every class carries. Its listeners are
// told the name of each facet installed by the prefix resolver.
const FacetAdded = "facet_added"

// PrefixResolver supplies facets for names the class table does not know.
// It returns nil, nil when it has nothing for name.
type PrefixResolver interface {
	ResolvePrefix(h *Host, name string, isSet bool) (*Facet, error)
}

// PrefixResolverFunc adapts a function to PrefixResolver.
type PrefixResolverFunc func(h *Host, name string, isSet bool) (*Facet, error)

// ResolvePrefix implements PrefixResolver.
func (fn PrefixResolverFunc) ResolvePrefix(h *Host, name string, isSet bool) (*Facet, error) {
	return fn(h, name, isSet)
}

// Hooks are the construction callbacks run by Class.New, in field order
// around the initial assignments and monitors. Any of them may be nil.
type Hooks struct {
	PreListeners  func(h *Host) error
	PostListeners func(h *Host) error
	Finished      func(h *Host) error
}

// Class holds the facet table shared by all of its hosts. After the class
// is defined, the table only ever gains entries.
type Class struct {
	name     string
	base     *Class
	facets   map[string]*Facet
	own      map[string]bool
	prefix   string
	resolver PrefixResolver
	hooks    Hooks
	log      zerolog.Logger
}

// ClassOption configures a Class.
type ClassOption func(*Class)

// WithBase makes the class inherit base's facets and hooks.
func WithBase(base *Class) ClassOption {
	return func(c *Class) {
		c.base = base
		c.facets = maps.Clone(base.facets)
		c.prefix = base.prefix
		c.resolver = base.resolver
		c.hooks = base.hooks
		c.log = base.log
	}
}

// WithClassPrefix sets the prefix used by NamingClassPrefixName.
func WithClassPrefix(prefix string) ClassOption {
	return func(c *Class) { c.prefix = prefix }
}

// WithResolver sets the prefix resolver consulted for unknown names.
func WithResolver(r PrefixResolver) ClassOption {
	return func(c *Class) { c.resolver = r }
}

// WithHooks sets the construction hooks.
func WithHooks(h Hooks) ClassOption {
	return func(c *Class) { c.hooks = h }
}

// WithLogger sets the logger used for engine debug output.
func WithLogger(l zerolog.Logger) ClassOption {
	return func(c *Class) { c.log = l }
}

// NewClass creates a class. Every class starts with the FacetAdded event.
func NewClass(name string, opts ...ClassOption) *Class {
	c := &Class{
		name:   name,
		facets: map[string]*Facet{},
		own:    map[string]bool{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := c.facets[FacetAdded]; !ok {
		c.facets[FacetAdded] = Event()
	}
	return c
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Base returns the parent class, or nil.
func (c *Class) Base() *Class { return c.base }

// Prefix returns the class prefix.
func (c *Class) Prefix() string { return c.prefix }

// IsSubclassOf reports whether c is other or derives from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.base {
		if k == other {
			return true
		}
	}
	return false
}

// Define adds a facet to the class. A name may be redefined only if it was
// inherited.
func (c *Class) Define(name string, f *Facet) error {
	if f == nil {
		return fmt.Errorf("define %s.%s: %w", c.name, name, ErrNilFacet)
	}
	if c.own[name] {
		return fmt.Errorf("define %s.%s: %w", c.name, name, ErrFacetDefined)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("define %s.%s: %w", c.name, name, err)
	}
	c.facets[name] = f
	c.own[name] = true
	return nil
}

// MustDefine is Define for static class declarations; it panics on error.
func (c *Class) MustDefine(name string, f *Facet) *Class {
	if err := c.Define(name, f); err != nil {
		panic(err)
	}
	return c
}

// Facet returns the class-level facet for name, or nil.
func (c *Class) Facet(name string) *Facet { return c.facets[name] }

// Names returns the class facet names in sorted order.
func (c *Class) Names() []string {
	return slices.Sorted(maps.Keys(c.facets))
}

// insert caches a resolved facet. Existing entries are never replaced.
func (c *Class) insert(name string, f *Facet) {
	if _, ok := c.facets[name]; !ok {
		c.facets[name] = f
	}
}

// Assignment is an initial value passed to Class.New.
type Assignment struct {
	Name  string
	Value any
}

// With builds an Assignment.
func With(name string, v any) Assignment { return Assignment{Name: name, Value: v} }

// New constructs a host: pre-listener hook, initial assignments in order,
// post-listener hook, matching monitors, finished hook.
func (c *Class) New(inits ...Assignment) (*Host, error) {
	h := newHost(c)
	if c.hooks.PreListeners != nil {
		if err := c.hooks.PreListeners(h); err != nil {
			return nil, err
		}
	}
	for _, a := range inits {
		if err := h.Set(a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	if c.hooks.PostListeners != nil {
		if err := c.hooks.PostListeners(h); err != nil {
			return nil, err
		}
	}
	for _, m := range currentHooks().monitors {
		if m.Match == nil || m.Match(c) {
			if err := m.Fn(h); err != nil {
				return nil, err
			}
		}
	}
	if c.hooks.Finished != nil {
		if err := c.hooks.Finished(h); err != nil {
			return nil, err
		}
	}
	h.flags |= hostInited
	return h, nil
}

// MustNew is New for tests and static setup; it panics on error.
func (c *Class) MustNew(inits ...Assignment) *Host {
	h, err := c.New(inits...)
	if err != nil {
		panic(err)
	}
	return h
}
