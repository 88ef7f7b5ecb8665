package facets

import (
	"fmt"
	"slices"
)

// Flag holds the boolean configuration bits of a facet.
type Flag uint32

// Facet flags.
const (
	// FlagProperty marks a facet whose value is computed by a getter.
	FlagProperty Flag = 1 << iota
	// FlagModifyDelegate makes delegated writes land on the final delegate.
	FlagModifyDelegate
	// FlagIdentity restricts change detection to object identity.
	FlagIdentity
	// FlagSetOriginal stores the value as assigned, before validation.
	FlagSetOriginal
	// FlagPostSetOriginal passes the pre-validation value to the post-set hook.
	FlagPostSetOriginal
	// FlagValueAllowed lets a FacetValue assignment replace the facet.
	FlagValueAllowed
	// FlagValueProperty marks a value override that behaves as a property.
	FlagValueProperty
	// FlagMapped skips the post-set hook when a default is initialized.
	FlagMapped
	// FlagNoValueTest treats every write as a change.
	FlagNoValueTest
)

// Naming selects how a delegated facet derives the attribute name to use on
// its delegate.
type Naming int

// Delegate naming strategies.
const (
	NamingSame Naming = iota
	NamingPrefix
	NamingPrefixName
	NamingClassPrefixName
)

var namingNames = map[Naming]string{
	NamingSame:            "same",
	NamingPrefix:          "prefix",
	NamingPrefixName:      "prefix_name",
	NamingClassPrefixName: "class_prefix_name",
}

func (n Naming) String() string {
	if s, ok := namingNames[n]; ok {
		return s
	}
	return "unknown"
}

// ParseNaming maps a naming strategy name back to its Naming.
func ParseNaming(s string) (Naming, bool) {
	for n, name := range namingNames {
		if name == s {
			return n, true
		}
	}
	return 0, false
}

// PostSetFunc runs after a changed value has been stored.
type PostSetFunc func(h *Host, name string, v any) error

// Facet is a reusable attribute definition. Facets are configured when a
// class is defined and treated as immutable afterwards; instance-specific
// variations are made on clones.
type Facet struct {
	kind      Kind
	validator Validator
	def       DefaultSpec
	delegate  string
	prefix    string
	naming    Naming
	listeners []*Registration
	handler   any
	flags     Flag
	postSet   PostSetFunc
	getter    Getter
	setter    Setter
}

// FacetOption configures a Facet.
type FacetOption func(*Facet)

// New builds a facet of the given kind.
func New(kind Kind, opts ...FacetOption) *Facet {
	f := &Facet{kind: kind, def: Literal(nil)}
	for _, opt := range opts {
		opt(f)
	}
	if f.def == nil {
		f.def = Literal(nil)
	}
	if kind == KindProperty {
		f.flags |= FlagProperty
	}
	return f
}

// Plain returns a stored, validated, notifying facet.
func Plain(opts ...FacetOption) *Facet { return New(KindPlain, opts...) }

// Event returns a write-only facet that only notifies.
func Event(opts ...FacetOption) *Facet { return New(KindEvent, opts...) }

// Passthrough returns a facet that stores values without any processing.
func Passthrough(opts ...FacetOption) *Facet { return New(KindPassthrough, opts...) }

// Disallow returns a facet that rejects every access.
func Disallow() *Facet { return New(KindDisallowed) }

// ReadOnly returns a facet that may be assigned once.
func ReadOnly(opts ...FacetOption) *Facet {
	return New(KindReadOnly, append([]FacetOption{WithDefault(Literal(Undefined))}, opts...)...)
}

// Constant returns a facet whose value is fixed.
func Constant(v any, opts ...FacetOption) *Facet {
	return New(KindConstant, append(opts, WithDefault(Literal(v)))...)
}

// Delegate returns a facet that forwards to the host stored in the
// attribute named delegate.
func Delegate(delegate string, naming Naming, opts ...FacetOption) *Facet {
	return New(KindDelegated, append([]FacetOption{func(f *Facet) {
		f.delegate = delegate
		f.naming = naming
	}}, opts...)...)
}

// Property returns a facet backed by a getter and an optional setter.
func Property(get Getter, set Setter, opts ...FacetOption) *Facet {
	return New(KindProperty, append([]FacetOption{func(f *Facet) {
		f.getter = get
		f.setter = set
	}}, opts...)...)
}

// WithValidator sets the facet's validator.
func WithValidator(v Validator) FacetOption {
	return func(f *Facet) { f.validator = v }
}

// WithDefault sets how the facet computes a value that was never assigned.
func WithDefault(d DefaultSpec) FacetOption {
	return func(f *Facet) { f.def = d }
}

// WithValue is shorthand for WithDefault(Literal(v)).
func WithValue(v any) FacetOption { return WithDefault(Literal(v)) }

// WithPrefix sets the delegate prefix used by the prefix naming strategies.
func WithPrefix(prefix string) FacetOption {
	return func(f *Facet) { f.prefix = prefix }
}

// WithFlags sets flag bits.
func WithFlags(flags Flag) FacetOption {
	return func(f *Facet) { f.flags |= flags }
}

// ModifyDelegate makes delegated writes update the final delegate.
func ModifyDelegate() FacetOption { return WithFlags(FlagModifyDelegate) }

// WithHandler attaches the side payload used to describe the facet in
// errors and to register value overrides.
func WithHandler(h any) FacetOption {
	return func(f *Facet) { f.handler = h }
}

// WithPostSet sets the hook run after a changed value is stored.
func WithPostSet(fn PostSetFunc) FacetOption {
	return func(f *Facet) { f.postSet = fn }
}

// WithListener appends a class-level listener.
func WithListener(l Listener) FacetOption {
	return func(f *Facet) { f.listeners = append(f.listeners, &Registration{listener: l}) }
}

// Kind returns the facet's behavior kind.
func (f *Facet) Kind() Kind { return f.kind }

// Flags returns the facet's flag bits.
func (f *Facet) Flags() Flag { return f.flags }

// Handler returns the side payload.
func (f *Facet) Handler() any { return f.handler }

// Validator returns the facet's validator, or nil.
func (f *Facet) Validator() Validator { return f.validator }

// DelegateName returns the attribute holding the delegate.
func (f *Facet) DelegateName() string { return f.delegate }

// Naming returns the delegate naming strategy.
func (f *Facet) Naming() Naming { return f.naming }

// Listeners returns the number of facet-level listeners.
func (f *Facet) Listeners() int { return len(f.listeners) }

// Validate checks the facet's configuration.
func (f *Facet) Validate() error {
	if f.kind < 0 || f.kind >= kindCount {
		return fmt.Errorf("%w: %d", ErrKindUnknown, f.kind)
	}
	switch f.kind {
	case KindDelegated:
		if f.delegate == "" {
			return ErrDelegateName
		}
		if _, ok := namingNames[f.naming]; !ok {
			return fmt.Errorf("%w: %d", ErrNamingStrategy, f.naming)
		}
	case KindProperty:
		if f.getter.call == nil {
			return ErrPropertyGetter
		}
	}
	return nil
}

// Clone returns a field-for-field copy with its own listener list.
func (f *Facet) Clone() *Facet {
	c := *f
	c.listeners = slices.Clone(f.listeners)
	return &c
}

// OnChange registers a listener on this facet. Registering on a class-level
// facet affects every instance that has not specialized it; use
// Host.Observe for a single instance.
func (f *Facet) OnChange(l Listener) *Registration {
	r := &Registration{listener: l}
	f.listeners = append(f.listeners, r)
	return r
}

// RemoveListener unregisters r. It reports whether r was registered.
func (f *Facet) RemoveListener(r *Registration) bool {
	var ok bool
	f.listeners, ok = removeRegistration(f.listeners, r)
	return ok
}

func (f *Facet) get(h *Host, name string) (any, error) {
	return getters[f.kind](f, h, name)
}

func (f *Facet) set(h *Host, name string, v any) error {
	return setters[f.kind](f, f, h, name, v)
}

func (f *Facet) validate(h *Host, name string, v any) (any, error) {
	if f.validator == nil {
		return v, nil
	}
	return f.validator.Validate(f, h, name, v)
}

func (f *Facet) changed(old, v any) bool {
	if f.flags&FlagIdentity != 0 {
		return !identical(old, v)
	}
	return !equal(old, v)
}

// delegateNameFor maps name to the attribute to use on the delegate of h.
// The class prefix is that of h, so each hop of a chain applies its own.
func (f *Facet) delegateNameFor(h *Host, name string) string {
	switch f.naming {
	case NamingPrefix:
		return f.prefix
	case NamingPrefixName:
		return f.prefix + name
	case NamingClassPrefixName:
		if p := h.class.prefix; p != "" {
			return p + name
		}
	}
	return name
}

// Cast validates v outside of an assignment. h may be nil. Failures carry
// the handler's description of the accepted values but no attribute name.
func (f *Facet) Cast(h *Host, v any) (any, error) {
	if f.validator == nil {
		return v, nil
	}
	r, err := f.validator.Validate(f, h, "", v)
	if err != nil {
		return nil, validationError(f, nil, "", v, nil)
	}
	return r, nil
}
