package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/mesh-intelligence/facets/pkg/facets"
)

// Compilation errors.
var (
	ErrClassUnnamed      = errors.New("class has no name")
	ErrClassDuplicate    = errors.New("class defined twice")
	ErrBaseUnknown       = errors.New("base class not defined before use")
	ErrKindUnsupported   = errors.New("kind cannot be declared in a schema")
	ErrFlagUnknown       = errors.New("unknown facet flag")
	ErrValidatorUnknown  = errors.New("unknown validator type")
	ErrValidatorArgument = errors.New("invalid validator argument")
	ErrGoTypeUnknown     = errors.New("unknown go_type")
)

var flagNames = map[string]facets.Flag{
	"identity":          facets.FlagIdentity,
	"set_original":      facets.FlagSetOriginal,
	"post_set_original": facets.FlagPostSetOriginal,
	"value_allowed":     facets.FlagValueAllowed,
	"mapped":            facets.FlagMapped,
	"no_value_test":     facets.FlagNoValueTest,
	"modify_delegate":   facets.FlagModifyDelegate,
}

var goTypes = map[string]reflect.Type{
	"bool":    reflect.TypeOf(false),
	"int":     reflect.TypeOf(0),
	"int64":   reflect.TypeOf(int64(0)),
	"uint":    reflect.TypeOf(uint(0)),
	"float32": reflect.TypeOf(float32(0)),
	"float64": reflect.TypeOf(0.0),
	"string":  reflect.TypeOf(""),
	"list":    reflect.TypeOf([]any(nil)),
	"map":     reflect.TypeOf(map[string]any(nil)),
}

// Info is a facet handler that describes accepted values in validation
// errors.
type Info string

// Info implements facets.Infoer.
func (i Info) Info() string { return string(i) }

// Registry holds compiled classes by name.
type Registry struct {
	classes map[string]*facets.Class
	order   []string
}

// Class returns the named class, or nil.
func (r *Registry) Class(name string) *facets.Class { return r.classes[name] }

// Names returns class names in declaration order.
func (r *Registry) Names() []string { return slices.Clone(r.order) }

// ObserveAll is a class option attaching ls, in order, to every new host
// before its initial assignments run. It replaces the class hooks, so pass
// every listener in one call.
func ObserveAll(ls ...facets.Listener) facets.ClassOption {
	return facets.WithHooks(facets.Hooks{
		PreListeners: func(h *facets.Host) error {
			for _, l := range ls {
				h.OnAnyChange(l)
			}
			return nil
		},
	})
}

// Compile builds every class in s. opts are applied to each class, after
// the base class when there is one.
func Compile(s *Schema, opts ...facets.ClassOption) (*Registry, error) {
	r := &Registry{classes: map[string]*facets.Class{}}
	for _, cs := range s.Classes {
		c, err := r.compileClass(cs, opts)
		if err != nil {
			return nil, err
		}
		r.classes[cs.Name] = c
		r.order = append(r.order, cs.Name)
	}
	return r, nil
}

func (r *Registry) compileClass(cs ClassSpec, opts []facets.ClassOption) (*facets.Class, error) {
	if cs.Name == "" {
		return nil, ErrClassUnnamed
	}
	if _, ok := r.classes[cs.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrClassDuplicate, cs.Name)
	}
	var classOpts []facets.ClassOption
	if cs.Base != "" {
		base, ok := r.classes[cs.Base]
		if !ok {
			return nil, fmt.Errorf("class %s: %w: %s", cs.Name, ErrBaseUnknown, cs.Base)
		}
		classOpts = append(classOpts, facets.WithBase(base))
	}
	classOpts = append(classOpts, opts...)
	if cs.Prefix != "" {
		classOpts = append(classOpts, facets.WithClassPrefix(cs.Prefix))
	}
	c := facets.NewClass(cs.Name, classOpts...)

	names := make([]string, 0, len(cs.Facets))
	for n := range cs.Facets {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		f, err := CompileFacet(cs.Facets[n])
		if err != nil {
			return nil, fmt.Errorf("class %s facet %s: %w", cs.Name, n, err)
		}
		if err := c.Define(n, f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// CompileFacet builds a facet from its declaration.
func CompileFacet(fs FacetSpec) (*facets.Facet, error) {
	kind := facets.KindPlain
	if fs.Kind != "" {
		k, ok := facets.ParseKind(fs.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", facets.ErrKindUnknown, fs.Kind)
		}
		kind = k
	}
	if kind == facets.KindProperty {
		return nil, fmt.Errorf("%w: %s needs Go callbacks", ErrKindUnsupported, kind)
	}

	var opts []facets.FacetOption
	if fs.Validator != nil {
		v, err := CompileValidator(*fs.Validator)
		if err != nil {
			return nil, err
		}
		opts = append(opts, facets.WithValidator(v))
	}
	if fs.Default != nil {
		opts = append(opts, facets.WithDefault(defaultFor(fs.Default)))
	}
	if fs.Prefix != "" {
		opts = append(opts, facets.WithPrefix(fs.Prefix))
	}
	if fs.Info != "" {
		opts = append(opts, facets.WithHandler(Info(fs.Info)))
	}
	var flags facets.Flag
	for _, name := range fs.Flags {
		fl, ok := flagNames[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrFlagUnknown, name)
		}
		flags |= fl
	}
	if fs.ModifyDelegate {
		flags |= facets.FlagModifyDelegate
	}
	if flags != 0 {
		opts = append(opts, facets.WithFlags(flags))
	}

	switch kind {
	case facets.KindDelegated:
		naming := facets.NamingSame
		if fs.Naming != "" {
			n, ok := facets.ParseNaming(fs.Naming)
			if !ok {
				return nil, fmt.Errorf("%w: %q", facets.ErrNamingStrategy, fs.Naming)
			}
			naming = n
		}
		return validated(facets.Delegate(fs.Delegate, naming, opts...))
	case facets.KindReadOnly:
		return validated(facets.ReadOnly(opts...))
	case facets.KindConstant:
		return validated(facets.Constant(fs.Default, opts...))
	}
	return validated(facets.New(kind, opts...))
}

func validated(f *facets.Facet) (*facets.Facet, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// defaultFor gives container defaults a fresh copy per host.
func defaultFor(v any) facets.DefaultSpec {
	switch x := v.(type) {
	case []any:
		return facets.List(x...)
	case map[string]any:
		return facets.Map(x)
	}
	return facets.Literal(v)
}

// CompileValidator builds a validator from its declaration.
func CompileValidator(vs ValidatorSpec) (facets.Validator, error) {
	v, err := compileValidator(vs)
	if err != nil {
		return nil, fmt.Errorf("validator %q: %w", vs.Type, err)
	}
	if vs.Slow {
		return facets.Slow(v), nil
	}
	return v, nil
}

func compileValidator(vs ValidatorSpec) (facets.Validator, error) {
	switch vs.Type {
	case "int_range":
		return intRange(vs)
	case "float_range":
		return facets.FloatRange(bound(vs.Low, math.Inf(-1)), bound(vs.High, math.Inf(1)), rangeOpts(vs)...), nil
	case "enum":
		if len(vs.Values) == 0 {
			return nil, fmt.Errorf("%w: enum needs values", ErrValidatorArgument)
		}
		return facets.Enum{Values: vs.Values}, nil
	case "mapped":
		return facets.Mapped{Map: anyKeys(vs.Map)}, nil
	case "prefix_map":
		m := anyKeys(vs.Map)
		return facets.PrefixMap{Map: m, Fallback: uniquePrefix(vs.Map)}, nil
	case "exact_type", "castable", "coercible":
		return typed(vs)
	case "same_type_as_host":
		return facets.SameTypeAsHost{Nullable: vs.Nullable}, nil
	case "tuple":
		slots, err := compileAll(vs.Slots)
		if err != nil {
			return nil, err
		}
		return facets.Tuple{Slots: slots}, nil
	case "composite":
		parts, err := compileAll(vs.Parts)
		if err != nil {
			return nil, err
		}
		return facets.Composite{Parts: parts}, nil
	}
	return nil, ErrValidatorUnknown
}

func compileAll(specs []ValidatorSpec) ([]facets.Validator, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no components", ErrValidatorArgument)
	}
	out := make([]facets.Validator, len(specs))
	for i, s := range specs {
		v, err := CompileValidator(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func intRange(vs ValidatorSpec) (facets.Validator, error) {
	opts := rangeOpts(vs)
	var low, high int64
	for _, b := range []struct {
		p   *float64
		dst *int64
	}{{vs.Low, &low}, {vs.High, &high}} {
		if b.p == nil {
			continue
		}
		if *b.p != math.Trunc(*b.p) {
			return nil, fmt.Errorf("%w: integer bound %v", ErrValidatorArgument, *b.p)
		}
		*b.dst = int64(*b.p)
	}
	return facets.IntRange(low, high, opts...), nil
}

func rangeOpts(vs ValidatorSpec) []facets.RangeOption {
	var opts []facets.RangeOption
	if vs.Low == nil {
		opts = append(opts, facets.NoLow())
	}
	if vs.High == nil {
		opts = append(opts, facets.NoHigh())
	}
	if vs.ExcludeLow {
		opts = append(opts, facets.ExcludeLow())
	}
	if vs.ExcludeHigh {
		opts = append(opts, facets.ExcludeHigh())
	}
	return opts
}

func bound(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func typed(vs ValidatorSpec) (facets.Validator, error) {
	t, err := goType(vs.GoType)
	if err != nil {
		return nil, err
	}
	switch vs.Type {
	case "exact_type":
		return facets.ExactType{Type: t, Nullable: vs.Nullable}, nil
	case "castable":
		return facets.Castable{Type: t}, nil
	}
	c := facets.Coercible{Type: t}
	for _, n := range vs.Compatible {
		ct, err := goType(n)
		if err != nil {
			return nil, err
		}
		c.Compatible = append(c.Compatible, ct)
	}
	for _, n := range vs.Coerce {
		ct, err := goType(n)
		if err != nil {
			return nil, err
		}
		c.Coercible = append(c.Coercible, ct)
	}
	return c, nil
}

func goType(name string) (reflect.Type, error) {
	t, ok := goTypes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGoTypeUnknown, name)
	}
	return t, nil
}

func anyKeys(m map[string]any) map[any]any {
	out := make(map[any]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// uniquePrefix maps a string that is a prefix of exactly one key to that
// key's value.
func uniquePrefix(m map[string]any) facets.Validator {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return facets.Function(func(_ *facets.Host, _ string, v any) (any, error) {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%v is not a key prefix", v)
		}
		var match []string
		for _, k := range keys {
			if strings.HasPrefix(k, s) {
				match = append(match, k)
			}
		}
		switch len(match) {
		case 1:
			return m[match[0]], nil
		case 0:
			return nil, fmt.Errorf("%q matches no key", s)
		}
		return nil, fmt.Errorf("%q is ambiguous: %s", s, strings.Join(match, ", "))
	})
}
