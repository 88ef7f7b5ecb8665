package facets

import (
	"fmt"
	"math"
	"reflect"

	"github.com/spf13/cast"
)

// Validator accepts, rejects or coerces a value assigned to a facet. The
// returned value is what gets stored.
type Validator interface {
	Validate(f *Facet, h *Host, name string, v any) (any, error)
}

// reject builds the uniform validation failure.
func reject(f *Facet, h *Host, name string, v any) error {
	return validationError(f, h, name, v, nil)
}

// ExactType accepts values whose dynamic type is exactly t, and nil when
// nullable is set.
type ExactType struct {
	Type     reflect.Type
	Nullable bool
}

func (x ExactType) check(v any) bool {
	return (x.Nullable && v == nil) || (v != nil && reflect.TypeOf(v) == x.Type)
}

// Validate implements Validator.
func (x ExactType) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x.check(v) {
		return v, nil
	}
	return nil, reject(f, h, name, v)
}

// InstanceOf accepts values assignable to t, which is usually an interface
// type, and nil when nullable is set.
type InstanceOf struct {
	Type     reflect.Type
	Nullable bool
}

func (x InstanceOf) check(v any) bool {
	return (x.Nullable && v == nil) || (v != nil && reflect.TypeOf(v).AssignableTo(x.Type))
}

// Validate implements Validator.
func (x InstanceOf) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x.check(v) {
		return v, nil
	}
	return nil, reject(f, h, name, v)
}

// SameTypeAsHost accepts hosts of the receiving host's class or a subclass.
type SameTypeAsHost struct {
	Nullable bool
}

func (x SameTypeAsHost) check(h *Host, v any) bool {
	if v == nil {
		return x.Nullable
	}
	o, ok := asHost(v)
	return ok && h != nil && o.class.IsSubclassOf(h.class)
}

// Validate implements Validator.
func (x SameTypeAsHost) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x.check(h, v) {
		return v, nil
	}
	return nil, reject(f, h, name, v)
}

// Range bound exclusion bits.
const (
	excludeLow  = 1
	excludeHigh = 2
)

type bounds struct {
	noLow, noHigh bool
	exclude       int
}

// RangeOption adjusts an IntRange or FloatRange.
type RangeOption func(*bounds)

// NoLow removes the lower bound.
func NoLow() RangeOption { return func(b *bounds) { b.noLow = true } }

// NoHigh removes the upper bound.
func NoHigh() RangeOption { return func(b *bounds) { b.noHigh = true } }

// ExcludeLow makes the lower bound exclusive.
func ExcludeLow() RangeOption { return func(b *bounds) { b.exclude |= excludeLow } }

// ExcludeHigh makes the upper bound exclusive.
func ExcludeHigh() RangeOption { return func(b *bounds) { b.exclude |= excludeHigh } }

// IntRangeValidator accepts integers within bounds.
type IntRangeValidator struct {
	Low, High int64
	bounds
}

// IntRange accepts any Go integer in [low, high], adjusted by opts.
func IntRange(low, high int64, opts ...RangeOption) *IntRangeValidator {
	r := &IntRangeValidator{Low: low, High: high}
	for _, o := range opts {
		o(&r.bounds)
	}
	return r
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func (r *IntRangeValidator) check(v any) bool {
	n, ok := asInt64(v)
	if !ok {
		return false
	}
	if !r.noLow {
		if r.exclude&excludeLow != 0 && n <= r.Low || n < r.Low {
			return false
		}
	}
	if !r.noHigh {
		if r.exclude&excludeHigh != 0 && n >= r.High || n > r.High {
			return false
		}
	}
	return true
}

// Validate implements Validator.
func (r *IntRangeValidator) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if r.check(v) {
		return v, nil
	}
	return nil, reject(f, h, name, v)
}

// FloatRangeValidator accepts floats within bounds. Integers are promoted.
type FloatRangeValidator struct {
	Low, High float64
	bounds
}

// FloatRange accepts floats and integers in [low, high], adjusted by opts.
// Accepted values are returned as float64.
func FloatRange(low, high float64, opts ...RangeOption) *FloatRangeValidator {
	r := &FloatRangeValidator{Low: low, High: high}
	for _, o := range opts {
		o(&r.bounds)
	}
	return r
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func (r *FloatRangeValidator) check(v any) (float64, bool) {
	x, ok := asFloat64(v)
	if !ok {
		return 0, false
	}
	if !r.noLow {
		if r.exclude&excludeLow != 0 && x <= r.Low || x < r.Low {
			return 0, false
		}
	}
	if !r.noHigh {
		if r.exclude&excludeHigh != 0 && x >= r.High || x > r.High {
			return 0, false
		}
	}
	return x, true
}

// Validate implements Validator.
func (r *FloatRangeValidator) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x, ok := r.check(v); ok {
		return x, nil
	}
	return nil, reject(f, h, name, v)
}

// Enum accepts values equal to one of Values.
type Enum struct {
	Values []any
}

func (e Enum) check(v any) bool {
	for _, x := range e.Values {
		if equal(x, v) {
			return true
		}
	}
	return false
}

// Validate implements Validator.
func (e Enum) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if e.check(v) {
		return v, nil
	}
	return nil, reject(f, h, name, v)
}

// lookupKey reads m[v] without panicking on incomparable keys.
func lookupKey(m map[any]any, v any) (any, bool) {
	if v != nil && !reflect.TypeOf(v).Comparable() {
		return nil, false
	}
	var (
		x  any
		ok bool
	)
	func() {
		defer func() { _ = recover() }()
		x, ok = m[v]
	}()
	return x, ok
}

// Mapped accepts the keys of Map. The key itself is stored.
type Mapped struct {
	Map map[any]any
}

// Validate implements Validator.
func (m Mapped) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if _, ok := lookupKey(m.Map, v); ok {
		return v, nil
	}
	return nil, reject(f, h, name, v)
}

// PrefixMap returns Map[v] for known keys and defers everything else to
// Fallback.
type PrefixMap struct {
	Map      map[any]any
	Fallback Validator
}

// Validate implements Validator.
func (m PrefixMap) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x, ok := lookupKey(m.Map, v); ok {
		return x, nil
	}
	if m.Fallback == nil {
		return nil, reject(f, h, name, v)
	}
	return m.Fallback.Validate(f, h, name, v)
}

// Tuple validates a fixed-length []any slot by slot.
type Tuple struct {
	Slots []Validator
}

func (t Tuple) check(f *Facet, h *Host, name string, v any) ([]any, bool) {
	in, ok := v.([]any)
	if !ok || len(in) != len(t.Slots) {
		return nil, false
	}
	var out []any
	for i, slot := range t.Slots {
		x, err := slot.Validate(f, h, name, in[i])
		if err != nil {
			return nil, false
		}
		if out == nil && !identical(x, in[i]) {
			out = make([]any, len(in))
			copy(out, in[:i])
		}
		if out != nil {
			out[i] = x
		}
	}
	if out == nil {
		return in, true
	}
	return out, true
}

// Validate implements Validator. The input slice is returned unless a slot
// validator replaced a value.
func (t Tuple) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if out, ok := t.check(f, h, name, v); ok {
		return out, nil
	}
	return nil, reject(f, h, name, v)
}

// Coercible accepts Type and the Compatible types as is, and converts values
// of the Coercible types to Type.
type Coercible struct {
	Type       reflect.Type
	Compatible []reflect.Type
	Coercible  []reflect.Type
}

func (c Coercible) check(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	t := reflect.TypeOf(v)
	if t == c.Type {
		return v, true
	}
	for _, ct := range c.Compatible {
		if t == ct {
			return v, true
		}
	}
	for _, ct := range c.Coercible {
		if t == ct {
			x, err := convert(c.Type, v)
			return x, err == nil
		}
	}
	return nil, false
}

// Validate implements Validator.
func (c Coercible) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x, ok := c.check(v); ok {
		return x, nil
	}
	return nil, reject(f, h, name, v)
}

// Castable accepts Type as is and tries to convert anything else.
type Castable struct {
	Type reflect.Type
}

func (c Castable) check(v any) (any, bool) {
	if v != nil && reflect.TypeOf(v) == c.Type {
		return v, true
	}
	x, err := convert(c.Type, v)
	return x, err == nil
}

// Validate implements Validator.
func (c Castable) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x, ok := c.check(v); ok {
		return x, nil
	}
	return nil, reject(f, h, name, v)
}

// convert builds a value of type t from v. Basic kinds go through cast so
// that strings parse; other types need a Go conversion.
func convert(t reflect.Type, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot convert nil to %s", t)
	}
	var (
		out any
		err error
	)
	switch t.Kind() {
	case reflect.String:
		out, err = cast.ToStringE(v)
	case reflect.Bool:
		out, err = cast.ToBoolE(v)
	case reflect.Int:
		out, err = cast.ToIntE(v)
	case reflect.Int8:
		out, err = cast.ToInt8E(v)
	case reflect.Int16:
		out, err = cast.ToInt16E(v)
	case reflect.Int32:
		out, err = cast.ToInt32E(v)
	case reflect.Int64:
		out, err = cast.ToInt64E(v)
	case reflect.Uint:
		out, err = cast.ToUintE(v)
	case reflect.Uint8:
		out, err = cast.ToUint8E(v)
	case reflect.Uint16:
		out, err = cast.ToUint16E(v)
	case reflect.Uint32:
		out, err = cast.ToUint32E(v)
	case reflect.Uint64:
		out, err = cast.ToUint64E(v)
	case reflect.Float32:
		out, err = cast.ToFloat32E(v)
	case reflect.Float64:
		out, err = cast.ToFloat64E(v)
	default:
		rv := reflect.ValueOf(v)
		if !rv.Type().ConvertibleTo(t) {
			return nil, fmt.Errorf("cannot convert %T to %s", v, t)
		}
		return rv.Convert(t).Interface(), nil
	}
	if err != nil {
		return nil, err
	}
	if rv := reflect.ValueOf(out); rv.Type() != t {
		out = rv.Convert(t).Interface()
	}
	return out, nil
}

// Function delegates to fn. Any error from fn becomes a validation error.
type Function func(h *Host, name string, v any) (any, error)

// Validate implements Validator.
func (fn Function) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	x, err := fn(h, name, v)
	if err != nil {
		return nil, validationError(f, h, name, v, err)
	}
	return x, nil
}

// AdaptMode controls how an Adapt validator treats the adapter's result.
type AdaptMode int

// Adaptation modes.
const (
	// AdaptStrict accepts only results identical to the input.
	AdaptStrict AdaptMode = iota
	// AdaptAny accepts any non-nil adapted result.
	AdaptAny
	// AdaptDefault is AdaptAny, and asks the adapter to return nil rather
	// than fail.
	AdaptDefault
)

// Adapter converts values to a target protocol.
type Adapter interface {
	// Adapt returns v adapted to target, or nil if no adaptation exists.
	Adapt(v any, target any, mode AdaptMode) (any, error)
	// Implements reports whether v already satisfies target.
	Implements(v any, target any) bool
}

// TypeAdapter adapts by Go assignability: Target must be a reflect.Type.
type TypeAdapter struct{}

// Adapt implements Adapter.
func (TypeAdapter) Adapt(v any, target any, _ AdaptMode) (any, error) {
	if (TypeAdapter{}).Implements(v, target) {
		return v, nil
	}
	return nil, nil
}

// Implements implements Adapter.
func (TypeAdapter) Implements(v any, target any) bool {
	t, ok := target.(reflect.Type)
	return ok && v != nil && reflect.TypeOf(v).AssignableTo(t)
}

// Adapt validates through an Adapter. A failed or unacceptable adaptation
// falls back to Implements; a nil adaptation also falls back to the facet
// default.
type Adapt struct {
	Target   any
	Mode     AdaptMode
	AllowNil bool
	Adapter  Adapter
}

func (a Adapt) adapter() Adapter {
	if a.Adapter == nil {
		return TypeAdapter{}
	}
	return a.Adapter
}

func (a Adapt) check(f *Facet, h *Host, name string, v any) (any, bool) {
	if v == nil {
		return nil, a.AllowNil
	}
	ad := a.adapter()
	x, err := ad.Adapt(v, a.Target, a.Mode)
	if err == nil && x == nil {
		if ad.Implements(v, a.Target) {
			return v, true
		}
		if f == nil {
			return nil, false
		}
		d, err := f.def.value(f, h, name)
		return d, err == nil
	}
	if err == nil && (a.Mode > AdaptStrict || identical(x, v)) {
		return x, true
	}
	return v, ad.Implements(v, a.Target)
}

// Validate implements Validator.
func (a Adapt) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	if x, ok := a.check(f, h, name, v); ok {
		return x, nil
	}
	return nil, reject(f, h, name, v)
}

// slow marks a composite component whose outcome is final.
type slow struct {
	Validator
}

// Slow wraps v so that, inside a Composite, its result is returned as is,
// success or failure, without trying later components.
func Slow(v Validator) Validator { return slow{v} }

// Composite tries each component in order and returns the first success.
type Composite struct {
	Parts []Validator
}

// Validate implements Validator.
func (c Composite) Validate(f *Facet, h *Host, name string, v any) (any, error) {
	for _, p := range c.Parts {
		if s, ok := p.(slow); ok {
			return s.Validator.Validate(f, h, name, v)
		}
		if x, err := p.Validate(f, h, name, v); err == nil {
			return x, nil
		}
	}
	return nil, reject(f, h, name, v)
}

// Validators is shorthand for a Composite.
func Validators(parts ...Validator) Composite { return Composite{Parts: parts} }
