package facets

import "reflect"

// Marker is a distinguished sentinel value. Markers compare only by identity.
type Marker struct {
	name string
}

func (m *Marker) String() string { return m.name }

var (
	// Undefined is the "no previous value" marker used by events, and the
	// default of read-only facets that may be assigned exactly once.
	Undefined = &Marker{name: "<undefined>"}

	// Uninitialized is reported as the old value when a default is computed
	// and stored on first read.
	Uninitialized = &Marker{name: "<uninitialized>"}

	// deleted is passed to setters to request a delete.
	deleted = &Marker{name: "<deleted>"}
)

// Equaler lets values define their own rich equality for change detection.
type Equaler interface {
	Equal(other any) bool
}

// HostProvider is implemented by types that embed or wrap a Host, so that
// they can act as delegates and as veto-capable values.
type HostProvider interface {
	FacetHost() *Host
}

func asHost(v any) (*Host, bool) {
	switch t := v.(type) {
	case *Host:
		return t, t != nil
	case HostProvider:
		h := t.FacetHost()
		return h, h != nil
	}
	return nil, false
}

// identical reports whether a and b are the same object: equal pointers, the
// same backing array for slices, the same map, or equal comparable values.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return safeEqual(a, b)
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch ta.Kind() {
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map, reflect.Func, reflect.Chan:
		return va.Pointer() == vb.Pointer()
	}
	return false
}

// equal is the rich comparison used for change detection.
func equal(a, b any) bool {
	if identical(a, b) {
		return true
	}
	if e, ok := a.(Equaler); ok {
		return e.Equal(b)
	}
	if a == nil || b == nil {
		return false
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || t.Kind() == reflect.Pointer {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// safeEqual compares comparable dynamic values. Interface-typed array or
// struct fields may still hold incomparable values, which panic; those are
// reported as unequal.
func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
