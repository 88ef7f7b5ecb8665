package facets

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by the engine matches exactly one
// of these with errors.Is.
var (
	ErrAttribute  = errors.New("attribute error")
	ErrDelegation = errors.New("delegation error")
	ErrValidation = errors.New("invalid value")
	ErrInternal   = errors.New("internal consistency error")
)

// Attribute access errors.
var (
	ErrUnknownAttribute   = errors.New("unknown attribute")
	ErrWriteOnly          = errors.New("attribute is an event, which is write only")
	ErrReadOnly           = errors.New("attribute is read only")
	ErrDeleteReadOnly     = errors.New("cannot delete a read only attribute")
	ErrConstant           = errors.New("cannot modify a constant attribute")
	ErrUndefinedAttribute = errors.New("cannot set an undefined attribute")
	ErrDeleteProperty     = errors.New("cannot delete a property attribute")
	ErrCannotSetItems     = errors.New("cannot fire items event")
	ErrNoValue            = errors.New("attribute has no value")
)

// Delegation errors.
var (
	ErrDelegateMissing     = errors.New("delegate has no such attribute")
	ErrNotDelegatable      = errors.New("delegate does not support facets")
	ErrDelegationRecursion = errors.New("delegation recursion limit exceeded")
)

// Definition errors, returned while building classes and facets.
var (
	ErrFacetDefined   = errors.New("facet already defined on class")
	ErrNilFacet       = errors.New("facet must not be nil")
	ErrDelegateName   = errors.New("delegated facet requires a delegate name")
	ErrNamingStrategy = errors.New("unknown delegate naming strategy")
	ErrKindUnknown    = errors.New("unknown behavior kind")
	ErrPropertyGetter = errors.New("property facet requires a getter")
	ErrBadFacetValue  = errors.New("facet value produced an invalid facet")
	ErrNilListener    = errors.New("listener must not be nil")
)

// AttributeError reports a disallowed read, write or delete of an attribute.
type AttributeError struct {
	Class  string
	Name   string
	Reason error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("the '%s' attribute of a '%s' object: %v", e.Name, e.Class, e.Reason)
}

// Is matches the ErrAttribute category.
func (e *AttributeError) Is(target error) bool { return target == ErrAttribute }

func (e *AttributeError) Unwrap() error { return e.Reason }

// Delegation operations, used to tell a failing read from a failing resolve.
const (
	OpRead    = "read"
	OpWrite   = "write"
	OpResolve = "resolve"
)

// DelegationError reports a broken delegation chain.
type DelegationError struct {
	Class  string
	Name   string
	Op     string
	Reason error
}

func (e *DelegationError) Error() string {
	return fmt.Sprintf("%s of '%s' on a '%s' object through its delegate: %v", e.Op, e.Name, e.Class, e.Reason)
}

// Is matches the ErrDelegation category.
func (e *DelegationError) Is(target error) bool { return target == ErrDelegation }

func (e *DelegationError) Unwrap() error { return e.Reason }

// ValidationError reports a value rejected by a facet's validator. Info is a
// human readable description of the accepted values, taken from the facet's
// handler when it provides one.
type ValidationError struct {
	Class string
	Name  string
	Value any
	Info  string
	Err   error
}

func (e *ValidationError) Error() string {
	var msg string
	switch {
	case e.Name == "" && e.Info != "":
		msg = fmt.Sprintf("invalid value for facet, the value should be %s", e.Info)
	case e.Name == "":
		msg = "invalid value for facet"
	case e.Info != "":
		msg = fmt.Sprintf("the '%s' facet of a '%s' instance must be %s, but a value of %#v was specified", e.Name, e.Class, e.Info, e.Value)
	default:
		msg = fmt.Sprintf("the '%s' facet of a '%s' instance received an invalid value %#v", e.Name, e.Class, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the ErrValidation category.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// InternalError signals a corrupted facet table.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string { return "facets: internal error: " + e.Detail }

// Is matches the ErrInternal category.
func (e *InternalError) Is(target error) bool { return target == ErrInternal }

// Infoer is implemented by facet handlers that can describe the values a
// facet accepts.
type Infoer interface {
	Info() string
}

func attributeError(h *Host, name string, reason error) error {
	return &AttributeError{Class: h.className(), Name: name, Reason: reason}
}

func delegationError(h *Host, name, op string, reason error) error {
	return &DelegationError{Class: h.className(), Name: name, Op: op, Reason: reason}
}

// validationError builds the uniform rejection error for f.
func validationError(f *Facet, h *Host, name string, v any, cause error) error {
	e := &ValidationError{Class: h.className(), Name: name, Value: v, Err: cause}
	if f != nil {
		if i, ok := f.handler.(Infoer); ok {
			e.Info = i.Info()
		}
	}
	return e
}
