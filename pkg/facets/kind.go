package facets

// Kind selects the read and write behavior of a facet.
type Kind int

// Behavior kinds. The numbering indexes the getter and setter tables.
const (
	KindPlain Kind = iota
	KindPassthrough
	KindEvent
	KindDelegated
	KindDisallowed
	KindReadOnly
	KindConstant
	KindProperty
	KindGeneric
	kindCount
)

var kindNames = [kindCount]string{
	KindPlain:       "plain",
	KindPassthrough: "passthrough",
	KindEvent:       "event",
	KindDelegated:   "delegated",
	KindDisallowed:  "disallowed",
	KindReadOnly:    "read_only",
	KindConstant:    "constant",
	KindProperty:    "property",
	KindGeneric:     "generic",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind maps a kind name back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if n == s {
			return Kind(k), true
		}
	}
	return 0, false
}

type getFunc func(f *Facet, h *Host, name string) (any, error)

// setFunc receives the facet the write started on (fo, which owns the
// listeners) and the facet that governs storage and validation (fd). They
// differ only at the end of a delegation chain.
type setFunc func(fo, fd *Facet, h *Host, name string, v any) error

var getters [kindCount]getFunc

var setters [kindCount]setFunc

func init() {
	getters = [kindCount]getFunc{
		KindPlain:       getPlain,
		KindPassthrough: getGeneric,
		KindEvent:       getEvent,
		KindDelegated:   getDelegated,
		KindDisallowed:  getDisallowed,
		KindReadOnly:    getPlain,
		KindConstant:    getConstant,
		KindProperty:    getProperty,
		KindGeneric:     getGeneric,
	}
	setters = [kindCount]setFunc{
		KindPlain:       setPlain,
		KindPassthrough: setGeneric,
		KindEvent:       setEvent,
		KindDelegated:   setDelegated,
		KindDisallowed:  setDisallowed,
		KindReadOnly:    setReadOnly,
		KindConstant:    setConstant,
		KindProperty:    setProperty,
		KindGeneric:     setGeneric,
	}
}

func getEvent(f *Facet, h *Host, name string) (any, error) {
	return nil, attributeError(h, name, ErrWriteOnly)
}

func getDisallowed(f *Facet, h *Host, name string) (any, error) {
	return nil, attributeError(h, name, ErrUnknownAttribute)
}

func getConstant(f *Facet, h *Host, name string) (any, error) {
	return f.def.value(f, h, name)
}

func getGeneric(f *Facet, h *Host, name string) (any, error) {
	if v, ok := h.stored(name); ok {
		return v, nil
	}
	return nil, attributeError(h, name, ErrNoValue)
}

// getPlain computes, stores and announces the default of an attribute that
// has never been assigned.
func getPlain(f *Facet, h *Host, name string) (any, error) {
	v, err := f.def.value(f, h, name)
	if err != nil {
		return nil, err
	}
	h.store(name, v)
	if f.postSet != nil && f.flags&FlagMapped == 0 {
		if err := f.postSet(h, name, v); err != nil {
			return nil, err
		}
	}
	if h.notifying() {
		if err := broadcast(f.listeners, h, name, Uninitialized, v, nil); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func setEvent(fo, fd *Facet, h *Host, name string, v any) error {
	if v == deleted {
		return nil
	}
	v, err := fd.validate(h, name, v)
	if err != nil {
		return err
	}
	if !h.notifying() {
		return nil
	}
	return broadcast(fo.listeners, h, name, Undefined, v, nil)
}

func setDisallowed(fo, fd *Facet, h *Host, name string, v any) error {
	return attributeError(h, name, ErrUndefinedAttribute)
}

func setConstant(fo, fd *Facet, h *Host, name string, v any) error {
	return attributeError(h, name, ErrConstant)
}

func setGeneric(fo, fd *Facet, h *Host, name string, v any) error {
	if v == deleted {
		if !h.unstore(name) {
			return attributeError(h, name, ErrNoValue)
		}
		return nil
	}
	h.store(name, v)
	return nil
}

// setReadOnly permits one assignment over an Undefined default.
func setReadOnly(fo, fd *Facet, h *Host, name string, v any) error {
	if v == deleted {
		return attributeError(h, name, ErrDeleteReadOnly)
	}
	if !isUndefinedDefault(fd.def) {
		return attributeError(h, name, ErrReadOnly)
	}
	if cur, ok := h.stored(name); ok && cur != Undefined {
		return attributeError(h, name, ErrReadOnly)
	}
	h.store(name, v)
	return nil
}

// setPlain is the validated, change-tested, notifying store.
func setPlain(fo, fd *Facet, h *Host, name string, v any) error {
	if v == deleted {
		return deletePlain(fo, fd, h, name)
	}
	original := v
	v, err := fd.validate(h, name, v)
	if err != nil {
		return err
	}
	newValue := v
	if fd.flags&FlagSetOriginal != 0 {
		newValue = original
	}

	changed := fd.flags&FlagNoValueTest != 0
	notify := h.notifying() && hasListeners(fo.listeners, h)
	var old any
	if fd.postSet != nil || notify {
		if cur, ok := h.stored(name); ok {
			old = cur
		} else if fd != fo {
			if old, err = fo.get(h, name); err != nil {
				return err
			}
		} else if old, err = fd.def.value(fd, h, name); err != nil {
			return err
		}
		if !changed {
			changed = fd.changed(old, v)
		}
	}

	h.store(name, newValue)

	if !changed {
		return nil
	}
	if fd.postSet != nil {
		pv := v
		if fd.flags&FlagPostSetOriginal != 0 {
			pv = original
		}
		if err := fd.postSet(h, name, pv); err != nil {
			return err
		}
	}
	if notify {
		return broadcast(fo.listeners, h, name, old, newValue, nil)
	}
	return nil
}

func deletePlain(fo, fd *Facet, h *Host, name string) error {
	old, ok := h.stored(name)
	if !ok {
		return nil
	}
	h.unstore(name)
	if !h.notifying() || !hasListeners(fo.listeners, h) {
		return nil
	}
	v, err := fo.get(h, name)
	if err != nil {
		return err
	}
	if fd.flags&FlagNoValueTest == 0 && !fd.changed(old, v) {
		return nil
	}
	if fd.postSet != nil {
		if err := fd.postSet(h, name, v); err != nil {
			return err
		}
	}
	return broadcast(fo.listeners, h, name, old, v, nil)
}
