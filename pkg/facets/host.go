package facets

import (
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type hostFlag uint8

const (
	hostInited hostFlag = 1 << iota
	hostNoNotify
	hostVetoNotify
)

// Mode selects how Host.Facet looks up and creates facets.
type Mode int

// Resolve modes.
const (
	// ModeBase returns the facet that governs name once delegation is
	// followed to its end.
	ModeBase Mode = -2
	// ModeForceCreate consults the prefix resolver when both tables miss.
	ModeForceCreate Mode = -1
	// ModeExisting returns the instance or class facet, without creating.
	ModeExisting Mode = 0
	// ModeInstanceExisting returns only an existing instance facet.
	ModeInstanceExisting Mode = 1
	// ModeInstanceCreate returns the instance facet, cloning the class
	// facet into the instance table if needed.
	ModeInstanceCreate Mode = 2
)

// Host is an object whose attributes are governed by facets. A host and its
// graph must not be mutated from more than one goroutine at a time.
type Host struct {
	id        uuid.UUID
	class     *Class
	values    map[string]any
	order     []string
	instance  map[string]*Facet
	listeners []*Registration
	forwards  map[string]*forward
	flags     hostFlag
}

func newHost(c *Class) *Host {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Host{id: id, class: c}
}

// FacetHost implements HostProvider.
func (h *Host) FacetHost() *Host { return h }

// ID returns the host identity.
func (h *Host) ID() uuid.UUID { return h.id }

// Class returns the host's class.
func (h *Host) Class() *Class { return h.class }

func (h *Host) className() string {
	if h == nil || h.class == nil {
		return ""
	}
	return h.class.name
}

func (h *Host) logger() *zerolog.Logger {
	if h == nil || h.class == nil {
		l := zerolog.Nop()
		return &l
	}
	return &h.class.log
}

// Inited reports whether construction has finished.
func (h *Host) Inited() bool { return h.flags&hostInited != 0 }

// SetNotify enables or disables change notification for this host.
func (h *Host) SetNotify(enabled bool) {
	if enabled {
		h.flags &^= hostNoNotify
	} else {
		h.flags |= hostNoNotify
	}
}

func (h *Host) notifying() bool { return h.flags&hostNoNotify == 0 }

// SetVetoNotify sets whether assigning this host to another host's
// attribute stops the resulting notification.
func (h *Host) SetVetoNotify(veto bool) {
	if veto {
		h.flags |= hostVetoNotify
	} else {
		h.flags &^= hostVetoNotify
	}
}

// VetoNotify reports the veto flag.
func (h *Host) VetoNotify() bool { return h.flags&hostVetoNotify != 0 }

func (h *Host) stored(name string) (any, bool) {
	v, ok := h.values[name]
	return v, ok
}

func (h *Host) store(name string, v any) {
	if h.values == nil {
		h.values = map[string]any{}
	}
	if _, ok := h.values[name]; !ok {
		h.order = append(h.order, name)
	}
	h.values[name] = v
}

func (h *Host) unstore(name string) bool {
	if _, ok := h.values[name]; !ok {
		return false
	}
	delete(h.values, name)
	if i := slices.Index(h.order, name); i >= 0 {
		h.order = slices.Delete(h.order, i, i+1)
	}
	return true
}

// HasValue reports whether name currently has a stored value.
func (h *Host) HasValue(name string) bool {
	_, ok := h.values[name]
	return ok
}

// Names returns the names with stored values, in first-store order.
func (h *Host) Names() []string { return slices.Clone(h.order) }

// InstanceFacets returns the names of instance-specific facets.
func (h *Host) InstanceFacets() []string {
	names := make([]string, 0, len(h.instance))
	for n := range h.instance {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// lookup finds the facet for name in the instance table, then the class
// table.
func (h *Host) lookup(name string) (*Facet, error) {
	if f, ok := h.instance[name]; ok {
		if f == nil {
			return nil, &InternalError{Detail: "nil instance facet for " + name}
		}
		return f, nil
	}
	if f, ok := h.class.facets[name]; ok {
		if f == nil {
			return nil, &InternalError{Detail: "nil class facet for " + name}
		}
		return f, nil
	}
	return nil, nil
}

// resolve is lookup followed by the prefix resolver.
func (h *Host) resolve(name string, isSet bool) (*Facet, error) {
	f, err := h.lookup(name)
	if f != nil || err != nil {
		return f, err
	}
	return h.prefixFacet(name, isSet)
}

// prefixFacet asks the class's prefix resolver for a facet, caches it in the
// class table, fires FacetAdded and retries the lookup.
func (h *Host) prefixFacet(name string, isSet bool) (*Facet, error) {
	r := h.class.resolver
	if r == nil {
		return nil, attributeError(h, name, ErrUnknownAttribute)
	}
	f, err := r.ResolvePrefix(h, name, isSet)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, attributeError(h, name, ErrUnknownAttribute)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	h.class.insert(name, f)
	h.logger().Debug().Str("class", h.class.name).Str("name", name).Msg("prefix facet added")
	if err := h.Set(FacetAdded, name); err != nil {
		return nil, err
	}
	f, err = h.lookup(name)
	if err == nil && f == nil {
		err = &InternalError{Detail: "prefix facet vanished for " + name}
	}
	return f, err
}

// Facet returns the facet governing name according to mode. It returns
// nil, nil when the mode does not allow creation and nothing exists.
func (h *Host) Facet(name string, mode Mode) (*Facet, error) {
	if f, ok := h.instance[name]; ok && mode != ModeBase {
		return f, nil
	}
	switch mode {
	case ModeInstanceExisting:
		return nil, nil
	case ModeExisting:
		return h.lookup(name)
	case ModeForceCreate:
		return h.resolve(name, false)
	case ModeBase:
		f, _, _, err := h.ResolveDelegation(name)
		return f, err
	}

	f, err := h.resolve(name, false)
	if err != nil {
		return nil, err
	}
	if f, ok := h.instance[name]; ok {
		return f, nil
	}
	clone := f.Clone()
	if h.instance == nil {
		h.instance = map[string]*Facet{}
	}
	h.instance[name] = clone
	return clone, nil
}

// AddFacet installs f as an instance-specific facet for name.
func (h *Host) AddFacet(name string, f *Facet) error {
	if f == nil {
		return ErrNilFacet
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if h.instance == nil {
		h.instance = map[string]*Facet{}
	}
	h.instance[name] = f
	return nil
}

// RemoveFacet drops the instance-specific facet for name. It reports
// whether one existed.
func (h *Host) RemoveFacet(name string) bool {
	if _, ok := h.instance[name]; !ok {
		return false
	}
	delete(h.instance, name)
	return true
}

// Get reads an attribute. Stored values are returned directly; otherwise
// the governing facet's getter runs.
func (h *Host) Get(name string) (any, error) {
	if v, ok := h.values[name]; ok {
		return v, nil
	}
	f, err := h.resolve(name, false)
	if err != nil {
		return nil, err
	}
	return f.get(h, name)
}

// Set writes an attribute. A FacetValue assigned to a facet that allows it
// replaces the facet for this host instead of being stored.
func (h *Host) Set(name string, v any) error {
	f, err := h.resolve(name, true)
	if err != nil {
		return err
	}
	if fv, ok := v.(FacetValue); ok && f.flags&FlagValueAllowed != 0 {
		if err := h.setValue(f, name, fv); err != nil {
			return err
		}
		h.unlinkDelegate(name)
		h.linkDelegate(name)
		return nil
	}
	if err := f.set(h, name, v); err != nil {
		return err
	}
	h.relinkDelegates(name)
	return nil
}

// Delete removes an attribute's value. Kinds that forbid deletion return
// an AttributeError.
func (h *Host) Delete(name string) error {
	f, err := h.resolve(name, true)
	if err != nil {
		return err
	}
	return f.set(h, name, deleted)
}

// Observe adds a listener for name on this host only. The first call
// specializes the class facet into an instance clone. For a delegated name
// the listener also hears changes made on the delegate.
func (h *Host) Observe(name string, l Listener) (*Registration, error) {
	if l == nil {
		return nil, ErrNilListener
	}
	f, err := h.Facet(name, ModeInstanceCreate)
	if err != nil {
		return nil, err
	}
	r := f.OnChange(l)
	h.linkDelegate(name)
	return r, nil
}

// Unobserve removes a listener added with Observe.
func (h *Host) Unobserve(name string, r *Registration) bool {
	f, ok := h.instance[name]
	if !ok {
		return false
	}
	return f.RemoveListener(r)
}

// OnAnyChange adds a listener notified of every attribute change on h.
func (h *Host) OnAnyChange(l Listener) *Registration {
	r := &Registration{listener: l}
	h.listeners = append(h.listeners, r)
	h.linkAllDelegates()
	return r
}

// RemoveAnyChange removes a listener added with OnAnyChange.
func (h *Host) RemoveAnyChange(r *Registration) bool {
	var ok bool
	h.listeners, ok = removeRegistration(h.listeners, r)
	return ok
}

// Broadcast sends a notification for name using its current facet's
// listeners. A nil record is sent as an Item.
func (h *Host) Broadcast(name string, old, value any, rec Record) error {
	f, err := h.resolve(name, false)
	if err != nil {
		return err
	}
	if !h.notifying() {
		return nil
	}
	return broadcast(f.listeners, h, name, old, value, rec)
}

// PropertyChanged announces a change of a property attribute. When value
// is omitted the current value is read.
func (h *Host) PropertyChanged(name string, old any, value ...any) error {
	f, err := h.resolve(name, false)
	if err != nil {
		return err
	}
	if !hasListeners(f.listeners, h) {
		return nil
	}
	var nv any
	if len(value) > 0 {
		nv = value[0]
	} else if nv, err = h.Get(name); err != nil {
		return err
	}
	return broadcast(f.listeners, h, name, old, nv, nil)
}

// FireItems delivers an items event for name. If name has no facet, or is
// disallowed, eventFacet is installed on this host first.
func (h *Host) FireItems(name string, event any, eventFacet *Facet) error {
	if eventFacet == nil {
		return ErrNilFacet
	}
	for retry := true; ; retry = false {
		f, err := h.lookup(name)
		if err != nil {
			return err
		}
		if f != nil && f.kind != KindDisallowed {
			return f.set(h, name, event)
		}
		if !retry {
			return attributeError(h, name, ErrCannotSetItems)
		}
		if err := h.AddFacet(name, eventFacet); err != nil {
			return err
		}
	}
}

// DefaultValueFor returns the default of name. For an attribute that has
// not been read or written yet, this initializes it.
func (h *Host) DefaultValueFor(name string) (any, error) {
	f, err := h.resolve(name, false)
	if err != nil {
		return nil, err
	}
	if f.flags&FlagProperty != 0 || h.HasValue(name) {
		return f.def.value(f, h, name)
	}
	return f.get(h, name)
}
