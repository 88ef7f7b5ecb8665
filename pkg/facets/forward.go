package facets

// forward relays changes of a delegate's attribute to the listeners of the
// delegating attribute while the delegating host has no value of its own.
type forward struct {
	target *Host
	name   string
	reg    *Registration
	active bool
}

// linkDelegate registers a forwarder for name on its immediate delegate. It
// does nothing when name is not delegated, already linked, stored locally,
// unobserved, or when the delegate cannot be resolved yet.
func (h *Host) linkDelegate(name string) {
	if _, ok := h.forwards[name]; ok || h.HasValue(name) {
		return
	}
	f, err := h.lookup(name)
	if err != nil || f == nil || f.kind != KindDelegated || !hasListeners(f.listeners, h) {
		return
	}
	d, ok := h.currentDelegate(f, name)
	if !ok {
		return
	}
	fw := &forward{target: d, name: f.delegateNameFor(h, name)}
	if h.forwards == nil {
		h.forwards = map[string]*forward{}
	}
	// Registered before observing so that chains looping back to h stop here.
	h.forwards[name] = fw
	reg, err := d.Observe(fw.name, ListenerFunc(func(n Notification) error {
		return h.relay(name, fw, n)
	}))
	if err != nil {
		delete(h.forwards, name)
		return
	}
	fw.reg = reg
	h.logger().Debug().Str("class", h.className()).Str("name", name).
		Str("delegate", d.className()).Str("target", fw.name).Msg("delegate linked")
}

// unlinkDelegate removes the forwarder for name, if any.
func (h *Host) unlinkDelegate(name string) {
	fw, ok := h.forwards[name]
	if !ok {
		return
	}
	delete(h.forwards, name)
	if fw.reg != nil {
		fw.target.Unobserve(fw.name, fw.reg)
	}
}

// relinkDelegates refreshes the forwarders of delegated attributes that
// find their delegate through attr.
func (h *Host) relinkDelegates(attr string) {
	if len(h.forwards) == 0 && len(h.listeners) == 0 && len(h.instance) == 0 {
		return
	}
	for name, f := range h.class.facets {
		if _, ok := h.instance[name]; !ok && f.kind == KindDelegated && f.delegate == attr {
			h.unlinkDelegate(name)
			h.linkDelegate(name)
		}
	}
	for name, f := range h.instance {
		if f.kind == KindDelegated && f.delegate == attr {
			h.unlinkDelegate(name)
			h.linkDelegate(name)
		}
	}
}

// linkAllDelegates links every delegated attribute of h.
func (h *Host) linkAllDelegates() {
	for name, f := range h.class.facets {
		if f.kind == KindDelegated {
			h.linkDelegate(name)
		}
	}
	for name, f := range h.instance {
		if f.kind == KindDelegated {
			h.linkDelegate(name)
		}
	}
}

// relay delivers a delegate's change as a change of name on h. It is
// ignored once h holds its own value or delegates elsewhere.
func (h *Host) relay(name string, fw *forward, n Notification) error {
	if fw.active || h.HasValue(name) || !h.notifying() {
		return nil
	}
	f, err := h.lookup(name)
	if err != nil || f == nil || f.kind != KindDelegated {
		return nil
	}
	if d, ok := h.currentDelegate(f, name); !ok || d != fw.target {
		return nil
	}
	fw.active = true
	defer func() { fw.active = false }()
	return broadcast(f.listeners, h, name, n.Old, n.New, n.Record)
}

// currentDelegate returns the immediate delegate of the delegated facet f.
// An unset plain delegate attribute is not read, so linking never fires its
// initialization.
func (h *Host) currentDelegate(f *Facet, name string) (*Host, bool) {
	if !h.HasValue(f.delegate) {
		df, err := h.lookup(f.delegate)
		if err != nil || df == nil || (df.kind != KindProperty && df.kind != KindConstant) {
			return nil, false
		}
	}
	d, err := f.delegateOf(h, h, name, OpResolve)
	return d, err == nil
}
