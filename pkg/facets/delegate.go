package facets

import "errors"

// MaxDelegationHops bounds the length of a delegation chain.
const MaxDelegationHops = 100

// delegateOf returns the host that f delegates to from cur. A stored value
// is preferred; otherwise the attribute is read normally, so a property may
// compute the delegate.
func (f *Facet) delegateOf(cur, origin *Host, name, op string) (*Host, error) {
	v, ok := cur.stored(f.delegate)
	if !ok {
		var err error
		if v, err = cur.Get(f.delegate); err != nil {
			return nil, err
		}
	}
	d, ok := asHost(v)
	if !ok {
		return nil, delegationError(origin, name, op, ErrNotDelegatable)
	}
	return d, nil
}

// hop is one step along a delegation chain.
type hop struct {
	facet *Facet
	name  string
	host  *Host
}

// walk follows the chain from f on origin until fn reports done or the
// chain reaches a facet that is not delegated. fn sees every hop after the
// first; it may stop early with done.
func walk(f *Facet, origin *Host, name, op string, fn func(hop) (done bool)) (hop, error) {
	cur := hop{facet: f, name: name, host: origin}
	for i := 0; i < MaxDelegationHops; i++ {
		d, err := cur.facet.delegateOf(cur.host, origin, name, op)
		if err != nil {
			return hop{}, err
		}
		next := hop{name: cur.facet.delegateNameFor(cur.host, cur.name), host: d}
		if fn != nil && fn(next) {
			return next, nil
		}
		next.facet, err = d.resolve(next.name, op == OpWrite)
		if err != nil {
			if errors.Is(err, ErrUnknownAttribute) {
				return hop{}, delegationError(origin, name, op, ErrDelegateMissing)
			}
			return hop{}, err
		}
		if next.facet.kind != KindDelegated {
			return next, nil
		}
		cur = next
	}
	return hop{}, delegationError(origin, name, op, ErrDelegationRecursion)
}

// ResolveDelegation follows name through its delegation chain and returns
// the governing facet, the attribute name on the final host, and that host.
// A name that is not delegated resolves to itself on h.
func (h *Host) ResolveDelegation(name string) (*Facet, string, *Host, error) {
	f, err := h.resolve(name, false)
	if err != nil {
		return nil, "", nil, err
	}
	if f.kind != KindDelegated {
		return f, name, h, nil
	}
	end, err := walk(f, h, name, OpResolve, nil)
	if err != nil {
		return nil, "", nil, err
	}
	return end.facet, end.name, end.host, nil
}

func getDelegated(f *Facet, h *Host, name string) (any, error) {
	var value any
	end, err := walk(f, h, name, OpRead, func(next hop) bool {
		v, ok := next.host.stored(next.name)
		value = v
		return ok
	})
	if err != nil {
		return nil, err
	}
	if end.facet == nil {
		return value, nil
	}
	return end.facet.get(end.host, end.name)
}

// setDelegated validates and stores through the final facet of the chain.
// With FlagModifyDelegate the value lands on the final delegate; otherwise
// it is stored on h itself, which shadows the delegate for later reads
// until deleted.
func setDelegated(fo, fd *Facet, h *Host, name string, v any) error {
	end, err := walk(fd, h, name, OpWrite, nil)
	if err != nil {
		return err
	}
	if fo.flags&FlagModifyDelegate != 0 {
		return setters[end.facet.kind](end.facet, end.facet, end.host, end.name, v)
	}
	if err := setters[end.facet.kind](fo, end.facet, h, name, v); err != nil {
		return err
	}
	if v == deleted {
		h.linkDelegate(name)
	} else {
		h.unlinkDelegate(name)
	}
	h.logger().Debug().Str("class", h.className()).Str("name", name).Bool("delete", v == deleted).
		Msg("delegated attribute detached")
	return nil
}
