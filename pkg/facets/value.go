package facets

import "fmt"

// FacetValue is a value that, when assigned to a facet flagged with
// FlagValueAllowed, replaces that facet on the receiving host. AsFacet
// receives the facet currently in effect and returns its replacement; nil
// removes an existing instance override.
type FacetValue interface {
	AsFacet(current *Facet) (*Facet, error)
}

// Registrar is implemented by handlers of value-property facets. Register
// is called after the override is installed, Unregister before it is
// replaced or removed.
type Registrar interface {
	Register(h *Host, name string) error
	Unregister(h *Host, name string) error
}

func (h *Host) setValue(current *Facet, name string, fv FacetValue) error {
	next, err := fv.AsFacet(current)
	if err != nil {
		return err
	}
	if next != nil {
		if err := next.Validate(); err != nil {
			return fmt.Errorf("set %s.%s: %w: %w", h.className(), name, ErrBadFacetValue, err)
		}
	}

	prev, hadPrev := h.instance[name]
	if hadPrev && prev.flags&FlagValueProperty != 0 {
		if r, ok := prev.handler.(Registrar); ok {
			if err := r.Unregister(h, name); err != nil {
				return err
			}
		}
	}

	if next == nil {
		if hadPrev {
			delete(h.instance, name)
		}
		return nil
	}

	isProperty := next.flags&FlagValueProperty != 0
	var old any
	if isProperty {
		if old, err = h.Get(name); err != nil {
			// An unreadable old value is usually a read-only attribute.
			old = Undefined
		}
		h.unstore(name)
	}

	if h.instance == nil {
		h.instance = map[string]*Facet{}
	}
	h.instance[name] = next
	h.logger().Debug().Str("class", h.className()).Str("name", name).Msg("facet value override installed")

	if !isProperty {
		return nil
	}
	if r, ok := next.handler.(Registrar); ok {
		if err := r.Register(h, name); err != nil {
			return err
		}
	}
	return h.PropertyChanged(name, old)
}
