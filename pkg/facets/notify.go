package facets

import (
	"fmt"
	"slices"
)

// Category tags the shape of a notification record.
type Category int

// Record categories.
const (
	CategoryItem Category = iota
	CategoryEvent
	CategoryList
	CategoryListAssign
	CategorySet
	CategorySetAssign
	CategoryDict
	CategoryDictAssign
)

var categoryNames = [...]string{
	CategoryItem:       "item",
	CategoryEvent:      "event",
	CategoryList:       "list",
	CategoryListAssign: "list_assign",
	CategorySet:        "set",
	CategorySetAssign:  "set_assign",
	CategoryDict:       "dict",
	CategoryDictAssign: "dict_assign",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Record describes one change. The concrete types below are the only
// implementations.
type Record interface {
	Category() Category
}

// Item is the record for a plain value change.
type Item struct {
	New any
	Old any
}

// EventRecord is the record for an event firing.
type EventRecord struct {
	New any
}

// ListChange describes an in-place list mutation at Index.
type ListChange struct {
	Added   []any
	Removed []any
	Index   int
}

// ListAssign describes the replacement of a whole list.
type ListAssign struct {
	New []any
	Old []any
}

// SetChange describes an in-place set mutation.
type SetChange struct {
	Added   []any
	Removed []any
}

// SetAssign describes the replacement of a whole set.
type SetAssign struct {
	New []any
	Old []any
}

// DictChange describes an in-place mapping mutation. Updated holds the
// previous values of keys whose value changed.
type DictChange struct {
	Added   map[string]any
	Removed map[string]any
	Updated map[string]any
}

// DictAssign describes the replacement of a whole mapping.
type DictAssign struct {
	New map[string]any
	Old map[string]any
}

func (Item) Category() Category        { return CategoryItem }
func (EventRecord) Category() Category { return CategoryEvent }
func (ListChange) Category() Category  { return CategoryList }
func (ListAssign) Category() Category  { return CategoryListAssign }
func (SetChange) Category() Category   { return CategorySet }
func (SetAssign) Category() Category   { return CategorySetAssign }
func (DictChange) Category() Category  { return CategoryDict }
func (DictAssign) Category() Category  { return CategoryDictAssign }

// Notification is delivered to listeners. It is built once per broadcast
// and must not be modified.
type Notification struct {
	Host   *Host
	Name   string
	Old    any
	New    any
	Record Record
}

// Listener receives change notifications. A returned error aborts the
// broadcast and is reported to the writer.
type Listener interface {
	Notify(n Notification) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(n Notification) error

// Notify implements Listener.
func (fn ListenerFunc) Notify(n Notification) error { return fn(n) }

// Registration is the handle returned when a listener is added. Removal is
// by handle identity, so the same listener may be registered twice.
type Registration struct {
	listener Listener
}

// Listener returns the registered listener.
func (r *Registration) Listener() Listener { return r.listener }

func removeRegistration(list []*Registration, r *Registration) ([]*Registration, bool) {
	i := slices.Index(list, r)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}

func hasListeners(facetList []*Registration, h *Host) bool {
	return len(facetList) > 0 || len(h.listeners) > 0
}

// broadcast delivers one change to the facet's listeners and then to the
// host's any-change listeners. Lists with more than one entry are copied
// first so listeners may register or unregister during dispatch. If the new
// value is a host with veto set, dispatch stops silently before the next
// listener.
func broadcast(facetList []*Registration, h *Host, name string, old, value any, rec Record) error {
	if len(facetList) == 0 && len(h.listeners) == 0 {
		return nil
	}
	if rec == nil {
		rec = Item{New: value, Old: old}
	}
	d := dispatch{
		n:       Notification{Host: h, Name: name, Old: old, New: value, Record: rec},
		handler: currentHooks().handler,
	}
	d.veto, _ = asHost(value)

	if stop, err := d.run(facetList); stop || err != nil {
		return err
	}
	_, err := d.run(h.listeners)
	return err
}

type dispatch struct {
	n       Notification
	handler Handler
	veto    *Host
}

// run calls each listener in list. stop reports a veto.
func (d *dispatch) run(list []*Registration) (stop bool, err error) {
	if len(list) > 1 {
		list = slices.Clone(list)
	}
	for _, r := range list {
		if d.veto != nil && d.veto.flags&hostVetoNotify != 0 {
			d.n.Host.logger().Debug().Str("name", d.n.Name).Msg("notification vetoed by new value")
			return true, nil
		}
		if d.handler != nil {
			err = d.handler(r.listener, d.n)
		} else {
			err = r.listener.Notify(d.n)
		}
		if err != nil {
			return true, fmt.Errorf("notify %s: %w", d.n.Name, err)
		}
	}
	return false, nil
}
