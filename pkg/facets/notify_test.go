package facets

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(log *[]string, name string) Listener {
	return ListenerFunc(func(Notification) error {
		*log = append(*log, name)
		return nil
	})
}

func TestBroadcastOrder(t *testing.T) {
	var log []string
	c := NewClass("Order")
	c.MustDefine("v", Plain(WithListener(named(&log, "class-1")), WithListener(named(&log, "class-2"))))
	h := c.MustNew()
	h.OnAnyChange(named(&log, "host-1"))
	h.OnAnyChange(named(&log, "host-2"))
	_, err := h.Observe("v", named(&log, "instance"))
	require.NoError(t, err)

	require.NoError(t, h.Set("v", 1))
	assert.Equal(t, []string{"class-1", "class-2", "instance", "host-1", "host-2"}, log)
}

func TestBroadcastReentrancy(t *testing.T) {
	var log []string
	c := NewClass("Reentrant")
	c.MustDefine("v", Plain())
	h := c.MustNew()

	var selfReg *Registration
	self := ListenerFunc(func(Notification) error {
		log = append(log, "self")
		require.True(t, h.Unobserve("v", selfReg))
		_, err := h.Observe("v", named(&log, "late"))
		return err
	})
	var err error
	selfReg, err = h.Observe("v", self)
	require.NoError(t, err)
	_, err = h.Observe("v", named(&log, "steady"))
	require.NoError(t, err)

	require.NoError(t, h.Set("v", 1))
	assert.Equal(t, []string{"self", "steady"}, log, "snapshot dispatch is unaffected by changes")

	log = nil
	require.NoError(t, h.Set("v", 2))
	assert.Equal(t, []string{"steady", "late"}, log)
}

func TestSingleListenerRemovesItself(t *testing.T) {
	c := NewClass("Reentrant")
	c.MustDefine("v", Plain())
	h := c.MustNew()

	var calls int
	var reg *Registration
	reg = h.OnAnyChange(ListenerFunc(func(Notification) error {
		calls++
		h.RemoveAnyChange(reg)
		return nil
	}))

	require.NoError(t, h.Set("v", 1))
	require.NoError(t, h.Set("v", 2))
	assert.Equal(t, 1, calls)
}

func TestListenerWritesDuringBroadcast(t *testing.T) {
	c := NewClass("Chain")
	c.MustDefine("a", Plain())
	c.MustDefine("b", Plain())
	h := c.MustNew()
	_, err := h.Observe("a", ListenerFunc(func(n Notification) error {
		return n.Host.Set("b", n.New.(int)*2)
	}))
	require.NoError(t, err)

	require.NoError(t, h.Set("a", 21))
	v, err := h.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestVetoStopsDispatch(t *testing.T) {
	c := NewClass("Node")
	c.MustDefine("child", Plain())
	parent := c.MustNew()

	var log []string
	_, err := parent.Observe("child", named(&log, "facet"))
	require.NoError(t, err)
	parent.OnAnyChange(named(&log, "host"))

	child := c.MustNew()
	child.SetVetoNotify(true)
	assert.True(t, child.VetoNotify())

	require.NoError(t, parent.Set("child", child))
	assert.Empty(t, log)
	v, err := parent.Get("child")
	require.NoError(t, err)
	assert.Same(t, child, v, "veto does not prevent the store")
}

func TestVetoRaisedMidBroadcast(t *testing.T) {
	c := NewClass("Node")
	c.MustDefine("child", Plain())
	parent := c.MustNew()
	child := c.MustNew()

	var log []string
	_, err := parent.Observe("child", ListenerFunc(func(n Notification) error {
		log = append(log, "first")
		child.SetVetoNotify(true)
		return nil
	}))
	require.NoError(t, err)
	_, err = parent.Observe("child", named(&log, "second"))
	require.NoError(t, err)
	parent.OnAnyChange(named(&log, "host"))

	require.NoError(t, parent.Set("child", child))
	assert.Equal(t, []string{"first"}, log)
}

type wrapped struct{ h *Host }

func (w wrapped) FacetHost() *Host { return w.h }

func TestVetoThroughHostProvider(t *testing.T) {
	c := NewClass("Node")
	c.MustDefine("child", Plain())
	parent := c.MustNew()
	child := c.MustNew()
	child.SetVetoNotify(true)

	rec := &recorder{}
	parent.OnAnyChange(rec)
	require.NoError(t, parent.Set("child", wrapped{child}))
	assert.Empty(t, rec.got)
}

func TestListenerErrorAbortsBroadcast(t *testing.T) {
	boom := errors.New("listener failed")
	c := NewClass("Fail")
	c.MustDefine("v", Plain())
	h := c.MustNew()

	var log []string
	_, err := h.Observe("v", ListenerFunc(func(Notification) error { return boom }))
	require.NoError(t, err)
	h.OnAnyChange(named(&log, "host"))

	err = h.Set("v", 1)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, log)

	v, err := h.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 1, v, "the store is not rolled back")
}

func TestNotificationHandler(t *testing.T) {
	type seen struct {
		listener Listener
		name     string
	}
	var calls []seen
	prev := SetNotificationHandler(func(l Listener, n Notification) error {
		calls = append(calls, seen{listener: l, name: n.Name})
		return l.Notify(n)
	})
	defer SetNotificationHandler(prev)

	c := NewClass("Traced")
	c.MustDefine("v", Plain())
	h := c.MustNew()
	rec := &recorder{}
	reg := h.OnAnyChange(rec)

	require.NoError(t, h.Set("v", 1))
	require.Len(t, calls, 1)
	assert.Same(t, rec, calls[0].listener)
	assert.Same(t, rec, reg.Listener())
	assert.Equal(t, "v", calls[0].name)
	assert.Len(t, rec.got, 1, "the handler decides whether to call the listener")
}

func TestExplicitBroadcastRecords(t *testing.T) {
	c := NewClass("Lists")
	c.MustDefine("items", Plain(WithDefault(List())))
	h := c.MustNew()
	rec := &recorder{}
	h.OnAnyChange(rec)

	tests := []struct {
		name   string
		record Record
		want   Category
	}{
		{name: "item", record: nil, want: CategoryItem},
		{name: "list", record: ListChange{Added: []any{1}, Index: 0}, want: CategoryList},
		{name: "list assign", record: ListAssign{New: []any{1}}, want: CategoryListAssign},
		{name: "set", record: SetChange{Removed: []any{"x"}}, want: CategorySet},
		{name: "set assign", record: SetAssign{}, want: CategorySetAssign},
		{name: "dict", record: DictChange{Updated: map[string]any{"k": 1}}, want: CategoryDict},
		{name: "dict assign", record: DictAssign{}, want: CategoryDictAssign},
		{name: "event", record: EventRecord{New: 1}, want: CategoryEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, h.Broadcast("items", nil, []any{1}, tt.record))
			n := rec.last(t)
			assert.Equal(t, tt.want, n.Record.Category())
			assert.Equal(t, tt.want.String(), n.Record.Category().String())
			if tt.record != nil {
				if diff := cmp.Diff(tt.record, n.Record); diff != "" {
					t.Errorf("record mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestPropertyChanged(t *testing.T) {
	current := 1
	c := NewClass("Props")
	c.MustDefine("p", Property(Get0(func() (any, error) { return current, nil }), Setter{}))
	h := c.MustNew()

	// No listeners means nothing to do.
	require.NoError(t, h.PropertyChanged("p", 0))

	rec := &recorder{}
	h.OnAnyChange(rec)
	current = 2
	require.NoError(t, h.PropertyChanged("p", 1))
	n := rec.last(t)
	assert.Equal(t, 1, n.Old)
	assert.Equal(t, 2, n.New)

	require.NoError(t, h.PropertyChanged("p", 2, 3))
	assert.Equal(t, 3, rec.last(t).New)
}
