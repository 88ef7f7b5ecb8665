package facets

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delegationClasses(t *testing.T, opts ...FacetOption) (a, b *Class) {
	t.Helper()
	a = NewClass("A")
	require.NoError(t, a.Define("v", Plain(WithValidator(IntRange(0, 10)), WithValue(0))))
	b = NewClass("B")
	require.NoError(t, b.Define("parent", Plain()))
	require.NoError(t, b.Define("v", Delegate("parent", NamingSame, opts...)))
	return a, b
}

func TestDelegateDetachesOnWrite(t *testing.T) {
	ca, cb := delegationClasses(t)
	a := ca.MustNew(With("v", 5))
	b := cb.MustNew(With("parent", a))

	v, err := b.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 5, v, "reads go through to the delegate")

	require.NoError(t, b.Set("v", 1))
	require.NoError(t, b.Set("v", 2))
	v, err = b.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = a.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 5, v, "the delegate is unaffected")

	require.NoError(t, a.Set("v", 6))
	v, err = b.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 2, v, "b no longer follows a")
}

func TestDelegateDetachNotifiesOriginalHost(t *testing.T) {
	ca, cb := delegationClasses(t)
	a := ca.MustNew(With("v", 5))
	b := cb.MustNew(With("parent", a))
	rec := &recorder{}
	b.OnAnyChange(rec)

	require.NoError(t, b.Set("v", 7))
	n := rec.last(t)
	assert.Same(t, b, n.Host)
	assert.Equal(t, 5, n.Old, "old value is read through the delegate")
	assert.Equal(t, 7, n.New)
}

func TestDelegateDeleteRestoresDelegation(t *testing.T) {
	ca, cb := delegationClasses(t)
	a := ca.MustNew(With("v", 5))
	b := cb.MustNew(With("parent", a))

	require.NoError(t, b.Set("v", 1))
	require.NoError(t, b.Delete("v"))
	assert.False(t, b.HasValue("v"))

	v, err := b.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestDelegateModify(t *testing.T) {
	ca, cb := delegationClasses(t, ModifyDelegate())
	a := ca.MustNew()
	b := cb.MustNew(With("parent", a))

	require.NoError(t, b.Set("v", 7))
	assert.False(t, b.HasValue("v"))
	v, err := a.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = b.Get("v")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDelegateValidatesWithFinalFacet(t *testing.T) {
	for _, modify := range []bool{false, true} {
		t.Run(fmt.Sprintf("modify=%v", modify), func(t *testing.T) {
			var opts []FacetOption
			if modify {
				opts = append(opts, ModifyDelegate())
			}
			ca, cb := delegationClasses(t, opts...)
			b := cb.MustNew(With("parent", ca.MustNew()))
			assert.ErrorIs(t, b.Set("v", 11), ErrValidation)
		})
	}
}

// chain builds k linked hosts delegating "v" through "next" to a terminal
// host, and returns the first link and the terminal.
func chain(t *testing.T, k int) (*Host, *Host) {
	t.Helper()
	end := NewClass("End")
	end.MustDefine("v", Plain(WithValue("end")))
	link := NewClass("Link")
	link.MustDefine("next", Plain())
	link.MustDefine("v", Delegate("next", NamingSame))

	last := end.MustNew()
	cur := last
	for i := 0; i < k; i++ {
		cur = link.MustNew(With("next", cur))
	}
	return cur, last
}

func TestDelegationChains(t *testing.T) {
	for _, k := range []int{1, 5, 50, 99, MaxDelegationHops} {
		t.Run(fmt.Sprintf("length %d", k), func(t *testing.T) {
			first, last := chain(t, k)

			f, name, owner, err := first.ResolveDelegation("v")
			require.NoError(t, err)
			assert.Same(t, last.Class().Facet("v"), f)
			assert.Equal(t, "v", name)
			assert.Same(t, last, owner)

			base, err := first.Facet("v", ModeBase)
			require.NoError(t, err)
			assert.Same(t, f, base)

			v, err := first.Get("v")
			require.NoError(t, err)
			assert.Equal(t, "end", v)
		})
	}
}

func TestDelegationCycle(t *testing.T) {
	link := NewClass("Link")
	link.MustDefine("next", Plain())
	link.MustDefine("v", Delegate("next", NamingSame))
	x, y := link.MustNew(), link.MustNew()
	require.NoError(t, x.Set("next", y))
	require.NoError(t, y.Set("next", x))

	tests := []struct {
		name string
		op   string
		run  func() error
	}{
		{name: "resolve", op: OpResolve, run: func() error { _, _, _, err := x.ResolveDelegation("v"); return err }},
		{name: "read", op: OpRead, run: func() error { _, err := x.Get("v"); return err }},
		{name: "write", op: OpWrite, run: func() error { return x.Set("v", 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDelegation)
			assert.ErrorIs(t, err, ErrDelegationRecursion)
			var de *DelegationError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.op, de.Op)
			assert.Equal(t, "v", de.Name)
			assert.Equal(t, "Link", de.Class)
		})
	}
}

func TestDelegationFailures(t *testing.T) {
	other := NewClass("Other")
	other.MustDefine("w", Plain())
	link := NewClass("Link")
	link.MustDefine("next", Plain())
	link.MustDefine("v", Delegate("next", NamingSame))

	t.Run("delegate is not a host", func(t *testing.T) {
		h := link.MustNew(With("next", 5))
		_, err := h.Get("v")
		assert.ErrorIs(t, err, ErrNotDelegatable)
		assert.ErrorIs(t, h.Set("v", 1), ErrNotDelegatable)
	})

	t.Run("delegate lacks the attribute", func(t *testing.T) {
		h := link.MustNew(With("next", other.MustNew()))
		_, err := h.Get("v")
		assert.ErrorIs(t, err, ErrDelegateMissing)
		assert.ErrorIs(t, h.Set("v", 1), ErrDelegateMissing)
		_, _, _, err = h.ResolveDelegation("v")
		assert.ErrorIs(t, err, ErrDelegateMissing)
	})

	t.Run("delegate attribute unknown", func(t *testing.T) {
		broken := NewClass("Broken")
		broken.MustDefine("v", Delegate("missing", NamingSame))
		_, err := broken.MustNew().Get("v")
		assert.ErrorIs(t, err, ErrUnknownAttribute)
	})
}

func TestDelegateNaming(t *testing.T) {
	target := NewClass("Target")
	for _, n := range []string{"v", "color", "base_v", "b_v"} {
		target.MustDefine(n, Plain(WithValue(n)))
	}

	tests := []struct {
		name   string
		facet  *Facet
		class  []ClassOption
		expect string
	}{
		{name: "same", facet: Delegate("parent", NamingSame), expect: "v"},
		{name: "prefix", facet: Delegate("parent", NamingPrefix, WithPrefix("color")), expect: "color"},
		{name: "prefix name", facet: Delegate("parent", NamingPrefixName, WithPrefix("base_")), expect: "base_v"},
		{name: "class prefix name", facet: Delegate("parent", NamingClassPrefixName), class: []ClassOption{WithClassPrefix("b_")}, expect: "b_v"},
		{name: "class prefix name without prefix", facet: Delegate("parent", NamingClassPrefixName), expect: "v"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClass("Source", tt.class...)
			c.MustDefine("parent", Plain())
			c.MustDefine("v", tt.facet)
			h := c.MustNew(With("parent", target.MustNew()))

			v, err := h.Get("v")
			require.NoError(t, err)
			assert.Equal(t, tt.expect, v)

			_, name, _, err := h.ResolveDelegation("v")
			require.NoError(t, err)
			assert.Equal(t, tt.expect, name)
		})
	}
}

func TestDelegateComputedByProperty(t *testing.T) {
	target := NewClass("Target")
	target.MustDefine("v", Plain(WithValue("from property")))
	t0 := target.MustNew()

	c := NewClass("Source")
	c.MustDefine("parent", Property(Get0(func() (any, error) { return t0, nil }), Setter{}))
	c.MustDefine("v", Delegate("parent", NamingSame))

	v, err := c.MustNew().Get("v")
	require.NoError(t, err)
	assert.Equal(t, "from property", v)
}

func TestDelegateForwardsDelegateChanges(t *testing.T) {
	ca, cb := delegationClasses(t)
	a := ca.MustNew(With("v", 5))
	b := cb.MustNew(With("parent", a))
	rec := &recorder{}
	_, err := b.Observe("v", rec)
	require.NoError(t, err)
	all := &recorder{}
	b.OnAnyChange(all)

	require.NoError(t, a.Set("v", 6))
	require.Len(t, rec.got, 1)
	n := rec.last(t)
	assert.Same(t, b, n.Host)
	assert.Equal(t, "v", n.Name)
	assert.Equal(t, 5, n.Old)
	assert.Equal(t, 6, n.New)
	assert.Len(t, all.got, 1)

	require.NoError(t, a.Set("v", 6))
	assert.Len(t, rec.got, 1, "an unchanged delegate value is not relayed")
}

func TestDelegateDetachStopsForwarding(t *testing.T) {
	ca, cb := delegationClasses(t)
	a := ca.MustNew(With("v", 5))
	b := cb.MustNew(With("parent", a))
	rec := &recorder{}
	_, err := b.Observe("v", rec)
	require.NoError(t, err)

	require.NoError(t, b.Set("v", 1))
	require.Len(t, rec.got, 1)
	assert.Equal(t, 1, rec.last(t).New)

	require.NoError(t, a.Set("v", 7))
	assert.Len(t, rec.got, 1, "a detached attribute ignores its delegate")
}

func TestDelegateDeleteRestoresForwarding(t *testing.T) {
	ca, cb := delegationClasses(t)
	a := ca.MustNew(With("v", 5))
	b := cb.MustNew(With("parent", a))
	rec := &recorder{}
	_, err := b.Observe("v", rec)
	require.NoError(t, err)

	require.NoError(t, b.Set("v", 1))
	require.NoError(t, b.Delete("v"))
	seen := len(rec.got)

	require.NoError(t, a.Set("v", 8))
	require.Len(t, rec.got, seen+1)
	n := rec.last(t)
	assert.Same(t, b, n.Host)
	assert.Equal(t, 8, n.New)
}

func TestDelegateModifyNotifiesOnce(t *testing.T) {
	ca, cb := delegationClasses(t, ModifyDelegate())
	a := ca.MustNew()
	b := cb.MustNew(With("parent", a))
	rec := &recorder{}
	_, err := b.Observe("v", rec)
	require.NoError(t, err)

	require.NoError(t, b.Set("v", 7))
	require.Len(t, rec.got, 1)
	n := rec.last(t)
	assert.Same(t, b, n.Host)
	assert.Equal(t, 7, n.New)
}

func TestDelegateForwardingFollowsReparenting(t *testing.T) {
	ca, cb := delegationClasses(t)
	a1 := ca.MustNew(With("v", 1))
	a2 := ca.MustNew(With("v", 2))
	b := cb.MustNew(With("parent", a1))
	rec := &recorder{}
	_, err := b.Observe("v", rec)
	require.NoError(t, err)

	require.NoError(t, b.Set("parent", a2))
	require.NoError(t, a1.Set("v", 3))
	assert.Empty(t, rec.got, "the old delegate is no longer followed")

	require.NoError(t, a2.Set("v", 4))
	require.Len(t, rec.got, 1)
	assert.Equal(t, 4, rec.last(t).New)
}

func TestDelegateForwardsAlongChains(t *testing.T) {
	first, last := chain(t, 3)
	rec := &recorder{}
	_, err := first.Observe("v", rec)
	require.NoError(t, err)

	require.NoError(t, last.Set("v", "changed"))
	require.Len(t, rec.got, 1)
	n := rec.last(t)
	assert.Same(t, first, n.Host)
	assert.Equal(t, "changed", n.New)
}

func TestDelegateClassPrefixPerHop(t *testing.T) {
	end := NewClass("End")
	end.MustDefine("mid_src_v", Plain(WithValue("each hop")))
	end.MustDefine("src_src_v", Plain(WithValue("origin only")))

	mid := NewClass("Mid", WithClassPrefix("mid_"))
	mid.MustDefine("next", Plain())
	mid.MustDefine("src_v", Delegate("next", NamingClassPrefixName))

	src := NewClass("Src", WithClassPrefix("src_"))
	src.MustDefine("next", Plain())
	src.MustDefine("v", Delegate("next", NamingClassPrefixName))

	e := end.MustNew()
	h := src.MustNew(With("next", mid.MustNew(With("next", e))))

	v, err := h.Get("v")
	require.NoError(t, err)
	assert.Equal(t, "each hop", v)

	_, name, owner, err := h.ResolveDelegation("v")
	require.NoError(t, err)
	assert.Equal(t, "mid_src_v", name)
	assert.Same(t, e, owner)
}
