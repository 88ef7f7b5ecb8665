package facets

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Handler intercepts every listener invocation when installed with
// SetNotificationHandler. It is responsible for calling l.Notify itself.
type Handler func(l Listener, n Notification) error

// Monitor is called once for every newly constructed host whose class
// satisfies Match.
type Monitor struct {
	Match func(c *Class) bool
	Fn    func(h *Host) error
}

// hooks is the process-wide snapshot read on every broadcast and every
// construction. Writers replace it whole under hooksMu.
type hooks struct {
	handler  Handler
	monitors []*Monitor
}

var (
	hooksState atomic.Pointer[hooks]
	hooksMu    sync.Mutex
)

func init() {
	hooksState.Store(&hooks{})
}

func currentHooks() *hooks { return hooksState.Load() }

// SetNotificationHandler installs h as the global notification handler and
// returns the previous one. A nil h restores direct dispatch.
func SetNotificationHandler(h Handler) Handler {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	old := hooksState.Load()
	hooksState.Store(&hooks{handler: h, monitors: old.monitors})
	return old.handler
}

// AddMonitor registers m and returns a function that removes it.
func AddMonitor(m *Monitor) (remove func()) {
	hooksMu.Lock()
	defer hooksMu.Unlock()

	old := hooksState.Load()
	hooksState.Store(&hooks{handler: old.handler, monitors: append(slices.Clone(old.monitors), m)})
	return func() {
		hooksMu.Lock()
		defer hooksMu.Unlock()

		cur := hooksState.Load()
		ms := slices.DeleteFunc(slices.Clone(cur.monitors), func(x *Monitor) bool { return x == m })
		hooksState.Store(&hooks{handler: cur.handler, monitors: ms})
	}
}

// ClassIs returns a monitor predicate matching c and its subclasses.
func ClassIs(c *Class) func(*Class) bool {
	return func(other *Class) bool { return other.IsSubclassOf(c) }
}
