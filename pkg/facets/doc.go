// Package facets governs object attributes with shared, pluggable
// definitions. A Class holds a table of Facets; each Host created from the
// class stores values lazily and routes every read and write through the
// facet for that name.
//
// A facet's Kind decides how reads and writes behave (stored, event,
// delegated, read-only, constant, property, ...). Plain facets validate
// values, detect changes and broadcast a Notification to the facet's
// listeners and then to the host's any-change listeners.
//
// Example:
//
//	point := facets.NewClass("Point")
//	point.MustDefine("x", facets.Plain(facets.WithValidator(facets.IntRange(0, 100)), facets.WithValue(0)))
//	point.MustDefine("y", facets.Plain())
//
//	p := point.MustNew()
//	p.OnAnyChange(facets.ListenerFunc(func(n facets.Notification) error {
//	    fmt.Println(n.Name, n.Old, "->", n.New)
//	    return nil
//	}))
//	err := p.Set("x", 50)
//
// Hosts are not safe for concurrent mutation. Listeners, validators and
// defaults may read and write other attributes; those calls re-enter the
// engine synchronously.
package facets
