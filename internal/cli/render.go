package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/facets/internal/schema"
	"github.com/mesh-intelligence/facets/pkg/facets"
)

// stepView is a script result prepared for output.
type stepView struct {
	Index int    `json:"index"`
	Host  string `json:"host"`
	Op    string `json:"op"`
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func viewResults(hosts schema.Hosts, results []schema.Result) []stepView {
	views := make([]stepView, len(results))
	for i, r := range results {
		views[i] = stepView{Index: r.Index, Host: r.Host, Op: r.Op, Name: r.Name}
		if r.Op == "get" && r.Err == nil {
			views[i].Value = display(hosts, r.Value)
		}
		if r.Err != nil {
			views[i].Error = r.Err.Error()
		}
	}
	return views
}

// display replaces hosts inside v with "@id" references.
func display(hosts schema.Hosts, v any) any {
	switch x := v.(type) {
	case *facets.Host:
		return "@" + hosts.IDOf(x)
	case facets.HostProvider:
		return display(hosts, x.FacetHost())
	case *facets.Marker:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = display(hosts, e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = display(hosts, e)
		}
		return out
	}
	return v
}

func printResults(w io.Writer, views []stepView) {
	for _, v := range views {
		line := fmt.Sprintf("%3d  %-8s %-6s %s", v.Index, v.Host, v.Op, v.Name)
		switch {
		case v.Error != "":
			line += "  ERROR " + v.Error
		case v.Op == "get":
			line += fmt.Sprintf(" = %v", v.Value)
		default:
			line += "  ok"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func failures(views []stepView) int {
	n := 0
	for _, v := range views {
		if v.Error != "" {
			n++
		}
	}
	return n
}
