package journal

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/mesh-intelligence/facets/pkg/facets"
)

// jsonAPI keeps marker names such as "<undefined>" readable and map keys
// in a stable order.
var jsonAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// hostRef is how a host stored as an attribute value appears in the
// journal.
type hostRef struct {
	Host  string `json:"$host"`
	Class string `json:"$class"`
}

// encodeValue renders an attribute value as JSON text. Hosts become
// references, markers become their names, and values that cannot be
// encoded fall back to their printed form.
func encodeValue(v any) string {
	b, err := jsonAPI.Marshal(portable(v))
	if err != nil {
		b, _ = jsonAPI.Marshal(fmt.Sprint(v))
	}
	return string(b)
}

func portable(v any) any {
	switch x := v.(type) {
	case *facets.Marker:
		return x.String()
	case *facets.Host:
		if x == nil {
			return nil
		}
		return hostRef{Host: x.ID().String(), Class: x.Class().Name()}
	case facets.HostProvider:
		return portable(x.FacetHost())
	case []any:
		if x == nil {
			return nil
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = portable(e)
		}
		return out
	case map[string]any:
		if x == nil {
			return nil
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = portable(e)
		}
		return out
	}
	return v
}

// encodeRecord renders the structured part of a notification. Item
// records carry nothing beyond old and new, so they encode as null.
func encodeRecord(r facets.Record) string {
	switch x := r.(type) {
	case nil, facets.Item:
		return "null"
	case facets.EventRecord:
		return encodeValue(map[string]any{"new": x.New})
	case facets.ListChange:
		return encodeValue(map[string]any{"added": x.Added, "removed": x.Removed, "index": x.Index})
	case facets.ListAssign:
		return encodeValue(map[string]any{"new": x.New, "old": x.Old})
	case facets.SetChange:
		return encodeValue(map[string]any{"added": x.Added, "removed": x.Removed})
	case facets.SetAssign:
		return encodeValue(map[string]any{"new": x.New, "old": x.Old})
	case facets.DictChange:
		return encodeValue(map[string]any{"added": x.Added, "removed": x.Removed, "updated": x.Updated})
	case facets.DictAssign:
		return encodeValue(map[string]any{"new": x.New, "old": x.Old})
	}
	return encodeValue(fmt.Sprint(r))
}
