package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/facets/pkg/facets"
)

// Script errors.
var (
	ErrHostUnknown    = errors.New("unknown host")
	ErrHostDuplicate  = errors.New("host declared twice")
	ErrClassUnknown   = errors.New("unknown class")
	ErrStepAmbiguous  = errors.New("step must have exactly one of set, get, delete")
	ErrValueAndRef    = errors.New("step has both value and ref")
	ErrScriptNoAction = errors.New("script has no hosts")
)

// Script declares hosts and an ordered list of attribute operations on
// them. It drives facetctl check and trace.
type Script struct {
	Hosts []HostSpec `mapstructure:"hosts"`
	Steps []Step     `mapstructure:"steps"`
}

// HostSpec creates a host of Class. Init assignments run in key order
// during construction.
type HostSpec struct {
	ID    string         `mapstructure:"id"`
	Class string         `mapstructure:"class"`
	Init  map[string]any `mapstructure:"init"`
}

// Step is one operation. Ref assigns another declared host instead of a
// literal value, which is how delegation chains are wired.
type Step struct {
	Host   string `mapstructure:"host"`
	Set    string `mapstructure:"set"`
	Get    string `mapstructure:"get"`
	Delete string `mapstructure:"delete"`
	Value  any    `mapstructure:"value"`
	Ref    string `mapstructure:"ref"`
}

// Op names the step's operation.
func (s Step) Op() string {
	switch {
	case s.Set != "":
		return "set"
	case s.Get != "":
		return "get"
	}
	return "delete"
}

// Name is the attribute the step touches.
func (s Step) Name() string { return s.Set + s.Get + s.Delete }

func (s Step) check() error {
	n := 0
	for _, x := range []string{s.Set, s.Get, s.Delete} {
		if x != "" {
			n++
		}
	}
	if n != 1 {
		return ErrStepAmbiguous
	}
	if s.Ref != "" && s.Value != nil {
		return ErrValueAndRef
	}
	return nil
}

// LoadScript reads a script file in any supported format.
func LoadScript(path string) (*Script, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s := &Script{}
	if err := Decode(data, format, s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(s.Hosts) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrScriptNoAction)
	}
	return s, nil
}

// Result reports the outcome of one step. Value is set for get steps.
type Result struct {
	Index int
	Host  string
	Op    string
	Name  string
	Value any
	Err   error
}

// Runner executes scripts against a registry. Compile the registry with
// ObserveAll to see the notifications a run produces.
type Runner struct {
	Registry *Registry
	Log      zerolog.Logger
}

// Hosts maps script host IDs to the hosts created for them.
type Hosts map[string]*facets.Host

// IDOf returns the script ID of h, or its UUID when h was not declared.
func (hs Hosts) IDOf(h *facets.Host) string {
	for id, x := range hs {
		if x == h {
			return id
		}
	}
	if h == nil {
		return ""
	}
	return h.ID().String()
}

// Build creates the declared hosts in order.
func (r *Runner) Build(s *Script) (Hosts, error) {
	hosts := Hosts{}
	for _, hs := range s.Hosts {
		if _, ok := hosts[hs.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrHostDuplicate, hs.ID)
		}
		c := r.Registry.Class(hs.Class)
		if c == nil {
			return nil, fmt.Errorf("host %s: %w: %s", hs.ID, ErrClassUnknown, hs.Class)
		}
		h, err := r.construct(c, hs.Init)
		if err != nil {
			return nil, fmt.Errorf("host %s: %w", hs.ID, err)
		}
		hosts[hs.ID] = h
	}
	return hosts, nil
}

func (r *Runner) construct(c *facets.Class, init map[string]any) (*facets.Host, error) {
	keys := make([]string, 0, len(init))
	for k := range init {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	inits := make([]facets.Assignment, len(keys))
	for i, k := range keys {
		inits[i] = facets.With(k, init[k])
	}
	return c.New(inits...)
}

// Run builds the hosts and executes every step, stopping early only when
// ctx is cancelled. Step failures are reported in the results.
func (r *Runner) Run(ctx context.Context, s *Script) (Hosts, []Result, error) {
	hosts, err := r.Build(s)
	if err != nil {
		return nil, nil, err
	}
	results := make([]Result, 0, len(s.Steps))
	for i, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return hosts, results, err
		}
		res := Result{Index: i, Host: st.Host, Op: st.Op(), Name: st.Name()}
		res.Value, res.Err = r.step(hosts, st)
		r.Log.Debug().Int("step", i).Str("host", st.Host).Str("op", res.Op).Str("name", res.Name).
			Err(res.Err).Msg("step done")
		results = append(results, res)
	}
	return hosts, results, nil
}

func (r *Runner) step(hosts Hosts, st Step) (any, error) {
	if err := st.check(); err != nil {
		return nil, err
	}
	h, ok := hosts[st.Host]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostUnknown, st.Host)
	}
	switch st.Op() {
	case "get":
		return h.Get(st.Get)
	case "delete":
		return nil, h.Delete(st.Delete)
	}
	v := st.Value
	if st.Ref != "" {
		ref, ok := hosts[st.Ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrHostUnknown, st.Ref)
		}
		v = ref
	}
	return nil, h.Set(st.Set, v)
}
