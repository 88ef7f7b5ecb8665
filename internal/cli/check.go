package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/facets/internal/schema"
	"github.com/mesh-intelligence/facets/pkg/facets"
)

type classView struct {
	Name   string   `json:"name"`
	Base   string   `json:"base,omitempty"`
	Prefix string   `json:"prefix,omitempty"`
	Facets []string `json:"facets"`
}

type checkView struct {
	Classes  []classView `json:"classes"`
	Steps    []stepView  `json:"steps,omitempty"`
	Failures int         `json:"failures"`
}

func newCheckCmd(e *env) *cobra.Command {
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "check <schema> [script]",
		Short: "Compile a schema and optionally run a script against it",
		Long: "Compile every class in the schema file (yaml, toml or json). With a\n" +
			"script, create its hosts and run its steps, reporting each outcome.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(args[0])
			if err != nil {
				return err
			}

			view := checkView{Classes: viewClasses(reg)}
			if len(args) == 2 {
				script, err := schema.LoadScript(args[1])
				if err != nil {
					return userError(err)
				}
				runner := &schema.Runner{Registry: reg, Log: e.log}
				hosts, results, err := runner.Run(cmd.Context(), script)
				if err != nil {
					return userError(fmt.Errorf("run script: %w", err))
				}
				view.Steps = viewResults(hosts, results)
				view.Failures = failures(view.Steps)
			}

			out := cmd.OutOrStdout()
			if e.jsonMode {
				if err := writeJSON(out, view); err != nil {
					return err
				}
			} else {
				for _, c := range view.Classes {
					head := c.Name
					if c.Base != "" {
						head += "(" + c.Base + ")"
					}
					fmt.Fprintf(out, "%s: %s\n", head, strings.Join(c.Facets, ", "))
				}
				if view.Steps != nil {
					printResults(out, view.Steps)
					fmt.Fprintf(out, "%d steps, %d failed\n", len(view.Steps), view.Failures)
				}
			}

			if failOnError && view.Failures > 0 {
				return userError(fmt.Errorf("%d steps failed", view.Failures))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit with status 1 when any step fails")
	return cmd
}

func loadRegistry(path string, opts ...facets.ClassOption) (*schema.Registry, error) {
	s, err := schema.Load(path)
	if err != nil {
		return nil, userError(err)
	}
	reg, err := schema.Compile(s, opts...)
	if err != nil {
		return nil, userError(fmt.Errorf("compile %s: %w", path, err))
	}
	return reg, nil
}

func viewClasses(reg *schema.Registry) []classView {
	var views []classView
	for _, name := range reg.Names() {
		c := reg.Class(name)
		v := classView{Name: name, Prefix: c.Prefix(), Facets: c.Names()}
		if b := c.Base(); b != nil {
			v.Base = b.Name()
		}
		views = append(views, v)
	}
	return views
}
