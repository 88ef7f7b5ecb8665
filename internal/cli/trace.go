package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/facets/internal/journal"
	"github.com/mesh-intelligence/facets/internal/observability"
	"github.com/mesh-intelligence/facets/internal/schema"
	"github.com/mesh-intelligence/facets/pkg/facets"
)

type noteView struct {
	Host     string `json:"host"`
	Class    string `json:"class"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Old      any    `json:"old"`
	New      any    `json:"new"`
}

type sampleView struct {
	Metric string  `json:"metric"`
	Labels string  `json:"labels"`
	Value  float64 `json:"value"`
}

type traceView struct {
	RunID         string       `json:"run_id,omitempty"`
	Notifications []noteView   `json:"notifications"`
	Steps         []stepView   `json:"steps"`
	Failures      int          `json:"failures"`
	Metrics       []sampleView `json:"metrics,omitempty"`
}

// capture keeps every notification for rendering once host IDs are known.
type capture struct {
	got []facets.Notification
}

func (c *capture) Notify(n facets.Notification) error {
	c.got = append(c.got, n)
	return nil
}

func newTraceCmd(e *env) *cobra.Command {
	var metrics bool
	cmd := &cobra.Command{
		Use:   "trace <schema> <script>",
		Short: "Run a script and show every change notification",
		Long: "Run a script with a listener on every host. Notifications are printed,\n" +
			"recorded in the journal when it is enabled, and counted when tracing\n" +
			"is enabled.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seen := &capture{}
			listeners := []facets.Listener{seen}

			var view traceView
			if e.cfg.Journal.Enabled {
				j, err := journal.Open(e.cfg.Journal.DataDir, journal.WithLogger(e.log))
				if err != nil {
					return sysError(fmt.Errorf("open journal: %w", err))
				}
				defer j.Close()
				listeners = append(listeners, j)
				view.RunID = j.RunID()
			}

			var tracer *observability.Tracer
			if e.cfg.Trace.Enabled {
				tracer = observability.NewTracer(e.log)
				restore := tracer.Install()
				defer restore()
			}

			reg, err := loadRegistry(args[0], schema.ObserveAll(listeners...))
			if err != nil {
				return err
			}
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
			for _, n := range seen.got {
				view.Notifications = append(view.Notifications, viewNote(hosts, n))
			}
			if tracer != nil && (metrics || e.cfg.Trace.Metrics) {
				samples, err := tracer.Counters()
				if err != nil {
					return sysError(err)
				}
				for _, s := range samples {
					view.Metrics = append(view.Metrics, sampleView{Metric: s.Metric, Labels: s.Key(), Value: s.Value})
				}
			}

			e.log.Info().Int("notifications", len(view.Notifications)).Int("failures", view.Failures).
				Str("run_id", view.RunID).Msg("trace finished")
			return printTrace(cmd, e, view)
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print notification counters after the run")
	return cmd
}

func viewNote(hosts schema.Hosts, n facets.Notification) noteView {
	v := noteView{
		Host:     hosts.IDOf(n.Host),
		Name:     n.Name,
		Category: facets.CategoryItem.String(),
		Old:      display(hosts, n.Old),
		New:      display(hosts, n.New),
	}
	if n.Host != nil {
		v.Class = n.Host.Class().Name()
	}
	if n.Record != nil {
		v.Category = n.Record.Category().String()
	}
	return v
}

func printTrace(cmd *cobra.Command, e *env, view traceView) error {
	out := cmd.OutOrStdout()
	if e.jsonMode {
		return writeJSON(out, view)
	}
	for _, n := range view.Notifications {
		fmt.Fprintf(out, "%s.%s [%s] %v -> %v\n", n.Host, n.Name, n.Category, n.Old, n.New)
	}
	printResults(out, view.Steps)
	fmt.Fprintf(out, "%d steps, %d failed, %d notifications\n", len(view.Steps), view.Failures, len(view.Notifications))
	if view.RunID != "" {
		fmt.Fprintf(out, "journal run: %s\n", view.RunID)
	}
	for _, s := range view.Metrics {
		fmt.Fprintf(out, "%s{%s} %g\n", s.Metric, s.Labels, s.Value)
	}
	return nil
}
