package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/facets/internal/journal"
)

func newJournalCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read recorded change notifications",
	}
	cmd.AddCommand(newJournalListCmd(e))
	cmd.AddCommand(newJournalExportCmd(e))
	return cmd
}

// filterFlags binds the journal query flags shared by list and export.
func filterFlags(cmd *cobra.Command, f *journal.Filter) {
	cmd.Flags().StringVar(&f.RunID, "run", "", "only entries from this run")
	cmd.Flags().StringVar(&f.HostID, "host", "", "only entries for this host UUID")
	cmd.Flags().StringVar(&f.Name, "name", "", "only entries for this attribute")
	cmd.Flags().UintVar(&f.Limit, "limit", 0, "maximum number of entries (0 for all)")
}

func openJournal(e *env) (*journal.Journal, error) {
	j, err := journal.Open(e.cfg.Journal.DataDir, journal.WithLogger(e.log))
	if err != nil {
		return nil, sysError(fmt.Errorf("open journal: %w", err))
	}
	return j, nil
}

func newJournalListCmd(e *env) *cobra.Command {
	var f journal.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries in sequence order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(e)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.List(cmd.Context(), f)
			if err != nil {
				return sysError(err)
			}
			out := cmd.OutOrStdout()
			if e.jsonMode {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return writeJSON(out, entries)
			}
			for _, en := range entries {
				fmt.Fprintf(out, "%d %s %s %s.%s [%s] %s -> %s\n",
					en.Seq, en.RecordedAt, en.HostID, en.Class, en.Name, en.Category, en.OldValue, en.NewValue)
			}
			return nil
		},
	}
	filterFlags(cmd, &f)
	return cmd
}

func newJournalExportCmd(e *env) *cobra.Command {
	var f journal.Filter
	cmd := &cobra.Command{
		Use:   "export <file|->",
		Short: "Export journal entries as JSONL",
		Long:  "Write matching entries one JSON object per line. Use - for standard output.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(e)
			if err != nil {
				return err
			}
			defer j.Close()

			if args[0] == "-" {
				if _, err := j.Export(cmd.Context(), cmd.OutOrStdout(), f); err != nil {
					return sysError(err)
				}
				return nil
			}
			n, err := j.ExportFile(cmd.Context(), args[0], f)
			if err != nil {
				return sysError(err)
			}
			e.log.Info().Int("entries", n).Str("file", args[0]).Msg("journal exported")
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d entries to %s\n", n, args[0])
			return nil
		},
	}
	filterFlags(cmd, &f)
	return cmd
}
