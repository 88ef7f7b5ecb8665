package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/facets/internal/journal"
)

func newInitCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and journal directories",
		Long: "Write a default config.yaml if none exists, then create the journal\n" +
			"database. Running init again is harmless.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(e.cfg.Journal.DataDir, journal.WithLogger(e.log))
			if err != nil {
				return sysError(fmt.Errorf("initialize journal: %w", err))
			}
			if err := j.Close(); err != nil {
				return sysError(fmt.Errorf("close journal: %w", err))
			}

			out := cmd.OutOrStdout()
			if e.jsonMode {
				return writeJSON(out, map[string]string{
					"config_dir": e.configDir,
					"journal":    j.Path(),
				})
			}
			fmt.Fprintf(out, "config: %s\njournal: %s\n", e.configDir, j.Path())
			return nil
		},
	}
}
