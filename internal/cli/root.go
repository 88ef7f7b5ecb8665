// Package cli implements the facetctl command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/facets/internal/config"
	"github.com/mesh-intelligence/facets/internal/observability"
	"github.com/mesh-intelligence/facets/internal/paths"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

const appName = "facetctl"

var jsonAPI = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }
func sysError(err error) error  { return &exitError{code: exitSysError, err: err} }

// ExitCode maps an error returned by the root command to a process exit
// code. Errors without a code are usage errors.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// env holds global flag values and what PersistentPreRunE derives from
// them. Commands read it after pre-run.
type env struct {
	configDir string
	dataDir   string
	jsonMode  bool

	cfg config.Config
	log zerolog.Logger
}

// NewRootCmd creates the top-level "facetctl" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	e := &env{log: zerolog.Nop()}
	root := &cobra.Command{
		Use:   appName,
		Short: "Inspect and exercise facet schemas",
		Long: "facetctl compiles class schemas, runs scripted attribute changes against them,\n" +
			"and records the resulting change notifications in a journal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return e.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&e.configDir, "config-dir", "", "configuration directory (default: $FACETS_CONFIG_DIR or the user config dir)")
	root.PersistentFlags().StringVar(&e.dataDir, "data-dir", "", "journal directory (default: config, $FACETS_DATA_DIR or ./.facets-journal)")
	root.PersistentFlags().BoolVar(&e.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(e))
	root.AddCommand(newCheckCmd(e))
	root.AddCommand(newTraceCmd(e))
	root.AddCommand(newJournalCmd(e))

	return root
}

func (e *env) setup(stderr io.Writer) error {
	dir, err := paths.ResolveConfigDir(e.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	e.configDir = dir

	cfg, err := config.Load(dir, e.dataDir)
	if err != nil {
		return userError(fmt.Errorf("load config: %w", err))
	}
	e.cfg = cfg

	log, err := observability.NewLogger(appName, cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return userError(err)
	}
	e.log = log
	e.log.Debug().Str("config_dir", dir).Str("data_dir", cfg.Journal.DataDir).Msg("configuration loaded")
	return nil
}

// writeJSON encodes v on its own line.
func writeJSON(w io.Writer, v any) error {
	b, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("encode output: %w", err))
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(ExitCode(err))
	}
}
