// Package config loads facetctl settings from config.yaml in the resolved
// configuration directory, with FACETS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/facets/internal/paths"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "FACETS"
)

// Config keys.
const (
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyJournalEnabled = "journal.enabled"
	KeyJournalDataDir = "journal.data_dir"
	KeyTraceEnabled   = "trace.enabled"
	KeyTraceMetrics   = "trace.metrics"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// DefaultConfigYAML is written to config.yaml on first run.
const DefaultConfigYAML = `# facetctl configuration

# trace, debug, info, warn, error
log_level: info

# console or json
log_format: console

journal:
  # Record every notification seen by "facetctl trace".
  enabled: true
  # Defaults to $FACETS_DATA_DIR or ./.facets-journal
  # data_dir:

trace:
  enabled: true
  # Print notification counters after a trace run.
  metrics: false
`

// Validation errors.
var (
	ErrLogLevelUnknown  = errors.New("unknown log level")
	ErrLogFormatUnknown = errors.New("unknown log format")
	ErrJournalDirEmpty  = errors.New("journal enabled without a data directory")
)

// Journal configures the SQLite change journal.
type Journal struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	DataDir string `mapstructure:"data_dir" json:"data_dir"`
}

// Trace configures the notification trace handler.
type Trace struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	Metrics bool `mapstructure:"metrics" json:"metrics"`
}

// Config is the complete facetctl configuration.
type Config struct {
	LogLevel  string  `mapstructure:"log_level" json:"log_level"`
	LogFormat string  `mapstructure:"log_format" json:"log_format"`
	Journal   Journal `mapstructure:"journal" json:"journal"`
	Trace     Trace   `mapstructure:"trace" json:"trace"`
}

// Default returns the configuration used when no file or override exists.
func Default() Config {
	return Config{
		LogLevel:  zerolog.InfoLevel.String(),
		LogFormat: FormatConsole,
		Journal:   Journal{Enabled: true},
		Trace:     Trace{Enabled: true},
	}
}

// Validate returns one of the package's sentinel errors when c is unusable.
func (c Config) Validate() error {
	if c.LogLevel == "" {
		return ErrLogLevelUnknown
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrLogLevelUnknown, c.LogLevel)
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrLogFormatUnknown, c.LogFormat)
	}
	if c.Journal.Enabled && c.Journal.DataDir == "" {
		return ErrJournalDirEmpty
	}
	return nil
}

// Load reads config.yaml from configDir, creating the directory and a
// default file on first run. A missing file is not an error. The journal
// directory is resolved with dataDirFlag taking precedence.
func Load(configDir, dataDirFlag string) (Config, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultFile(configDir); err != nil {
		return Config{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := newViper()
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if cfg.Journal.DataDir, err = paths.ResolveDataDir(dataDirFlag, cfg.Journal.DataDir); err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return cfg, cfg.Validate()
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyJournalEnabled, d.Journal.Enabled)
	v.SetDefault(KeyJournalDataDir, "")
	v.SetDefault(KeyTraceEnabled, d.Trace.Enabled)
	v.SetDefault(KeyTraceMetrics, d.Trace.Metrics)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func ensureDefaultFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(DefaultConfigYAML), 0o644)
}
