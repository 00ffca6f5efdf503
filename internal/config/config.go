package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/openmined/notesync/internal/profile"
	"github.com/openmined/notesync/internal/sync"
	"github.com/openmined/notesync/internal/utils"
	"github.com/openmined/notesync/internal/workspace"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "NOTESYNC"
	BackendYAML    = "yaml"
	BackendSQLite  = "sqlite"
	DefaultWorkers = 1
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".notesync", "config.yaml")
	DefaultRootDir    = filepath.Join(home, "Notes")
	DefaultRemoteURL  = "http://localhost:8090"
	DefaultRateLimit  = 5.0
)

var (
	stateBackends = []string{BackendYAML, BackendSQLite}
	policies      = []string{
		sync.PolicyPrompt, sync.PolicyLocal, sync.PolicyRemote,
		sync.PolicySkip, sync.PolicyAbort, sync.PolicyNewest,
	}
)

type Config struct {
	RootDir        string        `mapstructure:"root_dir" yaml:"root_dir"`
	RemoteURL      string        `mapstructure:"remote_url" yaml:"remote_url"`
	RemoteRoot     string        `mapstructure:"remote_root" yaml:"remote_root"`
	Token          string        `mapstructure:"token" yaml:"token,omitempty"`
	StateBackend   string        `mapstructure:"state_backend" yaml:"state_backend"`
	ConflictPolicy string        `mapstructure:"conflict_policy" yaml:"conflict_policy"`
	Workers        int           `mapstructure:"workers" yaml:"workers"`
	FailFast       bool          `mapstructure:"fail_fast" yaml:"fail_fast,omitempty"`
	Profile        string        `mapstructure:"profile" yaml:"profile"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	WatchInterval  time.Duration `mapstructure:"watch_interval" yaml:"watch_interval"`

	Path string `mapstructure:"-" yaml:"-"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root_dir", DefaultRootDir)
	v.SetDefault("remote_url", DefaultRemoteURL)
	v.SetDefault("remote_root", "")
	v.SetDefault("token", "")
	v.SetDefault("state_backend", BackendYAML)
	v.SetDefault("conflict_policy", sync.PolicyPrompt)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("profile", profile.DefaultProfile)
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit", DefaultRateLimit)
	v.SetDefault("watch_interval", sync.DefaultWatchInterval)
}

// FromViper decodes and validates the merged flag, env and file settings.
// The workspace .env file is loaded first so it can provide the token.
func FromViper(v *viper.Viper) (*Config, error) {
	if root, err := utils.ResolvePath(v.GetString("root_dir")); err == nil {
		if err := LoadEnvFile(filepath.Join(root, workspace.EnvFileName)); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	if cfg.Path == "" {
		cfg.Path = DefaultConfigPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes paths and checks every setting. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if root, err := utils.ResolvePath(c.RootDir); err != nil {
		errs = append(errs, fmt.Errorf("root dir: %w", err))
	} else {
		c.RootDir = root
	}

	if c.Path != "" {
		if p, err := utils.ResolvePath(c.Path); err != nil {
			errs = append(errs, fmt.Errorf("config path: %w", err))
		} else {
			c.Path = p
		}
	}

	if err := validateURL(c.RemoteURL); err != nil {
		errs = append(errs, fmt.Errorf("remote url: %w", err))
	}

	if c.StateBackend == "" {
		c.StateBackend = BackendYAML
	}
	if !slices.Contains(stateBackends, c.StateBackend) {
		errs = append(errs, fmt.Errorf("state backend %q, want one of %v", c.StateBackend, stateBackends))
	}

	if c.ConflictPolicy == "" {
		c.ConflictPolicy = sync.PolicyPrompt
	}
	if !slices.Contains(policies, c.ConflictPolicy) {
		errs = append(errs, fmt.Errorf("%w %q, want one of %v", sync.ErrUnknownPolicy, c.ConflictPolicy, policies))
	}

	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit))
	}
	if c.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("watch interval must not be negative, got %s", c.WatchInterval))
	}
	if c.Profile == "" {
		c.Profile = profile.DefaultProfile
	}

	return errors.Join(errs...)
}

// RequireRemote checks the settings needed to talk to the document service
func (c *Config) RequireRemote() error {
	if c.RemoteRoot == "" {
		return errors.New("remote root is not set, run init or pass --remote-root")
	}
	if c.Token == "" {
		return errors.New("token is not set, use NOTESYNC_TOKEN or the workspace .env file")
	}
	return nil
}

// Save writes the config as YAML. The token is only written when set.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	c.Path = path
	return nil
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("root_dir", c.RootDir),
		slog.String("remote_url", c.RemoteURL),
		slog.String("remote_root", c.RemoteRoot),
		slog.String("token", utils.MaskSecret(c.Token)),
		slog.String("state_backend", c.StateBackend),
		slog.String("conflict_policy", c.ConflictPolicy),
		slog.Int("workers", c.Workers),
		slog.String("profile", c.Profile),
		slog.String("path", c.Path),
	)
}

// LoadEnvFile exports the variables of a dotenv file. Variables already set win.
func LoadEnvFile(path string) error {
	if !utils.FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	slog.Debug("env file loaded", "path", path)
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}
