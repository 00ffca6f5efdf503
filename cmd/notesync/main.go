package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/openmined/notesync/internal/app"
	"github.com/openmined/notesync/internal/config"
	"github.com/openmined/notesync/internal/logging"
	"github.com/openmined/notesync/internal/version"
	"github.com/openmined/notesync/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configPathEnv = config.EnvPrefix + "_CONFIG"

// flagKeys maps config keys to persistent flag names
var flagKeys = map[string]string{
	"root_dir":        "root",
	"remote_url":      "remote-url",
	"remote_root":     "remote-root",
	"state_backend":   "state",
	"conflict_policy": "policy",
	"workers":         "workers",
	"fail_fast":       "fail-fast",
	"profile":         "profile",
	"log_level":       "log-level",
	"watch_interval":  "interval",
}

var rootCmd = &cobra.Command{
	Use:           "notesync",
	Short:         "Keep a folder of notes in sync with a document service",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "notesync config file")
	flags.StringP("root", "r", config.DefaultRootDir, "local notes directory")
	flags.String("remote-url", config.DefaultRemoteURL, "document service URL")
	flags.String("remote-root", "", "id of the remote root page")
	flags.StringP("policy", "p", "prompt", "conflict policy: prompt, local, remote, skip, abort, newest")
	flags.String("state", config.BackendYAML, "sync state backend: yaml or sqlite")
	flags.IntP("workers", "w", config.DefaultWorkers, "parallel workers for independent subtrees")
	flags.Bool("fail-fast", false, "stop at the first failed action")
	flags.String("profile", "university", "builtin profile name or profile file")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", red.Render("ERROR"), err)
		os.Exit(1)
	}
}

// resolveConfigPath honors the --config flag, then NOTESYNC_CONFIG, then the default
func resolveConfigPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if p := os.Getenv(configPathEnv); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

// loadConfig merges defaults, the config file, env and flags, in that order of precedence
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	v.SetConfigFile(resolveConfigPath(cmd))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read %q: %w", v.ConfigFileUsed(), err)
		}
	}

	for key, name := range flagKeys {
		if f := cmd.Flag(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	return config.FromViper(v)
}

// setupLogging logs to stderr and to the workspace log file
func setupLogging(cfg *config.Config) (func() error, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.NewWorkspace(cfg.RootDir)
	if err != nil {
		return nil, err
	}
	return logging.Setup(logging.Options{
		Level:    level,
		Console:  os.Stderr,
		FilePath: ws.LogFile(),
	})
}

// withApp wires the app for cmd and hands it to fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := app.New(cfg, app.Options{
		In:  cmd.InOrStdin(),
		Out: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}
