package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/openmined/notesync/internal/docserver"
	"github.com/openmined/notesync/internal/logging"
	"github.com/openmined/notesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NOTESYNC_DOCSERVER"

var rootCmd = &cobra.Command{
	Use:           "docserver",
	Short:         "Document service for notesync",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		srv, err := docserver.New(cfg)
		if err != nil {
			return err
		}
		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

func init() {
	addFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newSeedRootCmd())
}

func addFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.StringP("config", "f", "", "docserver config file")
	flags.StringP("bind", "b", docserver.DefaultAddr, "address to bind the server")
	flags.StringP("cert", "c", "", "path to the certificate file")
	flags.StringP("key", "k", "", "path to the key file")
	flags.String("db", "docserver.db", "path to the page database")
	flags.String("secret", "", "token signing secret")
	flags.String("rate-limit", docserver.DefaultRateLimit, "requests per client, e.g. 20-S or 1000-H")
	flags.String("log-level", "debug", "log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*docserver.Config, error) {
	v := viper.New()

	if path := cmd.Flag("config").Value.String(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config read %q: %w", path, err)
		}
	}

	bindings := map[string]string{
		"http.addr":      "bind",
		"http.cert_file": "cert",
		"http.key_file":  "key",
		"db_path":        "db",
		"auth.secret":    "secret",
		"rate_limit":     "rate-limit",
		"log_level":      "log-level",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, cmd.Flag(name)); err != nil {
			return nil, err
		}
	}
	v.SetDefault("auth.issuer", docserver.DefaultIssuer)
	v.SetDefault("auth.token_expiry", 0)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	level, err := logging.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, err
	}
	if _, err := logging.Setup(logging.Options{Level: level, Console: os.Stderr}); err != nil {
		return nil, err
	}

	var cfg docserver.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newTokenCmd() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the server secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			token, err := docserver.NewToken(subject, &cfg.Auth)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVarP(&subject, "subject", "s", "notesync", "token subject")
	return cmd
}

func newSeedRootCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "seed-root",
		Short: "Create a root collection and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := docserver.NewPageStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			root, err := store.CreateRoot(cmd.Context(), title)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), root.ID)
			return err
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "Workspace", "root title")
	return cmd
}
