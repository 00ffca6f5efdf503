package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/openmined/notesync/internal/app"
	"github.com/openmined/notesync/internal/config"
	"github.com/openmined/notesync/internal/utils"
	"github.com/openmined/notesync/internal/workspace"
	"github.com/spf13/cobra"
)

const tokenEnv = config.EnvPrefix + "_TOKEN"

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace, write the config and prepare the remote root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ws, err := workspace.NewWorkspace(cfg.RootDir)
			if err != nil {
				return err
			}
			if err := ws.Setup(); err != nil {
				return err
			}

			if token != "" {
				if err := writeToken(ws.EnvFile, token); err != nil {
					return err
				}
				cfg.Token = token
				fmt.Fprintf(out, "Token:       %s\n", green.Render("saved to "+ws.EnvFile))
			}

			// the token lives in the workspace .env file only
			saved := *cfg
			saved.Token = ""
			if err := saved.Save(cfg.Path); err != nil {
				return err
			}

			fmt.Fprintf(out, "Config Path: %s\n", green.Render(cfg.Path))
			fmt.Fprintf(out, "Notes Dir:   %s\n", cyan.Render(cfg.RootDir))
			fmt.Fprintf(out, "Remote:      %s\n", cyan.Render(cfg.RemoteURL))

			if err := cfg.RequireRemote(); err != nil {
				fmt.Fprintf(out, "%s: %s\n", yellow.Render("Remote not prepared"), err)
				return nil
			}

			closeLog, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := app.New(cfg, app.Options{In: cmd.InOrStdin(), Out: out})
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.EnsureContainers(cmd.Context())
			if err != nil {
				return err
			}
			for _, title := range created {
				fmt.Fprintf(out, "Created:     %s\n", cyan.Render(title))
			}
			fmt.Fprintf(out, "Remote Root: %s\n", green.Render(cfg.RemoteRoot))
			return nil
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "access token for the document service")
	return cmd
}

// writeToken stores the token in the dotenv file, keeping other variables
func writeToken(path, token string) error {
	env := map[string]string{}
	if utils.FileExists(path) {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		env = existing
	}
	env[tokenEnv] = token
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
