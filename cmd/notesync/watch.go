package main

import (
	"context"
	"log/slog"

	"github.com/openmined/notesync/internal/app"
	"github.com/openmined/notesync/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newWatchCmd())
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on every local change and on a fixed interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				defer slog.Info("Bye!")
				return a.Watch(ctx, func(res *sync.RunResult, err error) {
					if err == nil {
						printResult(out, res)
					}
				})
			})
		},
	}

	cmd.Flags().DurationP("interval", "i", sync.DefaultWatchInterval, "time between remote polls")
	return cmd
}
