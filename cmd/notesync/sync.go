package main

import (
	"context"
	"errors"

	"github.com/openmined/notesync/internal/app"
	"github.com/openmined/notesync/internal/sync"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPlanCmd())
}

func newSyncCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the notes directory with the document service once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Run(ctx, dryRun)
				printResult(cmd.OutOrStdout(), res)
				if errors.Is(err, sync.ErrAborted) {
					return nil
				}
				if err != nil {
					return err
				}
				if res.Failed() > 0 {
					return errors.New("some actions failed, see above")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "only show what would be done")
	return cmd
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the pending actions without applying them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Run(ctx, true)
				if err != nil {
					return err
				}
				printActions(cmd.OutOrStdout(), res.Planned)
				return nil
			})
		},
	}
}
