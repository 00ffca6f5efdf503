package main

import (
	"context"

	"github.com/openmined/notesync/internal/app"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newTreeCmd())
}

func newTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the merged tree of both sides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				root, err := a.Tree(ctx)
				if err != nil {
					return err
				}
				printTree(cmd.OutOrStdout(), root)
				return nil
			})
		},
	}
}
