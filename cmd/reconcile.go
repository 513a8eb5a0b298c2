package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/app"
	"github.com/inkops/inkwell/internal/docsync"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [doc-id]",
	Short: "Repair the search index",
	Long: `Compare the chunk index against committed document versions and repair
any divergence. With a doc-id only that document is checked; without
one, every document is. Idempotent either way.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runReconcileOne(cmd, args[0])
		}
		return runReconcileAll(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcileOne(cmd *cobra.Command, rawID string) error {
	docID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("doc-id must be a UUID: %w", err)
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		res, err := a.Coordinator.Reconcile(ctx, docID)
		if err != nil {
			return fmt.Errorf("reconciling: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (version %d)\n", res.DocID, res.Action, res.Version)
		return nil
	})
}

func runReconcileAll(cmd *cobra.Command) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		results, err := a.Coordinator.ReconcileAll(ctx)
		out := cmd.OutOrStdout()
		for _, res := range results {
			if res.Action == docsync.ActionPurge {
				fmt.Fprintf(out, "%s: %s\n", res.DocID, res.Action)
				continue
			}
			fmt.Fprintf(out, "%s: %s (version %d)\n", res.DocID, res.Action, res.Version)
		}
		if err != nil {
			return fmt.Errorf("reconciling: %w", err)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "Index consistent, nothing to repair.")
		}
		return nil
	})
}
