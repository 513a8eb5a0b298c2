package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/agent"
	"github.com/inkops/inkwell/internal/app"
)

var (
	updateInstruction string
	updateRetrieval   bool
	updateRequestedBy string
)

var updateCmd = &cobra.Command{
	Use:   "update <doc-id>",
	Short: "Revise a document with an instruction",
	Long: `Apply an instruction to a document's current version. The revised
content is appended as a new version; the prior versions stay intact.
With --retrieval, chunks similar to the instruction are retrieved from
the index and offered to the model as context.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpdate(cmd, args[0])
	},
}

func init() {
	updateCmd.Flags().StringVarP(&updateInstruction, "instruction", "i", "", "what to change (required)")
	updateCmd.Flags().BoolVar(&updateRetrieval, "retrieval", false, "retrieve index context for the revision")
	updateCmd.Flags().StringVar(&updateRequestedBy, "by", "", "recorded as the version author")
	_ = updateCmd.MarkFlagRequired("instruction")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, rawID string) error {
	docID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("doc-id must be a UUID: %w", err)
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		result, err := a.Maintainer.Update(ctx, agent.UpdateRequest{
			DocID:        docID,
			Instruction:  updateInstruction,
			UseRetrieval: updateRetrieval,
			RequestedBy:  updateRequestedBy,
		})
		if err != nil {
			return fmt.Errorf("updating document: %w", err)
		}

		out := cmd.OutOrStdout()
		if !result.Changed {
			fmt.Fprintf(out, "No change: version %d already satisfies the instruction\n", result.Version)
			return nil
		}
		fmt.Fprintf(out, "Updated %s\n", result.DocID)
		fmt.Fprintf(out, "  version: %d\n", result.Version)
		fmt.Fprintf(out, "  synced:  %t\n", result.Synced)
		if !result.Synced {
			fmt.Fprintln(out, "  note: index sync deferred, run \"inkwell reconcile\" to repair")
		}
		return nil
	})
}
