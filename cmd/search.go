package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/app"
	"github.com/inkops/inkwell/internal/vector"
)

var (
	searchTopK  int
	searchDocID string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd, strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of chunks to return (default from config)")
	searchCmd.Flags().StringVar(&searchDocID, "doc", "", "scope the search to one document UUID")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, query string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		opts := []vector.QueryOption{}
		switch {
		case searchTopK > 0:
			opts = append(opts, vector.WithTopK(searchTopK))
		case a.Config.TopK > 0:
			opts = append(opts, vector.WithTopK(a.Config.TopK))
		}
		if searchDocID != "" {
			docID, err := uuid.Parse(searchDocID)
			if err != nil {
				return fmt.Errorf("--doc must be a UUID: %w", err)
			}
			opts = append(opts, vector.WithDocID(docID))
		}

		results, err := a.Searcher.Search(ctx, query, opts...)
		if err != nil {
			return fmt.Errorf("searching: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No matches.")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(out, "%d. [%.3f] doc %s v%d chunk %d\n", i+1, r.Similarity, r.DocID, r.Version, r.Index)
			fmt.Fprintf(out, "   %s\n", excerpt(r.Content, 200))
		}
		return nil
	})
}

// excerpt flattens and truncates chunk content for one-line display.
func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
