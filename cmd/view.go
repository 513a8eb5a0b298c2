package cmd

import (
	"context"
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/app"
	"github.com/inkops/inkwell/internal/document"
)

var (
	viewVersion int
	viewPlain   bool
)

var viewCmd = &cobra.Command{
	Use:   "view <doc-id>",
	Short: "Render a document in the terminal",
	Long: `Render a document's current content as styled markdown. Use --version
to view a historical version and --plain to skip styling (for piping).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runView(cmd, args[0])
	},
}

func init() {
	viewCmd.Flags().IntVarP(&viewVersion, "version", "n", 0, "version to view (default: current)")
	viewCmd.Flags().BoolVar(&viewPlain, "plain", false, "print raw markdown without styling")
	rootCmd.AddCommand(viewCmd)
}

var (
	viewTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	viewMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func runView(cmd *cobra.Command, rawID string) error {
	docID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("doc-id must be a UUID: %w", err)
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		doc, version, err := loadViewVersion(ctx, a, docID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if viewPlain {
			fmt.Fprintln(out, version.Content)
			return nil
		}

		fmt.Fprintln(out, viewTitleStyle.Render(doc.Title))
		fmt.Fprintln(out, viewMetaStyle.Render(fmt.Sprintf(
			"%s · version %d of %d · by %s · %s",
			doc.Type, version.Number, doc.CurrentVersion,
			version.CreatedBy, version.CreatedAt.Format("2006-01-02 15:04"),
		)))
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderMarkdown(version.Content))
		return nil
	})
}

func loadViewVersion(ctx context.Context, a *app.App, docID uuid.UUID) (*document.Document, *document.Version, error) {
	if viewVersion > 0 {
		doc, err := a.Docs.Get(ctx, docID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading document: %w", err)
		}
		version, err := a.Docs.GetVersion(ctx, docID, viewVersion)
		if err != nil {
			return nil, nil, fmt.Errorf("loading version %d: %w", viewVersion, err)
		}
		return doc, version, nil
	}

	doc, version, err := a.Docs.GetCurrent(ctx, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading document: %w", err)
	}
	return doc, version, nil
}

// renderMarkdown renders content as styled terminal markdown, degrading
// to the raw text when the renderer cannot be built.
func renderMarkdown(content string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
