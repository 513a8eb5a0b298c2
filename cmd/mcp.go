package cmd

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/inkops/inkwell/internal/app"
	"github.com/inkops/inkwell/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Expose the read-only document tools (document_search, document_get,
document_history) to MCP clients such as Claude Desktop over stdio.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		return runMCP()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		server, err := mcp.NewServer(mcp.Config{
			Name:     "inkwell",
			Version:  Version,
			Docs:     a.Docs,
			Searcher: a.Searcher,
			Logger:   a.Logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}

		a.Logger.Info("MCP server ready", "transport", "stdio")
		if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
			return fmt.Errorf("MCP server: %w", err)
		}
		return nil
	})
}
