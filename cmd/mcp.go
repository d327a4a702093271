package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jubeelegal/jubee/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This allows Claude Code to drive the scrutiny workflow natively. Configure
in Claude Code with:

  {
    "mcpServers": {
      "jubee": { "command": "jubee", "args": ["mcp"] }
    }
  }

Available tools: jubee_list_packages, jubee_package_status, jubee_scan,
jubee_list_defects, jubee_resolve_defect, jubee_ignore_defect, jubee_proceed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()

		srv := mcp.NewServer(dataStore, m)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
