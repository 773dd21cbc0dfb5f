package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/ado/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant create Azure DevOps work items through ado.
Configure in Claude Code with:

  {
    "mcpServers": {
      "ado": { "command": "ado", "args": ["mcp"] }
    }
  }

Available tools: ado_status, ado_list_configs, ado_list_story_types,
ado_create_work_item, ado_bulk_create, ado_apply_story_type`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	// Stdout carries the protocol, so progress and logs go to stderr.
	log := newLogger(os.Stderr, "ado-mcp", true)
	ui.Out = os.Stderr

	st, err := getSettings()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	if !svc.Configured() {
		log.Warn("no credential stored; run 'ado auth set' or set ADO_AZURE_PAT before creating work items")
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	log.Info("serving MCP on stdio", "version", buildVersion)
	if err := mcp.NewServer(st, svc, buildVersion).ServeStdio(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
