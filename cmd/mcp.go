package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/board/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Assistants can read reports and edit work items through it. Configure
the client with:

  {
    "mcpServers": {
      "board": { "command": "board", "args": ["mcp"] }
    }
  }

Available tools: board_burndown, board_velocity, board_epic_progress,
board_workload, board_create_item, board_update_item, board_set_sprint_epics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		svc := newServices(s)
		return mcp.NewServer(s, svc.items, svc.planning, svc.reports).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
