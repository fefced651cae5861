package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/planning"
	"github.com/joescharf/board/internal/reports"
	"github.com/joescharf/board/internal/store"
	"github.com/joescharf/board/internal/workitems"
)

// Server exposes board reports and mutations as MCP tools.
type Server struct {
	store    store.Store
	items    *workitems.Service
	planning *planning.Service
	reports  *reports.Engine
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, items *workitems.Service, plan *planning.Service, eng *reports.Engine) *Server {
	return &Server{store: s, items: items, planning: plan, reports: eng}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("board", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.burndownTool())
	srv.AddTool(s.velocityTool())
	srv.AddTool(s.epicProgressTool())
	srv.AddTool(s.workloadTool())
	srv.AddTool(s.createItemTool())
	srv.AddTool(s.updateItemTool())
	srv.AddTool(s.setSprintEpicsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// resolveBoard accepts a board id or a board key.
func (s *Server) resolveBoard(ctx context.Context, ref string) (*models.Board, error) {
	b, err := s.store.GetBoard(ctx, ref)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		if strings.EqualFold(b.Key, ref) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("board %s: %w", ref, models.ErrNotFound)
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

// board_burndown
func (s *Server) burndownTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_burndown",
		mcp.WithDescription("Sprint burndown: ideal and actual remaining estimation points for each day of the sprint."),
		mcp.WithString("sprint_id", mcp.Required(), mcp.Description("Sprint ID")),
	)
	return tool, s.handleBurndown
}

func (s *Server) handleBurndown(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sprintID, err := request.RequireString("sprint_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: sprint_id"), nil
	}
	b, err := s.reports.Burndown(ctx, sprintID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("burndown failed: %v", err)), nil
	}
	return jsonResult(b, "burndown")
}

// board_velocity
func (s *Server) velocityTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_velocity",
		mcp.WithDescription("Completed points of the most recent closed sprints of a board, oldest first, with their average."),
		mcp.WithString("board", mcp.Required(), mcp.Description("Board ID or key")),
		mcp.WithNumber("window", mcp.Description("Number of closed sprints to include (default from config)")),
	)
	return tool, s.handleVelocity
}

func (s *Server) handleVelocity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("board")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: board"), nil
	}
	b, err := s.resolveBoard(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("board not found: %s", ref)), nil
	}
	window := request.GetInt("window", 0)
	if window < 0 {
		return mcp.NewToolResultError("window must be positive"), nil
	}
	v, err := s.reports.Velocity(ctx, b.ID, window)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("velocity failed: %v", err)), nil
	}
	return jsonResult(v, "velocity")
}

// board_epic_progress
func (s *Server) epicProgressTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_epic_progress",
		mcp.WithDescription("Per-epic completion of a board by items and by estimation points."),
		mcp.WithString("board", mcp.Required(), mcp.Description("Board ID or key")),
	)
	return tool, s.handleEpicProgress
}

func (s *Server) handleEpicProgress(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("board")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: board"), nil
	}
	b, err := s.resolveBoard(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("board not found: %s", ref)), nil
	}
	p, err := s.reports.EpicProgress(ctx, b.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("epic progress failed: %v", err)), nil
	}
	return jsonResult(p, "epic progress")
}

// board_workload
func (s *Server) workloadTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_workload",
		mcp.WithDescription("Per-user open items, in-progress items and estimation points on a board, ordered by display name."),
		mcp.WithString("board", mcp.Required(), mcp.Description("Board ID or key")),
	)
	return tool, s.handleWorkload
}

func (s *Server) handleWorkload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("board")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: board"), nil
	}
	b, err := s.resolveBoard(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("board not found: %s", ref)), nil
	}
	wl, err := s.reports.Workload(ctx, b.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("workload failed: %v", err)), nil
	}
	return jsonResult(wl, "workload")
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// board_create_item
func (s *Server) createItemTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_create_item",
		mcp.WithDescription("Create a work item on a board. Returns the created item as JSON."),
		mcp.WithString("board", mcp.Required(), mcp.Description("Board ID or key")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
		mcp.WithString("type", mcp.Description("Item type, e.g. story, task, bug (default: task)")),
		mcp.WithString("status", mcp.Description("Item status (default: Open)")),
		mcp.WithString("description", mcp.Description("Item description")),
		mcp.WithString("priority", mcp.Description("Item priority")),
		mcp.WithString("epic_id", mcp.Description("Epic ID")),
		mcp.WithString("sprint_id", mcp.Description("Sprint ID")),
		mcp.WithString("assignee_id", mcp.Description("User ID of the primary assignee")),
		mcp.WithNumber("estimation_points", mcp.Description("Estimation points")),
	)
	return tool, s.handleCreateItem
}

func optional(request mcp.CallToolRequest, key string) *string {
	if v := request.GetString(key, ""); v != "" {
		return &v
	}
	return nil
}

func (s *Server) handleCreateItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := request.RequireString("board")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: board"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	b, err := s.resolveBoard(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("board not found: %s", ref)), nil
	}

	in := &models.WorkItemInput{
		BoardID:     b.ID,
		Title:       title,
		Type:        request.GetString("type", "task"),
		Status:      models.Status(request.GetString("status", string(models.StatusOpen))),
		Description: request.GetString("description", ""),
		Priority:    request.GetString("priority", ""),
		EpicID:      optional(request, "epic_id"),
		SprintID:    optional(request, "sprint_id"),
		AssigneeID:  request.GetString("assignee_id", ""),
	}
	if _, ok := request.GetArguments()["estimation_points"]; ok {
		points := request.GetInt("estimation_points", 0)
		in.EstimationPoints = &points
	}

	item, err := s.items.Create(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create item: %v", err)), nil
	}
	return jsonResult(item, "item")
}

// updateArgs maps tool argument names to work item patch fields.
var updateArgs = map[string]string{
	"title":             "title",
	"description":       "description",
	"type":              "type",
	"status":            "status",
	"priority":          "priority",
	"epic_id":           "epicId",
	"sprint_id":         "sprintId",
	"estimation_points": "estimationPoints",
	"actor_id":          "actorId",
}

// board_update_item
func (s *Server) updateItemTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_update_item",
		mcp.WithDescription("Partially update a work item. Only the given fields change; setting status to Done records the completion sprint. Returns the updated item as JSON."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Work item ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("type", mcp.Description("New type")),
		mcp.WithString("status", mcp.Description("New status, e.g. Open, In Progress, In Review, Done")),
		mcp.WithString("priority", mcp.Description("New priority")),
		mcp.WithString("epic_id", mcp.Description("New epic ID")),
		mcp.WithString("sprint_id", mcp.Description("New sprint ID")),
		mcp.WithNumber("estimation_points", mcp.Description("New estimation points")),
		mcp.WithString("actor_id", mcp.Description("User making the change, recorded on status transitions")),
	)
	return tool, s.handleUpdateItem
}

func (s *Server) handleUpdateItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, err := request.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: item_id"), nil
	}

	fields := make(map[string]any)
	for arg, v := range request.GetArguments() {
		if field, ok := updateArgs[arg]; ok {
			fields[field] = v
		}
	}
	if len(fields) == 0 {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: title, description, type, status, priority, epic_id, sprint_id, estimation_points"), nil
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	var p models.WorkItemPatch
	if err := json.Unmarshal(raw, &p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	item, err := s.items.Update(ctx, itemID, &p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update item: %v", err)), nil
	}
	return jsonResult(item, "item")
}

// board_set_sprint_epics
func (s *Server) setSprintEpicsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("board_set_sprint_epics",
		mcp.WithDescription("Replace the epics linked to a sprint and move the epics' work items onto the sprint. Items of unlinked epics keep their sprint."),
		mcp.WithString("sprint_id", mcp.Required(), mcp.Description("Sprint ID")),
		mcp.WithArray("epic_ids", mcp.Required(), mcp.Description("Epic IDs to link"), mcp.WithStringItems()),
	)
	return tool, s.handleSetSprintEpics
}

func (s *Server) handleSetSprintEpics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sprintID, err := request.RequireString("sprint_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: sprint_id"), nil
	}
	if _, ok := request.GetArguments()["epic_ids"]; !ok {
		return mcp.NewToolResultError("missing required parameter: epic_ids"), nil
	}
	epicIDs := request.GetStringSlice("epic_ids", nil)

	res, err := s.planning.SetEpicsForSprint(ctx, sprintID, epicIDs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set sprint epics: %v", err)), nil
	}
	return jsonResult(res, "sprint epics")
}
