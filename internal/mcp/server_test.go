package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/planning"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/reports"
	"github.com/joescharf/board/internal/store"
	"github.com/joescharf/board/internal/workitems"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type testEnv struct {
	srv      *Server
	store    *store.SQLiteStore
	planning *planning.Service
	board    *models.Board
	ctx      context.Context
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	hub := realtime.NewHub(nil)
	env := &testEnv{store: s, ctx: context.Background()}
	env.planning = planning.NewService(s, hub)
	env.srv = NewServer(s, workitems.NewService(s, hub), env.planning, reports.NewEngine(s, 0))

	env.board = &models.Board{Name: "Board", Key: "BRD"}
	require.NoError(t, s.CreateBoard(env.ctx, env.board))
	return env
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func decodeResult[T any](t *testing.T, result *mcpgo.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &v))
	return v
}

func (e *testEnv) createItem(t *testing.T, args map[string]any) models.WorkItem {
	t.Helper()
	result, err := e.srv.handleCreateItem(e.ctx, callToolReq("board_create_item", args))
	require.NoError(t, err)
	return decodeResult[models.WorkItem](t, result)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	env := newTestServer(t)
	require.NotNil(t, env.srv.MCPServer(), "MCPServer() should return non-nil")
}

func TestHandleCreateItem_ResolvesBoardByKey(t *testing.T) {
	env := newTestServer(t)

	item := env.createItem(t, map[string]any{"board": "brd", "title": "Write docs", "estimation_points": float64(3)})
	assert.Equal(t, env.board.ID, item.BoardID)
	assert.Equal(t, "task", item.Type)
	assert.Equal(t, models.StatusOpen, item.Status)
	require.NotNil(t, item.EstimationPoints)
	assert.Equal(t, 3, *item.EstimationPoints)
}

func TestHandleCreateItem_Errors(t *testing.T) {
	env := newTestServer(t)

	result, err := env.srv.handleCreateItem(env.ctx, callToolReq("board_create_item", map[string]any{"board": env.board.ID}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "title")

	result, err = env.srv.handleCreateItem(env.ctx, callToolReq("board_create_item", map[string]any{"board": "nope", "title": "X"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "board not found")
}

func TestHandleUpdateItem_Sparse(t *testing.T) {
	env := newTestServer(t)
	sp, err := env.planning.CreateSprint(env.ctx, &models.SprintInput{
		BoardID: env.board.ID, Name: "S1", StartDate: "2024-01-01", EndDate: "2024-01-07",
	})
	require.NoError(t, err)
	item := env.createItem(t, map[string]any{"board": env.board.ID, "title": "X", "priority": "high", "sprint_id": sp.ID})

	result, err := env.srv.handleUpdateItem(env.ctx, callToolReq("board_update_item", map[string]any{
		"item_id": item.ID,
		"status":  "Done",
	}))
	require.NoError(t, err)
	got := decodeResult[models.WorkItem](t, result)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, "high", got.Priority)
	assert.Equal(t, "X", got.Title)
	require.NotNil(t, got.DoneInSprintID)
	assert.Equal(t, sp.ID, *got.DoneInSprintID)
}

func TestHandleUpdateItem_Errors(t *testing.T) {
	env := newTestServer(t)

	result, err := env.srv.handleUpdateItem(env.ctx, callToolReq("board_update_item", map[string]any{"item_id": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no fields provided")

	result, err = env.srv.handleUpdateItem(env.ctx, callToolReq("board_update_item", map[string]any{"item_id": "x", "title": "Y"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")

	result, err = env.srv.handleUpdateItem(env.ctx, callToolReq("board_update_item", map[string]any{"title": "Y"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSetSprintEpics_AndReports(t *testing.T) {
	env := newTestServer(t)
	epic, err := env.planning.CreateEpic(env.ctx, &models.EpicInput{BoardID: env.board.ID, Title: "E1"})
	require.NoError(t, err)
	sp, err := env.planning.CreateSprint(env.ctx, &models.SprintInput{
		BoardID: env.board.ID, Name: "S1", StartDate: "2024-01-01", EndDate: "2024-01-03",
	})
	require.NoError(t, err)
	item := env.createItem(t, map[string]any{"board": env.board.ID, "title": "X", "epic_id": epic.ID, "estimation_points": float64(4)})

	result, err := env.srv.handleSetSprintEpics(env.ctx, callToolReq("board_set_sprint_epics", map[string]any{
		"sprint_id": sp.ID,
		"epic_ids":  []any{epic.ID},
	}))
	require.NoError(t, err)
	linked := decodeResult[planning.SprintEpics](t, result)
	assert.Equal(t, []string{epic.ID}, linked.EpicIDs)

	got, err := env.store.GetWorkItem(env.ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SprintID)
	assert.Equal(t, sp.ID, *got.SprintID)

	result, err = env.srv.handleBurndown(env.ctx, callToolReq("board_burndown", map[string]any{"sprint_id": sp.ID}))
	require.NoError(t, err)
	bd := decodeResult[reports.Burndown](t, result)
	assert.Equal(t, []int{4, 2, 0}, bd.Ideal)
	assert.Equal(t, []int{4, 4, 4}, bd.Actual)

	result, err = env.srv.handleEpicProgress(env.ctx, callToolReq("board_epic_progress", map[string]any{"board": "BRD"}))
	require.NoError(t, err)
	progress := decodeResult[[]reports.EpicProgress](t, result)
	require.Len(t, progress, 1)
	assert.Equal(t, 4, progress[0].TotalPoints)

	result, err = env.srv.handleVelocity(env.ctx, callToolReq("board_velocity", map[string]any{"board": "BRD", "window": float64(3)}))
	require.NoError(t, err)
	assert.Empty(t, decodeResult[reports.Velocity](t, result).Sprints)

	result, err = env.srv.handleWorkload(env.ctx, callToolReq("board_workload", map[string]any{"board": env.board.ID}))
	require.NoError(t, err)
	assert.Empty(t, decodeResult[[]reports.Workload](t, result))
}

func TestHandleSetSprintEpics_Errors(t *testing.T) {
	env := newTestServer(t)

	result, err := env.srv.handleSetSprintEpics(env.ctx, callToolReq("board_set_sprint_epics", map[string]any{"sprint_id": "s"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "epic_ids")

	result, err = env.srv.handleSetSprintEpics(env.ctx, callToolReq("board_set_sprint_epics", map[string]any{
		"sprint_id": "missing", "epic_ids": []any{},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

func TestHandleBurndown_MissingSprint(t *testing.T) {
	env := newTestServer(t)
	result, err := env.srv.handleBurndown(env.ctx, callToolReq("board_burndown", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "sprint_id")
}
