package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/planning"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/reports"
	"github.com/joescharf/board/internal/store"
	"github.com/joescharf/board/internal/workitems"
)

type testEnv struct {
	router http.Handler
	store  store.Store
	hub    *realtime.Hub
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	hub := realtime.NewHub(nil)
	srv := NewServer(s,
		workitems.NewService(s, hub),
		planning.NewService(s, hub),
		reports.NewEngine(s, 0),
		realtime.NewHandler(hub, realtime.Options{}, nil),
	)
	return &testEnv{router: srv.Router(), store: s, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (e *testEnv) board(t *testing.T) models.Board {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/boards", `{"name":"Board","key":"BRD"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	return decodeBody[models.Board](t, w)
}

func TestBoards_API(t *testing.T) {
	env := setupTestServer(t)
	b := env.board(t)
	assert.NotEmpty(t, b.ID)

	w := env.do(t, "GET", "/api/v1/boards/"+b.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/api/v1/boards", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Board](t, w), 1)

	w = env.do(t, "POST", "/api/v1/boards", `{"name":"Again","key":"BRD"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "GET", "/api/v1/boards/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", "/api/v1/boards", `{bad`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestItemsCRUD_API(t *testing.T) {
	env := setupTestServer(t)
	b := env.board(t)

	w := env.do(t, "POST", "/api/v1/boards/"+b.ID+"/items", `{"title":"X","type":"story"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "status")

	w = env.do(t, "POST", "/api/v1/boards/"+b.ID+"/items",
		`{"title":"X","type":"story","status":"Open","priority":"high","estimationPoints":3,"labels":[{"name":"api"}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[models.WorkItem](t, w)
	assert.Equal(t, b.ID, created.BoardID)

	// Sparse patch: only the title changes, null clears the estimate.
	w = env.do(t, "PATCH", "/api/v1/items/"+created.ID, `{"title":"Renamed","estimationPoints":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeBody[models.WorkItem](t, w)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "high", updated.Priority)
	assert.Equal(t, created.Labels, updated.Labels)
	assert.Nil(t, updated.EstimationPoints)
	assert.Equal(t, 2, updated.Version)

	w = env.do(t, "PATCH", "/api/v1/items/"+created.ID, `{"status":"In Progress"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "GET", "/api/v1/items/"+created.ID+"/transitions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Transition](t, w), 1)

	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/items?status=In%20Progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.WorkItem](t, w), 1)

	w = env.do(t, "DELETE", "/api/v1/items/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, "GET", "/api/v1/items/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, "PATCH", "/api/v1/items/"+created.ID, `{"title":"Y"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestPlanningAndReports_API(t *testing.T) {
	env := setupTestServer(t)
	b := env.board(t)

	w := env.do(t, "POST", "/api/v1/boards/"+b.ID+"/epics", `{"title":"E1"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	epic := decodeBody[models.Epic](t, w)

	w = env.do(t, "POST", "/api/v1/boards/"+b.ID+"/sprints", `{"name":"S1","startDate":"2024-01-01","endDate":"2024-01-07"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	sprint := decodeBody[models.Sprint](t, w)
	assert.Equal(t, models.SprintStatePlanned, sprint.State)

	w = env.do(t, "POST", "/api/v1/boards/"+b.ID+"/items",
		`{"title":"X","type":"story","status":"Open","epicId":"`+epic.ID+`","estimationPoints":5}`)
	require.Equal(t, http.StatusCreated, w.Code)
	item := decodeBody[models.WorkItem](t, w)

	w = env.do(t, "PUT", "/api/v1/sprints/"+sprint.ID+"/epics", `{"epicIds":["`+epic.ID+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sprintId":"`+sprint.ID+`","epicIds":["`+epic.ID+`"]}`, w.Body.String())

	w = env.do(t, "GET", "/api/v1/items/"+item.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[models.WorkItem](t, w)
	require.NotNil(t, got.SprintID)
	assert.Equal(t, sprint.ID, *got.SprintID)

	w = env.do(t, "GET", "/api/v1/sprints/"+sprint.ID+"/burndown", "")
	require.Equal(t, http.StatusOK, w.Code)
	bd := decodeBody[reports.Burndown](t, w)
	assert.Equal(t, 5, bd.Total)
	assert.Equal(t, []int{5, 4, 3, 2, 2, 1, 0}, bd.Ideal)

	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/velocity?window=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/velocity?window=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[reports.Velocity](t, w).Sprints)

	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/epic-progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	progress := decodeBody[[]reports.EpicProgress](t, w)
	require.Len(t, progress, 1)
	assert.Equal(t, 5, progress[0].TotalPoints)

	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/workload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = env.do(t, "GET", "/api/v1/sprints/missing/burndown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, "PUT", "/api/v1/sprints/missing/epics", `{"epicIds":[]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "PATCH", "/api/v1/epics/"+epic.ID, `{"impact":42}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "DELETE", "/api/v1/sprints/"+sprint.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWorkload_API(t *testing.T) {
	env := setupTestServer(t)
	b := env.board(t)

	w := env.do(t, "POST", "/api/v1/users", `{"displayName":"Alice"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	alice := decodeBody[models.User](t, w)

	for _, body := range []string{
		`{"title":"A","type":"task","status":"In Progress","estimationPoints":3,"assigneeId":"` + alice.ID + `"}`,
		`{"title":"B","type":"task","status":"Open","estimationPoints":2,"assignees":[{"userId":"` + alice.ID + `","isPrimary":true}]}`,
	} {
		w = env.do(t, "POST", "/api/v1/boards/"+b.ID+"/items", body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w = env.do(t, "GET", "/api/v1/boards/"+b.ID+"/workload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`[{"userId":"`+alice.ID+`","displayName":"Alice","open":2,"inProgress":1,"estimationSum":5}]`,
		w.Body.String())
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, "OPTIONS", "/api/v1/boards", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestMutationsReachBoardSubscribers(t *testing.T) {
	env := setupTestServer(t)
	b := env.board(t)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?boardId="+b.ID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	require.Eventually(t, func() bool { return env.hub.Subscribers(b.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	w := env.do(t, "POST", "/api/v1/boards/"+b.ID+"/items", `{"title":"X","type":"story","status":"Open"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	item := decodeBody[models.WorkItem](t, w)

	// A failed mutation publishes nothing, so the next frame is the delete.
	w = env.do(t, "PATCH", "/api/v1/items/"+item.ID, `{"title":null}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "DELETE", "/api/v1/items/"+item.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	var ev map[string]any
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "item.created", ev["type"])
	assert.Equal(t, item.ID, ev["itemId"])

	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "item.deleted", ev["type"])
}
