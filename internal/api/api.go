package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/planning"
	"github.com/joescharf/board/internal/reports"
	"github.com/joescharf/board/internal/store"
	"github.com/joescharf/board/internal/workitems"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	items    *workitems.Service
	planning *planning.Service
	reports  *reports.Engine
	ws       http.Handler
	logger   *slog.Logger
}

// NewServer creates a new API server. ws serves /ws subscriptions and may be
// nil when realtime delivery is disabled.
func NewServer(s store.Store, items *workitems.Service, plan *planning.Service, eng *reports.Engine, ws http.Handler) *Server {
	return &Server{
		store:    s,
		items:    items,
		planning: plan,
		reports:  eng,
		ws:       ws,
		logger:   slog.Default(),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/boards", s.listBoards)
	mux.HandleFunc("POST /api/v1/boards", s.createBoard)
	mux.HandleFunc("GET /api/v1/boards/{id}", s.getBoard)

	mux.HandleFunc("POST /api/v1/users", s.createUser)
	mux.HandleFunc("GET /api/v1/users/{id}", s.getUser)

	mux.HandleFunc("GET /api/v1/boards/{id}/items", s.listItems)
	mux.HandleFunc("POST /api/v1/boards/{id}/items", s.createItem)
	mux.HandleFunc("GET /api/v1/items/{id}", s.getItem)
	mux.HandleFunc("PATCH /api/v1/items/{id}", s.updateItem)
	mux.HandleFunc("DELETE /api/v1/items/{id}", s.deleteItem)
	mux.HandleFunc("GET /api/v1/items/{id}/transitions", s.listTransitions)

	mux.HandleFunc("GET /api/v1/boards/{id}/epics", s.listEpics)
	mux.HandleFunc("POST /api/v1/boards/{id}/epics", s.createEpic)
	mux.HandleFunc("GET /api/v1/epics/{id}", s.getEpic)
	mux.HandleFunc("PATCH /api/v1/epics/{id}", s.updateEpic)
	mux.HandleFunc("DELETE /api/v1/epics/{id}", s.deleteEpic)

	mux.HandleFunc("GET /api/v1/boards/{id}/sprints", s.listSprints)
	mux.HandleFunc("POST /api/v1/boards/{id}/sprints", s.createSprint)
	mux.HandleFunc("GET /api/v1/sprints/{id}", s.getSprint)
	mux.HandleFunc("PATCH /api/v1/sprints/{id}", s.updateSprint)
	mux.HandleFunc("DELETE /api/v1/sprints/{id}", s.deleteSprint)
	mux.HandleFunc("GET /api/v1/sprints/{id}/epics", s.getSprintEpics)
	mux.HandleFunc("PUT /api/v1/sprints/{id}/epics", s.setSprintEpics)

	mux.HandleFunc("GET /api/v1/sprints/{id}/burndown", s.burndown)
	mux.HandleFunc("GET /api/v1/boards/{id}/velocity", s.velocity)
	mux.HandleFunc("GET /api/v1/boards/{id}/epic-progress", s.epicProgress)
	mux.HandleFunc("GET /api/v1/boards/{id}/workload", s.workload)

	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-Id")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Unclassified errors are logged and
// reported without internal detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// --- Boards and users ---

func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.store.ListBoards(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	var b models.Board
	if !decode(w, r, &b) {
		return
	}
	if err := s.store.CreateBoard(r.Context(), &b); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBoard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var u models.User
	if !decode(w, r, &u) {
		return
	}
	if err := s.store.CreateUser(r.Context(), &u); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- Work items ---

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := s.items.List(r.Context(), store.WorkItemFilter{
		BoardID:  r.PathValue("id"),
		SprintID: q.Get("sprintId"),
		EpicID:   q.Get("epicId"),
		Status:   models.Status(q.Get("status")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*models.WorkItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var in models.WorkItemInput
	if !decode(w, r, &in) {
		return
	}
	in.BoardID = r.PathValue("id")
	item, err := s.items.Create(r.Context(), &in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var p models.WorkItemPatch
	if !decode(w, r, &p) {
		return
	}
	if p.ActorID == "" {
		p.ActorID = r.Header.Get("X-User-Id")
	}
	item, err := s.items.Update(r.Context(), r.PathValue("id"), &p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.items.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	trs, err := s.items.Transitions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if trs == nil {
		trs = []*models.Transition{}
	}
	writeJSON(w, http.StatusOK, trs)
}

// --- Epics ---

func (s *Server) listEpics(w http.ResponseWriter, r *http.Request) {
	epics, err := s.planning.ListEpics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if epics == nil {
		epics = []*models.Epic{}
	}
	writeJSON(w, http.StatusOK, epics)
}

func (s *Server) createEpic(w http.ResponseWriter, r *http.Request) {
	var in models.EpicInput
	if !decode(w, r, &in) {
		return
	}
	in.BoardID = r.PathValue("id")
	e, err := s.planning.CreateEpic(r.Context(), &in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) getEpic(w http.ResponseWriter, r *http.Request) {
	e, err := s.planning.GetEpic(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) updateEpic(w http.ResponseWriter, r *http.Request) {
	var p models.EpicPatch
	if !decode(w, r, &p) {
		return
	}
	e, err := s.planning.UpdateEpic(r.Context(), r.PathValue("id"), &p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) deleteEpic(w http.ResponseWriter, r *http.Request) {
	if err := s.planning.DeleteEpic(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Sprints ---

func (s *Server) listSprints(w http.ResponseWriter, r *http.Request) {
	sprints, err := s.planning.ListSprints(r.Context(), store.SprintFilter{
		BoardID: r.PathValue("id"),
		State:   models.SprintState(r.URL.Query().Get("state")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sprints == nil {
		sprints = []*models.Sprint{}
	}
	writeJSON(w, http.StatusOK, sprints)
}

func (s *Server) createSprint(w http.ResponseWriter, r *http.Request) {
	var in models.SprintInput
	if !decode(w, r, &in) {
		return
	}
	in.BoardID = r.PathValue("id")
	sp, err := s.planning.CreateSprint(r.Context(), &in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

func (s *Server) getSprint(w http.ResponseWriter, r *http.Request) {
	sp, err := s.planning.GetSprint(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) updateSprint(w http.ResponseWriter, r *http.Request) {
	var p models.SprintPatch
	if !decode(w, r, &p) {
		return
	}
	sp, err := s.planning.UpdateSprint(r.Context(), r.PathValue("id"), &p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (s *Server) deleteSprint(w http.ResponseWriter, r *http.Request) {
	if err := s.planning.DeleteSprint(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSprintEpics(w http.ResponseWriter, r *http.Request) {
	res, err := s.planning.GetSprintEpics(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) setSprintEpics(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpicIDs []string `json:"epicIds"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.planning.SetEpicsForSprint(r.Context(), r.PathValue("id"), req.EpicIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Reports ---

func (s *Server) burndown(w http.ResponseWriter, r *http.Request) {
	b, err := s.reports.Burndown(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) velocity(w http.ResponseWriter, r *http.Request) {
	window := 0
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "window must be a positive integer")
			return
		}
		window = n
	}
	v, err := s.reports.Velocity(r.Context(), r.PathValue("id"), window)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) epicProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.reports.EpicProgress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) workload(w http.ResponseWriter, r *http.Request) {
	wl, err := s.reports.Workload(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}
