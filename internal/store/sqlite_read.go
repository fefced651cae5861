package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/board/internal/models"
)

// reader implements Reader against any querier.
type reader struct {
	q querier
}

const workItemColumns = `id, board_id, epic_id, sprint_id, done_in_sprint_id, parent_id, team_id,
	title, description, type, status, priority, estimation_points, effort_hours, due_date,
	labels, checklist, attachments, watchers, version, created_at, updated_at, deleted_at`

const epicColumns = `id, board_id, title, description, status, impact, confidence, ease, created_at, updated_at, deleted_at`

const sprintColumns = `id, board_id, name, goal, state, start_date, end_date, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (*models.WorkItem, error) {
	w := &models.WorkItem{}
	var (
		epicID, sprintID, doneInSprintID, parentID, teamID sql.NullString
		points                                             sql.NullInt64
		effort                                             sql.NullFloat64
		dueDate                                            sql.NullString
		status                                             string
		labels, checklist, attachments, watchers           string
		deletedAt                                          sql.NullTime
	)
	err := row.Scan(&w.ID, &w.BoardID, &epicID, &sprintID, &doneInSprintID, &parentID, &teamID,
		&w.Title, &w.Description, &w.Type, &status, &w.Priority, &points, &effort, &dueDate,
		&labels, &checklist, &attachments, &watchers, &w.Version, &w.CreatedAt, &w.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	w.EpicID = stringPtr(epicID)
	w.SprintID = stringPtr(sprintID)
	w.DoneInSprintID = stringPtr(doneInSprintID)
	w.ParentID = stringPtr(parentID)
	w.TeamID = stringPtr(teamID)
	w.Status = models.Status(status)
	if points.Valid {
		p := int(points.Int64)
		w.EstimationPoints = &p
	}
	if effort.Valid {
		e := effort.Float64
		w.EffortHours = &e
	}
	if dueDate.Valid && dueDate.String != "" {
		if d, err := models.ParseDate(dueDate.String); err == nil {
			w.DueDate = &d
		}
	}
	if deletedAt.Valid {
		w.DeletedAt = &deletedAt.Time
	}

	w.Labels = []models.Label{}
	w.Checklist = []models.ChecklistEntry{}
	w.Attachments = []models.Attachment{}
	w.Watchers = []string{}
	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"labels", labels, &w.Labels},
		{"checklist", checklist, &w.Checklist},
		{"attachments", attachments, &w.Attachments},
		{"watchers", watchers, &w.Watchers},
	} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode %s of work item %s: %w", col.name, w.ID, err)
		}
	}
	return w, nil
}

func scanEpic(row rowScanner) (*models.Epic, error) {
	e := &models.Epic{}
	var status string
	var deletedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.BoardID, &e.Title, &e.Description, &status,
		&e.Impact, &e.Confidence, &e.Ease, &e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	e.Status = models.EpicStatus(status)
	if deletedAt.Valid {
		e.DeletedAt = &deletedAt.Time
	}
	return e, nil
}

func scanSprint(row rowScanner) (*models.Sprint, error) {
	s := &models.Sprint{}
	var state, start, end string
	var deletedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.BoardID, &s.Name, &s.Goal, &state, &start, &end,
		&s.CreatedAt, &s.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	s.State = models.SprintState(state)
	var err error
	if s.StartDate, err = models.ParseDate(start); err != nil {
		return nil, fmt.Errorf("sprint %s start date: %w", s.ID, err)
	}
	if s.EndDate, err = models.ParseDate(end); err != nil {
		return nil, fmt.Errorf("sprint %s end date: %w", s.ID, err)
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Time
	}
	return s, nil
}

func (r reader) GetBoard(ctx context.Context, id string) (*models.Board, error) {
	b := &models.Board{}
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, key, created_at, updated_at FROM boards WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Key, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("board", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

func (r reader) GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error) {
	w, err := scanWorkItem(r.q.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("work item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}

	assignees, err := r.assignees(ctx, []string{w.ID})
	if err != nil {
		return nil, err
	}
	w.Assignees = assignees[w.ID]
	if w.Assignees == nil {
		w.Assignees = []models.Assignment{}
	}
	return w, nil
}

// assignees loads assignments for the given items keyed by item id, in
// insertion order.
func (r reader) assignees(ctx context.Context, itemIDs []string) (map[string][]models.Assignment, error) {
	out := make(map[string][]models.Assignment, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	marks, args := placeholders(itemIDs)
	rows, err := r.q.QueryContext(ctx,
		`SELECT work_item_id, user_id, is_primary, created_at FROM work_item_assignees
		WHERE work_item_id IN (`+marks+`) ORDER BY work_item_id, position, created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var a models.Assignment
		if err := rows.Scan(&a.WorkItemID, &a.UserID, &a.IsPrimary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		out[a.WorkItemID] = append(out[a.WorkItemID], a)
	}
	return out, rows.Err()
}

func (r reader) GetEpic(ctx context.Context, id string) (*models.Epic, error) {
	e, err := scanEpic(r.q.QueryRowContext(ctx,
		`SELECT `+epicColumns+` FROM epics WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("epic", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get epic: %w", err)
	}
	return e, nil
}

func (r reader) GetSprint(ctx context.Context, id string) (*models.Sprint, error) {
	s, err := scanSprint(r.q.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM sprints WHERE id = ? AND deleted_at IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("sprint", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sprint: %w", err)
	}
	return s, nil
}

func (r reader) ListSprintEpicIDs(ctx context.Context, sprintID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT se.epic_id FROM sprint_epics se
		JOIN epics e ON e.id = se.epic_id
		WHERE se.sprint_id = ? AND e.deleted_at IS NULL
		ORDER BY se.created_at, se.epic_id`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("list sprint epics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sprint epic: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Store-level listings ---

func (s *SQLiteStore) CreateBoard(ctx context.Context, b *models.Board) error {
	if b.Name == "" {
		return models.Required("name")
	}
	if b.Key == "" {
		return models.Required("key")
	}
	if b.ID == "" {
		b.ID = newID()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, name, key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Key, b.CreatedAt, b.UpdatedAt)
	return classify("create board", err)
}

func (s *SQLiteStore) ListBoards(ctx context.Context) ([]*models.Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, key, created_at, updated_at FROM boards ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []*models.Board
	for rows.Next() {
		b := &models.Board{}
		if err := rows.Scan(&b.ID, &b.Name, &b.Key, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.DisplayName == "" {
		return models.Required("displayName")
	}
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, email, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.Email, u.CreatedAt)
	return classify("create user", err)
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, email, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.DisplayName, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any

	if filter.BoardID != "" {
		conditions = append(conditions, "board_id = ?")
		args = append(args, filter.BoardID)
	}
	if filter.SprintID != "" {
		conditions = append(conditions, "sprint_id = ?")
		args = append(args, filter.SprintID)
	}
	if filter.DoneInSprintID != "" {
		conditions = append(conditions, "done_in_sprint_id = ?")
		args = append(args, filter.DoneInSprintID)
	}
	if filter.EpicID != "" {
		conditions = append(conditions, "epic_id = ?")
		args = append(args, filter.EpicID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	var items []*models.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list work items: %w", err)
	}
	// Close before the follow-up query: the pool holds a single connection.
	_ = rows.Close()

	ids := make([]string, len(items))
	for i, w := range items {
		ids[i] = w.ID
	}
	assignees, err := s.assignees(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, w := range items {
		w.Assignees = assignees[w.ID]
		if w.Assignees == nil {
			w.Assignees = []models.Assignment{}
		}
	}
	return items, nil
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, workItemID string) ([]*models.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_item_id, from_status, to_status, actor_id, created_at
		FROM transitions WHERE work_item_id = ? ORDER BY created_at, id`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Transition
	for rows.Next() {
		t := &models.Transition{}
		var from, to string
		if err := rows.Scan(&t.ID, &t.WorkItemID, &from, &to, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.FromStatus = models.Status(from)
		t.ToStatus = models.Status(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListEpics(ctx context.Context, boardID string) ([]*models.Epic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+epicColumns+` FROM epics WHERE board_id = ? AND deleted_at IS NULL ORDER BY created_at, id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list epics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var epics []*models.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan epic: %w", err)
		}
		epics = append(epics, e)
	}
	return epics, rows.Err()
}

func (s *SQLiteStore) ListSprints(ctx context.Context, filter SprintFilter) ([]*models.Sprint, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	if filter.BoardID != "" {
		conditions = append(conditions, "board_id = ?")
		args = append(args, filter.BoardID)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, string(filter.State))
	}

	query := `SELECT ` + sprintColumns + ` FROM sprints WHERE ` + strings.Join(conditions, " AND ")
	if filter.NewestFirst {
		query += ` ORDER BY end_date DESC, created_at DESC`
	} else {
		query += ` ORDER BY start_date, created_at`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sprints []*models.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	return sprints, rows.Err()
}

func (s *SQLiteStore) ListWorkload(ctx context.Context, boardID string) ([]WorkloadRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.display_name, w.id, w.status, COALESCE(w.estimation_points, 0)
		FROM work_item_assignees a
		JOIN users u ON u.id = a.user_id
		JOIN work_items w ON w.id = a.work_item_id
		WHERE w.board_id = ? AND w.deleted_at IS NULL
		ORDER BY u.display_name, u.id, w.created_at`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list workload: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []WorkloadRow
	for rows.Next() {
		var row WorkloadRow
		var status string
		if err := rows.Scan(&row.UserID, &row.DisplayName, &row.WorkItemID, &status, &row.EstimationPoints); err != nil {
			return nil, fmt.Errorf("scan workload row: %w", err)
		}
		row.Status = models.Status(status)
		out = append(out, row)
	}
	return out, rows.Err()
}
