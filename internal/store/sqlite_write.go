package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/patch"
)

// --- Work items ---

func (t *sqliteTx) InsertWorkItem(ctx context.Context, w *models.WorkItem) error {
	if w.ID == "" {
		w.ID = newID()
	}
	if w.Version == 0 {
		w.Version = 1
	}

	labels, err := jsonText(w.Labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	checklist, err := jsonText(w.Checklist)
	if err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	attachments, err := jsonText(w.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	watchers, err := jsonText(w.Watchers)
	if err != nil {
		return fmt.Errorf("encode watchers: %w", err)
	}

	var dueDate any
	if w.DueDate != nil {
		dueDate = w.DueDate.Format(models.DateLayout)
	}
	var points any
	if w.EstimationPoints != nil {
		points = *w.EstimationPoints
	}
	var effort any
	if w.EffortHours != nil {
		effort = *w.EffortHours
	}

	_, err = t.q.ExecContext(ctx,
		`INSERT INTO work_items (`+workItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		w.ID, w.BoardID, nullString(w.EpicID), nullString(w.SprintID), nullString(w.DoneInSprintID),
		nullString(w.ParentID), nullString(w.TeamID),
		w.Title, w.Description, w.Type, string(w.Status), w.Priority, points, effort, dueDate,
		labels, checklist, attachments, watchers, w.Version, w.CreatedAt, w.UpdatedAt,
	)
	return classify("insert work item", err)
}

// setList accumulates "column = ?" assignments for a sparse UPDATE.
type setList struct {
	cols []string
	args []any
}

func (l *setList) add(col string, v any) {
	l.cols = append(l.cols, col+" = ?")
	l.args = append(l.args, v)
}

// setField adds col when f is present. Null writes SQL NULL when nullable,
// otherwise the zero value of T.
func setField[T any](l *setList, col string, f patch.Field[T], nullable bool) {
	if !f.Set {
		return
	}
	if f.Null {
		if nullable {
			l.add(col, nil)
			return
		}
		var zero T
		l.add(col, zero)
		return
	}
	l.add(col, f.Value)
}

// setRef adds an identifier column; an empty string clears it like null.
func setRef(l *setList, col string, f patch.Field[string]) {
	if !f.Set {
		return
	}
	if f.Null || f.Value == "" {
		l.add(col, nil)
		return
	}
	l.add(col, f.Value)
}

func setJSON[T any](l *setList, col string, f patch.Field[T]) error {
	if !f.Set {
		return nil
	}
	var v any
	if !f.Null {
		v = f.Value
	}
	text, err := jsonText(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", col, err)
	}
	l.add(col, text)
	return nil
}

// UpdateWorkItem writes only the columns present in p, refreshes updated_at
// and bumps version. Assignees are handled by ReplaceAssignees.
func (t *sqliteTx) UpdateWorkItem(ctx context.Context, id string, p *models.WorkItemPatch, at time.Time) error {
	var l setList
	setField(&l, "title", p.Title, false)
	setField(&l, "description", p.Description, false)
	setField(&l, "type", p.Type, false)
	if p.Status.Set {
		l.add("status", string(p.Status.Value))
	}
	setField(&l, "priority", p.Priority, false)
	setRef(&l, "epic_id", p.EpicID)
	setRef(&l, "sprint_id", p.SprintID)
	setRef(&l, "done_in_sprint_id", p.DoneInSprintID)
	setRef(&l, "parent_id", p.ParentID)
	setRef(&l, "team_id", p.TeamID)
	setField(&l, "estimation_points", p.EstimationPoints, true)
	setField(&l, "effort_hours", p.EffortHours, true)
	setField(&l, "due_date", p.DueDate, true)
	for _, err := range []error{
		setJSON(&l, "labels", p.Labels),
		setJSON(&l, "checklist", p.Checklist),
		setJSON(&l, "attachments", p.Attachments),
		setJSON(&l, "watchers", p.Watchers),
	} {
		if err != nil {
			return err
		}
	}
	l.add("updated_at", at)
	l.cols = append(l.cols, "version = version + 1")

	args := append(l.args, id)
	result, err := t.q.ExecContext(ctx,
		`UPDATE work_items SET `+strings.Join(l.cols, ", ")+` WHERE id = ? AND deleted_at IS NULL`, args...)
	if err != nil {
		return classify("update work item", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("work item", id)
	}
	return nil
}

func (t *sqliteTx) SoftDeleteWorkItem(ctx context.Context, id string, at time.Time) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE work_items SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, at, at, id)
	if err != nil {
		return classify("delete work item", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("work item", id)
	}
	return nil
}

// ReplaceAssignees deletes every assignment of the item and inserts the given
// set in order.
func (t *sqliteTx) ReplaceAssignees(ctx context.Context, workItemID string, assignees []models.AssigneeInput) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM work_item_assignees WHERE work_item_id = ?`, workItemID); err != nil {
		return classify("clear assignees", err)
	}
	now := time.Now().UTC()
	for i, a := range models.NormalizeAssignees(assignees) {
		_, err := t.q.ExecContext(ctx,
			`INSERT INTO work_item_assignees (work_item_id, user_id, is_primary, position, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			workItemID, a.UserID, boolToInt(a.IsPrimary), i, now)
		if err != nil {
			return classify("insert assignee", err)
		}
	}
	return nil
}

func (t *sqliteTx) InsertTransition(ctx context.Context, tr *models.Transition) error {
	if tr.ID == "" {
		tr.ID = newID()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO transitions (id, work_item_id, from_status, to_status, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.WorkItemID, string(tr.FromStatus), string(tr.ToStatus), tr.ActorID, tr.CreatedAt)
	return classify("insert transition", err)
}

// --- Epics ---

func (t *sqliteTx) InsertEpic(ctx context.Context, e *models.Epic) error {
	if e.ID == "" {
		e.ID = newID()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO epics (`+epicColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		e.ID, e.BoardID, e.Title, e.Description, string(e.Status),
		e.Impact, e.Confidence, e.Ease, e.CreatedAt, e.UpdatedAt)
	return classify("insert epic", err)
}

func (t *sqliteTx) UpdateEpic(ctx context.Context, e *models.Epic) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE epics SET title=?, description=?, status=?, impact=?, confidence=?, ease=?, updated_at=?
		WHERE id=? AND deleted_at IS NULL`,
		e.Title, e.Description, string(e.Status), e.Impact, e.Confidence, e.Ease, e.UpdatedAt, e.ID)
	if err != nil {
		return classify("update epic", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("epic", e.ID)
	}
	return nil
}

func (t *sqliteTx) SoftDeleteEpic(ctx context.Context, id string, at time.Time) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE epics SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, at, at, id)
	if err != nil {
		return classify("delete epic", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("epic", id)
	}
	return nil
}

// --- Sprints ---

func (t *sqliteTx) InsertSprint(ctx context.Context, s *models.Sprint) error {
	if s.ID == "" {
		s.ID = newID()
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO sprints (`+sprintColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		s.ID, s.BoardID, s.Name, s.Goal, string(s.State),
		s.StartDate.Format(models.DateLayout), s.EndDate.Format(models.DateLayout),
		s.CreatedAt, s.UpdatedAt)
	return classify("insert sprint", err)
}

func (t *sqliteTx) UpdateSprint(ctx context.Context, s *models.Sprint) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE sprints SET name=?, goal=?, state=?, start_date=?, end_date=?, updated_at=?
		WHERE id=? AND deleted_at IS NULL`,
		s.Name, s.Goal, string(s.State),
		s.StartDate.Format(models.DateLayout), s.EndDate.Format(models.DateLayout), s.UpdatedAt, s.ID)
	if err != nil {
		return classify("update sprint", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("sprint", s.ID)
	}
	return nil
}

func (t *sqliteTx) SoftDeleteSprint(ctx context.Context, id string, at time.Time) error {
	result, err := t.q.ExecContext(ctx,
		`UPDATE sprints SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, at, at, id)
	if err != nil {
		return classify("delete sprint", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound("sprint", id)
	}
	return nil
}

// --- Sprint–epic links ---

// UnlinkSprintEpicsExcept removes every link of the sprint whose epic is not in keep.
func (t *sqliteTx) UnlinkSprintEpicsExcept(ctx context.Context, sprintID string, keep []string) (int64, error) {
	query := `DELETE FROM sprint_epics WHERE sprint_id = ?`
	args := []any{sprintID}
	if len(keep) > 0 {
		marks, keepArgs := placeholders(keep)
		query += ` AND epic_id NOT IN (` + marks + `)`
		args = append(args, keepArgs...)
	}
	result, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify("unlink sprint epics", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// LinkSprintEpic inserts a link; an existing link is left untouched.
func (t *sqliteTx) LinkSprintEpic(ctx context.Context, sprintID, epicID string) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO sprint_epics (sprint_id, epic_id, created_at) VALUES (?, ?, ?)`,
		sprintID, epicID, time.Now().UTC())
	return classify("link sprint epic", err)
}

// AssignSprintByEpics moves every non-deleted item of the given epics onto the
// sprint, skipping items already there. It returns the number of items moved.
func (t *sqliteTx) AssignSprintByEpics(ctx context.Context, sprintID string, epicIDs []string) (int64, error) {
	if len(epicIDs) == 0 {
		return 0, nil
	}
	marks, epicArgs := placeholders(epicIDs)
	args := append([]any{sprintID}, epicArgs...)
	args = append(args, sprintID)
	result, err := t.q.ExecContext(ctx,
		`UPDATE work_items SET sprint_id = ?
		WHERE deleted_at IS NULL AND epic_id IN (`+marks+`)
		AND (sprint_id IS NULL OR sprint_id <> ?)`, args...)
	if err != nil {
		return 0, classify("assign sprint by epics", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
