// Package reports computes the read-only board analytics: sprint burndown,
// velocity, epic progress and per-user workload. Every report ignores
// soft-deleted rows and has no side effects.
package reports

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/store"
)

// DefaultVelocityWindow is the number of closed sprints Velocity looks at
// when the caller does not ask for a window.
const DefaultVelocityWindow = 5

// Engine computes reports from a store.
type Engine struct {
	store  store.Store
	window int
}

// NewEngine creates a report engine. A window <= 0 uses DefaultVelocityWindow.
func NewEngine(st store.Store, window int) *Engine {
	if window <= 0 {
		window = DefaultVelocityWindow
	}
	return &Engine{store: st, window: window}
}

// Burndown is the ideal and actual remaining points for each sprint day.
type Burndown struct {
	SprintID string   `json:"sprintId"`
	Total    int      `json:"total"`
	Days     []string `json:"days"`
	Ideal    []int    `json:"ideal"`
	Actual   []int    `json:"actual"`
}

// IdealLine interpolates from total on the first day to zero on the last,
// rounding each step. A single day yields [total].
func IdealLine(total, dayCount int) []int {
	if dayCount <= 0 {
		return []int{}
	}
	if dayCount == 1 {
		return []int{total}
	}
	step := float64(total) / float64(dayCount-1)
	out := make([]int, dayCount)
	for i := range out {
		out[i] = total - int(math.Round(step*float64(i)))
	}
	return out
}

func sprintDays(sp *models.Sprint) []time.Time {
	var days []time.Time
	end := models.Day(sp.EndDate)
	for d := models.Day(sp.StartDate); !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// completedIn returns the items completed in sprintID: the completion marker
// points at the sprint and the item is currently Done.
func (e *Engine) completedIn(ctx context.Context, boardID, sprintID string) ([]*models.WorkItem, error) {
	return e.store.ListWorkItems(ctx, store.WorkItemFilter{
		BoardID:        boardID,
		DoneInSprintID: sprintID,
		Status:         models.StatusDone,
	})
}

// Burndown computes the burndown of a sprint. The total is the points of the
// items currently in the sprint. An item counts as burned from the calendar
// day (UTC) of its last update onwards.
func (e *Engine) Burndown(ctx context.Context, sprintID string) (*Burndown, error) {
	sp, err := e.store.GetSprint(ctx, sprintID)
	if err != nil {
		return nil, err
	}

	inSprint, err := e.store.ListWorkItems(ctx, store.WorkItemFilter{BoardID: sp.BoardID, SprintID: sp.ID})
	if err != nil {
		return nil, fmt.Errorf("burndown %s: %w", sprintID, err)
	}
	total := 0
	for _, w := range inSprint {
		total += w.Points()
	}

	done, err := e.completedIn(ctx, sp.BoardID, sp.ID)
	if err != nil {
		return nil, fmt.Errorf("burndown %s: %w", sprintID, err)
	}

	days := sprintDays(sp)
	b := &Burndown{
		SprintID: sp.ID,
		Total:    total,
		Days:     make([]string, len(days)),
		Ideal:    IdealLine(total, len(days)),
		Actual:   make([]int, len(days)),
	}
	for i, day := range days {
		b.Days[i] = day.Format(models.DateLayout)
		burned := 0
		for _, w := range done {
			if !models.Day(w.UpdatedAt).After(day) {
				burned += w.Points()
			}
		}
		b.Actual[i] = max(total-burned, 0)
	}
	return b, nil
}

// SprintVelocity is the completed points of one closed sprint.
type SprintVelocity struct {
	SprintID        string `json:"sprintId"`
	Name            string `json:"name"`
	EndDate         string `json:"endDate"`
	CompletedPoints int    `json:"completedPoints"`
}

// Velocity is the completed points of recent closed sprints, oldest first.
type Velocity struct {
	BoardID string           `json:"boardId"`
	Sprints []SprintVelocity `json:"sprints"`
	Average float64          `json:"average"`
}

// Velocity reports the completed points of the window most recently ended
// closed sprints of a board. A window <= 0 uses the engine default.
func (e *Engine) Velocity(ctx context.Context, boardID string, window int) (*Velocity, error) {
	if window <= 0 {
		window = e.window
	}
	if _, err := e.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}

	sprints, err := e.store.ListSprints(ctx, store.SprintFilter{
		BoardID:     boardID,
		State:       models.SprintStateClosed,
		NewestFirst: true,
		Limit:       window,
	})
	if err != nil {
		return nil, fmt.Errorf("velocity %s: %w", boardID, err)
	}

	v := &Velocity{BoardID: boardID, Sprints: make([]SprintVelocity, 0, len(sprints))}
	sum := 0
	for i := len(sprints) - 1; i >= 0; i-- {
		sp := sprints[i]
		done, err := e.completedIn(ctx, boardID, sp.ID)
		if err != nil {
			return nil, fmt.Errorf("velocity %s: %w", boardID, err)
		}
		points := 0
		for _, w := range done {
			points += w.Points()
		}
		sum += points
		v.Sprints = append(v.Sprints, SprintVelocity{
			SprintID:        sp.ID,
			Name:            sp.Name,
			EndDate:         sp.EndDate.Format(models.DateLayout),
			CompletedPoints: points,
		})
	}
	if len(v.Sprints) > 0 {
		v.Average = float64(sum) / float64(len(v.Sprints))
	}
	return v, nil
}

// EpicProgress is the completion of one epic by items and by points.
type EpicProgress struct {
	EpicID              string            `json:"epicId"`
	Title               string            `json:"title"`
	Status              models.EpicStatus `json:"status"`
	TotalItems          int               `json:"totalItems"`
	DoneItems           int               `json:"doneItems"`
	TotalPoints         int               `json:"totalPoints"`
	DonePoints          int               `json:"donePoints"`
	PercentDoneWeighted float64           `json:"percentDoneWeighted"`
}

// EpicProgress reports every non-deleted epic of a board. The weighted
// percentage is 100 * done points / total points, and 0 when total is 0.
func (e *Engine) EpicProgress(ctx context.Context, boardID string) ([]EpicProgress, error) {
	if _, err := e.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	epics, err := e.store.ListEpics(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("epic progress %s: %w", boardID, err)
	}
	items, err := e.store.ListWorkItems(ctx, store.WorkItemFilter{BoardID: boardID})
	if err != nil {
		return nil, fmt.Errorf("epic progress %s: %w", boardID, err)
	}

	byEpic := make(map[string]*EpicProgress, len(epics))
	out := make([]EpicProgress, len(epics))
	for i, ep := range epics {
		out[i] = EpicProgress{EpicID: ep.ID, Title: ep.Title, Status: ep.Status}
		byEpic[ep.ID] = &out[i]
	}
	for _, w := range items {
		if w.EpicID == nil {
			continue
		}
		p, ok := byEpic[*w.EpicID]
		if !ok {
			continue
		}
		p.TotalItems++
		p.TotalPoints += w.Points()
		if w.Status.IsDone() {
			p.DoneItems++
			p.DonePoints += w.Points()
		}
	}
	for i := range out {
		if out[i].TotalPoints > 0 {
			out[i].PercentDoneWeighted = 100 * float64(out[i].DonePoints) / float64(out[i].TotalPoints)
		}
	}
	return out, nil
}

// Workload is one user's assigned work on a board.
type Workload struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	Open          int    `json:"open"`
	InProgress    int    `json:"inProgress"`
	EstimationSum int    `json:"estimationSum"`
}

// Workload reports, per assigned user and ordered by display name, the
// number of items not Done, the number In Progress, and the points of all
// assigned items.
func (e *Engine) Workload(ctx context.Context, boardID string) ([]Workload, error) {
	if _, err := e.store.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	rows, err := e.store.ListWorkload(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("workload %s: %w", boardID, err)
	}

	out := []Workload{}
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].UserID != r.UserID {
			out = append(out, Workload{UserID: r.UserID, DisplayName: r.DisplayName})
		}
		wl := &out[len(out)-1]
		if !r.Status.IsDone() {
			wl.Open++
		}
		if r.Status.IsInProgress() {
			wl.InProgress++
		}
		wl.EstimationSum += r.EstimationPoints
	}
	return out, nil
}
