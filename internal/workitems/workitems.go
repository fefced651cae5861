// Package workitems owns the work item mutation pipeline. Every mutation runs
// in a single store transaction and publishes exactly one event to the owning
// board after the transaction commits.
package workitems

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/patch"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/store"
)

// Publisher delivers an event to the subscribers of a board.
type Publisher interface {
	Publish(ctx context.Context, boardID string, ev realtime.Event) int
}

// Service creates, updates and soft-deletes work items.
type Service struct {
	store  store.Store
	pub    Publisher
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a work item service.
func NewService(st store.Store, pub Publisher, opts ...Option) *Service {
	s := &Service{
		store:  st,
		pub:    pub,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validateCreate(in *models.WorkItemInput) error {
	switch {
	case in.BoardID == "":
		return models.Required("boardId")
	case in.Title == "":
		return models.Required("title")
	case in.Type == "":
		return models.Required("type")
	case in.Status == "":
		return models.Required("status")
	}
	if in.DueDate != nil && *in.DueDate != "" {
		if _, err := models.ParseDate(*in.DueDate); err != nil {
			return models.Invalid("dueDate", "expected YYYY-MM-DD")
		}
	}
	return nil
}

// Create inserts a work item and its assignees, then publishes item.created.
func (s *Service) Create(ctx context.Context, in *models.WorkItemInput) (*models.WorkItem, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	now := s.now()
	w := &models.WorkItem{
		BoardID:          in.BoardID,
		EpicID:           in.EpicID,
		SprintID:         in.SprintID,
		ParentID:         in.ParentID,
		TeamID:           in.TeamID,
		Title:            in.Title,
		Description:      in.Description,
		Type:             in.Type,
		Status:           in.Status,
		Priority:         in.Priority,
		EstimationPoints: in.EstimationPoints,
		EffortHours:      in.EffortHours,
		Labels:           in.Labels,
		Checklist:        in.Checklist,
		Attachments:      in.Attachments,
		Watchers:         in.Watchers,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.DueDate != nil && *in.DueDate != "" {
		d, _ := models.ParseDate(*in.DueDate)
		w.DueDate = &d
	}
	// Created directly as done: the completion sprint is the sprint it starts in.
	if w.Status.IsDone() && w.SprintID != nil {
		sprintID := *w.SprintID
		w.DoneInSprintID = &sprintID
	}

	var created *models.WorkItem
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetBoard(ctx, w.BoardID); err != nil {
			return err
		}
		if err := tx.InsertWorkItem(ctx, w); err != nil {
			return err
		}
		if assignees := in.ResolvedAssignees(); len(assignees) > 0 {
			if err := tx.ReplaceAssignees(ctx, w.ID, assignees); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.GetWorkItem(ctx, w.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create work item: %w", err)
	}

	s.logger.Debug("work item created", "id", created.ID, "board", created.BoardID)
	s.pub.Publish(ctx, created.BoardID, realtime.Event{Type: realtime.ItemCreated, ItemID: created.ID})
	return created, nil
}

// Update applies a sparse patch. Fields absent from p keep their values.
// When p sets the status to Done and the done-in-sprint marker is unset, the
// item's sprint is copied into it; the marker is never cleared afterwards.
// Moving an already-Done item into a sprint does not set the marker.
// A status change appends a transition row.
func (s *Service) Update(ctx context.Context, id string, p *models.WorkItemPatch) (*models.WorkItem, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var updated *models.WorkItem
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}

		next := *existing
		p.ApplyTo(&next)

		write := *p
		write.DoneInSprintID = patch.Field[string]{}
		if p.Status.Set && next.Status.IsDone() && existing.DoneInSprintID == nil && next.SprintID != nil {
			write.DoneInSprintID = patch.Of(*next.SprintID)
		}

		at := s.now()
		if !at.After(existing.UpdatedAt) {
			at = existing.UpdatedAt.Add(time.Microsecond)
		}
		if err := tx.UpdateWorkItem(ctx, id, &write, at); err != nil {
			return err
		}

		if p.Assignees.Set {
			if err := tx.ReplaceAssignees(ctx, id, p.Assignees.Value); err != nil {
				return err
			}
		}

		if p.Status.Set && next.Status != existing.Status {
			if err := tx.InsertTransition(ctx, &models.Transition{
				WorkItemID: id,
				FromStatus: existing.Status,
				ToStatus:   next.Status,
				ActorID:    p.ActorID,
				CreatedAt:  at,
			}); err != nil {
				return err
			}
		}

		updated, err = tx.GetWorkItem(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update work item %s: %w", id, err)
	}

	s.logger.Debug("work item updated", "id", updated.ID, "board", updated.BoardID, "version", updated.Version)
	s.pub.Publish(ctx, updated.BoardID, realtime.Event{Type: realtime.ItemUpdated, ItemID: updated.ID})
	return updated, nil
}

// Delete soft-deletes the item. Assignments, transitions and other dependent
// rows are left in place.
func (s *Service) Delete(ctx context.Context, id string) error {
	var boardID string
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		existing, err := tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		boardID = existing.BoardID
		return tx.SoftDeleteWorkItem(ctx, id, s.now())
	})
	if err != nil {
		return fmt.Errorf("delete work item %s: %w", id, err)
	}

	s.logger.Debug("work item deleted", "id", id, "board", boardID)
	s.pub.Publish(ctx, boardID, realtime.Event{Type: realtime.ItemDeleted, ItemID: id})
	return nil
}

// Get returns a non-deleted work item with its assignees.
func (s *Service) Get(ctx context.Context, id string) (*models.WorkItem, error) {
	return s.store.GetWorkItem(ctx, id)
}

// List returns the non-deleted work items of a board.
func (s *Service) List(ctx context.Context, filter store.WorkItemFilter) ([]*models.WorkItem, error) {
	if filter.BoardID == "" {
		return nil, models.Required("boardId")
	}
	return s.store.ListWorkItems(ctx, filter)
}

// Transitions returns the status history of a work item, oldest first.
func (s *Service) Transitions(ctx context.Context, id string) ([]*models.Transition, error) {
	if _, err := s.store.GetWorkItem(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(ctx, id)
}
