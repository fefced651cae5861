// Package planning manages epics and sprints and the links between them.
package planning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/store"
)

// Publisher delivers an event to the subscribers of a board.
type Publisher interface {
	Publish(ctx context.Context, boardID string, ev realtime.Event) int
}

// Service owns epic and sprint lifecycles and the sprint–epic linkage.
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

// NewService creates a planning service.
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

// --- Epics ---

func orDefault(v int) int {
	if v == 0 {
		return models.DefaultEpicScore
	}
	return v
}

// CreateEpic inserts an epic and publishes epic.created.
func (s *Service) CreateEpic(ctx context.Context, in *models.EpicInput) (*models.Epic, error) {
	if in.BoardID == "" {
		return nil, models.Required("boardId")
	}
	now := s.now()
	e := &models.Epic{
		BoardID:     in.BoardID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Impact:      orDefault(in.Impact),
		Confidence:  orDefault(in.Confidence),
		Ease:        orDefault(in.Ease),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if e.Status == "" {
		e.Status = models.EpicStatusActive
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetBoard(ctx, e.BoardID); err != nil {
			return err
		}
		return tx.InsertEpic(ctx, e)
	})
	if err != nil {
		return nil, fmt.Errorf("create epic: %w", err)
	}

	s.pub.Publish(ctx, e.BoardID, realtime.Event{Type: realtime.EpicCreated, EpicID: e.ID})
	return e, nil
}

// UpdateEpic applies a sparse patch to an epic and publishes epic.updated.
func (s *Service) UpdateEpic(ctx context.Context, id string, p *models.EpicPatch) (*models.Epic, error) {
	var updated *models.Epic
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		e, err := tx.GetEpic(ctx, id)
		if err != nil {
			return err
		}
		p.ApplyTo(e)
		if err := e.Validate(); err != nil {
			return err
		}
		e.UpdatedAt = s.now()
		if err := tx.UpdateEpic(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update epic %s: %w", id, err)
	}

	s.pub.Publish(ctx, updated.BoardID, realtime.Event{Type: realtime.EpicUpdated, EpicID: updated.ID})
	return updated, nil
}

// DeleteEpic soft-deletes an epic. Its work items keep their epic reference.
func (s *Service) DeleteEpic(ctx context.Context, id string) error {
	var boardID string
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		e, err := tx.GetEpic(ctx, id)
		if err != nil {
			return err
		}
		boardID = e.BoardID
		return tx.SoftDeleteEpic(ctx, id, s.now())
	})
	if err != nil {
		return fmt.Errorf("delete epic %s: %w", id, err)
	}

	s.pub.Publish(ctx, boardID, realtime.Event{Type: realtime.EpicDeleted, EpicID: id})
	return nil
}

// GetEpic returns a non-deleted epic.
func (s *Service) GetEpic(ctx context.Context, id string) (*models.Epic, error) {
	return s.store.GetEpic(ctx, id)
}

// ListEpics returns the non-deleted epics of a board.
func (s *Service) ListEpics(ctx context.Context, boardID string) ([]*models.Epic, error) {
	if boardID == "" {
		return nil, models.Required("boardId")
	}
	return s.store.ListEpics(ctx, boardID)
}

// --- Sprints ---

// CreateSprint inserts a sprint and publishes sprint.created.
func (s *Service) CreateSprint(ctx context.Context, in *models.SprintInput) (*models.Sprint, error) {
	if in.BoardID == "" {
		return nil, models.Required("boardId")
	}
	now := s.now()
	sp := &models.Sprint{
		BoardID:   in.BoardID,
		Name:      in.Name,
		Goal:      in.Goal,
		State:     in.State,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sp.State == "" {
		sp.State = models.SprintStatePlanned
	}
	if in.StartDate != "" {
		d, err := models.ParseDate(in.StartDate)
		if err != nil {
			return nil, models.Invalid("startDate", "expected YYYY-MM-DD")
		}
		sp.StartDate = d
	}
	if in.EndDate != "" {
		d, err := models.ParseDate(in.EndDate)
		if err != nil {
			return nil, models.Invalid("endDate", "expected YYYY-MM-DD")
		}
		sp.EndDate = d
	}
	if err := sp.Validate(); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetBoard(ctx, sp.BoardID); err != nil {
			return err
		}
		return tx.InsertSprint(ctx, sp)
	})
	if err != nil {
		return nil, fmt.Errorf("create sprint: %w", err)
	}

	s.pub.Publish(ctx, sp.BoardID, realtime.Event{Type: realtime.SprintCreated, SprintID: sp.ID})
	return sp, nil
}

// UpdateSprint applies a sparse patch to a sprint and publishes sprint.updated.
func (s *Service) UpdateSprint(ctx context.Context, id string, p *models.SprintPatch) (*models.Sprint, error) {
	var updated *models.Sprint
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		sp, err := tx.GetSprint(ctx, id)
		if err != nil {
			return err
		}
		if err := p.ApplyTo(sp); err != nil {
			return err
		}
		if err := sp.Validate(); err != nil {
			return err
		}
		sp.UpdatedAt = s.now()
		if err := tx.UpdateSprint(ctx, sp); err != nil {
			return err
		}
		updated = sp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update sprint %s: %w", id, err)
	}

	s.pub.Publish(ctx, updated.BoardID, realtime.Event{Type: realtime.SprintUpdated, SprintID: updated.ID})
	return updated, nil
}

// DeleteSprint soft-deletes a sprint. Work items keep their sprint references.
func (s *Service) DeleteSprint(ctx context.Context, id string) error {
	var boardID string
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		sp, err := tx.GetSprint(ctx, id)
		if err != nil {
			return err
		}
		boardID = sp.BoardID
		return tx.SoftDeleteSprint(ctx, id, s.now())
	})
	if err != nil {
		return fmt.Errorf("delete sprint %s: %w", id, err)
	}

	s.pub.Publish(ctx, boardID, realtime.Event{Type: realtime.SprintDeleted, SprintID: id})
	return nil
}

// GetSprint returns a non-deleted sprint.
func (s *Service) GetSprint(ctx context.Context, id string) (*models.Sprint, error) {
	return s.store.GetSprint(ctx, id)
}

// ListSprints returns the non-deleted sprints of a board.
func (s *Service) ListSprints(ctx context.Context, filter store.SprintFilter) ([]*models.Sprint, error) {
	if filter.BoardID == "" {
		return nil, models.Required("boardId")
	}
	return s.store.ListSprints(ctx, filter)
}
