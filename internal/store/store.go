package store

import (
	"context"
	"time"

	"github.com/joescharf/board/internal/models"
)

// WorkItemFilter specifies filters for listing non-deleted work items.
type WorkItemFilter struct {
	BoardID        string
	SprintID       string
	DoneInSprintID string
	EpicID         string
	Status         models.Status
}

// SprintFilter specifies filters for listing non-deleted sprints.
type SprintFilter struct {
	BoardID string
	State   models.SprintState
	// NewestFirst orders by end date descending instead of start date ascending.
	NewestFirst bool
	Limit       int
}

// WorkloadRow is one (user, work item) assignment on a board, joined with the
// data the workload report needs.
type WorkloadRow struct {
	UserID           string
	DisplayName      string
	WorkItemID       string
	Status           models.Status
	EstimationPoints int
}

// Reader holds the lookups shared by the store and an open transaction.
// Every lookup excludes soft-deleted rows and reports models.ErrNotFound for them.
type Reader interface {
	GetBoard(ctx context.Context, id string) (*models.Board, error)
	GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error)
	GetEpic(ctx context.Context, id string) (*models.Epic, error)
	GetSprint(ctx context.Context, id string) (*models.Sprint, error)
	ListSprintEpicIDs(ctx context.Context, sprintID string) ([]string, error)
}

// Tx is a unit of work against the store. All writes made through a Tx are
// committed together or not at all.
type Tx interface {
	Reader

	// Work items
	InsertWorkItem(ctx context.Context, w *models.WorkItem) error
	UpdateWorkItem(ctx context.Context, id string, p *models.WorkItemPatch, at time.Time) error
	SoftDeleteWorkItem(ctx context.Context, id string, at time.Time) error
	ReplaceAssignees(ctx context.Context, workItemID string, assignees []models.AssigneeInput) error
	InsertTransition(ctx context.Context, t *models.Transition) error

	// Epics
	InsertEpic(ctx context.Context, e *models.Epic) error
	UpdateEpic(ctx context.Context, e *models.Epic) error
	SoftDeleteEpic(ctx context.Context, id string, at time.Time) error

	// Sprints
	InsertSprint(ctx context.Context, s *models.Sprint) error
	UpdateSprint(ctx context.Context, s *models.Sprint) error
	SoftDeleteSprint(ctx context.Context, id string, at time.Time) error

	// Sprint–epic links
	UnlinkSprintEpicsExcept(ctx context.Context, sprintID string, keep []string) (int64, error)
	LinkSprintEpic(ctx context.Context, sprintID, epicID string) error
	AssignSprintByEpics(ctx context.Context, sprintID string, epicIDs []string) (int64, error)
}

// Store defines the persistence interface for the board backend.
type Store interface {
	Reader

	// Boards and users
	CreateBoard(ctx context.Context, b *models.Board) error
	ListBoards(ctx context.Context) ([]*models.Board, error)
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	// Listings
	ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error)
	ListTransitions(ctx context.Context, workItemID string) ([]*models.Transition, error)
	ListEpics(ctx context.Context, boardID string) ([]*models.Epic, error)
	ListSprints(ctx context.Context, filter SprintFilter) ([]*models.Sprint, error)
	ListWorkload(ctx context.Context, boardID string) ([]WorkloadRow, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back on any error or panic.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
