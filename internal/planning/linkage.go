package planning

import (
	"context"
	"fmt"

	"github.com/joescharf/board/internal/models"
	"github.com/joescharf/board/internal/realtime"
	"github.com/joescharf/board/internal/store"
)

// SprintEpics is the epic link set of a sprint.
type SprintEpics struct {
	SprintID string   `json:"sprintId"`
	EpicIDs  []string `json:"epicIds"`
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// SetEpicsForSprint replaces the sprint's epic links with epicIDs and moves
// every non-deleted work item of those epics onto the sprint. Items already
// in the sprint are left alone, and items of epics dropped from the set keep
// their sprint. Publishes sprint.epics.updated with the resulting set.
func (s *Service) SetEpicsForSprint(ctx context.Context, sprintID string, epicIDs []string) (*SprintEpics, error) {
	if sprintID == "" {
		return nil, models.Required("sprintId")
	}
	ids := uniqueIDs(epicIDs)

	var (
		boardID string
		moved   int64
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		sp, err := tx.GetSprint(ctx, sprintID)
		if err != nil {
			return err
		}
		boardID = sp.BoardID

		for _, id := range ids {
			e, err := tx.GetEpic(ctx, id)
			if err != nil {
				return err
			}
			if e.BoardID != sp.BoardID {
				return models.Invalid("epicIds", fmt.Sprintf("epic %s belongs to another board", id))
			}
		}

		if _, err := tx.UnlinkSprintEpicsExcept(ctx, sprintID, ids); err != nil {
			return err
		}
		for _, id := range ids {
			if err := tx.LinkSprintEpic(ctx, sprintID, id); err != nil {
				return err
			}
		}
		moved, err = tx.AssignSprintByEpics(ctx, sprintID, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("set epics for sprint %s: %w", sprintID, err)
	}

	s.logger.Debug("sprint epics set", "sprint", sprintID, "epics", len(ids), "moved", moved)
	s.pub.Publish(ctx, boardID, realtime.Event{
		Type:     realtime.SprintEpicsUpdated,
		SprintID: sprintID,
		EpicIDs:  ids,
	})
	return &SprintEpics{SprintID: sprintID, EpicIDs: ids}, nil
}

// GetSprintEpics returns the current epic link set of a sprint.
func (s *Service) GetSprintEpics(ctx context.Context, sprintID string) (*SprintEpics, error) {
	if _, err := s.store.GetSprint(ctx, sprintID); err != nil {
		return nil, err
	}
	ids, err := s.store.ListSprintEpicIDs(ctx, sprintID)
	if err != nil {
		return nil, err
	}
	return &SprintEpics{SprintID: sprintID, EpicIDs: ids}, nil
}
