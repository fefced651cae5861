package models

import "time"

// EpicStatus is the lifecycle state of an epic.
type EpicStatus string

const (
	EpicStatusActive   EpicStatus = "ACTIVE"
	EpicStatusDone     EpicStatus = "DONE"
	EpicStatusArchived EpicStatus = "ARCHIVED"
)

// Score bounds for impact, confidence and ease.
const (
	MinEpicScore = 1
	MaxEpicScore = 10
)

// Epic groups work items and carries ICE scoring attributes.
type Epic struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"boardId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      EpicStatus `json:"status"`
	Impact      int        `json:"impact"`
	Confidence  int        `json:"confidence"`
	Ease        int        `json:"ease"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// ICEScore is impact * confidence * ease.
func (e *Epic) ICEScore() int {
	return e.Impact * e.Confidence * e.Ease
}

// EpicInput is the payload for creating an epic. Zero scores default to
// DefaultEpicScore.
type EpicInput struct {
	BoardID     string     `json:"boardId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      EpicStatus `json:"status"`
	Impact      int        `json:"impact"`
	Confidence  int        `json:"confidence"`
	Ease        int        `json:"ease"`
}

// DefaultEpicScore is used for scores left unset on create.
const DefaultEpicScore = 5

// Valid reports whether s is one of the known epic statuses.
func (s EpicStatus) Valid() bool {
	switch s {
	case EpicStatusActive, EpicStatusDone, EpicStatusArchived:
		return true
	}
	return false
}

// Validate checks the required title, the status domain and the score bounds.
func (e *Epic) Validate() error {
	if e.Title == "" {
		return Required("title")
	}
	if !e.Status.Valid() {
		return Invalid("status", "must be ACTIVE, DONE or ARCHIVED")
	}
	scores := []struct {
		field string
		v     int
	}{{"impact", e.Impact}, {"confidence", e.Confidence}, {"ease", e.Ease}}
	for _, sc := range scores {
		if sc.v < MinEpicScore || sc.v > MaxEpicScore {
			return Invalid(sc.field, "must be between 1 and 10")
		}
	}
	return nil
}
