package models

import "time"

// DateLayout is the calendar-day format used for sprint dates and due dates.
const DateLayout = "2006-01-02"

// SprintState is the lifecycle state of a sprint.
type SprintState string

const (
	SprintStatePlanned SprintState = "PLANNED"
	SprintStateActive  SprintState = "ACTIVE"
	SprintStateClosed  SprintState = "CLOSED"
)

// Valid reports whether s is one of the known sprint states.
func (s SprintState) Valid() bool {
	switch s {
	case SprintStatePlanned, SprintStateActive, SprintStateClosed:
		return true
	}
	return false
}

// Sprint is a time-boxed iteration. StartDate and EndDate are calendar days
// at UTC midnight; start <= end is expected but not enforced.
type Sprint struct {
	ID        string      `json:"id"`
	BoardID   string      `json:"boardId"`
	Name      string      `json:"name"`
	Goal      string      `json:"goal"`
	State     SprintState `json:"state"`
	StartDate time.Time   `json:"startDate"`
	EndDate   time.Time   `json:"endDate"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	DeletedAt *time.Time  `json:"deletedAt,omitempty"`
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SprintInput is the payload for creating a sprint. Dates are YYYY-MM-DD.
type SprintInput struct {
	BoardID   string      `json:"boardId"`
	Name      string      `json:"name"`
	Goal      string      `json:"goal"`
	State     SprintState `json:"state"`
	StartDate string      `json:"startDate"`
	EndDate   string      `json:"endDate"`
}

// Validate checks the required name, the state domain and the sprint dates.
func (s *Sprint) Validate() error {
	if s.Name == "" {
		return Required("name")
	}
	if !s.State.Valid() {
		return Invalid("state", "must be PLANNED, ACTIVE or CLOSED")
	}
	if s.StartDate.IsZero() {
		return Required("startDate")
	}
	if s.EndDate.IsZero() {
		return Required("endDate")
	}
	return nil
}
