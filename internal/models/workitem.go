package models

import "time"

// Status is the workflow state of a work item. The domain is open: boards may
// use their own status names. Only the well-known values below carry meaning,
// and of those only StatusDone drives side effects (the done-in-sprint marker
// and completion in reports).
type Status string

const (
	StatusOpen       Status = "Open"
	StatusInProgress Status = "In Progress"
	StatusInReview   Status = "In Review"
	StatusDone       Status = "Done"
)

// StatusKind classifies a Status into the known tags plus a catch-all for
// board-specific custom statuses.
type StatusKind int

const (
	StatusKindCustom StatusKind = iota
	StatusKindOpen
	StatusKindInProgress
	StatusKindInReview
	StatusKindDone
)

// Kind returns the classification of s. Matching is exact; "done" is a
// custom status, not a completion.
func (s Status) Kind() StatusKind {
	switch s {
	case StatusOpen:
		return StatusKindOpen
	case StatusInProgress:
		return StatusKindInProgress
	case StatusInReview:
		return StatusKindInReview
	case StatusDone:
		return StatusKindDone
	default:
		return StatusKindCustom
	}
}

// IsDone reports whether s is the completion status.
func (s Status) IsDone() bool { return s.Kind() == StatusKindDone }

// IsInProgress reports whether s is the in-progress status.
func (s Status) IsInProgress() bool { return s.Kind() == StatusKindInProgress }

// Label is a colored tag on a work item.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// ChecklistEntry is one line of a work item checklist.
type ChecklistEntry struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Attachment references an externally stored file.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Assignment links a user to a work item.
type Assignment struct {
	WorkItemID string    `json:"workItemId"`
	UserID     string    `json:"userId"`
	IsPrimary  bool      `json:"isPrimary"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Transition is an append-only record of a status change.
type Transition struct {
	ID         string    `json:"id"`
	WorkItemID string    `json:"workItemId"`
	FromStatus Status    `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	ActorID    string    `json:"actorId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// WorkItem is a story, task, bug or any other trackable unit of work.
type WorkItem struct {
	ID               string           `json:"id"`
	BoardID          string           `json:"boardId"`
	EpicID           *string          `json:"epicId"`
	SprintID         *string          `json:"sprintId"`
	DoneInSprintID   *string          `json:"doneInSprintId"`
	ParentID         *string          `json:"parentId"`
	TeamID           *string          `json:"teamId"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	Status           Status           `json:"status"`
	Priority         string           `json:"priority"`
	EstimationPoints *int             `json:"estimationPoints"`
	EffortHours      *float64         `json:"effortHours"`
	DueDate          *time.Time       `json:"dueDate"`
	Labels           []Label          `json:"labels"`
	Checklist        []ChecklistEntry `json:"checklist"`
	Attachments      []Attachment     `json:"attachments"`
	Watchers         []string         `json:"watchers"`
	Assignees        []Assignment     `json:"assignees"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	DeletedAt        *time.Time       `json:"deletedAt,omitempty"`
}

// Points returns the estimation points, treating unset as zero.
func (w *WorkItem) Points() int {
	if w.EstimationPoints == nil {
		return 0
	}
	return *w.EstimationPoints
}

// PrimaryAssignee returns the first assignment flagged primary, or nil.
func (w *WorkItem) PrimaryAssignee() *Assignment {
	for i := range w.Assignees {
		if w.Assignees[i].IsPrimary {
			return &w.Assignees[i]
		}
	}
	return nil
}

// AssigneeInput is a requested assignment on create or update.
type AssigneeInput struct {
	UserID    string `json:"userId"`
	IsPrimary bool   `json:"isPrimary"`
}

// NormalizeAssignees drops blank and duplicate users and keeps at most one
// primary flag: the first one requested.
func NormalizeAssignees(in []AssigneeInput) []AssigneeInput {
	out := make([]AssigneeInput, 0, len(in))
	seen := make(map[string]bool, len(in))
	hasPrimary := false
	for _, a := range in {
		if a.UserID == "" || seen[a.UserID] {
			continue
		}
		seen[a.UserID] = true
		if a.IsPrimary {
			if hasPrimary {
				a.IsPrimary = false
			}
			hasPrimary = true
		}
		out = append(out, a)
	}
	return out
}

// WorkItemInput is the payload for creating a work item. Title, Type and
// Status are required. Assignees takes precedence over the legacy single
// AssigneeID, which becomes the sole primary assignee when used.
type WorkItemInput struct {
	BoardID          string           `json:"boardId"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Type             string           `json:"type"`
	Status           Status           `json:"status"`
	Priority         string           `json:"priority"`
	EpicID           *string          `json:"epicId"`
	SprintID         *string          `json:"sprintId"`
	ParentID         *string          `json:"parentId"`
	TeamID           *string          `json:"teamId"`
	EstimationPoints *int             `json:"estimationPoints"`
	EffortHours      *float64         `json:"effortHours"`
	DueDate          *string          `json:"dueDate"`
	Labels           []Label          `json:"labels"`
	Checklist        []ChecklistEntry `json:"checklist"`
	Attachments      []Attachment     `json:"attachments"`
	Watchers         []string         `json:"watchers"`
	Assignees        []AssigneeInput  `json:"assignees"`
	AssigneeID       string           `json:"assigneeId"`
}

// ResolvedAssignees returns the assignee set a create request asks for.
func (in *WorkItemInput) ResolvedAssignees() []AssigneeInput {
	if len(in.Assignees) > 0 {
		return NormalizeAssignees(in.Assignees)
	}
	if in.AssigneeID != "" {
		return []AssigneeInput{{UserID: in.AssigneeID, IsPrimary: true}}
	}
	return nil
}
