package models

import "github.com/joescharf/board/internal/patch"

// WorkItemPatch is a sparse update of a work item. Only fields present in the
// payload are written. DoneInSprintID is derived by the mutation pipeline and
// cannot be sent by clients.
type WorkItemPatch struct {
	Title            patch.Field[string]           `json:"title"`
	Description      patch.Field[string]           `json:"description"`
	Type             patch.Field[string]           `json:"type"`
	Status           patch.Field[Status]           `json:"status"`
	Priority         patch.Field[string]           `json:"priority"`
	EpicID           patch.Field[string]           `json:"epicId"`
	SprintID         patch.Field[string]           `json:"sprintId"`
	ParentID         patch.Field[string]           `json:"parentId"`
	TeamID           patch.Field[string]           `json:"teamId"`
	EstimationPoints patch.Field[int]              `json:"estimationPoints"`
	EffortHours      patch.Field[float64]          `json:"effortHours"`
	DueDate          patch.Field[string]           `json:"dueDate"`
	Labels           patch.Field[[]Label]          `json:"labels"`
	Checklist        patch.Field[[]ChecklistEntry] `json:"checklist"`
	Attachments      patch.Field[[]Attachment]     `json:"attachments"`
	Watchers         patch.Field[[]string]         `json:"watchers"`
	Assignees        patch.Field[[]AssigneeInput]  `json:"assignees"`
	ActorID          string                        `json:"actorId"`

	DoneInSprintID patch.Field[string] `json:"-"`
}

// Validate rejects clearing or blanking required fields and malformed dates.
func (p *WorkItemPatch) Validate() error {
	if p.Title.Set && (p.Title.Null || p.Title.Value == "") {
		return Required("title")
	}
	if p.Type.Set && (p.Type.Null || p.Type.Value == "") {
		return Required("type")
	}
	if p.Status.Set && (p.Status.Null || p.Status.Value == "") {
		return Required("status")
	}
	if p.DueDate.Set && !p.DueDate.Null {
		if _, err := ParseDate(p.DueDate.Value); err != nil {
			return Invalid("dueDate", "expected YYYY-MM-DD")
		}
	}
	return nil
}

// ApplyTo writes the present fields onto w.
func (p *WorkItemPatch) ApplyTo(w *WorkItem) {
	p.Title.Apply(&w.Title)
	p.Description.Apply(&w.Description)
	p.Type.Apply(&w.Type)
	p.Status.Apply(&w.Status)
	p.Priority.Apply(&w.Priority)
	p.EpicID.ApplyPtr(&w.EpicID)
	p.SprintID.ApplyPtr(&w.SprintID)
	p.DoneInSprintID.ApplyPtr(&w.DoneInSprintID)
	p.ParentID.ApplyPtr(&w.ParentID)
	p.TeamID.ApplyPtr(&w.TeamID)
	p.EstimationPoints.ApplyPtr(&w.EstimationPoints)
	p.EffortHours.ApplyPtr(&w.EffortHours)
	if p.DueDate.Set {
		if p.DueDate.Null {
			w.DueDate = nil
		} else if d, err := ParseDate(p.DueDate.Value); err == nil {
			w.DueDate = &d
		}
	}
	p.Labels.Apply(&w.Labels)
	p.Checklist.Apply(&w.Checklist)
	p.Attachments.Apply(&w.Attachments)
	p.Watchers.Apply(&w.Watchers)
}

// EpicPatch is a sparse update of an epic.
type EpicPatch struct {
	Title       patch.Field[string]     `json:"title"`
	Description patch.Field[string]     `json:"description"`
	Status      patch.Field[EpicStatus] `json:"status"`
	Impact      patch.Field[int]        `json:"impact"`
	Confidence  patch.Field[int]        `json:"confidence"`
	Ease        patch.Field[int]        `json:"ease"`
}

// ApplyTo writes the present fields onto e.
func (p *EpicPatch) ApplyTo(e *Epic) {
	p.Title.Apply(&e.Title)
	p.Description.Apply(&e.Description)
	p.Status.Apply(&e.Status)
	p.Impact.Apply(&e.Impact)
	p.Confidence.Apply(&e.Confidence)
	p.Ease.Apply(&e.Ease)
}

// SprintPatch is a sparse update of a sprint.
type SprintPatch struct {
	Name      patch.Field[string]      `json:"name"`
	Goal      patch.Field[string]      `json:"goal"`
	State     patch.Field[SprintState] `json:"state"`
	StartDate patch.Field[string]      `json:"startDate"`
	EndDate   patch.Field[string]      `json:"endDate"`
}

// ApplyTo writes the present fields onto s. Dates must already be validated.
func (p *SprintPatch) ApplyTo(s *Sprint) error {
	p.Name.Apply(&s.Name)
	p.Goal.Apply(&s.Goal)
	p.State.Apply(&s.State)
	if p.StartDate.Set {
		d, err := ParseDate(p.StartDate.Value)
		if err != nil {
			return Invalid("startDate", "expected YYYY-MM-DD")
		}
		s.StartDate = d
	}
	if p.EndDate.Set {
		d, err := ParseDate(p.EndDate.Value)
		if err != nil {
			return Invalid("endDate", "expected YYYY-MM-DD")
		}
		s.EndDate = d
	}
	return nil
}
