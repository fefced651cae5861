package realtime

import (
	"encoding/json"
	"time"
)

// EventType tags an outbound event.
type EventType string

const (
	ItemCreated        EventType = "item.created"
	ItemUpdated        EventType = "item.updated"
	ItemDeleted        EventType = "item.deleted"
	EpicCreated        EventType = "epic.created"
	EpicUpdated        EventType = "epic.updated"
	EpicDeleted        EventType = "epic.deleted"
	SprintCreated      EventType = "sprint.created"
	SprintUpdated      EventType = "sprint.updated"
	SprintDeleted      EventType = "sprint.deleted"
	SprintEpicsUpdated EventType = "sprint.epics.updated"
	MemberUpdated      EventType = "member.updated"
	TeamCreated        EventType = "team.created"
	CommentCreated     EventType = "comment.created"
	CalendarCreated    EventType = "event.created"
	CalendarUpdated    EventType = "event.updated"
	CalendarDeleted    EventType = "event.deleted"
)

// Event is a small typed notification fanned out to the subscribers of a
// board. It serializes as {"type": ..., <identifiers>} with empty identifiers
// omitted.
type Event struct {
	Type      EventType `json:"type"`
	BoardID   string    `json:"boardId,omitempty"`
	ItemID    string    `json:"itemId,omitempty"`
	EpicID    string    `json:"epicId,omitempty"`
	SprintID  string    `json:"sprintId,omitempty"`
	EpicIDs   []string  `json:"epicIds,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	TeamID    string    `json:"teamId,omitempty"`
	CommentID string    `json:"commentId,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
}

// MarshalJSON encodes through the struct tags, except that a non-nil but
// empty EpicIDs stays in the payload, so an emptied sprint–epic set is sent
// as [] rather than dropped. Decoding uses the same tags.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		EpicIDs *[]string `json:"epicIds,omitempty"`
	}{plain: plain(e)}
	if e.EpicIDs != nil {
		out.EpicIDs = &e.EpicIDs
	}
	return json.Marshal(out)
}

// inbound is a message received from a subscriber.
type inbound struct {
	Type string `json:"type"`
}

// pong answers a subscriber keepalive.
type pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func newPong(now time.Time) pong {
	return pong{Type: "pong", Timestamp: now.UnixMilli()}
}
