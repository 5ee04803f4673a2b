package domain

import (
	"encoding/json"
	"time"
)

// Event names appended to the activity event log and published on EventChannel.
const (
	EventActivityCreated   = "activity.created"
	EventActivityFull      = "activity.full"
	EventActivityClosed    = "activity.closed"
	EventActivityCancelled = "activity.cancelled"
	EventActivityExpired   = "activity.expired"
	EventJoinRequested     = "join.requested"
	EventJoinAccepted      = "join.accepted"
	EventJoinRejected      = "join.rejected"
)

// Event represents a committed transition of an activity or one of its join requests.
type Event struct {
	ID         string            `json:"id"`
	ActivityID string            `json:"activity_id"`
	Name       string            `json:"name"`
	ActorID    string            `json:"actor_id,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewEvent builds an event carrying payload encoded as JSON.
func NewEvent(name, activityID, actorID string, payload interface{}, now time.Time) (Event, error) {
	ev := Event{
		ActivityID: activityID,
		Name:       name,
		ActorID:    actorID,
		CreatedAt:  now,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Payload = raw
	}
	return ev, nil
}

// EventChannel is the publish channel for events named name.
func EventChannel(name string) string {
	return "events:" + name
}
