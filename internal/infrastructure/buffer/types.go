package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntitySideEffect marks items holding a failed side effect of an activity transition.
const EntitySideEffect = "side_effect"

// Priorities order the drain: lower values are retried first.
const (
	PriorityTeardown  = 1
	PriorityProvision = 2
	PriorityPush      = 4
)

// Item is a persisted operation awaiting retry.
type Item struct {
	ID         string          `json:"id"`
	ActivityID string          `json:"activity_id,omitempty"`
	Entity     string          `json:"entity"`
	Operation  string          `json:"operation"`
	Data       json.RawMessage `json:"data"`
	Priority   int             `json:"priority"`
	Retries    int             `json:"retries"`
	LastError  string          `json:"last_error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = 3
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
