package repository

import (
	"context"

	"github.com/fastygo/huddle/domain"
)

type EventFilter struct {
	ActivityID string
	Name       string
	Limit      int
	Offset     int
}

// EventRepository is the append-only log of activity transitions.
type EventRepository interface {
	Append(ctx context.Context, event domain.Event) error
	List(ctx context.Context, filter EventFilter) ([]domain.Event, error)
}
