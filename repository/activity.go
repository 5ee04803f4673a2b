package repository

import (
	"context"
	"time"

	"github.com/fastygo/huddle/domain"
)

// RadiusQuery selects OPEN activities within RadiusKm of Origin, optionally of one type.
type RadiusQuery struct {
	Origin   domain.Coordinates
	RadiusKm float64
	Type     domain.ActivityType
}

type ActivityFilter struct {
	OwnerID  string
	Statuses []domain.ActivityStatus
	Limit    int
	Offset   int
}

type ActivityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Activity, error)
	List(ctx context.Context, filter ActivityFilter) ([]domain.Activity, error)
	// WithinRadius is the storage-side range predicate; ranking is the caller's job.
	WithinRadius(ctx context.Context, query RadiusQuery) ([]domain.Activity, error)
	// ListExpired returns OPEN activities scheduled before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Activity, error)
	Create(ctx context.Context, activity *domain.Activity) (*domain.Activity, error)
	// Update persists activity and bumps its version.
	Update(ctx context.Context, activity *domain.Activity) error
}
