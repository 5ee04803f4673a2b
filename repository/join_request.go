package repository

import (
	"context"

	"github.com/fastygo/huddle/domain"
)

type JoinRequestFilter struct {
	ActivityID string
	UserID     string
	Status     domain.JoinRequestStatus
	Limit      int
	Offset     int
}

type JoinRequestRepository interface {
	GetByID(ctx context.Context, id string) (*domain.JoinRequest, error)
	List(ctx context.Context, filter JoinRequestFilter) ([]domain.JoinRequest, error)
	// HasBlocking reports whether (activityID, userID) already has a PENDING or ACCEPTED request.
	HasBlocking(ctx context.Context, activityID, userID string) (bool, error)
	// CountAccepted returns the number of ACCEPTED requests of an activity.
	CountAccepted(ctx context.Context, activityID string) (int, error)
	// Create stores a new request; returns domain.ErrDuplicateRequest when the
	// (activity, user) pair already has a blocking request.
	Create(ctx context.Context, request *domain.JoinRequest) (*domain.JoinRequest, error)
	Update(ctx context.Context, request *domain.JoinRequest) error
}
