package repository

import (
	"context"

	"github.com/fastygo/huddle/domain"
)

type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

type NotificationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// List returns notifications newest first.
	List(ctx context.Context, filter NotificationFilter) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, notification *domain.Notification) (*domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}
