// Package notification is the read side of user notifications.
package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps page*size well inside the range of a Postgres OFFSET.
	MaxPage = 100_000
)

type UseCase struct {
	notifications repository.NotificationRepository
	logger        *zap.Logger
}

func New(notifications repository.NotificationRepository, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		notifications: notifications,
		logger:        logger,
	}
}

// List returns one page of the user's notifications, newest first. page is zero based.
func (uc *UseCase) List(ctx context.Context, userID string, page, size int) ([]domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if page < 0 || page > MaxPage {
		return nil, domain.Invalidf("page must be between 0 and %d", MaxPage)
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return uc.notifications.List(ctx, repository.NotificationFilter{
		UserID: userID,
		Limit:  size,
		Offset: page * size,
	})
}

func (uc *UseCase) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return uc.notifications.List(ctx, repository.NotificationFilter{
		UserID:     userID,
		UnreadOnly: true,
		Limit:      MaxPageSize,
	})
}

func (uc *UseCase) UnreadCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, domain.ErrUnauthorized
	}
	return uc.notifications.CountUnread(ctx, userID)
}

// MarkRead flags one notification as read. Only its recipient may do so.
func (uc *UseCase) MarkRead(ctx context.Context, notificationID, userID string) error {
	notification, err := uc.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if notification.UserID != userID {
		return domain.ErrNotNotificationTarget
	}
	if notification.Read {
		return nil
	}
	return uc.notifications.MarkRead(ctx, notificationID)
}

func (uc *UseCase) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, domain.ErrUnauthorized
	}
	updated, err := uc.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	uc.logger.Debug("notifications marked read", zap.String("user_id", userID), zap.Int("count", updated))
	return updated, nil
}
