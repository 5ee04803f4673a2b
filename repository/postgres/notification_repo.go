package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a Postgres-backed implementation of NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool) repository.NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	const query = `
	SELECT id, user_id, title, message, category, reference_id, is_read, created_at
	FROM notifications
	WHERE id = $1
	`
	return scanNotification(r.pool.QueryRow(ctx, query, id))
}

func (r *notificationRepository) List(ctx context.Context, filter repository.NotificationFilter) ([]domain.Notification, error) {
	const query = `
	SELECT id, user_id, title, message, category, reference_id, is_read, created_at
	FROM notifications
	WHERE user_id = $1
	  AND (NOT $2 OR is_read = FALSE)
	ORDER BY created_at DESC, id DESC
	LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.UserID, filter.UnreadOnly, limitArg(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *notification)
	}
	return notifications, rows.Err()
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		userID,
	).Scan(&count)
	return count, err
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if notification == nil {
		return nil, domain.ErrInvalidPayload
	}
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO notifications (id, user_id, title, message, category, reference_id, is_read, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
	RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query,
		notification.ID,
		notification.UserID,
		notification.Title,
		notification.Message,
		string(notification.Category),
		notification.ReferenceID,
		notification.Read,
		nullTime(notification.CreatedAt),
	).Scan(&notification.CreatedAt); err != nil {
		return nil, err
	}
	return notification, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanNotification(row scanner) (*domain.Notification, error) {
	var (
		notification domain.Notification
		category     string
	)
	if err := row.Scan(
		&notification.ID,
		&notification.UserID,
		&notification.Title,
		&notification.Message,
		&category,
		&notification.ReferenceID,
		&notification.Read,
		&notification.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	notification.Category = domain.NotificationCategory(category)
	return &notification, nil
}
