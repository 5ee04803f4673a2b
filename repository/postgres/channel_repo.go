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

const channelActivityIndex = "chat_channels_activity_id_key"

type channelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository returns a Postgres-backed implementation of ChannelRepository.
func NewChannelRepository(pool *pgxpool.Pool) repository.ChannelRepository {
	return &channelRepository{pool: pool}
}

func (r *channelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, activity_id, name, created_at FROM chat_channels WHERE id = $1`, id)
	return scanChannel(row)
}

func (r *channelRepository) GetByActivityID(ctx context.Context, activityID string) (*domain.Channel, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, activity_id, name, created_at FROM chat_channels WHERE activity_id = $1`, activityID)
	return scanChannel(row)
}

func (r *channelRepository) Create(ctx context.Context, channel *domain.Channel) (*domain.Channel, error) {
	if channel == nil {
		return nil, domain.ErrInvalidPayload
	}
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO chat_channels (id, activity_id, name, created_at)
	VALUES ($1, $2, $3, COALESCE($4, NOW()))
	RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query,
		channel.ID,
		channel.ActivityID,
		channel.Name,
		nullTime(channel.CreatedAt),
	).Scan(&channel.CreatedAt); err != nil {
		if isUniqueViolation(err, channelActivityIndex) {
			return nil, domain.ErrChannelExists
		}
		return nil, err
	}
	return channel, nil
}

func (r *channelRepository) DeleteByActivityID(ctx context.Context, activityID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var channelID string
	err = tx.QueryRow(ctx, `SELECT id FROM chat_channels WHERE activity_id = $1 FOR UPDATE`, activityID).Scan(&channelID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE channel_id = $1`, channelID); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chat_channels WHERE id = $1`, channelID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *channelRepository) AppendMessage(ctx context.Context, message *domain.ChannelMessage) (*domain.ChannelMessage, error) {
	if message == nil {
		return nil, domain.ErrInvalidPayload
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	// The insert only succeeds while the channel still exists.
	const query = `
	INSERT INTO chat_messages (id, channel_id, sender_id, content, kind, created_at)
	SELECT $1, c.id, $3, $4, $5, COALESCE($6, NOW())
	FROM chat_channels c
	WHERE c.id = $2
	RETURNING created_at
	`
	if err := r.pool.QueryRow(ctx, query,
		message.ID,
		message.ChannelID,
		message.SenderID,
		message.Content,
		string(message.Kind),
		nullTime(message.CreatedAt),
	).Scan(&message.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return message, nil
}

func (r *channelRepository) ListMessages(ctx context.Context, channelID string, limit int) ([]domain.ChannelMessage, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.pool.Query(ctx, `
		SELECT id, channel_id, sender_id, content, kind, created_at FROM (
			SELECT id, channel_id, sender_id, content, kind, created_at
			FROM chat_messages
			WHERE channel_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
		`, channelID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
		SELECT id, channel_id, sender_id, content, kind, created_at
		FROM chat_messages
		WHERE channel_id = $1
		ORDER BY created_at ASC, id ASC
		`, channelID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChannelMessage
	for rows.Next() {
		var (
			message domain.ChannelMessage
			kind    string
		)
		if err := rows.Scan(&message.ID, &message.ChannelID, &message.SenderID, &message.Content, &kind, &message.CreatedAt); err != nil {
			return nil, err
		}
		message.Kind = domain.MessageKind(kind)
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func scanChannel(row scanner) (*domain.Channel, error) {
	var channel domain.Channel
	if err := row.Scan(&channel.ID, &channel.ActivityID, &channel.Name, &channel.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChannelNotFound
		}
		return nil, err
	}
	return &channel, nil
}
