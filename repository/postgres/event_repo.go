package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a Postgres-backed EventRepository implementation.
func NewEventRepository(pool *pgxpool.Pool) repository.EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) Append(ctx context.Context, event domain.Event) error {
	const query = `
	INSERT INTO activity_events (id, activity_id, name, actor_id, payload, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
	`
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var payload []byte
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.ActivityID,
		event.Name,
		event.ActorID,
		payload,
		marshalMap(event.Metadata),
		nullTime(event.CreatedAt),
	)
	return err
}

func (r *eventRepository) List(ctx context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	const query = `
	SELECT id, activity_id, name, actor_id, payload, metadata, created_at
	FROM activity_events
	WHERE ($1 = '' OR activity_id = $1)
	  AND ($2 = '' OR name = $2)
	ORDER BY created_at ASC, id ASC
	LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.ActivityID, filter.Name, limitArg(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			event    domain.Event
			payload  []byte
			metadata []byte
		)
		if err := rows.Scan(&event.ID, &event.ActivityID, &event.Name, &event.ActorID, &payload, &metadata, &event.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			event.Payload = make([]byte, len(payload))
			copy(event.Payload, payload)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &event.Metadata)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
