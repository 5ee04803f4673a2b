package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

const activityColumns = `id, title, description, type, owner_id, latitude, longitude, scheduled_date,
	max_members, current_members, status, closed_at, version, created_at, updated_at`

// haversineKm expands to the great-circle distance in km between the row and ($1, $2).
const haversineKm = `(2 * 6371.0 * asin(sqrt(
	power(sin(radians(latitude - $1) / 2), 2) +
	cos(radians($1)) * cos(radians(latitude)) * power(sin(radians(longitude - $2) / 2), 2)
)))`

type activityRepository struct {
	db querier
}

// NewActivityRepository returns a Postgres-backed implementation of ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) repository.ActivityRepository {
	return &activityRepository{db: pool}
}

func (r *activityRepository) GetByID(ctx context.Context, id string) (*domain.Activity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id)
	return scanActivity(row)
}

// getForUpdate reads the activity row and holds its lock until the surrounding tx ends.
func (r *activityRepository) getForUpdate(ctx context.Context, id string) (*domain.Activity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1 FOR UPDATE`, id)
	return scanActivity(row)
}

func (r *activityRepository) List(ctx context.Context, filter repository.ActivityFilter) ([]domain.Activity, error) {
	const query = `
	SELECT ` + activityColumns + `
	FROM activities
	WHERE ($1 = '' OR owner_id = $1)
	  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
	ORDER BY scheduled_date ASC, id ASC
	LIMIT $3 OFFSET $4
	`
	statuses := make([]string, 0, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses = append(statuses, string(s))
	}
	rows, err := r.db.Query(ctx, query, filter.OwnerID, statuses, limitArg(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

func (r *activityRepository) WithinRadius(ctx context.Context, q repository.RadiusQuery) ([]domain.Activity, error) {
	minLat, maxLat, minLon, maxLon := q.Origin.BoundingBox(q.RadiusKm)
	query := `
	SELECT ` + activityColumns + `
	FROM activities
	WHERE status = 'OPEN'
	  AND ($4 = '' OR type = $4)
	  AND latitude BETWEEN $5 AND $6
	  AND longitude BETWEEN $7 AND $8
	  AND ` + haversineKm + ` <= $3
	`
	rows, err := r.db.Query(ctx, query,
		q.Origin.Latitude,
		q.Origin.Longitude,
		q.RadiusKm,
		string(q.Type),
		minLat, maxLat, minLon, maxLon,
	)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

func (r *activityRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Activity, error) {
	const query = `
	SELECT ` + activityColumns + `
	FROM activities
	WHERE status = 'OPEN' AND scheduled_date < $1
	ORDER BY scheduled_date ASC
	LIMIT $2
	`
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	return collectActivities(rows)
}

func (r *activityRepository) Create(ctx context.Context, activity *domain.Activity) (*domain.Activity, error) {
	if activity == nil {
		return nil, domain.ErrInvalidPayload
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO activities (id, title, description, type, owner_id, latitude, longitude, scheduled_date,
		max_members, current_members, status, closed_at, version, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, COALESCE($13, NOW()), NOW())
	RETURNING version, created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		activity.ID,
		activity.Title,
		activity.Description,
		string(activity.Type),
		activity.OwnerID,
		activity.Location.Latitude,
		activity.Location.Longitude,
		activity.ScheduledDate,
		activity.MaxMembers,
		activity.CurrentMembers,
		string(activity.Status),
		activity.ClosedAt,
		nullTime(activity.CreatedAt),
	).Scan(&activity.Version, &activity.CreatedAt, &activity.UpdatedAt); err != nil {
		return nil, err
	}
	return activity, nil
}

func (r *activityRepository) Update(ctx context.Context, activity *domain.Activity) error {
	if activity == nil {
		return domain.ErrInvalidPayload
	}

	// owner_id, location and schedule are immutable after creation.
	const query = `
	UPDATE activities
	SET title = $2,
		description = $3,
		current_members = $4,
		status = $5,
		closed_at = $6,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1
	RETURNING version, updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		activity.ID,
		activity.Title,
		activity.Description,
		activity.CurrentMembers,
		string(activity.Status),
		activity.ClosedAt,
	).Scan(&activity.Version, &activity.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrActivityNotFound
		}
		return err
	}
	return nil
}

func collectActivities(rows pgx.Rows) ([]domain.Activity, error) {
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}
	return activities, rows.Err()
}

func scanActivity(row scanner) (*domain.Activity, error) {
	var (
		activity     domain.Activity
		activityType string
		status       string
	)
	if err := row.Scan(
		&activity.ID,
		&activity.Title,
		&activity.Description,
		&activityType,
		&activity.OwnerID,
		&activity.Location.Latitude,
		&activity.Location.Longitude,
		&activity.ScheduledDate,
		&activity.MaxMembers,
		&activity.CurrentMembers,
		&status,
		&activity.ClosedAt,
		&activity.Version,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		return nil, err
	}
	activity.Type = domain.ActivityType(activityType)
	activity.Status = domain.ActivityStatus(status)
	return &activity, nil
}
