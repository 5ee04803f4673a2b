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

const joinRequestColumns = `id, activity_id, user_id, status, message, reviewed_by, review_message, reviewed_at, created_at, updated_at`

// Partial unique index over (activity_id, user_id) WHERE status IN ('PENDING', 'ACCEPTED').
const joinRequestBlockingIndex = "join_requests_blocking_uidx"

type joinRequestRepository struct {
	db querier
}

// NewJoinRequestRepository returns a Postgres-backed implementation of JoinRequestRepository.
func NewJoinRequestRepository(pool *pgxpool.Pool) repository.JoinRequestRepository {
	return &joinRequestRepository{db: pool}
}

func (r *joinRequestRepository) GetByID(ctx context.Context, id string) (*domain.JoinRequest, error) {
	row := r.db.QueryRow(ctx, `SELECT `+joinRequestColumns+` FROM join_requests WHERE id = $1`, id)
	return scanJoinRequest(row)
}

func (r *joinRequestRepository) List(ctx context.Context, filter repository.JoinRequestFilter) ([]domain.JoinRequest, error) {
	const query = `
	SELECT ` + joinRequestColumns + `
	FROM join_requests
	WHERE ($1 = '' OR activity_id = $1)
	  AND ($2 = '' OR user_id = $2)
	  AND ($3 = '' OR status = $3)
	ORDER BY created_at DESC, id ASC
	LIMIT $4 OFFSET $5
	`
	rows, err := r.db.Query(ctx, query, filter.ActivityID, filter.UserID, string(filter.Status), limitArg(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.JoinRequest
	for rows.Next() {
		request, err := scanJoinRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}

func (r *joinRequestRepository) HasBlocking(ctx context.Context, activityID, userID string) (bool, error) {
	const query = `
	SELECT EXISTS (
		SELECT 1 FROM join_requests
		WHERE activity_id = $1 AND user_id = $2 AND status IN ('PENDING', 'ACCEPTED')
	)`
	var exists bool
	err := r.db.QueryRow(ctx, query, activityID, userID).Scan(&exists)
	return exists, err
}

func (r *joinRequestRepository) CountAccepted(ctx context.Context, activityID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM join_requests WHERE activity_id = $1 AND status = 'ACCEPTED'`,
		activityID,
	).Scan(&count)
	return count, err
}

func (r *joinRequestRepository) Create(ctx context.Context, request *domain.JoinRequest) (*domain.JoinRequest, error) {
	if request == nil {
		return nil, domain.ErrInvalidPayload
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO join_requests (id, activity_id, user_id, status, message, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), NOW())
	RETURNING created_at, updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		request.ID,
		request.ActivityID,
		request.UserID,
		string(request.Status),
		request.Message,
		nullTime(request.CreatedAt),
	).Scan(&request.CreatedAt, &request.UpdatedAt); err != nil {
		if isUniqueViolation(err, joinRequestBlockingIndex) {
			return nil, domain.ErrDuplicateRequest
		}
		return nil, err
	}
	return request, nil
}

func (r *joinRequestRepository) Update(ctx context.Context, request *domain.JoinRequest) error {
	if request == nil {
		return domain.ErrInvalidPayload
	}

	const query = `
	UPDATE join_requests
	SET status = $2,
		reviewed_by = $3,
		review_message = $4,
		reviewed_at = $5,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	if err := r.db.QueryRow(ctx, query,
		request.ID,
		string(request.Status),
		nullString(request.ReviewedBy),
		request.ReviewMessage,
		request.ReviewedAt,
	).Scan(&request.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrJoinRequestNotFound
		}
		return err
	}
	return nil
}

func scanJoinRequest(row scanner) (*domain.JoinRequest, error) {
	var (
		request    domain.JoinRequest
		status     string
		reviewedBy *string
	)
	if err := row.Scan(
		&request.ID,
		&request.ActivityID,
		&request.UserID,
		&status,
		&request.Message,
		&reviewedBy,
		&request.ReviewMessage,
		&request.ReviewedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJoinRequestNotFound
		}
		return nil, err
	}
	request.Status = domain.JoinRequestStatus(status)
	if reviewedBy != nil {
		request.ReviewedBy = *reviewedBy
	}
	return &request, nil
}
