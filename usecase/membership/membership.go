// Package membership owns the join request workflow and admits members subject
// to capacity and duplicate-request guards.
package membership

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/usecase"
)

// Admitter takes a seat on an activity whose lock is held by the caller.
type Admitter interface {
	AdmitLocked(ctx context.Context, tx repository.Tx, activity *domain.Activity) (bool, error)
}

type UseCase struct {
	activities repository.ActivityRepository
	requests   repository.JoinRequestRepository
	transactor repository.Transactor
	admitter   Admitter
	effects    usecase.SideEffects
	now        usecase.Clock
	logger     *zap.Logger
}

func New(
	activities repository.ActivityRepository,
	requests repository.JoinRequestRepository,
	transactor repository.Transactor,
	admitter Admitter,
	effects usecase.SideEffects,
	clock usecase.Clock,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if effects == nil {
		effects = usecase.NopSideEffects{}
	}
	if clock == nil {
		clock = usecase.SystemClock
	}
	return &UseCase{
		activities: activities,
		requests:   requests,
		transactor: transactor,
		admitter:   admitter,
		effects:    effects,
		now:        clock,
		logger:     logger,
	}
}

// Request creates a PENDING join request. The activity lock serializes the
// duplicate check against concurrent requests from the same user.
func (uc *UseCase) Request(ctx context.Context, userID, activityID, message string) (*domain.JoinRequest, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	var (
		created  *domain.JoinRequest
		activity domain.Activity
	)
	err := uc.transactor.WithActivityLock(ctx, activityID, func(ctx context.Context, tx repository.Tx, locked *domain.Activity) error {
		if err := locked.CanRequestJoin(userID); err != nil {
			return err
		}
		blocking, err := tx.JoinRequests().HasBlocking(ctx, activityID, userID)
		if err != nil {
			return err
		}
		if blocking {
			return domain.ErrDuplicateRequest
		}

		request, err := domain.NewJoinRequest(activityID, userID, strings.TrimSpace(message), uc.now())
		if err != nil {
			return err
		}
		if created, err = tx.JoinRequests().Create(ctx, request); err != nil {
			return err
		}
		activity = *locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("join request created",
		zap.String("request_id", created.ID),
		zap.String("activity_id", activityID),
		zap.String("user_id", userID),
	)
	uc.effects.JoinRequested(ctx, activity, *created)
	return created, nil
}

// Accept admits the requester. Ownership, review state and capacity are all
// re-checked under the activity lock, so two accepts racing for the last seat
// cannot both succeed.
func (uc *UseCase) Accept(ctx context.Context, requestID, ownerID, reviewMessage string) (*domain.JoinRequest, error) {
	var (
		accepted   domain.JoinRequest
		activity   domain.Activity
		becameFull bool
	)
	err := uc.review(ctx, requestID, func(ctx context.Context, tx repository.Tx, locked *domain.Activity, request *domain.JoinRequest) error {
		if !locked.IsOwner(ownerID) {
			return domain.ErrNotActivityOwner
		}
		if request.Status != domain.JoinRequestPending {
			return domain.ErrAlreadyReviewed
		}

		full, err := uc.admitter.AdmitLocked(ctx, tx, locked)
		if err != nil {
			return err
		}
		if err := request.Review(domain.JoinRequestAccepted, ownerID, strings.TrimSpace(reviewMessage), uc.now()); err != nil {
			return err
		}
		if err := tx.JoinRequests().Update(ctx, request); err != nil {
			return err
		}

		accepted, activity, becameFull = *request, *locked, full
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("join request accepted",
		zap.String("request_id", requestID),
		zap.String("activity_id", activity.ID),
		zap.Int("members", activity.CurrentMembers),
	)
	uc.effects.JoinAccepted(ctx, activity, accepted, becameFull)
	return &accepted, nil
}

func (uc *UseCase) Reject(ctx context.Context, requestID, ownerID, reviewMessage string) (*domain.JoinRequest, error) {
	var (
		rejected domain.JoinRequest
		activity domain.Activity
	)
	err := uc.review(ctx, requestID, func(ctx context.Context, tx repository.Tx, locked *domain.Activity, request *domain.JoinRequest) error {
		if !locked.IsOwner(ownerID) {
			return domain.ErrNotActivityOwner
		}
		if err := request.Review(domain.JoinRequestRejected, ownerID, strings.TrimSpace(reviewMessage), uc.now()); err != nil {
			return err
		}
		if err := tx.JoinRequests().Update(ctx, request); err != nil {
			return err
		}
		rejected, activity = *request, *locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("join request rejected",
		zap.String("request_id", requestID),
		zap.String("activity_id", activity.ID),
	)
	uc.effects.JoinRejected(ctx, activity, rejected)
	return &rejected, nil
}

// ListPending returns the activity's PENDING requests. Only the owner may list them.
func (uc *UseCase) ListPending(ctx context.Context, activityID, ownerID string) ([]domain.JoinRequest, error) {
	activity, err := uc.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !activity.IsOwner(ownerID) {
		return nil, domain.ErrNotActivityOwner
	}
	return uc.requests.List(ctx, repository.JoinRequestFilter{
		ActivityID: activityID,
		Status:     domain.JoinRequestPending,
	})
}

func (uc *UseCase) ListMine(ctx context.Context, userID string) ([]domain.JoinRequest, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return uc.requests.List(ctx, repository.JoinRequestFilter{UserID: userID})
}

func (uc *UseCase) ListAcceptedMembers(ctx context.Context, activityID string) ([]domain.JoinRequest, error) {
	if _, err := uc.activities.GetByID(ctx, activityID); err != nil {
		return nil, err
	}
	return uc.requests.List(ctx, repository.JoinRequestFilter{
		ActivityID: activityID,
		Status:     domain.JoinRequestAccepted,
	})
}

// IsMember reports whether userID owns the activity or holds an ACCEPTED request for it.
func (uc *UseCase) IsMember(ctx context.Context, activity *domain.Activity, userID string) (bool, error) {
	if activity.IsOwner(userID) {
		return true, nil
	}
	if userID == "" {
		return false, nil
	}
	accepted, err := uc.requests.List(ctx, repository.JoinRequestFilter{
		ActivityID: activity.ID,
		UserID:     userID,
		Status:     domain.JoinRequestAccepted,
		Limit:      1,
	})
	if err != nil {
		return false, err
	}
	return len(accepted) > 0, nil
}

type reviewFunc func(ctx context.Context, tx repository.Tx, activity *domain.Activity, request *domain.JoinRequest) error

// review resolves the request's activity, then re-reads the request inside
// that activity's critical section before handing both to fn.
func (uc *UseCase) review(ctx context.Context, requestID string, fn reviewFunc) error {
	request, err := uc.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	return uc.transactor.WithActivityLock(ctx, request.ActivityID, func(ctx context.Context, tx repository.Tx, activity *domain.Activity) error {
		current, err := tx.JoinRequests().GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, activity, current)
	})
}
