// Package activity owns the activity state machine and its capacity bookkeeping.
package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/usecase"
)

type UseCase struct {
	activities repository.ActivityRepository
	transactor repository.Transactor
	effects    usecase.SideEffects
	now        usecase.Clock
	logger     *zap.Logger
}

func New(
	activities repository.ActivityRepository,
	transactor repository.Transactor,
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
		transactor: transactor,
		effects:    effects,
		now:        clock,
		logger:     logger,
	}
}

// Create validates spec and stores a new OPEN activity owned by ownerID. Channel
// provisioning follows as a side effect and never fails the call.
func (uc *UseCase) Create(ctx context.Context, ownerID string, spec domain.ActivitySpec) (*domain.Activity, error) {
	activity, err := domain.NewActivity(ownerID, spec, uc.now())
	if err != nil {
		return nil, err
	}
	created, err := uc.activities.Create(ctx, activity)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("activity created",
		zap.String("activity_id", created.ID),
		zap.String("owner_id", ownerID),
		zap.String("type", string(created.Type)),
	)
	uc.effects.ActivityCreated(ctx, *created)
	return created, nil
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.Activity, error) {
	return uc.activities.GetByID(ctx, id)
}

// ListMine returns the owner's OPEN and FULL activities, soonest first.
func (uc *UseCase) ListMine(ctx context.Context, ownerID string) ([]domain.Activity, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	return uc.activities.List(ctx, repository.ActivityFilter{
		OwnerID:  ownerID,
		Statuses: []domain.ActivityStatus{domain.ActivityOpen, domain.ActivityFull},
	})
}

func (uc *UseCase) Close(ctx context.Context, id, actorID string) (*domain.Activity, error) {
	return uc.terminate(ctx, id, actorID, domain.ActivityClosed, domain.EventActivityClosed)
}

func (uc *UseCase) Cancel(ctx context.Context, id, actorID string) (*domain.Activity, error) {
	return uc.terminate(ctx, id, actorID, domain.ActivityCancelled, domain.EventActivityCancelled)
}

// ForceExpire closes an activity on behalf of the system. An activity that is
// already terminal is left untouched and reported with expired=false.
func (uc *UseCase) ForceExpire(ctx context.Context, id string) (expired bool, err error) {
	var closed domain.Activity
	err = uc.transactor.WithActivityLock(ctx, id, func(ctx context.Context, tx repository.Tx, activity *domain.Activity) error {
		if activity.IsTerminal() {
			return nil
		}
		if err := activity.Terminate(domain.ActivityClosed, uc.now()); err != nil {
			return err
		}
		if err := tx.Activities().Update(ctx, activity); err != nil {
			return err
		}
		closed = *activity
		expired = true
		return nil
	})
	if err != nil || !expired {
		return false, err
	}

	uc.logger.Info("activity expired", zap.String("activity_id", id))
	uc.effects.ActivityTerminated(ctx, closed, domain.EventActivityExpired)
	return true, nil
}

// AdmitMember takes one seat in its own critical section.
func (uc *UseCase) AdmitMember(ctx context.Context, id string) (*domain.Activity, error) {
	var admitted domain.Activity
	err := uc.transactor.WithActivityLock(ctx, id, func(ctx context.Context, tx repository.Tx, activity *domain.Activity) error {
		if _, err := uc.AdmitLocked(ctx, tx, activity); err != nil {
			return err
		}
		admitted = *activity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &admitted, nil
}

// AdmitLocked re-checks capacity on the locked activity and persists the new
// member count through tx. The caller must hold the activity's lock and commit
// any related writes in the same unit of work.
func (uc *UseCase) AdmitLocked(ctx context.Context, tx repository.Tx, activity *domain.Activity) (becameFull bool, err error) {
	becameFull, err = activity.Admit(uc.now())
	if err != nil {
		return false, err
	}
	if err := tx.Activities().Update(ctx, activity); err != nil {
		return false, err
	}
	if becameFull {
		uc.logger.Info("activity is full",
			zap.String("activity_id", activity.ID),
			zap.Int("members", activity.CurrentMembers),
		)
	}
	return becameFull, nil
}

func (uc *UseCase) terminate(ctx context.Context, id, actorID string, status domain.ActivityStatus, event string) (*domain.Activity, error) {
	var terminated domain.Activity
	err := uc.transactor.WithActivityLock(ctx, id, func(ctx context.Context, tx repository.Tx, activity *domain.Activity) error {
		if !activity.IsOwner(actorID) {
			return domain.ErrNotActivityOwner
		}
		if err := activity.Terminate(status, uc.now()); err != nil {
			return err
		}
		if err := tx.Activities().Update(ctx, activity); err != nil {
			return err
		}
		terminated = *activity
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("activity terminated",
		zap.String("activity_id", id),
		zap.String("status", string(status)),
		zap.String("actor_id", actorID),
	)
	uc.effects.ActivityTerminated(ctx, terminated, event)
	return &terminated, nil
}
