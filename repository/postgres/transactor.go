package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/huddle/repository"
)

type transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor returns a Transactor that serializes work on an activity with
// SELECT ... FOR UPDATE inside a read-committed transaction.
func NewTransactor(pool *pgxpool.Pool) repository.Transactor {
	return &transactor{pool: pool}
}

type lockedTx struct {
	activities   *activityRepository
	joinRequests *joinRequestRepository
}

func (t lockedTx) Activities() repository.ActivityRepository     { return t.activities }
func (t lockedTx) JoinRequests() repository.JoinRequestRepository { return t.joinRequests }

func (t *transactor) WithActivityLock(ctx context.Context, activityID string, fn repository.LockedFunc) error {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	// Rollback after Commit is a no-op; this releases the row lock on every error path.
	defer tx.Rollback(ctx) //nolint:errcheck

	scoped := lockedTx{
		activities:   &activityRepository{db: tx},
		joinRequests: &joinRequestRepository{db: tx},
	}

	activity, err := scoped.activities.getForUpdate(ctx, activityID)
	if err != nil {
		return err
	}
	if err := fn(ctx, scoped, activity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
