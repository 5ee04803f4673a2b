package repository

import (
	"context"

	"github.com/fastygo/huddle/domain"
)

// Tx exposes repositories bound to one unit of work.
type Tx interface {
	Activities() ActivityRepository
	JoinRequests() JoinRequestRepository
}

// LockedFunc runs inside the critical section of one activity. The activity is
// freshly read under the lock; returning an error rolls the unit of work back.
type LockedFunc func(ctx context.Context, tx Tx, activity *domain.Activity) error

// Transactor serializes work per activity identifier.
type Transactor interface {
	// WithActivityLock acquires an exclusive lock on activityID for the duration
	// of fn and commits when fn returns nil. The lock is released on every exit
	// path. Returns domain.ErrActivityNotFound if the activity does not exist.
	WithActivityLock(ctx context.Context, activityID string, fn LockedFunc) error
}
