package usecase

import (
	"context"
	"time"

	"github.com/fastygo/huddle/domain"
)

// Clock returns the current time. Use cases default to SystemClock.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Publisher delivers payload to every subscriber of channel. Delivery is best effort
// and unordered across channels.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// SideEffects reacts to transitions that are already committed. Implementations
// absorb and log their own failures; none of these calls can fail the caller.
type SideEffects interface {
	ActivityCreated(ctx context.Context, activity domain.Activity)
	// ActivityTerminated runs after close, cancel or expiry. event is one of
	// domain.EventActivityClosed, EventActivityCancelled or EventActivityExpired.
	ActivityTerminated(ctx context.Context, activity domain.Activity, event string)
	JoinRequested(ctx context.Context, activity domain.Activity, request domain.JoinRequest)
	JoinAccepted(ctx context.Context, activity domain.Activity, request domain.JoinRequest, becameFull bool)
	JoinRejected(ctx context.Context, activity domain.Activity, request domain.JoinRequest)
}

// Side effect kinds recorded for reconciliation retry.
const (
	SideEffectProvision = "provision"
	SideEffectTeardown  = "teardown"
	SideEffectPush      = "push"
)

// SideEffect is a failed side effect awaiting retry.
type SideEffect struct {
	Kind       string `json:"kind"`
	ActivityID string `json:"activity_id,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
}

// RetryBuffer persists failed side effects so a background processor can retry them.
type RetryBuffer interface {
	BufferSideEffect(ctx context.Context, effect SideEffect) error
}

// NopSideEffects ignores every transition.
type NopSideEffects struct{}

func (NopSideEffects) ActivityCreated(context.Context, domain.Activity)                   {}
func (NopSideEffects) ActivityTerminated(context.Context, domain.Activity, string)        {}
func (NopSideEffects) JoinRequested(context.Context, domain.Activity, domain.JoinRequest) {}
func (NopSideEffects) JoinAccepted(context.Context, domain.Activity, domain.JoinRequest, bool) {
}
func (NopSideEffects) JoinRejected(context.Context, domain.Activity, domain.JoinRequest) {}
