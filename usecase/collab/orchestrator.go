// Package collab keeps chat channels, notifications and the event log in step
// with committed activity and membership transitions. Nothing here can fail the
// primary operation that triggered it.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/usecase"
)

// Dependencies groups the collaborators of the Orchestrator. Publisher and
// Retry are optional.
type Dependencies struct {
	Activities    repository.ActivityRepository
	JoinRequests  repository.JoinRequestRepository
	Channels      repository.ChannelRepository
	Notifications repository.NotificationRepository
	Events        repository.EventRepository
	Publisher     usecase.Publisher
	Retry         usecase.RetryBuffer
	Clock         usecase.Clock
}

// Orchestrator provisions and tears down activity channels and dispatches
// notifications and events.
type Orchestrator struct {
	activities    repository.ActivityRepository
	joinRequests  repository.JoinRequestRepository
	channels      repository.ChannelRepository
	notifications repository.NotificationRepository
	events        repository.EventRepository
	publisher     usecase.Publisher
	retry         usecase.RetryBuffer
	now           usecase.Clock
	logger        *zap.Logger
}

func New(deps Dependencies, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = usecase.SystemClock
	}
	return &Orchestrator{
		activities:    deps.Activities,
		joinRequests:  deps.JoinRequests,
		channels:      deps.Channels,
		notifications: deps.Notifications,
		events:        deps.Events,
		publisher:     deps.Publisher,
		retry:         deps.Retry,
		now:           deps.Clock,
		logger:        logger,
	}
}

// SetRetryBuffer attaches the reconciliation outbox after construction. The
// outbox processor replays through the Orchestrator, so the two are wired in two steps.
func (o *Orchestrator) SetRetryBuffer(retry usecase.RetryBuffer) {
	o.retry = retry
}

// ProvisionChannel creates the activity's channel. It returns
// domain.ErrChannelExists when one is already present and
// domain.ErrActivityTerminal once the activity is closed or cancelled.
func (o *Orchestrator) ProvisionChannel(ctx context.Context, activityID string) (*domain.Channel, error) {
	activity, err := o.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.IsTerminal() {
		return nil, domain.ErrActivityTerminal
	}
	channel, err := o.channels.Create(ctx, &domain.Channel{
		ActivityID: activity.ID,
		Name:       domain.ChannelName(activity.Title),
		CreatedAt:  o.now(),
	})
	if err != nil {
		return nil, err
	}
	// A close that committed while the channel was being created has already
	// run, or is about to run, its own teardown. Re-read so this call never
	// leaves a channel behind on a terminal activity.
	current, err := o.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		if _, err := o.channels.DeleteByActivityID(ctx, activityID); err != nil {
			return nil, fmt.Errorf("remove channel of terminated activity: %w", err)
		}
		return nil, domain.ErrActivityTerminal
	}
	o.logger.Info("chat channel provisioned",
		zap.String("activity_id", activityID),
		zap.String("channel_id", channel.ID),
	)
	return channel, nil
}

// TeardownChannel deletes the activity's channel and its messages. A missing
// channel is not an error.
func (o *Orchestrator) TeardownChannel(ctx context.Context, activityID string) (bool, error) {
	deleted, err := o.channels.DeleteByActivityID(ctx, activityID)
	if err != nil {
		return false, err
	}
	if deleted {
		o.logger.Info("chat channel removed", zap.String("activity_id", activityID))
	}
	return deleted, nil
}

// Notice is the content of one notification.
type Notice struct {
	UserID      string
	Title       string
	Message     string
	Category    domain.NotificationCategory
	ReferenceID string
}

// Notify persists an unread notification and pushes it to the user's live
// channel. Only the push is best effort: a storage failure fails the call.
func (o *Orchestrator) Notify(ctx context.Context, notice Notice) (*domain.Notification, error) {
	if notice.UserID == "" {
		return nil, domain.Invalidf("notification recipient is required")
	}
	notification, err := o.notifications.Create(ctx, &domain.Notification{
		UserID:      notice.UserID,
		Title:       notice.Title,
		Message:     notice.Message,
		Category:    notice.Category,
		ReferenceID: notice.ReferenceID,
		CreatedAt:   o.now(),
	})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		o.logger.Warn("notification not encodable for push", zap.String("notification_id", notification.ID), zap.Error(err))
		return notification, nil
	}
	o.push(ctx, "", domain.NotificationChannel(notice.UserID), payload)
	return notification, nil
}

// Replay retries a buffered side effect. Effects that became moot, such as
// provisioning for an activity that has since ended, succeed without action.
func (o *Orchestrator) Replay(ctx context.Context, effect usecase.SideEffect) error {
	switch effect.Kind {
	case usecase.SideEffectProvision:
		_, err := o.ProvisionChannel(ctx, effect.ActivityID)
		switch {
		case err == nil,
			errors.Is(err, domain.ErrChannelExists),
			errors.Is(err, domain.ErrActivityTerminal),
			errors.Is(err, domain.ErrActivityNotFound):
			return nil
		}
		return err
	case usecase.SideEffectTeardown:
		_, err := o.TeardownChannel(ctx, effect.ActivityID)
		return err
	case usecase.SideEffectPush:
		if o.publisher == nil {
			return nil
		}
		return o.publisher.Publish(ctx, effect.Channel, effect.Payload)
	default:
		return fmt.Errorf("unsupported side effect %q", effect.Kind)
	}
}

func (o *Orchestrator) ActivityCreated(ctx context.Context, activity domain.Activity) {
	if _, err := o.ProvisionChannel(ctx, activity.ID); err != nil {
		if errors.Is(err, domain.ErrChannelExists) {
			o.logger.Debug("chat channel already provisioned", zap.String("activity_id", activity.ID))
		} else {
			o.failed(ctx, usecase.SideEffect{Kind: usecase.SideEffectProvision, ActivityID: activity.ID}, err)
		}
	}
	o.emit(ctx, domain.EventActivityCreated, activity.ID, activity.OwnerID, activity)
}

func (o *Orchestrator) ActivityTerminated(ctx context.Context, activity domain.Activity, event string) {
	if _, err := o.TeardownChannel(ctx, activity.ID); err != nil {
		o.failed(ctx, usecase.SideEffect{Kind: usecase.SideEffectTeardown, ActivityID: activity.ID}, err)
	}

	category, title, message := domain.NotifyActivityClosed, "Activity Closed",
		fmt.Sprintf("'%s' has been closed by its organizer.", activity.Title)
	switch event {
	case domain.EventActivityCancelled:
		category, title = domain.NotifyActivityCancelled, "Activity Cancelled"
		message = fmt.Sprintf("'%s' has been cancelled.", activity.Title)
	case domain.EventActivityExpired:
		message = fmt.Sprintf("'%s' has ended.", activity.Title)
	}
	o.notifyMembers(ctx, activity, Notice{
		Title:       title,
		Message:     message,
		Category:    category,
		ReferenceID: activity.ID,
	})

	actor := activity.OwnerID
	if event == domain.EventActivityExpired {
		actor = ""
	}
	o.emit(ctx, event, activity.ID, actor, activity)
}

func (o *Orchestrator) JoinRequested(ctx context.Context, activity domain.Activity, request domain.JoinRequest) {
	o.notifySafely(ctx, Notice{
		UserID:      activity.OwnerID,
		Title:       "New Join Request",
		Message:     fmt.Sprintf("Someone wants to join your activity: %s", activity.Title),
		Category:    domain.NotifyJoinRequested,
		ReferenceID: request.ID,
	})
	o.emit(ctx, domain.EventJoinRequested, activity.ID, request.UserID, request)
}

func (o *Orchestrator) JoinAccepted(ctx context.Context, activity domain.Activity, request domain.JoinRequest, becameFull bool) {
	o.notifySafely(ctx, Notice{
		UserID:      request.UserID,
		Title:       "Request Approved!",
		Message:     fmt.Sprintf("Your request to join '%s' has been approved!", activity.Title),
		Category:    domain.NotifyJoinAccepted,
		ReferenceID: request.ID,
	})
	o.emit(ctx, domain.EventJoinAccepted, activity.ID, request.ReviewedBy, request)
	if becameFull {
		o.emit(ctx, domain.EventActivityFull, activity.ID, request.ReviewedBy, activity)
	}
}

func (o *Orchestrator) JoinRejected(ctx context.Context, activity domain.Activity, request domain.JoinRequest) {
	o.notifySafely(ctx, Notice{
		UserID:      request.UserID,
		Title:       "Request Rejected",
		Message:     fmt.Sprintf("Your request to join '%s' was not approved.", activity.Title),
		Category:    domain.NotifyJoinRejected,
		ReferenceID: request.ID,
	})
	o.emit(ctx, domain.EventJoinRejected, activity.ID, request.ReviewedBy, request)
}

func (o *Orchestrator) notifyMembers(ctx context.Context, activity domain.Activity, notice Notice) {
	if o.joinRequests == nil {
		return
	}
	members, err := o.joinRequests.List(ctx, repository.JoinRequestFilter{
		ActivityID: activity.ID,
		Status:     domain.JoinRequestAccepted,
		Limit:      domain.MaxMembers,
	})
	if err != nil {
		o.logger.Error("side effect failed",
			zap.String("operation", "list_members"),
			zap.String("activity_id", activity.ID),
			zap.Error(err),
		)
		return
	}
	for _, member := range members {
		notice.UserID = member.UserID
		o.notifySafely(ctx, notice)
	}
}

func (o *Orchestrator) notifySafely(ctx context.Context, notice Notice) {
	if _, err := o.Notify(ctx, notice); err != nil {
		o.logger.Error("side effect failed",
			zap.String("operation", "notify"),
			zap.String("user_id", notice.UserID),
			zap.String("reference_id", notice.ReferenceID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) emit(ctx context.Context, name, activityID, actorID string, payload interface{}) {
	event, err := domain.NewEvent(name, activityID, actorID, payload, o.now())
	if err != nil {
		o.logger.Warn("event not encodable", zap.String("event", name), zap.Error(err))
		return
	}
	if o.events != nil {
		if err := o.events.Append(ctx, event); err != nil {
			o.logger.Warn("event not recorded",
				zap.String("event", name),
				zap.String("activity_id", activityID),
				zap.Error(err),
			)
		}
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	o.push(ctx, activityID, domain.EventChannel(name), raw)
}

func (o *Orchestrator) push(ctx context.Context, activityID, channel string, payload []byte) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, channel, payload); err != nil {
		o.failed(ctx, usecase.SideEffect{
			Kind:       usecase.SideEffectPush,
			ActivityID: activityID,
			Channel:    channel,
			Payload:    payload,
		}, err)
	}
}

// failed logs a swallowed side-effect error and hands the effect to the retry
// outbox when one is attached.
func (o *Orchestrator) failed(ctx context.Context, effect usecase.SideEffect, cause error) {
	fields := []zap.Field{
		zap.String("operation", effect.Kind),
		zap.String("activity_id", effect.ActivityID),
		zap.Error(cause),
	}
	if effect.Channel != "" {
		fields = append(fields, zap.String("channel", effect.Channel))
	}
	o.logger.Error("side effect failed", fields...)

	if o.retry == nil {
		return
	}
	if err := o.retry.BufferSideEffect(ctx, effect); err != nil {
		o.logger.Error("failed to buffer side effect", zap.String("operation", effect.Kind), zap.Error(err))
		return
	}
	o.logger.Warn("side effect buffered for retry",
		zap.String("operation", effect.Kind),
		zap.String("activity_id", effect.ActivityID),
	)
}

var _ usecase.SideEffects = (*Orchestrator)(nil)
