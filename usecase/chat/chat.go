// Package chat serves the per-activity channel to its members.
package chat

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/usecase"
)

// MaxHistory caps the number of messages returned by one List call.
const MaxHistory = 500

// MemberChecker decides whether a user may read and write an activity's channel.
type MemberChecker interface {
	IsMember(ctx context.Context, activity *domain.Activity, userID string) (bool, error)
}

// Provisioner creates an activity's channel on demand.
type Provisioner interface {
	ProvisionChannel(ctx context.Context, activityID string) (*domain.Channel, error)
}

type UseCase struct {
	activities  repository.ActivityRepository
	channels    repository.ChannelRepository
	members     MemberChecker
	provisioner Provisioner
	publisher   usecase.Publisher
	now         usecase.Clock
	logger      *zap.Logger
}

func New(
	activities repository.ActivityRepository,
	channels repository.ChannelRepository,
	members MemberChecker,
	provisioner Provisioner,
	publisher usecase.Publisher,
	clock usecase.Clock,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = usecase.SystemClock
	}
	return &UseCase{
		activities:  activities,
		channels:    channels,
		members:     members,
		provisioner: provisioner,
		publisher:   publisher,
		now:         clock,
		logger:      logger,
	}
}

// GetByActivity returns the activity's channel. A torn down channel stays
// absent until the owner explicitly re-provisions it.
func (uc *UseCase) GetByActivity(ctx context.Context, activityID, userID string) (*domain.Channel, error) {
	activity, err := uc.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorize(ctx, activity, userID); err != nil {
		return nil, err
	}
	return uc.channels.GetByActivityID(ctx, activityID)
}

// Reprovision recreates the channel of a non-terminal activity. Owner only.
func (uc *UseCase) Reprovision(ctx context.Context, activityID, ownerID string) (*domain.Channel, error) {
	activity, err := uc.activities.GetByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !activity.IsOwner(ownerID) {
		return nil, domain.ErrNotActivityOwner
	}
	return uc.provisioner.ProvisionChannel(ctx, activityID)
}

// Send appends a member's message to the channel log and publishes it to live subscribers.
func (uc *UseCase) Send(ctx context.Context, channelID, userID, content string, kind domain.MessageKind) (*domain.ChannelMessage, error) {
	if _, err := uc.memberChannel(ctx, channelID, userID); err != nil {
		return nil, err
	}

	message, err := domain.NewChannelMessage(channelID, userID, content, kind, uc.now())
	if err != nil {
		return nil, err
	}
	stored, err := uc.channels.AppendMessage(ctx, message)
	if err != nil {
		return nil, err
	}

	if uc.publisher != nil {
		payload, err := json.Marshal(stored)
		if err == nil {
			err = uc.publisher.Publish(ctx, domain.ChatChannel(channelID), payload)
		}
		if err != nil {
			uc.logger.Warn("chat message push failed",
				zap.String("channel_id", channelID),
				zap.String("message_id", stored.ID),
				zap.Error(err),
			)
		}
	}
	return stored, nil
}

// List returns the channel log in chronological order. A positive limit keeps
// only the most recent messages.
func (uc *UseCase) List(ctx context.Context, channelID, userID string, limit int) ([]domain.ChannelMessage, error) {
	if limit < 0 {
		return nil, domain.Invalidf("limit must not be negative")
	}
	if limit > MaxHistory {
		limit = MaxHistory
	}
	if _, err := uc.memberChannel(ctx, channelID, userID); err != nil {
		return nil, err
	}
	return uc.channels.ListMessages(ctx, channelID, limit)
}

// Authorize reports whether userID may follow the channel's live feed.
func (uc *UseCase) Authorize(ctx context.Context, channelID, userID string) error {
	_, err := uc.memberChannel(ctx, channelID, userID)
	return err
}

func (uc *UseCase) memberChannel(ctx context.Context, channelID, userID string) (*domain.Channel, error) {
	channel, err := uc.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	activity, err := uc.activities.GetByID(ctx, channel.ActivityID)
	if err != nil {
		return nil, err
	}
	if err := uc.authorize(ctx, activity, userID); err != nil {
		return nil, err
	}
	return channel, nil
}

func (uc *UseCase) authorize(ctx context.Context, activity *domain.Activity, userID string) error {
	if userID == "" {
		return domain.ErrUnauthorized
	}
	member, err := uc.members.IsMember(ctx, activity, userID)
	if err != nil {
		return err
	}
	if !member {
		return domain.ErrNotChannelMember
	}
	return nil
}
