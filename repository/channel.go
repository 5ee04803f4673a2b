package repository

import (
	"context"

	"github.com/fastygo/huddle/domain"
)

type ChannelRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Channel, error)
	GetByActivityID(ctx context.Context, activityID string) (*domain.Channel, error)
	// Create returns domain.ErrChannelExists if the activity already has a channel.
	Create(ctx context.Context, channel *domain.Channel) (*domain.Channel, error)
	// DeleteByActivityID removes the channel's messages then the channel.
	// Reports false when there was nothing to delete.
	DeleteByActivityID(ctx context.Context, activityID string) (bool, error)
	AppendMessage(ctx context.Context, message *domain.ChannelMessage) (*domain.ChannelMessage, error)
	// ListMessages returns the log in chronological order; limit > 0 keeps only the most recent entries.
	ListMessages(ctx context.Context, channelID string, limit int) ([]domain.ChannelMessage, error)
}
