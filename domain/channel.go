package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Channel is the per-activity chat surface.
type Channel struct {
	ID         string    `json:"id"`
	ActivityID string    `json:"activity_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChannelName derives the display name of an activity's channel.
func ChannelName(activityTitle string) string {
	return activityTitle + " Chat"
}

// MessageKind classifies a chat message.
type MessageKind string

const (
	MessageText     MessageKind = "TEXT"
	MessageLocation MessageKind = "LOCATION"
	MessageSystem   MessageKind = "SYSTEM"
)

const MaxMessageLength = 1000

// ChannelMessage is one entry of a channel's append-only log.
type ChannelMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	SenderID  string      `json:"sender_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewChannelMessage validates a user authored message. SYSTEM messages are reserved.
func NewChannelMessage(channelID, senderID, content string, kind MessageKind, now time.Time) (*ChannelMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, Invalidf("message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, Invalidf("message must not exceed %d characters", MaxMessageLength)
	}
	switch kind {
	case "":
		kind = MessageText
	case MessageText, MessageLocation:
	default:
		return nil, Invalidf("unsupported message type %q", kind)
	}
	return &ChannelMessage{
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
	}, nil
}
