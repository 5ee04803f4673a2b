package domain

import (
	"time"
	"unicode/utf8"
)

// JoinRequestStatus is the review state of a JoinRequest.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "PENDING"
	JoinRequestAccepted JoinRequestStatus = "ACCEPTED"
	JoinRequestRejected JoinRequestStatus = "REJECTED"
)

// Blocking reports whether a request in this status prevents another one for the same (activity, user).
func (s JoinRequestStatus) Blocking() bool {
	return s == JoinRequestPending || s == JoinRequestAccepted
}

const MaxJoinMessageLength = 500

// JoinRequest is a user's request to become a member of an Activity.
type JoinRequest struct {
	ID            string            `json:"id"`
	ActivityID    string            `json:"activity_id"`
	UserID        string            `json:"user_id"`
	Status        JoinRequestStatus `json:"status"`
	Message       string            `json:"message,omitempty"`
	ReviewedBy    string            `json:"reviewed_by,omitempty"`
	ReviewMessage string            `json:"review_message,omitempty"`
	ReviewedAt    *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewJoinRequest builds a PENDING request.
func NewJoinRequest(activityID, userID, message string, now time.Time) (*JoinRequest, error) {
	if utf8.RuneCountInString(message) > MaxJoinMessageLength {
		return nil, Invalidf("message must not exceed %d characters", MaxJoinMessageLength)
	}
	return &JoinRequest{
		ActivityID: activityID,
		UserID:     userID,
		Status:     JoinRequestPending,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Review records the owner's decision. A request can be reviewed once.
func (r *JoinRequest) Review(decision JoinRequestStatus, reviewerID, reviewMessage string, now time.Time) error {
	if decision != JoinRequestAccepted && decision != JoinRequestRejected {
		return Invalidf("%s is not a review decision", decision)
	}
	if r.Status != JoinRequestPending {
		return ErrAlreadyReviewed
	}
	if utf8.RuneCountInString(reviewMessage) > MaxJoinMessageLength {
		return Invalidf("review message must not exceed %d characters", MaxJoinMessageLength)
	}
	reviewedAt := now
	r.Status = decision
	r.ReviewedBy = reviewerID
	r.ReviewMessage = reviewMessage
	r.ReviewedAt = &reviewedAt
	r.UpdatedAt = now
	return nil
}
