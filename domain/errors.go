package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeInvalid          ErrorCode = "VALIDATION_FAILED"
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeDuplicateRequest ErrorCode = "DUPLICATE_REQUEST"
	ErrCodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrCodeSelfJoin         ErrorCode = "SELF_JOIN"
	ErrCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal         ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Invalidf builds a VALIDATION_FAILED error with a formatted message.
func Invalidf(format string, args ...interface{}) *Error {
	return NewError(ErrCodeInvalid, fmt.Sprintf(format, args...))
}

// Common domain errors.
var (
	ErrActivityNotFound     = NewError(ErrCodeNotFound, "activity not found")
	ErrJoinRequestNotFound  = NewError(ErrCodeNotFound, "join request not found")
	ErrChannelNotFound      = NewError(ErrCodeNotFound, "chat channel not found")
	ErrNotificationNotFound = NewError(ErrCodeNotFound, "notification not found")

	ErrNotActivityOwner      = NewError(ErrCodeForbidden, "only the activity owner can perform this action")
	ErrNotChannelMember      = NewError(ErrCodeForbidden, "user is not a member of this chat")
	ErrNotNotificationTarget = NewError(ErrCodeForbidden, "notification belongs to another user")

	ErrActivityNotOpen  = NewError(ErrCodeInvalidState, "activity is not open for joining")
	ErrActivityTerminal = NewError(ErrCodeInvalidState, "activity is already closed or cancelled")
	ErrAlreadyReviewed  = NewError(ErrCodeInvalidState, "join request has already been reviewed")

	ErrCapacityExceeded = NewError(ErrCodeCapacityExceeded, "activity is full")
	ErrDuplicateRequest = NewError(ErrCodeDuplicateRequest, "a pending or accepted request already exists for this activity")
	ErrChannelExists    = NewError(ErrCodeAlreadyExists, "chat channel already exists for this activity")
	ErrSelfJoin         = NewError(ErrCodeSelfJoin, "you cannot join your own activity")

	ErrUnauthorized   = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// CodeOf returns the classification of err, or ErrCodeInternal when err is not a domain error.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return ErrCodeInternal
}
