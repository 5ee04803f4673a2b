package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ActivityType is the closed set of activity categories.
type ActivityType string

const (
	ActivityShopping ActivityType = "SHOPPING"
	ActivityDining   ActivityType = "DINING"
	ActivitySports   ActivityType = "SPORTS"
	ActivityWalking  ActivityType = "WALKING"
	ActivityMovie    ActivityType = "MOVIE"
	ActivityCafe     ActivityType = "CAFE"
	ActivityFitness  ActivityType = "FITNESS"
	ActivityOther    ActivityType = "OTHER"
)

var activityTypes = map[ActivityType]struct{}{
	ActivityShopping: {},
	ActivityDining:   {},
	ActivitySports:   {},
	ActivityWalking:  {},
	ActivityMovie:    {},
	ActivityCafe:     {},
	ActivityFitness:  {},
	ActivityOther:    {},
}

// ParseActivityType normalizes a user supplied category (case-insensitive).
func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := activityTypes[t]; !ok {
		return "", Invalidf("unknown activity type %q", raw)
	}
	return t, nil
}

// ActivityStatus is the lifecycle state of an Activity.
type ActivityStatus string

const (
	ActivityOpen      ActivityStatus = "OPEN"
	ActivityFull      ActivityStatus = "FULL"
	ActivityClosed    ActivityStatus = "CLOSED"
	ActivityCancelled ActivityStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s ActivityStatus) IsTerminal() bool {
	return s == ActivityClosed || s == ActivityCancelled
}

const (
	MinTitleLength       = 3
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MinMembers           = 2
	MaxMembers           = 20

	// OwnerSeats is the number of seats held by the owner's implicit membership.
	// The owner never has a JoinRequest, so CurrentMembers-OwnerSeats equals the
	// number of ACCEPTED join requests.
	OwnerSeats = 1
)

// Activity is a scheduled group meetup with a capacity and a location.
type Activity struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Type           ActivityType   `json:"type"`
	OwnerID        string         `json:"owner_id"`
	Location       Coordinates    `json:"location"`
	ScheduledDate  time.Time      `json:"scheduled_date"`
	MaxMembers     int            `json:"max_members"`
	CurrentMembers int            `json:"current_members"`
	Status         ActivityStatus `json:"status"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ActivitySpec carries the user supplied fields of a new activity.
type ActivitySpec struct {
	Title         string
	Description   string
	Type          string
	Location      Coordinates
	ScheduledDate time.Time
	MaxMembers    int
}

// NewActivity validates spec and builds an OPEN activity owned by ownerID.
func NewActivity(ownerID string, spec ActivitySpec, now time.Time) (*Activity, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrUnauthorized
	}
	title := strings.TrimSpace(spec.Title)
	if n := utf8.RuneCountInString(title); n < MinTitleLength || n > MaxTitleLength {
		return nil, Invalidf("title must be between %d and %d characters", MinTitleLength, MaxTitleLength)
	}
	description := strings.TrimSpace(spec.Description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, Invalidf("description must not exceed %d characters", MaxDescriptionLength)
	}
	activityType, err := ParseActivityType(spec.Type)
	if err != nil {
		return nil, err
	}
	if err := spec.Location.Validate(); err != nil {
		return nil, err
	}
	if spec.MaxMembers < MinMembers || spec.MaxMembers > MaxMembers {
		return nil, Invalidf("max members must be between %d and %d", MinMembers, MaxMembers)
	}
	if !spec.ScheduledDate.After(now) {
		return nil, Invalidf("scheduled date must be in the future")
	}

	return &Activity{
		Title:          title,
		Description:    description,
		Type:           activityType,
		OwnerID:        ownerID,
		Location:       spec.Location,
		ScheduledDate:  spec.ScheduledDate.UTC(),
		MaxMembers:     spec.MaxMembers,
		CurrentMembers: OwnerSeats,
		Status:         ActivityOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (a *Activity) IsOwner(userID string) bool {
	return a != nil && userID != "" && a.OwnerID == userID
}

func (a *Activity) IsFull() bool {
	return a != nil && a.CurrentMembers >= a.MaxMembers
}

func (a *Activity) IsTerminal() bool {
	return a != nil && a.Status.IsTerminal()
}

// AcceptedMembers is the member count excluding the owner's seat.
func (a *Activity) AcceptedMembers() int {
	if a == nil {
		return 0
	}
	return a.CurrentMembers - OwnerSeats
}

// CanRequestJoin reports why a new join request against a would be refused, if at all.
func (a *Activity) CanRequestJoin(userID string) error {
	if a.IsOwner(userID) {
		return ErrSelfJoin
	}
	if a.Status != ActivityOpen {
		return ErrActivityNotOpen
	}
	if a.IsFull() {
		return ErrCapacityExceeded
	}
	return nil
}

// Admit takes one seat. It must be called with the activity locked and the
// result persisted in the same critical section. Returns true when the
// admission filled the activity.
func (a *Activity) Admit(now time.Time) (bool, error) {
	switch {
	case a.Status == ActivityFull:
		return false, ErrCapacityExceeded
	case a.Status != ActivityOpen:
		return false, ErrActivityNotOpen
	case a.IsFull():
		return false, ErrCapacityExceeded
	}
	a.CurrentMembers++
	a.UpdatedAt = now
	if a.IsFull() {
		a.Status = ActivityFull
		return true, nil
	}
	return false, nil
}

// Terminate moves a non-terminal activity to CLOSED or CANCELLED.
func (a *Activity) Terminate(status ActivityStatus, now time.Time) error {
	if !status.IsTerminal() {
		return Invalidf("%s is not a terminal status", status)
	}
	if a.IsTerminal() {
		return ErrActivityTerminal
	}
	closedAt := now
	a.Status = status
	a.ClosedAt = &closedAt
	a.UpdatedAt = now
	return nil
}

// IsExpired reports whether an OPEN activity's scheduled time has passed.
func (a *Activity) IsExpired(now time.Time) bool {
	return a != nil && a.Status == ActivityOpen && a.ScheduledDate.Before(now)
}
