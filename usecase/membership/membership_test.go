package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/repository/memory"
	"github.com/fastygo/huddle/usecase"
	activityUC "github.com/fastygo/huddle/usecase/activity"
)

var fixedNow = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

type acceptedEffect struct {
	requestID  string
	becameFull bool
}

type recordingEffects struct {
	usecase.NopSideEffects
	mu       sync.Mutex
	requests int
	accepted []acceptedEffect
	rejected int
}

func (r *recordingEffects) JoinRequested(context.Context, domain.Activity, domain.JoinRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
}

func (r *recordingEffects) JoinAccepted(_ context.Context, _ domain.Activity, req domain.JoinRequest, becameFull bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, acceptedEffect{requestID: req.ID, becameFull: becameFull})
}

func (r *recordingEffects) JoinRejected(context.Context, domain.Activity, domain.JoinRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected++
}

type fixture struct {
	store      *memory.Store
	activities *activityUC.UseCase
	membership *UseCase
	effects    *recordingEffects
}

func newFixture() *fixture {
	store := memory.New()
	effects := &recordingEffects{}
	clock := func() time.Time { return fixedNow }
	activities := activityUC.New(store.Activities(), store.Transactor(), nil, clock, nil)
	return &fixture{
		store:      store,
		activities: activities,
		membership: New(store.Activities(), store.JoinRequests(), store.Transactor(), activities, effects, clock, nil),
		effects:    effects,
	}
}

func (f *fixture) activity(t *testing.T, maxMembers int) *domain.Activity {
	t.Helper()
	created, err := f.activities.Create(context.Background(), "owner", domain.ActivitySpec{
		Title:         "Saturday football",
		Type:          "SPORTS",
		Location:      domain.Coordinates{Latitude: 40.4168, Longitude: -3.7038},
		ScheduledDate: fixedNow.Add(24 * time.Hour),
		MaxMembers:    maxMembers,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return created
}

func (f *fixture) request(t *testing.T, activityID, userID string) *domain.JoinRequest {
	t.Helper()
	request, err := f.membership.Request(context.Background(), userID, activityID, "hi")
	if err != nil {
		t.Fatalf("Request(%s): %v", userID, err)
	}
	return request
}

func (f *fixture) assertInvariants(t *testing.T, activityID string) {
	t.Helper()
	ctx := context.Background()
	activity, err := f.store.Activities().GetByID(ctx, activityID)
	if err != nil {
		t.Fatalf("get activity: %v", err)
	}
	accepted, _ := f.store.JoinRequests().CountAccepted(ctx, activityID)
	if activity.CurrentMembers != accepted+domain.OwnerSeats {
		t.Errorf("current members %d != accepted %d + owner", activity.CurrentMembers, accepted)
	}
	if activity.CurrentMembers < 1 || activity.CurrentMembers > activity.MaxMembers {
		t.Errorf("current members %d outside [1, %d]", activity.CurrentMembers, activity.MaxMembers)
	}
	if activity.Status == domain.ActivityFull && activity.CurrentMembers != activity.MaxMembers {
		t.Errorf("FULL activity with %d of %d members", activity.CurrentMembers, activity.MaxMembers)
	}
}

// Two owners' accepts race for the single remaining seat.
func TestConcurrentAcceptsForLastSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 2)
	r1 := f.request(t, activity.ID, "user-1")
	r2 := f.request(t, activity.ID, "user-2")

	var (
		g       errgroup.Group
		results [2]error
	)
	for i, id := range []string{r1.ID, r2.ID} {
		i, id := i, id
		g.Go(func() error {
			_, results[i] = f.membership.Accept(ctx, id, "owner", "")
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrActivityNotOpen), errors.Is(err, domain.ErrCapacityExceeded):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d accepts succeeded, want exactly 1", succeeded)
	}

	stored, _ := f.store.Activities().GetByID(ctx, activity.ID)
	if stored.Status != domain.ActivityFull || stored.CurrentMembers != 2 {
		t.Fatalf("activity = %s with %d members, want FULL with 2", stored.Status, stored.CurrentMembers)
	}
	pending, _ := f.store.JoinRequests().List(ctx, repository.JoinRequestFilter{ActivityID: activity.ID, Status: domain.JoinRequestPending})
	if len(pending) != 1 {
		t.Fatalf("pending requests = %d, want the loser to stay PENDING", len(pending))
	}
	f.assertInvariants(t, activity.ID)

	if len(f.effects.accepted) != 1 || !f.effects.accepted[0].becameFull {
		t.Fatalf("accepted effects = %+v, want one that filled the activity", f.effects.accepted)
	}
}

func TestOwnerCannotJoin(t *testing.T) {
	f := newFixture()
	activity := f.activity(t, 4)

	_, err := f.membership.Request(context.Background(), "owner", activity.ID, "")
	if !errors.Is(err, domain.ErrSelfJoin) {
		t.Fatalf("err = %v, want ErrSelfJoin", err)
	}
	requests, _ := f.store.JoinRequests().List(context.Background(), repository.JoinRequestFilter{ActivityID: activity.ID})
	if len(requests) != 0 {
		t.Fatalf("self join created %d requests", len(requests))
	}
}

func TestAcceptFillsAndBlocksNewRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 3)

	r1 := f.request(t, activity.ID, "user-1")
	r2 := f.request(t, activity.ID, "user-2")
	if _, err := f.membership.Accept(ctx, r1.ID, "owner", "welcome"); err != nil {
		t.Fatalf("accept r1: %v", err)
	}
	stored, _ := f.store.Activities().GetByID(ctx, activity.ID)
	if stored.Status != domain.ActivityOpen || stored.CurrentMembers != 2 {
		t.Fatalf("after one accept: %s with %d members", stored.Status, stored.CurrentMembers)
	}

	if _, err := f.membership.Accept(ctx, r2.ID, "owner", ""); err != nil {
		t.Fatalf("accept r2: %v", err)
	}
	stored, _ = f.store.Activities().GetByID(ctx, activity.ID)
	if stored.Status != domain.ActivityFull || stored.CurrentMembers != 3 {
		t.Fatalf("after two accepts: %s with %d members", stored.Status, stored.CurrentMembers)
	}

	if _, err := f.membership.Request(ctx, "user-3", activity.ID, ""); !errors.Is(err, domain.ErrActivityNotOpen) {
		t.Fatalf("request on FULL: err = %v, want ErrActivityNotOpen", err)
	}
	f.assertInvariants(t, activity.ID)
}

func TestDuplicateRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 4)
	first := f.request(t, activity.ID, "user-1")

	if _, err := f.membership.Request(ctx, "user-1", activity.ID, "again"); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("pending duplicate: err = %v, want ErrDuplicateRequest", err)
	}

	if _, err := f.membership.Reject(ctx, first.ID, "owner", "not this time"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	again, err := f.membership.Request(ctx, "user-1", activity.ID, "please")
	if err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
	if _, err := f.membership.Accept(ctx, again.ID, "owner", ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := f.membership.Request(ctx, "user-1", activity.ID, ""); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("accepted duplicate: err = %v, want ErrDuplicateRequest", err)
	}
}

func TestConcurrentDuplicateRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 4)

	var g errgroup.Group
	errs := make([]error, 8)
	for i := range errs {
		i := i
		g.Go(func() error {
			_, errs[i] = f.membership.Request(ctx, "user-1", activity.ID, "")
			return nil
		})
	}
	_ = g.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else if !errors.Is(err, domain.ErrDuplicateRequest) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("%d requests created, want 1", created)
	}
}

func TestReviewGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 4)
	request := f.request(t, activity.ID, "user-1")

	if _, err := f.membership.Accept(ctx, request.ID, "user-2", ""); !errors.Is(err, domain.ErrNotActivityOwner) {
		t.Fatalf("non-owner accept: err = %v, want ErrNotActivityOwner", err)
	}
	if _, err := f.membership.Reject(ctx, request.ID, "owner", ""); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := f.membership.Accept(ctx, request.ID, "owner", ""); !errors.Is(err, domain.ErrAlreadyReviewed) {
		t.Fatalf("accept after reject: err = %v, want ErrAlreadyReviewed", err)
	}
	if _, err := f.membership.Reject(ctx, request.ID, "owner", ""); !errors.Is(err, domain.ErrAlreadyReviewed) {
		t.Fatalf("second reject: err = %v, want ErrAlreadyReviewed", err)
	}
	if _, err := f.membership.Accept(ctx, "missing", "owner", ""); !errors.Is(err, domain.ErrJoinRequestNotFound) {
		t.Fatalf("unknown request: err = %v, want ErrJoinRequestNotFound", err)
	}
	f.assertInvariants(t, activity.ID)
}

func TestAcceptOnCancelledActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 4)
	request := f.request(t, activity.ID, "user-1")

	if _, err := f.activities.Cancel(ctx, activity.ID, "owner"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := f.membership.Accept(ctx, request.ID, "owner", ""); !errors.Is(err, domain.ErrActivityNotOpen) {
		t.Fatalf("err = %v, want ErrActivityNotOpen", err)
	}
	stored, _ := f.store.JoinRequests().GetByID(ctx, request.ID)
	if stored.Status != domain.JoinRequestPending {
		t.Fatalf("request status = %s, want PENDING after failed accept", stored.Status)
	}
}

func TestListingAndMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.activity(t, 4)
	accepted := f.request(t, activity.ID, "user-1")
	f.request(t, activity.ID, "user-2")
	if _, err := f.membership.Accept(ctx, accepted.ID, "owner", ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := f.membership.ListPending(ctx, activity.ID, "user-1"); !errors.Is(err, domain.ErrNotActivityOwner) {
		t.Fatalf("non-owner ListPending: err = %v", err)
	}
	pending, err := f.membership.ListPending(ctx, activity.ID, "owner")
	if err != nil || len(pending) != 1 || pending[0].UserID != "user-2" {
		t.Fatalf("ListPending = (%+v, %v)", pending, err)
	}
	members, err := f.membership.ListAcceptedMembers(ctx, activity.ID)
	if err != nil || len(members) != 1 || members[0].UserID != "user-1" {
		t.Fatalf("ListAcceptedMembers = (%+v, %v)", members, err)
	}

	for user, want := range map[string]bool{"owner": true, "user-1": true, "user-2": false, "": false} {
		got, err := f.membership.IsMember(ctx, activity, user)
		if err != nil || got != want {
			t.Errorf("IsMember(%q) = (%v, %v), want %v", user, got, err, want)
		}
	}

	mine, _ := f.membership.ListMine(ctx, "user-2")
	if len(mine) != 1 || mine[0].Status != domain.JoinRequestPending {
		t.Fatalf("ListMine = %+v", mine)
	}
}
