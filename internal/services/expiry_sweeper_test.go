package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository/memory"
	activityUC "github.com/fastygo/huddle/usecase/activity"
	"github.com/fastygo/huddle/usecase/collab"
)

var sweepNow = time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return sweepNow }

func seedActivity(t *testing.T, store *memory.Store, scheduled time.Time, status domain.ActivityStatus) *domain.Activity {
	t.Helper()
	activity, err := store.Activities().Create(context.Background(), &domain.Activity{
		Title:          "Morning yoga",
		Type:           domain.ActivityFitness,
		OwnerID:        "owner",
		ScheduledDate:  scheduled,
		MaxMembers:     4,
		CurrentMembers: 1,
		Status:         status,
	})
	if err != nil {
		t.Fatalf("seed activity: %v", err)
	}
	if _, err := store.Channels().Create(context.Background(), &domain.Channel{ActivityID: activity.ID, Name: "Morning yoga Chat"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	return activity
}

func newSweeper(t *testing.T, store *memory.Store, teardown ChannelTeardown) *ExpirySweeper {
	t.Helper()
	orchestrator := collab.New(collab.Dependencies{
		Activities:    store.Activities(),
		JoinRequests:  store.JoinRequests(),
		Channels:      store.Channels(),
		Notifications: store.Notifications(),
		Events:        store.Events(),
		Clock:         clock,
	}, nil)
	activities := activityUC.New(store.Activities(), store.Transactor(), orchestrator, clock, nil)
	if teardown == nil {
		teardown = orchestrator
	}
	sweeper, err := NewExpirySweeper(store.Activities(), activities, teardown, clock, nil, SweeperConfig{})
	if err != nil {
		t.Fatalf("NewExpirySweeper: %v", err)
	}
	return sweeper
}

func TestSweepExpiresOnlyOverdueOpenActivities(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	overdue := seedActivity(t, store, sweepNow.Add(-time.Hour), domain.ActivityOpen)
	full := seedActivity(t, store, sweepNow.Add(-time.Hour), domain.ActivityFull)
	upcoming := seedActivity(t, store, sweepNow.Add(time.Hour), domain.ActivityOpen)
	sweeper := newSweeper(t, store, nil)

	report := sweeper.Sweep(ctx)
	if report.Err != nil {
		t.Fatalf("sweep error: %v", report.Err)
	}
	if report.Scanned != 1 || report.Expired != 1 {
		t.Fatalf("report = %+v, want one scanned and expired", report)
	}

	stored, _ := store.Activities().GetByID(ctx, overdue.ID)
	if stored.Status != domain.ActivityClosed || stored.ClosedAt == nil {
		t.Fatalf("overdue activity = %s, want CLOSED with closed_at", stored.Status)
	}
	if _, err := store.Channels().GetByActivityID(ctx, overdue.ID); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("overdue channel survived: %v", err)
	}
	for _, id := range []string{full.ID, upcoming.ID} {
		if _, err := store.Channels().GetByActivityID(ctx, id); err != nil {
			t.Fatalf("channel of %s removed: %v", id, err)
		}
	}

	again := sweeper.Sweep(ctx)
	if again.Scanned != 0 || again.Expired != 0 || again.Err != nil {
		t.Fatalf("second sweep = %+v, want no-op", again)
	}
}

type failingTeardown struct {
	failFor string
	calls   []string
}

func (f *failingTeardown) TeardownChannel(_ context.Context, activityID string) (bool, error) {
	f.calls = append(f.calls, activityID)
	if activityID == f.failFor {
		return false, errors.New("channel store unavailable")
	}
	return true, nil
}

func TestSweepIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	first := seedActivity(t, store, sweepNow.Add(-2*time.Hour), domain.ActivityOpen)
	second := seedActivity(t, store, sweepNow.Add(-time.Hour), domain.ActivityOpen)
	teardown := &failingTeardown{failFor: first.ID}
	sweeper := newSweeper(t, store, teardown)

	report := sweeper.Sweep(ctx)
	if report.Expired != 2 || report.Failed != 1 {
		t.Fatalf("report = %+v, want 2 expired and 1 failed", report)
	}
	if len(multierr.Errors(report.Err)) != 1 {
		t.Fatalf("errors = %v, want exactly one", report.Err)
	}
	if len(teardown.calls) != 2 || teardown.calls[1] != second.ID {
		t.Fatalf("teardown calls = %v, want both activities", teardown.calls)
	}
	stored, _ := store.Activities().GetByID(ctx, second.ID)
	if stored.Status != domain.ActivityClosed {
		t.Fatalf("second activity = %s, want CLOSED", stored.Status)
	}
}

func TestNewExpirySweeperRejectsBadSchedule(t *testing.T) {
	store := memory.New()
	_, err := NewExpirySweeper(store.Activities(), nil, nil, clock, nil, SweeperConfig{Schedule: "every now and then"})
	if err == nil {
		t.Fatal("invalid schedule accepted")
	}
}
