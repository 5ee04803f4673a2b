package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

func seedActivity(t *testing.T, s *Store, maxMembers int) *domain.Activity {
	t.Helper()
	activity, err := s.Activities().Create(context.Background(), &domain.Activity{
		Title:          "Board games",
		Type:           domain.ActivityOther,
		OwnerID:        "owner-1",
		Location:       domain.Coordinates{Latitude: 52.52, Longitude: 13.405},
		ScheduledDate:  time.Now().Add(time.Hour),
		MaxMembers:     maxMembers,
		CurrentMembers: 1,
		Status:         domain.ActivityOpen,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return activity
}

func TestWithActivityLockRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	activity := seedActivity(t, s, 3)
	boom := errors.New("boom")

	err := s.WithActivityLock(ctx, activity.ID, func(ctx context.Context, tx repository.Tx, a *domain.Activity) error {
		a.CurrentMembers = 2
		if err := tx.Activities().Update(ctx, a); err != nil {
			return err
		}
		if _, err := tx.JoinRequests().Create(ctx, &domain.JoinRequest{ActivityID: a.ID, UserID: "user-2", Status: domain.JoinRequestAccepted}); err != nil {
			return err
		}
		// staged writes are visible inside the unit of work
		inside, err := tx.Activities().GetByID(ctx, a.ID)
		if err != nil || inside.CurrentMembers != 2 {
			t.Errorf("staged read = (%v, %v), want 2 members", inside, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	stored, _ := s.Activities().GetByID(ctx, activity.ID)
	if stored.CurrentMembers != 1 || stored.Version != 1 {
		t.Fatalf("rolled back activity = %d members v%d, want 1 members v1", stored.CurrentMembers, stored.Version)
	}
	requests, _ := s.JoinRequests().List(ctx, repository.JoinRequestFilter{ActivityID: activity.ID})
	if len(requests) != 0 {
		t.Fatalf("rolled back requests leaked: %d", len(requests))
	}
}

func TestWithActivityLockCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	activity := seedActivity(t, s, 3)

	err := s.WithActivityLock(ctx, activity.ID, func(ctx context.Context, tx repository.Tx, a *domain.Activity) error {
		a.CurrentMembers = 2
		return tx.Activities().Update(ctx, a)
	})
	if err != nil {
		t.Fatalf("WithActivityLock: %v", err)
	}
	stored, _ := s.Activities().GetByID(ctx, activity.ID)
	if stored.CurrentMembers != 2 || stored.Version != 2 {
		t.Fatalf("committed activity = %d members v%d, want 2 members v2", stored.CurrentMembers, stored.Version)
	}
}

func TestWithActivityLockUnknownActivity(t *testing.T) {
	s := New()
	err := s.WithActivityLock(context.Background(), "missing", func(context.Context, repository.Tx, *domain.Activity) error {
		t.Fatal("fn must not run for a missing activity")
		return nil
	})
	if !errors.Is(err, domain.ErrActivityNotFound) {
		t.Fatalf("err = %v, want ErrActivityNotFound", err)
	}
}

func TestWithActivityLockSerializes(t *testing.T) {
	ctx := context.Background()
	s := New()
	activity := seedActivity(t, s, 20)

	var wg sync.WaitGroup
	for i := 0; i < 19; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithActivityLock(ctx, activity.ID, func(ctx context.Context, tx repository.Tx, a *domain.Activity) error {
				a.CurrentMembers++
				return tx.Activities().Update(ctx, a)
			})
		}()
	}
	wg.Wait()

	stored, _ := s.Activities().GetByID(ctx, activity.ID)
	if stored.CurrentMembers != 20 {
		t.Fatalf("current members = %d, want 20", stored.CurrentMembers)
	}
	if len(s.locks) != 0 {
		t.Fatalf("lock table not released: %d entries", len(s.locks))
	}
}

func TestJoinRequestBlockingUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.JoinRequests()

	first, err := repo.Create(ctx, &domain.JoinRequest{ActivityID: "a1", UserID: "u1", Status: domain.JoinRequestPending})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, &domain.JoinRequest{ActivityID: "a1", UserID: "u1", Status: domain.JoinRequestPending}); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("duplicate create: err = %v, want ErrDuplicateRequest", err)
	}

	first.Status = domain.JoinRequestRejected
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	blocking, _ := repo.HasBlocking(ctx, "a1", "u1")
	if blocking {
		t.Fatal("rejected request still blocks")
	}
	if _, err := repo.Create(ctx, &domain.JoinRequest{ActivityID: "a1", UserID: "u1", Status: domain.JoinRequestPending}); err != nil {
		t.Fatalf("re-request after rejection: %v", err)
	}
}

func TestZeroLimitListsEverything(t *testing.T) {
	ctx := context.Background()
	repo := New().JoinRequests()
	for i := 0; i < 150; i++ {
		if _, err := repo.Create(ctx, &domain.JoinRequest{ActivityID: fmt.Sprintf("a%d", i), UserID: "u1", Status: domain.JoinRequestPending}); err != nil {
			t.Fatalf("create #%d: %v", i, err)
		}
	}
	all, err := repo.List(ctx, repository.JoinRequestFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 150 {
		t.Fatalf("listed %d requests, want all 150", len(all))
	}
}

func TestChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	channels := s.Channels()

	channel, err := channels.Create(ctx, &domain.Channel{ActivityID: "a1", Name: "Board games Chat"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := channels.Create(ctx, &domain.Channel{ActivityID: "a1"}); !errors.Is(err, domain.ErrChannelExists) {
		t.Fatalf("second create: err = %v, want ErrChannelExists", err)
	}

	for _, content := range []string{"one", "two", "three"} {
		if _, err := channels.AppendMessage(ctx, &domain.ChannelMessage{ChannelID: channel.ID, SenderID: "u1", Content: content}); err != nil {
			t.Fatalf("append %q: %v", content, err)
		}
	}
	recent, _ := channels.ListMessages(ctx, channel.ID, 2)
	if len(recent) != 2 || recent[0].Content != "two" || recent[1].Content != "three" {
		t.Fatalf("recent messages = %+v, want [two three]", recent)
	}

	deleted, err := channels.DeleteByActivityID(ctx, "a1")
	if err != nil || !deleted {
		t.Fatalf("delete = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = channels.DeleteByActivityID(ctx, "a1")
	if err != nil || deleted {
		t.Fatalf("second delete = (%v, %v), want (false, nil)", deleted, err)
	}
	if _, err := channels.AppendMessage(ctx, &domain.ChannelMessage{ChannelID: channel.ID, Content: "late"}); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("append after teardown: err = %v, want ErrChannelNotFound", err)
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := s.Notifications()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := repo.Create(ctx, &domain.Notification{UserID: "u1", Title: title}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_, _ = repo.Create(ctx, &domain.Notification{UserID: "u2", Title: "other"})

	page, _ := repo.List(ctx, repository.NotificationFilter{UserID: "u1", Limit: 2})
	if len(page) != 2 || page[0].Title != "third" || page[1].Title != "second" {
		t.Fatalf("first page = %+v", page)
	}

	updated, _ := repo.MarkAllRead(ctx, "u1")
	if updated != 3 {
		t.Fatalf("MarkAllRead updated %d, want 3", updated)
	}
	if count, _ := repo.CountUnread(ctx, "u2"); count != 1 {
		t.Fatalf("other user's unread count = %d, want 1", count)
	}
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	past := seedActivity(t, s, 3)
	past.ScheduledDate = now.Add(-time.Hour)
	_ = s.Activities().Update(ctx, past)

	full := seedActivity(t, s, 3)
	full.ScheduledDate = now.Add(-time.Hour)
	full.Status = domain.ActivityFull
	_ = s.Activities().Update(ctx, full)

	seedActivity(t, s, 3)

	expired, _ := s.Activities().ListExpired(ctx, now, 10)
	if len(expired) != 1 || expired[0].ID != past.ID {
		t.Fatalf("expired = %+v, want only %s", expired, past.ID)
	}
}
