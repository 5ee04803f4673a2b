package notification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository/memory"
)

func seed(t *testing.T, store *memory.Store, userID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		created, err := store.Notifications().Create(context.Background(), &domain.Notification{
			UserID:   userID,
			Title:    fmt.Sprintf("n%d", i),
			Category: domain.NotifyJoinRequested,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids = append(ids, created.ID)
	}
	return ids
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "u1", 5)
	uc := New(store.Notifications(), nil)

	first, err := uc.List(ctx, "u1", 0, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first) != 2 || first[0].Title != "n4" || first[1].Title != "n3" {
		t.Fatalf("first page = %+v", first)
	}
	last, _ := uc.List(ctx, "u1", 2, 2)
	if len(last) != 1 || last[0].Title != "n0" {
		t.Fatalf("last page = %+v", last)
	}
	if _, err := uc.List(ctx, "u1", -1, 2); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("negative page: err = %v", err)
	}
	if _, err := uc.List(ctx, "u1", math.MaxInt, 100); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("huge page: err = %v", err)
	}
	if _, err := uc.List(ctx, "u1", MaxPage, MaxPageSize); err != nil {
		t.Fatalf("last allowed page: err = %v", err)
	}
	if _, err := uc.List(ctx, "", 0, 0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("anonymous: err = %v", err)
	}
}

func TestMarkReadOnlyByRecipient(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ids := seed(t, store, "u1", 2)
	uc := New(store.Notifications(), nil)

	if err := uc.MarkRead(ctx, ids[0], "u2"); !errors.Is(err, domain.ErrNotNotificationTarget) {
		t.Fatalf("foreign MarkRead: err = %v, want ErrNotNotificationTarget", err)
	}
	if count, _ := uc.UnreadCount(ctx, "u1"); count != 2 {
		t.Fatalf("unread = %d after refused MarkRead, want 2", count)
	}

	if err := uc.MarkRead(ctx, ids[0], "u1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := uc.MarkRead(ctx, ids[0], "u1"); err != nil {
		t.Fatalf("repeated MarkRead: %v", err)
	}
	unread, _ := uc.ListUnread(ctx, "u1")
	if len(unread) != 1 || unread[0].ID != ids[1] {
		t.Fatalf("unread = %+v", unread)
	}
	if err := uc.MarkRead(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("missing: err = %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "u1", 3)
	seed(t, store, "u2", 1)
	uc := New(store.Notifications(), nil)

	updated, err := uc.MarkAllRead(ctx, "u1")
	if err != nil || updated != 3 {
		t.Fatalf("MarkAllRead = (%d, %v), want (3, nil)", updated, err)
	}
	if count, _ := uc.UnreadCount(ctx, "u1"); count != 0 {
		t.Fatalf("u1 unread = %d", count)
	}
	if count, _ := uc.UnreadCount(ctx, "u2"); count != 1 {
		t.Fatalf("u2 unread = %d", count)
	}
}
