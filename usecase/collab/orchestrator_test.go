package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/repository/memory"
	"github.com/fastygo/huddle/usecase"
	activityUC "github.com/fastygo/huddle/usecase/activity"
	membershipUC "github.com/fastygo/huddle/usecase/membership"
)

var fixedNow = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

var errStorageDown = errors.New("storage down")

// flakyChannels fails Create and DeleteByActivityID while down is set.
type flakyChannels struct {
	repository.ChannelRepository
	mu   sync.Mutex
	down bool
	// beforeCreate runs once ahead of the next Create.
	beforeCreate func()
}

func (f *flakyChannels) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyChannels) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyChannels) Create(ctx context.Context, channel *domain.Channel) (*domain.Channel, error) {
	if f.isDown() {
		return nil, errStorageDown
	}
	f.mu.Lock()
	hook := f.beforeCreate
	f.beforeCreate = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.ChannelRepository.Create(ctx, channel)
}

func (f *flakyChannels) DeleteByActivityID(ctx context.Context, activityID string) (bool, error) {
	if f.isDown() {
		return false, errStorageDown
	}
	return f.ChannelRepository.DeleteByActivityID(ctx, activityID)
}

type message struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []message
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{channel: channel, payload: payload})
	return nil
}

func (p *fakePublisher) channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, m := range p.sent {
		out[i] = m.channel
	}
	return out
}

type recordingRetry struct {
	mu      sync.Mutex
	effects []usecase.SideEffect
}

func (r *recordingRetry) BufferSideEffect(_ context.Context, effect usecase.SideEffect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, effect)
	return nil
}

type fixture struct {
	store        *memory.Store
	channels     *flakyChannels
	publisher    *fakePublisher
	retry        *recordingRetry
	logs         *observer.ObservedLogs
	orchestrator *Orchestrator
	activities   *activityUC.UseCase
	membership   *membershipUC.UseCase
}

func newFixture() *fixture {
	store := memory.New()
	clock := func() time.Time { return fixedNow }
	core, logs := observer.New(zapcore.DebugLevel)

	f := &fixture{
		store:     store,
		channels:  &flakyChannels{ChannelRepository: store.Channels()},
		publisher: &fakePublisher{},
		retry:     &recordingRetry{},
		logs:      logs,
	}
	f.orchestrator = New(Dependencies{
		Activities:    store.Activities(),
		JoinRequests:  store.JoinRequests(),
		Channels:      f.channels,
		Notifications: store.Notifications(),
		Events:        store.Events(),
		Publisher:     f.publisher,
		Retry:         f.retry,
		Clock:         clock,
	}, zap.New(core))
	f.activities = activityUC.New(store.Activities(), store.Transactor(), f.orchestrator, clock, nil)
	f.membership = membershipUC.New(store.Activities(), store.JoinRequests(), store.Transactor(), f.activities, f.orchestrator, clock, nil)
	return f
}

func (f *fixture) create(t *testing.T, maxMembers int) *domain.Activity {
	t.Helper()
	activity, err := f.activities.Create(context.Background(), "owner", domain.ActivitySpec{
		Title:         "Museum visit",
		Type:          "OTHER",
		Location:      domain.Coordinates{Latitude: 41.9028, Longitude: 12.4964},
		ScheduledDate: fixedNow.Add(time.Hour),
		MaxMembers:    maxMembers,
	})
	if err != nil {
		t.Fatalf("create activity: %v", err)
	}
	return activity
}

func (f *fixture) events(t *testing.T, activityID string) []string {
	t.Helper()
	events, err := f.store.Events().List(context.Background(), repository.EventFilter{ActivityID: activityID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

func TestActivityCreatedProvisionsChannel(t *testing.T) {
	f := newFixture()
	activity := f.create(t, 4)

	channel, err := f.store.Channels().GetByActivityID(context.Background(), activity.ID)
	if err != nil {
		t.Fatalf("channel not provisioned: %v", err)
	}
	if channel.Name != "Museum visit Chat" {
		t.Errorf("channel name = %q", channel.Name)
	}
	if got := f.events(t, activity.ID); len(got) != 1 || got[0] != domain.EventActivityCreated {
		t.Errorf("events = %v, want [activity.created]", got)
	}

	if _, err := f.orchestrator.ProvisionChannel(context.Background(), activity.ID); !errors.Is(err, domain.ErrChannelExists) {
		t.Fatalf("second provision: err = %v, want ErrChannelExists", err)
	}
}

// A provisioning failure leaves the activity committed and is handed to the retry outbox.
func TestProvisionFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture()
	f.channels.setDown(true)
	activity := f.create(t, 4)

	stored, err := f.store.Activities().GetByID(context.Background(), activity.ID)
	if err != nil || stored.Status != domain.ActivityOpen {
		t.Fatalf("activity not committed: (%+v, %v)", stored, err)
	}
	if _, err := f.store.Channels().GetByActivityID(context.Background(), activity.ID); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("channel lookup: err = %v, want ErrChannelNotFound", err)
	}

	failures := f.logs.FilterMessage("side effect failed").FilterField(zap.String("operation", usecase.SideEffectProvision))
	if failures.Len() != 1 {
		t.Fatalf("logged provision failures = %d, want 1", failures.Len())
	}
	if len(f.retry.effects) != 1 || f.retry.effects[0].Kind != usecase.SideEffectProvision {
		t.Fatalf("buffered effects = %+v", f.retry.effects)
	}

	f.channels.setDown(false)
	if err := f.orchestrator.Replay(context.Background(), f.retry.effects[0]); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if _, err := f.store.Channels().GetByActivityID(context.Background(), activity.ID); err != nil {
		t.Fatalf("channel missing after replay: %v", err)
	}
	if err := f.orchestrator.Replay(context.Background(), f.retry.effects[0]); err != nil {
		t.Fatalf("second Replay: %v", err)
	}
}

func TestTerminationTearsDownAndNotifiesMembers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.create(t, 4)

	request, err := f.membership.Request(ctx, "member", activity.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := f.membership.Accept(ctx, request.ID, "owner", ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := f.activities.Cancel(ctx, activity.ID, "owner"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if _, err := f.store.Channels().GetByActivityID(ctx, activity.ID); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("channel survived cancel: %v", err)
	}

	notifications, _ := f.store.Notifications().List(ctx, repository.NotificationFilter{UserID: "member"})
	if len(notifications) != 2 {
		t.Fatalf("member notifications = %d, want approval and cancellation", len(notifications))
	}
	if notifications[0].Category != domain.NotifyActivityCancelled || notifications[1].Category != domain.NotifyJoinAccepted {
		t.Fatalf("notification categories = %s, %s", notifications[0].Category, notifications[1].Category)
	}

	owner, _ := f.store.Notifications().List(ctx, repository.NotificationFilter{UserID: "owner"})
	if len(owner) != 1 || owner[0].Category != domain.NotifyJoinRequested || owner[0].Title != "New Join Request" {
		t.Fatalf("owner notifications = %+v", owner)
	}

	want := []string{domain.EventActivityCreated, domain.EventJoinRequested, domain.EventJoinAccepted, domain.EventActivityCancelled}
	if got := f.events(t, activity.ID); !equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if !contains(f.publisher.channels(), domain.NotificationChannel("member")) {
		t.Fatalf("no push on the member's notification channel: %v", f.publisher.channels())
	}
	if !contains(f.publisher.channels(), domain.EventChannel(domain.EventActivityCancelled)) {
		t.Fatalf("cancel event not published: %v", f.publisher.channels())
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.create(t, 4)

	deleted, err := f.orchestrator.TeardownChannel(ctx, activity.ID)
	if err != nil || !deleted {
		t.Fatalf("first teardown = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, err = f.orchestrator.TeardownChannel(ctx, activity.ID)
	if err != nil || deleted {
		t.Fatalf("second teardown = (%v, %v), want (false, nil)", deleted, err)
	}
}

func TestFullEventOnLastSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.create(t, 2)

	request, _ := f.membership.Request(ctx, "member", activity.ID, "")
	if _, err := f.membership.Accept(ctx, request.ID, "owner", ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got := f.events(t, activity.ID)
	if got[len(got)-1] != domain.EventActivityFull {
		t.Fatalf("events = %v, want activity.full last", got)
	}
}

func TestPushFailureIsBuffered(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.publisher.err = errors.New("redis unavailable")

	notification, err := f.orchestrator.Notify(ctx, Notice{UserID: "u1", Title: "hello", Category: domain.NotifyJoinAccepted})
	if err != nil {
		t.Fatalf("Notify must succeed when only the push fails: %v", err)
	}
	if stored, err := f.store.Notifications().GetByID(ctx, notification.ID); err != nil || stored.Read {
		t.Fatalf("notification not persisted unread: (%+v, %v)", stored, err)
	}
	if len(f.retry.effects) != 1 {
		t.Fatalf("buffered effects = %d, want 1", len(f.retry.effects))
	}
	effect := f.retry.effects[0]
	if effect.Kind != usecase.SideEffectPush || effect.Channel != domain.NotificationChannel("u1") {
		t.Fatalf("buffered effect = %+v", effect)
	}

	f.publisher.err = nil
	if err := f.orchestrator.Replay(ctx, effect); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !contains(f.publisher.channels(), domain.NotificationChannel("u1")) {
		t.Fatal("replayed push not delivered")
	}
}

func TestProvisionRefusedForTerminalActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	activity := f.create(t, 4)
	if _, err := f.activities.Close(ctx, activity.ID, "owner"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.orchestrator.ProvisionChannel(ctx, activity.ID); !errors.Is(err, domain.ErrActivityTerminal) {
		t.Fatalf("err = %v, want ErrActivityTerminal", err)
	}
	if err := f.orchestrator.Replay(ctx, usecase.SideEffect{Kind: usecase.SideEffectProvision, ActivityID: activity.ID}); err != nil {
		t.Fatalf("replay of moot provision: %v", err)
	}
	if err := f.orchestrator.Replay(ctx, usecase.SideEffect{Kind: "bogus"}); err == nil {
		t.Fatal("unknown side effect kind accepted")
	}
}

func TestProvisionRacingCloseLeavesNoChannel(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.channels.setDown(true)
	activity := f.create(t, 4)
	f.channels.setDown(false)

	f.channels.beforeCreate = func() {
		if _, err := f.activities.Close(ctx, activity.ID, "owner"); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
	if _, err := f.orchestrator.ProvisionChannel(ctx, activity.ID); !errors.Is(err, domain.ErrActivityTerminal) {
		t.Fatalf("err = %v, want ErrActivityTerminal", err)
	}
	if _, err := f.store.Channels().GetByActivityID(ctx, activity.ID); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Fatalf("channel left on closed activity: %v", err)
	}
}

func TestNotifyRequiresRecipient(t *testing.T) {
	f := newFixture()
	if _, err := f.orchestrator.Notify(context.Background(), Notice{Title: "nobody"}); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
