// Package memory is an in-process implementation of the repository interfaces.
// It backs STORE_DRIVER=memory and the use case tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

// Store keeps every record kind in maps guarded by one RWMutex. Per-activity
// critical sections use a separate keyed mutex so unrelated activities never
// contend.
type Store struct {
	mu            sync.RWMutex
	activities    map[string]domain.Activity
	requests      map[string]domain.JoinRequest
	channels      map[string]domain.Channel
	messages      map[string][]domain.ChannelMessage
	notifications map[string]domain.Notification
	events        []domain.Event
	seq           int64

	locksMu sync.Mutex
	locks   map[string]*activityLock
}

type activityLock struct {
	mu   sync.Mutex
	refs int
}

func New() *Store {
	return &Store{
		activities:    make(map[string]domain.Activity),
		requests:      make(map[string]domain.JoinRequest),
		channels:      make(map[string]domain.Channel),
		messages:      make(map[string][]domain.ChannelMessage),
		notifications: make(map[string]domain.Notification),
		locks:         make(map[string]*activityLock),
	}
}

func (s *Store) Activities() repository.ActivityRepository { return activityRepo{view: s} }
func (s *Store) JoinRequests() repository.JoinRequestRepository {
	return joinRequestRepo{view: s}
}
func (s *Store) Channels() repository.ChannelRepository           { return channelRepo{s: s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s: s} }
func (s *Store) Events() repository.EventRepository               { return eventRepo{s: s} }
func (s *Store) Transactor() repository.Transactor                { return s }

// WithActivityLock stages writes made through tx and applies them atomically
// when fn succeeds.
func (s *Store) WithActivityLock(ctx context.Context, activityID string, fn repository.LockedFunc) error {
	release := s.lock(activityID)
	defer release()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &stagedTx{
		store:      s,
		activities: make(map[string]domain.Activity),
		requests:   make(map[string]domain.JoinRequest),
	}
	activity, err := tx.getActivity(activityID)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx, activity); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &activityLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// nextTime returns a strictly increasing timestamp so orderings by creation time are stable.
func (s *Store) nextTime(t time.Time) time.Time {
	s.seq++
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.Add(time.Duration(s.seq))
}

// view abstracts the committed store and a staged transaction for the
// activity and join request repositories.
type view interface {
	getActivity(id string) (*domain.Activity, error)
	allActivities() []domain.Activity
	putActivity(a domain.Activity, create bool) error
	getRequest(id string) (*domain.JoinRequest, error)
	allRequests() []domain.JoinRequest
	putRequest(r domain.JoinRequest, create bool) error
}

func (s *Store) getActivity(id string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, domain.ErrActivityNotFound
	}
	return &a, nil
}

func (s *Store) allActivities() []domain.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	return out
}

func (s *Store) putActivity(a domain.Activity, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.activities[a.ID]
	if !create && !exists {
		return domain.ErrActivityNotFound
	}
	s.activities[a.ID] = a
	return nil
}

func (s *Store) getRequest(id string) (*domain.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrJoinRequestNotFound
	}
	return &r, nil
}

func (s *Store) allRequests() []domain.JoinRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.JoinRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	return out
}

func (s *Store) putRequest(r domain.JoinRequest, create bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.requests[r.ID]
	if !create && !exists {
		return domain.ErrJoinRequestNotFound
	}
	if create || r.Status.Blocking() {
		for id, other := range s.requests {
			if id != r.ID && other.ActivityID == r.ActivityID && other.UserID == r.UserID && other.Status.Blocking() && r.Status.Blocking() {
				return domain.ErrDuplicateRequest
			}
		}
	}
	s.requests[r.ID] = r
	return nil
}

type stagedTx struct {
	store      *Store
	activities map[string]domain.Activity
	requests   map[string]domain.JoinRequest
}

func (t *stagedTx) Activities() repository.ActivityRepository { return activityRepo{view: t} }
func (t *stagedTx) JoinRequests() repository.JoinRequestRepository {
	return joinRequestRepo{view: t}
}

func (t *stagedTx) getActivity(id string) (*domain.Activity, error) {
	if a, ok := t.activities[id]; ok {
		return &a, nil
	}
	return t.store.getActivity(id)
}

func (t *stagedTx) allActivities() []domain.Activity {
	base := t.store.allActivities()
	for i, a := range base {
		if staged, ok := t.activities[a.ID]; ok {
			base[i] = staged
		}
	}
	for id, a := range t.activities {
		if _, err := t.store.getActivity(id); err != nil {
			base = append(base, a)
		}
	}
	return base
}

func (t *stagedTx) putActivity(a domain.Activity, create bool) error {
	if !create {
		if _, err := t.getActivity(a.ID); err != nil {
			return err
		}
	}
	t.activities[a.ID] = a
	return nil
}

func (t *stagedTx) getRequest(id string) (*domain.JoinRequest, error) {
	if r, ok := t.requests[id]; ok {
		return &r, nil
	}
	return t.store.getRequest(id)
}

func (t *stagedTx) allRequests() []domain.JoinRequest {
	base := t.store.allRequests()
	seen := make(map[string]bool, len(base))
	for i, r := range base {
		seen[r.ID] = true
		if staged, ok := t.requests[r.ID]; ok {
			base[i] = staged
		}
	}
	for id, r := range t.requests {
		if !seen[id] {
			base = append(base, r)
		}
	}
	return base
}

func (t *stagedTx) putRequest(r domain.JoinRequest, create bool) error {
	if !create {
		if _, err := t.getRequest(r.ID); err != nil {
			return err
		}
	}
	if r.Status.Blocking() {
		for _, other := range t.allRequests() {
			if other.ID != r.ID && other.ActivityID == r.ActivityID && other.UserID == r.UserID && other.Status.Blocking() {
				return domain.ErrDuplicateRequest
			}
		}
	}
	t.requests[r.ID] = r
	return nil
}

func (t *stagedTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range t.activities {
		s.activities[id] = a
	}
	for id, r := range t.requests {
		s.requests[id] = r
	}
}

type activityRepo struct {
	view view
}

func (r activityRepo) GetByID(_ context.Context, id string) (*domain.Activity, error) {
	return r.view.getActivity(id)
}

func (r activityRepo) List(_ context.Context, filter repository.ActivityFilter) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range r.view.allActivities() {
		if filter.OwnerID != "" && a.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledDate.Before(out[j].ScheduledDate)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r activityRepo) WithinRadius(_ context.Context, q repository.RadiusQuery) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range r.view.allActivities() {
		if a.Status != domain.ActivityOpen {
			continue
		}
		if q.Type != "" && a.Type != q.Type {
			continue
		}
		if domain.DistanceKm(q.Origin, a.Location) > q.RadiusKm {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r activityRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range r.view.allActivities() {
		if a.IsExpired(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r activityRepo) Create(_ context.Context, activity *domain.Activity) (*domain.Activity, error) {
	if activity == nil {
		return nil, domain.ErrInvalidPayload
	}
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	activity.Version = 1
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	activity.UpdatedAt = activity.CreatedAt
	if err := r.view.putActivity(*activity, true); err != nil {
		return nil, err
	}
	return activity, nil
}

func (r activityRepo) Update(_ context.Context, activity *domain.Activity) error {
	if activity == nil {
		return domain.ErrInvalidPayload
	}
	current, err := r.view.getActivity(activity.ID)
	if err != nil {
		return err
	}
	next := *activity
	next.OwnerID = current.OwnerID
	next.Version = current.Version + 1
	if err := r.view.putActivity(next, false); err != nil {
		return err
	}
	activity.Version = next.Version
	return nil
}

type joinRequestRepo struct {
	view view
}

func (r joinRequestRepo) GetByID(_ context.Context, id string) (*domain.JoinRequest, error) {
	return r.view.getRequest(id)
}

func (r joinRequestRepo) List(_ context.Context, filter repository.JoinRequestFilter) ([]domain.JoinRequest, error) {
	var out []domain.JoinRequest
	for _, jr := range r.view.allRequests() {
		if filter.ActivityID != "" && jr.ActivityID != filter.ActivityID {
			continue
		}
		if filter.UserID != "" && jr.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && jr.Status != filter.Status {
			continue
		}
		out = append(out, jr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r joinRequestRepo) HasBlocking(_ context.Context, activityID, userID string) (bool, error) {
	for _, jr := range r.view.allRequests() {
		if jr.ActivityID == activityID && jr.UserID == userID && jr.Status.Blocking() {
			return true, nil
		}
	}
	return false, nil
}

func (r joinRequestRepo) CountAccepted(_ context.Context, activityID string) (int, error) {
	count := 0
	for _, jr := range r.view.allRequests() {
		if jr.ActivityID == activityID && jr.Status == domain.JoinRequestAccepted {
			count++
		}
	}
	return count, nil
}

func (r joinRequestRepo) Create(_ context.Context, request *domain.JoinRequest) (*domain.JoinRequest, error) {
	if request == nil {
		return nil, domain.ErrInvalidPayload
	}
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	request.UpdatedAt = request.CreatedAt
	if err := r.view.putRequest(*request, true); err != nil {
		return nil, err
	}
	return request, nil
}

func (r joinRequestRepo) Update(_ context.Context, request *domain.JoinRequest) error {
	if request == nil {
		return domain.ErrInvalidPayload
	}
	return r.view.putRequest(*request, false)
}

type channelRepo struct {
	s *Store
}

func (r channelRepo) GetByID(_ context.Context, id string) (*domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ch, ok := r.s.channels[id]
	if !ok {
		return nil, domain.ErrChannelNotFound
	}
	return &ch, nil
}

func (r channelRepo) GetByActivityID(_ context.Context, activityID string) (*domain.Channel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, ch := range r.s.channels {
		if ch.ActivityID == activityID {
			ch := ch
			return &ch, nil
		}
	}
	return nil, domain.ErrChannelNotFound
}

func (r channelRepo) Create(_ context.Context, channel *domain.Channel) (*domain.Channel, error) {
	if channel == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.channels {
		if existing.ActivityID == channel.ActivityID {
			return nil, domain.ErrChannelExists
		}
	}
	if channel.ID == "" {
		channel.ID = uuid.NewString()
	}
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = time.Now().UTC()
	}
	r.s.channels[channel.ID] = *channel
	return channel, nil
}

func (r channelRepo) DeleteByActivityID(_ context.Context, activityID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, ch := range r.s.channels {
		if ch.ActivityID == activityID {
			delete(r.s.messages, id)
			delete(r.s.channels, id)
			return true, nil
		}
	}
	return false, nil
}

func (r channelRepo) AppendMessage(_ context.Context, message *domain.ChannelMessage) (*domain.ChannelMessage, error) {
	if message == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.channels[message.ChannelID]; !ok {
		return nil, domain.ErrChannelNotFound
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.CreatedAt = r.s.nextTime(message.CreatedAt)
	r.s.messages[message.ChannelID] = append(r.s.messages[message.ChannelID], *message)
	return message, nil
}

func (r channelRepo) ListMessages(_ context.Context, channelID string, limit int) ([]domain.ChannelMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	log := r.s.messages[channelID]
	start := 0
	if limit > 0 && len(log) > limit {
		start = len(log) - limit
	}
	out := make([]domain.ChannelMessage, len(log)-start)
	copy(out, log[start:])
	return out, nil
}

type notificationRepo struct {
	s *Store
}

func (r notificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, domain.ErrNotificationNotFound
	}
	return &n, nil
}

func (r notificationRepo) List(_ context.Context, filter repository.NotificationFilter) ([]domain.Notification, error) {
	r.s.mu.RLock()
	var out []domain.Notification
	for _, n := range r.s.notifications {
		if n.UserID != filter.UserID || (filter.UnreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r notificationRepo) CountUnread(_ context.Context, userID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r notificationRepo) Create(_ context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if notification == nil {
		return nil, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	notification.CreatedAt = r.s.nextTime(notification.CreatedAt)
	r.s.notifications[notification.ID] = *notification
	return notification, nil
}

func (r notificationRepo) MarkRead(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return domain.ErrNotificationNotFound
	}
	n.Read = true
	r.s.notifications[id] = n
	return nil
}

func (r notificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	updated := 0
	for id, n := range r.s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			r.s.notifications[id] = n
			updated++
		}
	}
	return updated, nil
}

type eventRepo struct {
	s *Store
}

func (r eventRepo) Append(_ context.Context, event domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	r.s.events = append(r.s.events, event)
	return nil
}

func (r eventRepo) List(_ context.Context, filter repository.EventFilter) ([]domain.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Event
	for _, ev := range r.s.events {
		if filter.ActivityID != "" && ev.ActivityID != filter.ActivityID {
			continue
		}
		if filter.Name != "" && ev.Name != filter.Name {
			continue
		}
		out = append(out, ev)
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}

func containsStatus(statuses []domain.ActivityStatus, s domain.ActivityStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
