package proximity

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository/memory"
)

func seed(t *testing.T, store *memory.Store, id string, lat, lon float64, activityType domain.ActivityType, status domain.ActivityStatus) {
	t.Helper()
	_, err := store.Activities().Create(context.Background(), &domain.Activity{
		ID:             id,
		Title:          "activity " + id,
		Type:           activityType,
		OwnerID:        "owner",
		Location:       domain.Coordinates{Latitude: lat, Longitude: lon},
		ScheduledDate:  time.Now().Add(time.Hour),
		MaxMembers:     4,
		CurrentMembers: 1,
		Status:         status,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newSeeded(t *testing.T) *UseCase {
	store := memory.New()
	seed(t, store, "b", 0.005, 0, domain.ActivityCafe, domain.ActivityOpen)
	seed(t, store, "a", 0, 0.005, domain.ActivityDining, domain.ActivityOpen)
	seed(t, store, "c", 0.01, 0, domain.ActivityCafe, domain.ActivityOpen)
	seed(t, store, "full", 0.001, 0, domain.ActivityCafe, domain.ActivityFull)
	seed(t, store, "closed", 0.002, 0, domain.ActivityCafe, domain.ActivityClosed)
	seed(t, store, "far", 0.03, 0, domain.ActivityCafe, domain.ActivityOpen)
	return New(store.Activities(), Config{DefaultRadiusKm: 2, MaxRadiusKm: 50}, nil)
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Activity.ID
	}
	return out
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

func TestFindNearbyRanksByDistanceThenID(t *testing.T) {
	uc := newSeeded(t)

	results, err := uc.FindNearby(context.Background(), Query{Origin: domain.Coordinates{}})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if got, want := ids(results), []string{"a", "b", "c"}; !equal(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := 1; i < len(results); i++ {
		if results[i].DistanceKm < results[i-1].DistanceKm {
			t.Fatalf("results not ascending by distance: %+v", results)
		}
	}
	if math.Abs(results[2].DistanceKm-1.112) > 0.01 {
		t.Errorf("distance of c = %f, want about 1.112", results[2].DistanceKm)
	}
}

func TestFindNearbyTypeFilter(t *testing.T) {
	uc := newSeeded(t)

	results, err := uc.FindNearby(context.Background(), Query{Origin: domain.Coordinates{}, Type: "cafe"})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if got, want := ids(results), []string{"b", "c"}; !equal(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestFindNearbyWiderRadius(t *testing.T) {
	uc := newSeeded(t)

	results, err := uc.FindNearby(context.Background(), Query{Origin: domain.Coordinates{}, RadiusKm: 5})
	if err != nil {
		t.Fatalf("FindNearby: %v", err)
	}
	if got, want := ids(results), []string{"a", "b", "c", "far"}; !equal(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}

func TestFindNearbyRejectsBadInput(t *testing.T) {
	uc := newSeeded(t)
	tests := []struct {
		name string
		q    Query
	}{
		{"latitude", Query{Origin: domain.Coordinates{Latitude: 100}}},
		{"negative radius", Query{RadiusKm: -1}},
		{"nan radius", Query{RadiusKm: math.NaN()}},
		{"radius over max", Query{RadiusKm: 51}},
		{"unknown type", Query{Type: "opera"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := uc.FindNearby(context.Background(), tt.q); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
				t.Fatalf("err = %v, want VALIDATION_FAILED", err)
			}
		})
	}
}

func TestRankIsDeterministic(t *testing.T) {
	results := []Result{
		{Activity: domain.Activity{ID: "z"}, DistanceKm: 1},
		{Activity: domain.Activity{ID: "m"}, DistanceKm: 0.5},
		{Activity: domain.Activity{ID: "a"}, DistanceKm: 1},
	}
	Rank(results)
	if got, want := ids(results), []string{"m", "a", "z"}; !equal(got, want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
}
