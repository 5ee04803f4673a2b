// Package proximity ranks open activities by great-circle distance from a point.
package proximity

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/fastygo/huddle/domain"
	"github.com/fastygo/huddle/repository"
)

// Config carries the search radius bounds.
type Config struct {
	DefaultRadiusKm float64
	MaxRadiusKm     float64
}

// Query describes one nearby search. A zero RadiusKm selects the configured default.
type Query struct {
	Origin   domain.Coordinates
	RadiusKm float64
	Type     string
}

// Result is an activity annotated with its distance from the query origin.
type Result struct {
	Activity   domain.Activity `json:"activity"`
	DistanceKm float64         `json:"distance_km"`
}

type UseCase struct {
	activities repository.ActivityRepository
	cfg        Config
	logger     *zap.Logger
}

func New(activities repository.ActivityRepository, cfg Config, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = 2
	}
	if cfg.MaxRadiusKm < cfg.DefaultRadiusKm {
		cfg.MaxRadiusKm = cfg.DefaultRadiusKm
	}
	return &UseCase{
		activities: activities,
		cfg:        cfg,
		logger:     logger,
	}
}

// FindNearby returns OPEN activities within the radius, nearest first. Equal
// distances are ordered by activity ID.
func (uc *UseCase) FindNearby(ctx context.Context, q Query) ([]Result, error) {
	if err := q.Origin.Validate(); err != nil {
		return nil, err
	}
	radius, err := uc.radius(q.RadiusKm)
	if err != nil {
		return nil, err
	}

	query := repository.RadiusQuery{Origin: q.Origin, RadiusKm: radius}
	if q.Type != "" {
		activityType, err := domain.ParseActivityType(q.Type)
		if err != nil {
			return nil, err
		}
		query.Type = activityType
	}

	candidates, err := uc.activities.WithinRadius(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, activity := range candidates {
		if activity.Status != domain.ActivityOpen {
			continue
		}
		if query.Type != "" && activity.Type != query.Type {
			continue
		}
		distance := domain.DistanceKm(q.Origin, activity.Location)
		// storage may compute distance with a slightly different float path
		if distance > radius {
			continue
		}
		results = append(results, Result{Activity: activity, DistanceKm: distance})
	}
	Rank(results)

	uc.logger.Debug("nearby search",
		zap.Float64("lat", q.Origin.Latitude),
		zap.Float64("lon", q.Origin.Longitude),
		zap.Float64("radius_km", radius),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Rank sorts results ascending by distance, then by activity ID.
func Rank(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].Activity.ID < results[j].Activity.ID
	})
}

func (uc *UseCase) radius(requested float64) (float64, error) {
	switch {
	case requested == 0:
		return uc.cfg.DefaultRadiusKm, nil
	case math.IsNaN(requested) || requested < 0:
		return 0, domain.Invalidf("radius must be positive")
	case requested > uc.cfg.MaxRadiusKm:
		return 0, domain.Invalidf("radius must not exceed %g km", uc.cfg.MaxRadiusKm)
	}
	return requested, nil
}
