package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/usecase"
)

// Expirer closes an activity on behalf of the system.
type Expirer interface {
	ForceExpire(ctx context.Context, activityID string) (bool, error)
}

// ChannelTeardown removes an activity's chat channel.
type ChannelTeardown interface {
	TeardownChannel(ctx context.Context, activityID string) (bool, error)
}

// SweeperConfig controls when and how much the sweeper scans.
type SweeperConfig struct {
	Schedule  string
	BatchSize int
	Timeout   time.Duration
}

// SweepReport summarizes one sweep. Err aggregates every per-activity failure.
type SweepReport struct {
	Scanned int
	Expired int
	Skipped int
	Failed  int
	Err     error
}

// ExpirySweeper force-closes OPEN activities whose scheduled time has passed.
type ExpirySweeper struct {
	activities repository.ActivityRepository
	expirer    Expirer
	teardown   ChannelTeardown
	now        usecase.Clock
	logger     *zap.Logger
	cron       *cron.Cron
	cfg        SweeperConfig

	mu sync.Mutex
}

func NewExpirySweeper(
	activities repository.ActivityRepository,
	expirer Expirer,
	teardown ChannelTeardown,
	clock usecase.Clock,
	logger *zap.Logger,
	cfg SweeperConfig,
) (*ExpirySweeper, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 0 * * * *"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if clock == nil {
		clock = usecase.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ExpirySweeper{
		activities: activities,
		expirer:    expirer,
		teardown:   teardown,
		now:        clock,
		logger:     logger,
		cfg:        cfg,
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start launches the cron scheduler.
func (s *ExpirySweeper) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("expiry sweeper started", zap.String("schedule", s.cfg.Schedule))
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *ExpirySweeper) Stop(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("expiry sweeper stopped")
}

// Sweep runs one reconciliation pass. Every activity is an independent unit of
// work; a failure is recorded in the report and the pass moves on.
func (s *ExpirySweeper) Sweep(ctx context.Context) SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SweepReport
	candidates, err := s.activities.ListExpired(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		report.Err = err
		s.logger.Error("expiry scan failed", zap.Error(err))
		return report
	}
	report.Scanned = len(candidates)

	for _, activity := range candidates {
		if ctx.Err() != nil {
			report.Err = multierr.Append(report.Err, ctx.Err())
			break
		}

		expired, err := s.expirer.ForceExpire(ctx, activity.ID)
		if err != nil {
			report.Failed++
			report.Err = multierr.Append(report.Err, fmt.Errorf("expire activity %s: %w", activity.ID, err))
			s.logger.Error("activity expiry failed", zap.String("activity_id", activity.ID), zap.Error(err))
			continue
		}
		if expired {
			report.Expired++
		} else {
			report.Skipped++
		}

		// Idempotent; also clears a channel left behind by an earlier failed teardown.
		if _, err := s.teardown.TeardownChannel(ctx, activity.ID); err != nil {
			report.Failed++
			report.Err = multierr.Append(report.Err, fmt.Errorf("teardown channel of %s: %w", activity.ID, err))
			s.logger.Error("channel teardown failed", zap.String("activity_id", activity.ID), zap.Error(err))
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("expiry sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("expired", report.Expired),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report
}
