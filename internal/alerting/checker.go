package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

// DefaultConcurrency bounds parallel per-entity checks.
const DefaultConcurrency = 8

// Summary is the outcome of one periodic check.
type Summary struct {
	EntitiesChecked  int       `json:"entities_checked"`
	AlertsGenerated  int       `json:"alerts_generated"`
	AlertsSuppressed int       `json:"alerts_suppressed"`
	AlertsSent       int       `json:"alerts_sent"`
	Errors           []string  `json:"errors"`
	StartedAt        time.Time `json:"started_at"`
	DurationMS       int64     `json:"duration_ms"`
}

// Snapshot is the shared state each per-entity task evaluates against.
type Snapshot struct {
	Now        time.Time
	Geofences  []*models.Geofence
	Recipients []*models.Recipient
}

// Checker runs geofence and stationary evaluation over all active entities.
type Checker struct {
	store       storage.Storage
	raiser      *Raiser
	policy      *Policy
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	// runMu keeps ticks from overlapping.
	runMu sync.Mutex
}

// NewChecker creates a checker.
func NewChecker(store storage.Storage, raiser *Raiser, policy *Policy, concurrency int, logger *zap.Logger) *Checker {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Checker{
		store:       store,
		raiser:      raiser,
		policy:      policy,
		concurrency: concurrency,
		logger:      logging.OrNop(logger),
		now:         time.Now,
	}
}

// SetClock overrides the clock, for tests.
func (c *Checker) SetClock(now func() time.Time) {
	c.now = now
}

// LoadSnapshot reads active geofences and recipients once.
func (c *Checker) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	geofences, err := c.store.Geofences().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load geofences: %w", err)
	}
	recipients, err := c.store.Recipients().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	return &Snapshot{Now: c.now().UTC(), Geofences: geofences, Recipients: recipients}, nil
}

// RunOnce evaluates every active entity. Per-entity failures are collected in
// the summary. The error is non-nil only when the shared snapshot could not
// be loaded, in which case no entity was checked.
func (c *Checker) RunOnce(ctx context.Context) (*Summary, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	start := time.Now()
	summary := &Summary{StartedAt: c.now().UTC(), Errors: []string{}}
	defer func() {
		summary.DurationMS = time.Since(start).Milliseconds()
		metrics.ChecksTotal.Inc()
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := c.LoadSnapshot(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}
	entities, err := c.store.Entities().ListActive(ctx)
	if err != nil {
		err = fmt.Errorf("load entities: %w", err)
		summary.Errors = append(summary.Errors, err.Error())
		return summary, err
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, e := range entities {
		g.Go(func() error {
			res := c.CheckEntity(ctx, e, snap)
			mu.Lock()
			defer mu.Unlock()
			summary.EntitiesChecked++
			summary.AlertsGenerated += res.generated
			summary.AlertsSuppressed += res.suppressed
			summary.AlertsSent += res.sent
			summary.Errors = append(summary.Errors, res.errs...)
			return nil
		})
	}
	g.Wait()

	if n := len(summary.Errors); n > 0 {
		metrics.CheckEntityErrors.Add(float64(n))
	}
	c.raiser.prune(snap.Now)

	c.logger.Info("periodic check complete",
		zap.Int("entities_checked", summary.EntitiesChecked),
		zap.Int("alerts_generated", summary.AlertsGenerated),
		zap.Int("alerts_suppressed", summary.AlertsSuppressed),
		zap.Int("alerts_sent", summary.AlertsSent),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

type entityResult struct {
	generated  int
	suppressed int
	sent       int
	errs       []string
}

// CheckEntity evaluates one entity against the snapshot.
func (c *Checker) CheckEntity(ctx context.Context, e *models.Entity, snap *Snapshot) entityResult {
	var res entityResult
	fail := func(format string, args ...any) {
		res.errs = append(res.errs, fmt.Sprintf("entity %s: ", e.ID)+fmt.Sprintf(format, args...))
	}

	latest, err := c.store.Readings().Latest(ctx, e.ID)
	if err != nil {
		fail("latest reading: %v", err)
		return res
	}
	if latest == nil {
		return res
	}

	candidates := OutsideViolations(e, latest, snap.Geofences, snap.Now)

	history, err := c.store.Readings().Range(ctx, e.ID, snap.Now.Add(-c.policy.StationaryWindow), snap.Now)
	if err != nil {
		fail("reading history: %v", err)
	} else if a := StationaryCandidate(e, history, snap.Now, c.policy.StationaryThreshold); a != nil {
		candidates = append(candidates, a)
	}

	for _, a := range candidates {
		out, err := c.raiser.Raise(ctx, a, snap.Recipients)
		if out.Admitted {
			res.generated++
			if out.Delivered() {
				res.sent++
			}
		} else if err == nil {
			res.suppressed++
		}
		if err != nil {
			fail("%s alert: %v", a.Kind, err)
		}
	}
	return res
}

// Run calls RunOnce every interval until ctx is done.
func (c *Checker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", interval)
	}

	c.logger.Info("periodic checker started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("periodic checker stopped")
			return nil
		case <-ticker.C:
			if _, err := c.RunOnce(ctx); err != nil {
				c.logger.Error("periodic check failed", zap.Error(err))
			}
		}
	}
}
