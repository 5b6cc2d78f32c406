package alerting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/storage"
)

// Gate decides whether a candidate alert may be raised. Admitted alerts are persisted.
type Gate interface {
	Admit(ctx context.Context, alert *models.Alert) (bool, error)
}

// Claimer holds cooldown claims shared between server replicas.
type Claimer interface {
	Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// CooldownGate admits at most one alert per cooldown key per window.
// Admission is serialized per key in-process, and the store performs the
// check and insert in one transaction. An optional Claimer extends this
// across processes.
type CooldownGate struct {
	policy *Policy
	alerts storage.AlertRepository
	claims Claimer
	locks  *keyedMutex
	recent *CooldownManager
	logger *zap.Logger
	stats  GateStats
}

// GateStats counts gate decisions.
type GateStats struct {
	Admitted   atomic.Int64
	Suppressed atomic.Int64
	Failed     atomic.Int64
}

// NewCooldownGate creates a gate backed by the alert repository.
// claims may be nil.
func NewCooldownGate(policy *Policy, alerts storage.AlertRepository, claims Claimer, logger *zap.Logger) *CooldownGate {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &CooldownGate{
		policy: policy,
		alerts: alerts,
		claims: claims,
		locks:  newKeyedMutex(),
		recent: NewCooldownManager(),
		logger: logging.OrNop(logger),
	}
}

// Admit persists the alert unless an alert with the same key was raised less
// than the kind's window before alert.CreatedAt.
func (g *CooldownGate) Admit(ctx context.Context, alert *models.Alert) (bool, error) {
	window := g.policy.Window(alert.Kind)
	key := alert.CooldownKey().String()

	unlock := g.locks.Lock(key)
	defer unlock()

	if window > 0 && g.recent.IsOnCooldown(key, alert.CreatedAt) {
		g.stats.Suppressed.Add(1)
		return false, nil
	}

	claimed := false
	if g.claims != nil && window > 0 {
		ok, err := g.claims.Claim(ctx, key, alert.ID, window)
		switch {
		case err != nil:
			// Fall back to the local store; it still enforces the window.
			g.logger.Warn("cooldown claim unavailable", zap.String("key", key), zap.Error(err))
		case !ok:
			g.stats.Suppressed.Add(1)
			return false, nil
		default:
			claimed = true
		}
	}

	admitted, err := g.alerts.CreateIfQuiet(ctx, alert, window)
	if err != nil || !admitted {
		if claimed {
			if relErr := g.claims.Release(ctx, key, alert.ID); relErr != nil {
				g.logger.Warn("release cooldown claim", zap.String("key", key), zap.Error(relErr))
			}
		}
	}
	if err != nil {
		g.stats.Failed.Add(1)
		return false, fmt.Errorf("persist alert %s: %w", key, err)
	}
	if !admitted {
		g.stats.Suppressed.Add(1)
		return false, nil
	}

	if window > 0 {
		g.recent.SetCooldown(key, window, alert.CreatedAt)
	}
	g.stats.Admitted.Add(1)
	return true, nil
}

// CooldownStatus reports where a cooldown key stands at a point in time.
type CooldownStatus struct {
	Key              string     `json:"key"`
	Window           string     `json:"window"`
	RemainingSeconds float64    `json:"remaining_seconds"`
	Quiet            bool       `json:"quiet"`
	LastAlertID      string     `json:"last_alert_id,omitempty"`
	LastAlertAt      *time.Time `json:"last_alert_at,omitempty"`
}

// Status reports the remaining cooldown for key at now. The in-process
// cache and the latest stored alert are both consulted, so the answer holds
// after a restart.
func (g *CooldownGate) Status(ctx context.Context, key models.CooldownKey, now time.Time) (*CooldownStatus, error) {
	if key.Kind != models.AlertKindGeofenceViolation {
		key.GeofenceID = ""
	}
	window := g.policy.Window(key.Kind)
	remaining := g.recent.GetCooldownRemaining(key.String(), now)

	last, err := g.alerts.LatestForKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cooldown status %s: %w", key, err)
	}

	st := &CooldownStatus{Key: key.String(), Window: window.String()}
	if last != nil {
		at := last.CreatedAt
		st.LastAlertID = last.ID
		st.LastAlertAt = &at
		if window > 0 {
			if r := window - now.Sub(at); r > remaining {
				remaining = r
			}
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	st.RemainingSeconds = remaining.Seconds()
	st.Quiet = remaining == 0
	return st, nil
}

// Stats returns the gate's counters.
func (g *CooldownGate) Stats() (admitted, suppressed, failed int64) {
	return g.stats.Admitted.Load(), g.stats.Suppressed.Load(), g.stats.Failed.Load()
}

// keyedMutex hands out one mutex per key and frees it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// CooldownManager remembers when recently admitted keys leave cooldown, so
// repeated candidates are rejected without a store round trip.
type CooldownManager struct {
	mu        sync.RWMutex
	cooldowns map[string]time.Time
}

// NewCooldownManager creates a new cooldown manager.
func NewCooldownManager() *CooldownManager {
	return &CooldownManager{
		cooldowns: make(map[string]time.Time),
	}
}

// IsOnCooldown checks if a key is on cooldown at now.
func (cm *CooldownManager) IsOnCooldown(key string, now time.Time) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[key]
	if !ok {
		return false
	}
	return now.Before(expiresAt)
}

// SetCooldown starts a cooldown for key, keeping the later expiry.
func (cm *CooldownManager) SetCooldown(key string, duration time.Duration, now time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	expires := now.Add(duration)
	if cur, ok := cm.cooldowns[key]; ok && cur.After(expires) {
		return
	}
	cm.cooldowns[key] = expires
}

// Prune drops expired cooldowns.
func (cm *CooldownManager) Prune(now time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for key, expiresAt := range cm.cooldowns {
		if !now.Before(expiresAt) {
			delete(cm.cooldowns, key)
		}
	}
}

// GetCooldownRemaining returns the remaining cooldown duration for a key.
func (cm *CooldownManager) GetCooldownRemaining(key string, now time.Time) time.Duration {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[key]
	if !ok {
		return 0
	}
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Prune drops expired entries from the in-process cooldown cache.
func (g *CooldownGate) Prune(now time.Time) {
	g.recent.Prune(now)
}
