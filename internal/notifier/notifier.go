// Package notifier renders alerts and delivers them to authority recipients.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// Sender delivers a rendered message to one recipient on one channel.
type Sender interface {
	// Channel returns the channel this sender delivers on.
	Channel() models.Channel
	// Send delivers msg to the recipient.
	Send(ctx context.Context, recipient *models.Recipient, msg *Message) error
	// Close releases any resources.
	Close() error
}

// ErrNoSender is returned when a channel has no registered sender.
var ErrNoSender = errors.New("no sender registered for channel")

// DeliveryError is a failed delivery to one recipient. It is collected, not
// returned from Dispatch.
type DeliveryError struct {
	RecipientID string
	Channel     models.Channel
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %s: %v", e.Channel, e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// SentMarker persists the sent transition of an alert.
type SentMarker interface {
	MarkSent(ctx context.Context, id string, at time.Time) error
}

// Options configures a Dispatcher.
type Options struct {
	// Concurrency bounds simultaneous deliveries (default 8).
	Concurrency int
	// Timeout applies to each delivery call (default 15s).
	Timeout time.Duration
	// RateLimit configures the per-channel token bucket.
	RateLimit RateLimitConfig
}

// DefaultOptions returns default dispatcher options.
func DefaultOptions() Options {
	return Options{
		Concurrency: 8,
		Timeout:     15 * time.Second,
		RateLimit:   DefaultRateLimitConfig(),
	}
}

// Dispatcher fans alerts out to recipients over the registered senders.
type Dispatcher struct {
	mu        sync.RWMutex
	senders   map[models.Channel]Sender
	limiters  map[models.Channel]*RateLimiter
	templates *Templates
	marker    SentMarker
	opts      Options
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. marker may be nil, in which case only
// the in-memory alert is marked sent.
func NewDispatcher(marker SentMarker, logger *zap.Logger, opts Options) (*Dispatcher, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	return &Dispatcher{
		senders:   make(map[models.Channel]Sender),
		limiters:  make(map[models.Channel]*RateLimiter),
		templates: templates,
		marker:    marker,
		opts:      opts,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}, nil
}

// Register adds a sender, replacing any sender on the same channel.
func (d *Dispatcher) Register(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Channel()] = s
	d.limiters[s.Channel()] = NewRateLimiter(d.opts.RateLimit)
}

// Channels returns the channels with a registered sender.
func (d *Dispatcher) Channels() []models.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Channel, 0, len(d.senders))
	for _, c := range []models.Channel{models.ChannelSMS, models.ChannelEmail} {
		if _, ok := d.senders[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Report is the outcome of dispatching one alert.
type Report struct {
	AlertID    string                  `json:"alert_id"`
	Recipients int                     `json:"recipients"`
	Succeeded  int                     `json:"succeeded"`
	Results    []models.DeliveryResult `json:"results"`
	Errors     []*DeliveryError        `json:"-"`
}

// Dispatch renders the alert and delivers it to every active recipient on
// each enabled channel. Individual failures are collected in the report.
// The alert is marked sent once delivery has been attempted. The returned
// error only reports a failure to render or to persist the sent mark.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, recipients []*models.Recipient) (*Report, error) {
	msg, err := d.templates.Render(alert)
	if err != nil {
		return nil, fmt.Errorf("render alert %s: %w", alert.ID, err)
	}

	var active []*models.Recipient
	for _, r := range recipients {
		if r != nil && r.Active {
			active = append(active, r)
		}
	}

	type job struct {
		recipient *models.Recipient
		channel   models.Channel
	}
	var jobs []job
	for _, r := range active {
		for _, c := range r.Channels() {
			if d.sender(c) == nil {
				continue
			}
			jobs = append(jobs, job{recipient: r, channel: c})
		}
	}

	results := make([]models.DeliveryResult, len(jobs))
	errs := make([]*DeliveryError, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			results[i], errs[i] = d.deliver(ctx, j.recipient, j.channel, msg)
			return nil
		})
	}
	g.Wait()

	report := &Report{
		AlertID:    alert.ID,
		Recipients: len(active),
		Results:    results,
	}
	reached := make(map[string]bool)
	for i, res := range results {
		if res.Success {
			reached[res.RecipientID] = true
		}
		if errs[i] != nil {
			report.Errors = append(report.Errors, errs[i])
		}
	}
	report.Succeeded = len(reached)

	now := d.now().UTC()
	alert.MarkSent(now)
	var markErr error
	if d.marker != nil {
		if err := d.marker.MarkSent(ctx, alert.ID, alert.SentAt); err != nil {
			markErr = fmt.Errorf("mark alert %s sent: %w", alert.ID, err)
		}
	}

	d.logger.Info("alert dispatched",
		zap.String("alert_id", alert.ID),
		zap.String("entity_id", alert.EntityID),
		zap.String("kind", string(alert.Kind)),
		zap.Int("recipients", report.Recipients),
		zap.Int("attempts", len(jobs)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed_deliveries", len(report.Errors)),
	)
	for _, e := range report.Errors {
		d.logger.Warn("delivery failed",
			zap.String("alert_id", alert.ID),
			zap.String("recipient_id", e.RecipientID),
			zap.String("channel", string(e.Channel)),
			zap.Error(e.Err),
		)
	}

	return report, markErr
}

// SendSMS sends text to each recipient with SMS enabled.
func (d *Dispatcher) SendSMS(ctx context.Context, recipients []*models.Recipient, text string) []models.DeliveryResult {
	return d.sendAll(ctx, recipients, models.ChannelSMS, &Message{SMS: text, Text: text})
}

// SendEmail sends an HTML email to each recipient with email enabled.
func (d *Dispatcher) SendEmail(ctx context.Context, recipients []*models.Recipient, subject, htmlBody string) []models.DeliveryResult {
	return d.sendAll(ctx, recipients, models.ChannelEmail, &Message{Subject: subject, HTML: htmlBody})
}

func (d *Dispatcher) sendAll(ctx context.Context, recipients []*models.Recipient, channel models.Channel, msg *Message) []models.DeliveryResult {
	var targets []*models.Recipient
	for _, r := range recipients {
		if r == nil || !r.Active {
			continue
		}
		for _, c := range r.Channels() {
			if c == channel {
				targets = append(targets, r)
			}
		}
	}

	results := make([]models.DeliveryResult, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(d.opts.Concurrency)
	for i, r := range targets {
		g.Go(func() error {
			results[i], _ = d.deliver(ctx, r, channel, msg)
			return nil
		})
	}
	g.Wait()
	return results
}

func (d *Dispatcher) sender(c models.Channel) Sender {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.senders[c]
}

func (d *Dispatcher) limiter(c models.Channel) *RateLimiter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.limiters[c]
}

// deliver performs one bounded delivery call.
func (d *Dispatcher) deliver(ctx context.Context, r *models.Recipient, c models.Channel, msg *Message) (models.DeliveryResult, *DeliveryError) {
	result := models.DeliveryResult{RecipientID: r.ID, Channel: c}

	fail := func(err error) (models.DeliveryResult, *DeliveryError) {
		metrics.DeliveriesTotal.WithLabelValues(string(c), "failure").Inc()
		result.Error = err.Error()
		return result, &DeliveryError{RecipientID: r.ID, Channel: c, Err: err}
	}

	s := d.sender(c)
	if s == nil {
		return fail(ErrNoSender)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	if l := d.limiter(c); l != nil {
		if err := l.Wait(callCtx); err != nil {
			return fail(fmt.Errorf("rate limited: %w", err))
		}
	}

	start := time.Now()
	err := s.Send(callCtx, r, msg)
	metrics.DeliveryDuration.WithLabelValues(string(c)).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail(err)
	}

	metrics.DeliveriesTotal.WithLabelValues(string(c), "success").Inc()
	result.Success = true
	return result, nil
}

// Close closes all registered senders.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for c, s := range d.senders {
		if l := d.limiters[c]; l != nil {
			st := l.Stats()
			d.logger.Info("channel rate limiter",
				zap.String("channel", string(c)),
				zap.Int64("dropped", st.Dropped),
				zap.Int("max_per_window", st.MaxPerWindow),
				zap.Duration("window", st.Window),
				zap.Bool("enabled", st.Enabled),
			)
		}
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
		}
	}
	d.senders = make(map[models.Channel]Sender)

	return errors.Join(errs...)
}
