package alerting

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
	"github.com/good-yellow-bee/tuskguard/internal/models"
	"github.com/good-yellow-bee/tuskguard/internal/notifier"
)

// AlertDispatcher delivers an admitted alert to recipients.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert, recipients []*models.Recipient) (*notifier.Report, error)
}

// AlertPublisher fans admitted alerts out to other consumers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, payload []byte) error
}

// Outcome is the result of raising one candidate.
type Outcome struct {
	Admitted bool
	Report   *notifier.Report
}

// Delivered reports whether at least one recipient was reached.
func (o Outcome) Delivered() bool {
	return o.Report != nil && o.Report.Succeeded > 0
}

// Raiser gates candidate alerts and dispatches the admitted ones.
type Raiser struct {
	gate       Gate
	dispatcher AlertDispatcher
	publisher  AlertPublisher
	logger     *zap.Logger
}

// NewRaiser creates a raiser. dispatcher may be nil to persist without delivery.
func NewRaiser(gate Gate, dispatcher AlertDispatcher, logger *zap.Logger) *Raiser {
	return &Raiser{gate: gate, dispatcher: dispatcher, logger: logging.OrNop(logger)}
}

// SetPublisher sets an optional publisher that receives every admitted alert.
func (r *Raiser) SetPublisher(p AlertPublisher) {
	r.publisher = p
}

// Raise admits the candidate through the gate and, when admitted, dispatches
// it. A gate error means the alert was not persisted. A dispatch error is
// returned with Admitted still true.
func (r *Raiser) Raise(ctx context.Context, alert *models.Alert, recipients []*models.Recipient) (Outcome, error) {
	admitted, err := r.gate.Admit(ctx, alert)
	if err != nil {
		metrics.AlertErrors.WithLabelValues(string(alert.Kind)).Inc()
		r.logger.Error("alert not persisted",
			zap.String("entity_id", alert.EntityID),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err),
		)
		return Outcome{}, err
	}
	if !admitted {
		metrics.AlertsSuppressed.WithLabelValues(string(alert.Kind)).Inc()
		r.logger.Debug("alert suppressed by cooldown",
			zap.String("key", alert.CooldownKey().String()),
		)
		return Outcome{}, nil
	}

	metrics.AlertsGenerated.WithLabelValues(string(alert.Kind), string(alert.Level)).Inc()
	out := Outcome{Admitted: true}
	if r.dispatcher != nil {
		out.Report, err = r.dispatcher.Dispatch(ctx, alert, recipients)
	}
	r.publish(ctx, alert)
	return out, err
}

// publish failures are logged only; the alert is already persisted.
func (r *Raiser) publish(ctx context.Context, alert *models.Alert) {
	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		r.logger.Error("encode alert", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	if err := r.publisher.PublishAlert(ctx, payload); err != nil {
		r.logger.Warn("publish alert", zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

type pruner interface {
	Prune(now time.Time)
}

func (r *Raiser) prune(now time.Time) {
	if p, ok := r.gate.(pruner); ok {
		p.Prune(now)
	}
}
