// Package mqtt subscribes to collar telemetry topics on an MQTT broker and
// feeds each message into ingestion.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/ingest"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
	"github.com/good-yellow-bee/tuskguard/internal/tracking"
)

// DefaultTopic carries the provider name in its wildcard segment.
const DefaultTopic = "collars/+/gps"

// Ingester stores one payload.
type Ingester interface {
	Ingest(ctx context.Context, raw []byte, declared, transport string) (*tracking.IngestResult, error)
}

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	ConnectTimeout time.Duration
}

// Subscriber consumes collar payloads from a broker.
type Subscriber struct {
	cfg      Config
	ingester Ingester
	logger   *zap.Logger

	mu     sync.Mutex
	client paho.Client
	ctx    context.Context
}

// NewSubscriber creates a subscriber. Call Start to connect.
func NewSubscriber(cfg Config, ingester Ingester, logger *zap.Logger) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tuskguard"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Subscriber{cfg: cfg, ingester: ingester, logger: logging.OrNop(logger)}
}

// Start connects to the broker and subscribes. The subscription is renewed on
// every reconnect. Messages are processed with ctx until Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.cfg.Broker == "" {
		return errors.New("mqtt broker address is required")
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(c paho.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		if token.Wait() && token.Error() != nil {
			s.logger.Error("mqtt subscribe failed", zap.String("topic", s.cfg.Topic), zap.Error(token.Error()))
			return
		}
		s.logger.Info("mqtt subscribed", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.Topic))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("connect to mqtt broker %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.cfg.Broker, err)
	}

	s.mu.Lock()
	s.client = client
	s.ctx = ctx
	s.mu.Unlock()
	return nil
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	}
	client.Disconnect(250)
	s.logger.Info("mqtt subscriber stopped")
}

// Connected reports whether the client currently has a broker connection.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected()
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.Handle(ctx, msg.Topic(), msg.Payload())
}

// Handle ingests one message. Rejected payloads are logged and dropped.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) {
	metrics.MQTTMessagesTotal.Inc()
	provider := ProviderFromTopic(s.cfg.Topic, topic)

	res, err := s.ingester.Ingest(ctx, payload, provider, tracking.TransportMQTT)
	if err != nil {
		fields := []zap.Field{zap.String("topic", topic), zap.Error(err)}
		var (
			coordErr  *ingest.InvalidCoordinateError
			deviceErr *ingest.UnknownDeviceError
		)
		switch {
		case errors.As(err, &coordErr), errors.As(err, &deviceErr), errors.Is(err, ingest.ErrMalformedPayload):
			s.logger.Warn("mqtt payload rejected", fields...)
		default:
			s.logger.Error("mqtt ingest failed", fields...)
		}
		return
	}

	s.logger.Debug("mqtt reading stored",
		zap.String("topic", topic),
		zap.String("entity_id", res.Reading.EntityID),
		zap.Int("alerts", len(res.Alerts)),
	)
}

// ProviderFromTopic returns the topic segment matching the first single-level
// wildcard of filter, or "" when the topic does not fit the filter.
func ProviderFromTopic(filter, topic string) string {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")

	idx := -1
	for i, p := range fParts {
		if p == "+" {
			idx = i
			break
		}
	}
	if idx < 0 || len(fParts) != len(tParts) {
		return ""
	}
	for i, p := range fParts {
		if p != "+" && p != tParts[i] {
			return ""
		}
	}
	return tParts[idx]
}
