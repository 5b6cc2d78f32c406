package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// SMSConfig holds HTTP SMS gateway configuration.
type SMSConfig struct {
	BaseURL  string        // Gateway base URL
	Path     string        // Send endpoint path (default "/messages")
	APIKey   string        // Bearer token (optional)
	SenderID string        // Originator shown to recipients
	Timeout  time.Duration // Per-request timeout (default 10s)
	Retries  int           // Retry count (default 2, negative disables)
}

// Validate validates the SMS configuration.
func (c *SMSConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("SMS gateway URL is required")
	}
	if !strings.HasPrefix(c.BaseURL, "https://") && !strings.HasPrefix(c.BaseURL, "http://") {
		return fmt.Errorf("SMS gateway URL must be http(s)")
	}
	if c.SenderID == "" {
		return fmt.Errorf("sender id is required")
	}
	return nil
}

// smsRequest is the gateway request body.
type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// smsResponse is the gateway response body.
type smsResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SMSSender delivers short alerts through an HTTP SMS gateway.
type SMSSender struct {
	config SMSConfig
	client *resty.Client
}

// NewSMSSender creates a new SMS sender.
func NewSMSSender(config SMSConfig) (*SMSSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sms config: %w", err)
	}
	if config.Path == "" {
		config.Path = "/messages"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	} else if config.Retries == 0 {
		config.Retries = 2
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetRetryCount(config.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	return &SMSSender{config: config, client: client}, nil
}

// Channel returns the SMS channel.
func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

// Send posts the short message to the gateway.
func (s *SMSSender) Send(ctx context.Context, recipient *models.Recipient, msg *Message) error {
	if recipient.Phone == "" {
		return fmt.Errorf("recipient %s has no phone number", recipient.ID)
	}
	text := msg.SMS
	if text == "" {
		text = msg.Text
	}

	var result smsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(smsRequest{From: s.config.SenderID, To: recipient.Phone, Text: text}).
		SetResult(&result).
		SetError(&result).
		Post(s.config.Path)
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway error: status %d: %s", resp.StatusCode(), result.Message)
	}
	if strings.EqualFold(result.Status, "rejected") || strings.EqualFold(result.Status, "failed") {
		return fmt.Errorf("sms rejected by gateway: %s", result.Message)
	}
	return nil
}

// Close is a no-op for the SMS sender.
func (s *SMSSender) Close() error {
	return nil
}
