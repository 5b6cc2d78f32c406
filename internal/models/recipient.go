package models

import "time"

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Recipient is an authority that receives alert notifications.
type Recipient struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	SMSEnabled   bool      `json:"sms_enabled"`
	EmailEnabled bool      `json:"email_enabled"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Channels returns the channels this recipient can be reached on.
func (r *Recipient) Channels() []Channel {
	var out []Channel
	if r.SMSEnabled && r.Phone != "" {
		out = append(out, ChannelSMS)
	}
	if r.EmailEnabled && r.Email != "" {
		out = append(out, ChannelEmail)
	}
	return out
}

// DeliveryResult is the outcome of one delivery attempt.
type DeliveryResult struct {
	RecipientID string  `json:"recipient_id"`
	Channel     Channel `json:"channel"`
	Success     bool    `json:"success"`
	Error       string  `json:"error,omitempty"`
}
