package notifier

import (
	"context"
	"strings"
	"testing"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

func TestEmailConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr string
	}{
		{"empty", EmailConfig{}, "SMTP host is required"},
		{"no port", EmailConfig{Host: "smtp.example.org"}, "SMTP port is required"},
		{"no from", EmailConfig{Host: "smtp.example.org", Port: 587}, "from address is required"},
		{"valid", EmailConfig{Host: "smtp.example.org", Port: 587, From: "TuskGuard <alerts@example.org>"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEmailSender_BuildMIMEMessage(t *testing.T) {
	sender, err := NewEmailSender(EmailConfig{Host: "smtp.example.org", Port: 587, From: "TuskGuard <alerts@example.org>"})
	if err != nil {
		t.Fatalf("NewEmailSender() error = %v", err)
	}
	if sender.Channel() != models.ChannelEmail {
		t.Errorf("Channel() = %q", sender.Channel())
	}

	raw, err := sender.buildMIMEMessage("office@example.org", "[HIGH] Geofence violation: Raja", "plain body", "<p>html body</p>")
	if err != nil {
		t.Fatalf("buildMIMEMessage() error = %v", err)
	}
	msg := string(raw)
	for _, want := range []string{
		"From: TuskGuard <alerts@example.org>\r\n",
		"To: office@example.org\r\n",
		"Subject: [HIGH] Geofence violation: Raja\r\n",
		"multipart/alternative",
		"plain body",
		"<p>html body</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestEnvelopeAddress(t *testing.T) {
	tests := map[string]string{
		"TuskGuard <alerts@example.org>": "alerts@example.org",
		"plain@example.org":              "plain@example.org",
		"not an address":                 "not an address",
	}
	for in, want := range tests {
		if got := envelopeAddress(in); got != want {
			t.Errorf("envelopeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmailSender_RequiresAddress(t *testing.T) {
	s, _ := NewEmailSender(EmailConfig{Host: "smtp.example.org", Port: 587, From: "a@example.org"})
	if err := s.Send(context.Background(), &models.Recipient{ID: "r1"}, &Message{}); err == nil {
		t.Error("Send() without an email address should fail")
	}
}
