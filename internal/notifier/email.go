package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/good-yellow-bee/tuskguard/internal/models"
)

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host     string // SMTP server host
	Port     int    // SMTP server port (465 for implicit TLS, 587 for STARTTLS)
	Username string // SMTP username (optional)
	Password string // SMTP password (optional)
	From     string // From address
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	return nil
}

// EmailSender delivers alerts over SMTP.
type EmailSender struct {
	config EmailConfig
}

// NewEmailSender creates a new email sender.
func NewEmailSender(config EmailConfig) (*EmailSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}
	return &EmailSender{config: config}, nil
}

// Channel returns the email channel.
func (e *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send sends the message to the recipient's address.
func (e *EmailSender) Send(ctx context.Context, recipient *models.Recipient, msg *Message) error {
	if recipient.Email == "" {
		return fmt.Errorf("recipient %s has no email address", recipient.ID)
	}
	plain := msg.Text
	if plain == "" {
		plain = msg.SMS
	}
	body, err := e.buildMIMEMessage(recipient.Email, msg.Subject, plain, msg.HTML)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}
	return e.sendMail(ctx, recipient.Email, body)
}

// Close is a no-op; each alert opens its own SMTP session.
func (e *EmailSender) Close() error {
	return nil
}

// buildMIMEMessage renders a multipart/alternative message carrying the
// plain text and HTML bodies.
func (e *EmailSender) buildMIMEMessage(to, subject, plainBody, htmlBody string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=UTF-8", plainBody},
		{"text/html; charset=UTF-8", htmlBody},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendMail delivers one message. Port 465 uses implicit TLS; other ports
// upgrade with STARTTLS when the server offers it.
func (e *EmailSender) sendMail(ctx context.Context, to string, msg []byte) error {
	client, err := e.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer client.Close()

	if e.config.Username != "" && e.config.Password != "" {
		auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}

	if err := client.Mail(envelopeAddress(e.config.From)); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(envelopeAddress(to)); err != nil {
		return fmt.Errorf("add recipient %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

func (e *EmailSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))
	tlsConfig := &tls.Config{ServerName: e.config.Host, MinVersion: tls.VersionTLS12}
	netDialer := &net.Dialer{Timeout: 30 * time.Second}

	var (
		conn net.Conn
		err  error
	)
	if e.config.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	// The dispatcher bounds each delivery with a context deadline.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if e.config.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	return client, nil
}

// envelopeAddress returns the bare address of "Name <addr>" for SMTP
// envelope commands.
func envelopeAddress(addr string) string {
	if a, err := mail.ParseAddress(addr); err == nil {
		return a.Address
	}
	return addr
}
