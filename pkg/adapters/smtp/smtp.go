// Package smtp delivers action payloads as email over plain SMTP.
package smtp

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/adapters"
)

// Config holds the SMTP endpoint and sender identity.
type Config struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// Adapter sends email through one SMTP endpoint.
type Adapter struct {
	config Config
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// New creates an SMTP email adapter.
func New(config Config) *Adapter {
	return &Adapter{config: config, send: smtp.SendMail}
}

// Channel returns the delivery channel this adapter serves.
func (a *Adapter) Channel() adapters.Channel {
	return adapters.ChannelEmail
}

// Send builds an RFC 822 message from the payload and hands it to the
// server. The context is checked before dialing; net/smtp does not take one.
func (a *Adapter) Send(ctx context.Context, payload *adapters.Payload) (*adapters.Delivery, error) {
	if len(payload.Recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", adapters.ErrDeliveryFailed)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var auth smtp.Auth
	if a.config.Username != "" {
		host := a.config.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}

		auth = smtp.PlainAuth("", a.config.Username, a.config.Password, host)
	}

	var message strings.Builder
	message.WriteString("From: " + a.config.From + "\r\n")
	message.WriteString("To: " + strings.Join(payload.Recipients, ", ") + "\r\n")
	message.WriteString("Subject: " + payload.Subject + "\r\n")
	message.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	message.WriteString(payload.Body)

	if err := a.send(a.config.Addr, auth, a.config.From, payload.Recipients, []byte(message.String())); err != nil {
		return nil, fmt.Errorf("%w: %w", adapters.ErrDeliveryFailed, err)
	}

	return &adapters.Delivery{
		ID:         uuid.New().String(),
		Channel:    adapters.ChannelEmail,
		Provider:   "smtp",
		Recipients: len(payload.Recipients),
		SentAt:     time.Now().UTC(),
	}, nil
}
