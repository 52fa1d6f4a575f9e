// Package adapters defines the provider-agnostic delivery contracts used by
// action nodes. Concrete integrations (SMTP, Twilio, Slack apps, calendar
// providers) implement Adapter behind these types and are injected at wiring
// time.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel identifies a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSlack    Channel = "slack"
	ChannelCalendar Channel = "calendar"
)

// AllChannels lists every supported delivery channel.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelSlack, ChannelCalendar}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, channel := range AllChannels {
		if channel == c {
			return true
		}
	}

	return false
}

// ErrChannelNotConfigured indicates no adapter is registered for a channel.
var ErrChannelNotConfigured = errors.New("no adapter configured for channel")

// ErrDeliveryFailed indicates the provider rejected or dropped the payload.
var ErrDeliveryFailed = errors.New("delivery failed")

// Payload is the provider-agnostic message an action node hands to an
// adapter. Fields not meaningful for a channel stay empty; Metadata carries
// channel specifics (calendar times, slack blocks) without widening the type.
type Payload struct {
	Channel    Channel        `json:"channel"`
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject,omitempty"`
	Body       string         `json:"body"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

// Delivery is the adapter's terminal outcome for one payload.
type Delivery struct {
	ID         string    `json:"id"`
	Channel    Channel   `json:"channel"`
	Provider   string    `json:"provider"`
	Recipients int       `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

// Adapter sends a payload through one delivery channel.
type Adapter interface {
	Channel() Channel
	Send(ctx context.Context, payload *Payload) (*Delivery, error)
}

// Template is a reusable message body referenced by id from action configs.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// ErrTemplateNotFound indicates an action referenced an unknown template id.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateResolver looks up message templates for TEMPLATE-mode actions.
type TemplateResolver interface {
	Resolve(ctx context.Context, templateID string) (*Template, error)
}

// Registry holds one adapter per channel.
type Registry struct {
	adapters map[Channel]Adapter
}

// NewRegistry creates an adapter registry from the given adapters. A later
// adapter for the same channel replaces the earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[Channel]Adapter, len(adapters))}

	for _, adapter := range adapters {
		registry.adapters[adapter.Channel()] = adapter
	}

	return registry
}

// Adapter returns the adapter registered for the channel.
func (r *Registry) Adapter(channel Channel) (Adapter, error) {
	adapter, ok := r.adapters[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, channel)
	}

	return adapter, nil
}
