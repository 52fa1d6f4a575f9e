// Package slack delivers action payloads to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/adapters"
)

const (
	defaultTimeout = 30 * time.Second
	maxAttempts    = 3
	retryDelay     = time.Second
)

// Adapter posts messages to a Slack incoming webhook URL. Recipients are
// channel names passed through the payload; an empty list posts to the
// webhook's default channel.
type Adapter struct {
	webhookURL string
	client     *http.Client
}

// New creates a Slack adapter for one incoming webhook.
func New(webhookURL string) *Adapter {
	return &Adapter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

// Channel returns the delivery channel this adapter serves.
func (a *Adapter) Channel() adapters.Channel {
	return adapters.ChannelSlack
}

// Send posts the payload, retrying transient failures with a flat delay.
func (a *Adapter) Send(ctx context.Context, payload *adapters.Payload) (*adapters.Delivery, error) {
	message := map[string]any{"text": payload.Body}

	if payload.Subject != "" {
		message["text"] = fmt.Sprintf("*%s*\n%s", payload.Subject, payload.Body)
	}

	if blocks, ok := payload.Metadata["blocks"]; ok {
		message["blocks"] = blocks
	}

	channels := payload.Recipients
	if len(channels) == 0 {
		channels = []string{""}
	}

	for _, channel := range channels {
		if channel != "" {
			message["channel"] = channel
		}

		if err := a.post(ctx, message); err != nil {
			return nil, fmt.Errorf("%w: %w", adapters.ErrDeliveryFailed, err)
		}
	}

	return &adapters.Delivery{
		ID:         uuid.New().String(),
		Channel:    adapters.ChannelSlack,
		Provider:   "slack-webhook",
		Recipients: len(channels),
		SentAt:     time.Now().UTC(),
	}, nil
}

func (a *Adapter) post(ctx context.Context, message map[string]any) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var lastErr error

	for attempt := range maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			lastErr = err

			continue
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("slack returned status %d", resp.StatusCode)

		// Client errors are not retryable.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}

	return lastErr
}
