package smtp

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadehq/cascade/pkg/adapters"
)

func TestSend_BuildsMessage(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)

	adapter := New(Config{Addr: "mail.example.com:587", From: "noreply@example.com"})
	adapter.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)

		return nil
	}

	delivery, err := adapter.Send(context.Background(), &adapters.Payload{
		Channel:    adapters.ChannelEmail,
		Recipients: []string{"ops@example.com"},
		Subject:    "Weekly report",
		Body:       "All green.",
	})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Weekly report")
	assert.Contains(t, gotMsg, "All green.")
	assert.Equal(t, 1, delivery.Recipients)
}

func TestSend_RequiresRecipients(t *testing.T) {
	adapter := New(Config{Addr: "mail.example.com:587", From: "noreply@example.com"})

	_, err := adapter.Send(context.Background(), &adapters.Payload{Body: "nobody home"})
	require.ErrorIs(t, err, adapters.ErrDeliveryFailed)
}
