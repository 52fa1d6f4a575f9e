package cmd

import (
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/cascadehq/cascade/pkg/adapters"
	"github.com/cascadehq/cascade/pkg/adapters/slack"
	"github.com/cascadehq/cascade/pkg/adapters/smtp"
	"github.com/cascadehq/cascade/pkg/nodes/query"
	"github.com/cascadehq/cascade/pkg/registry"
	"github.com/cascadehq/cascade/pkg/workers"
)

// NewAdapterRegistry wires the delivery adapters configured through the
// environment. Channels without configuration stay unregistered; sending to
// them fails with ErrChannelNotConfigured instead of silently dropping.
func NewAdapterRegistry() *adapters.Registry {
	var configured []adapters.Adapter

	if webhookURL := os.Getenv("SLACK_WEBHOOK_URL"); webhookURL != "" {
		configured = append(configured, slack.New(webhookURL))
	}

	if addr := os.Getenv("SMTP_ADDR"); addr != "" {
		configured = append(configured, smtp.New(smtp.Config{
			Addr:     addr,
			From:     os.Getenv("SMTP_FROM"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		}))
	}

	return adapters.NewRegistry(configured...)
}

// NewRegistry builds the node handler registry. The query source is injected
// by the owning deployment; nil falls back to an empty in-memory source so
// query nodes validate but return no rows.
func NewRegistry(logger *slog.Logger, source query.DataSource, deliveries *adapters.Registry, templates adapters.TemplateResolver) *registry.Registry {
	if source == nil {
		source = &query.InMemorySource{}
	}

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultHandlers(source, deliveries, templates)

	return reg
}

// NewLease creates the execution lease. Workers coordinate through redis in
// production; an empty URL degrades to a process-local lease for
// single-worker deployments.
func NewLease(logger *slog.Logger, redisURL string) (workers.Lease, error) {
	if redisURL == "" {
		logger.Warn("No redis url configured, using process-local execution lease")

		return workers.NewLocalLease(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	return workers.NewRedisLease(redis.NewClient(opts)), nil
}
