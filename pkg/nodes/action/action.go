// Package action provides the action node: it builds a provider-agnostic
// delivery payload from TEMPLATE or CUSTOM content and hands it to the
// channel's adapter. The adapter outcome is the node's terminal result.
package action

import (
	"context"
	"fmt"

	"github.com/cascadehq/cascade/pkg/adapters"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// Content modes.
const (
	ContentModeTemplate = "template"
	ContentModeCustom   = "custom"
)

// Handler implements the action node.
type Handler struct {
	registry  *adapters.Registry
	templates adapters.TemplateResolver
}

// NewHandler creates an action node handler delivering through the registry.
func NewHandler(registry *adapters.Registry, templates adapters.TemplateResolver) *Handler {
	return &Handler{registry: registry, templates: templates}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeAction
}

// Schema returns the JSON schema for action node configuration.
func (h *Handler) Schema() map[string]any {
	channels := make([]string, len(adapters.AllChannels))
	for i, channel := range adapters.AllChannels {
		channels[i] = string(channel)
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"channel": map[string]any{
				"type": "string",
				"enum": channels,
			},
			"content_mode": map[string]any{
				"type": "string",
				"enum": []string{ContentModeTemplate, ContentModeCustom},
			},
			"template_id": map[string]any{
				"type":        "string",
				"description": "Template reference, required in template mode.",
			},
			"subject": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
			"recipients": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Static recipients. Entries referencing variables are resolved at run time.",
			},
			"recipients_key": map[string]any{
				"type":        "string",
				"description": "Variable holding additional recipients.",
			},
			"metadata": map[string]any{"type": "object"},
		},
		"required": []string{"channel", "content_mode"},
	}
}

// Validate checks the channel and the fields the content mode requires.
func (h *Handler) Validate(config map[string]any) error {
	channel, err := nodes.RequireConfigString(config, "channel")
	if err != nil {
		return err
	}

	if !adapters.Channel(channel).Valid() {
		return fmt.Errorf("%w: unknown channel %q", nodes.ErrInvalidConfig, channel)
	}

	mode, err := nodes.RequireConfigString(config, "content_mode")
	if err != nil {
		return err
	}

	switch mode {
	case ContentModeTemplate:
		if _, err := nodes.RequireConfigString(config, "template_id"); err != nil {
			return err
		}
	case ContentModeCustom:
		if _, err := nodes.RequireConfigString(config, "body"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown content_mode %q", nodes.ErrInvalidConfig, mode)
	}

	if len(nodes.ConfigStrings(config, "recipients")) == 0 &&
		nodes.ConfigString(config, "recipients_key", "") == "" {
		return fmt.Errorf("%w: recipients or recipients_key is required", nodes.ErrInvalidConfig)
	}

	return nil
}

// Execute resolves content and recipients, renders variable placeholders,
// and sends through the channel adapter.
func (h *Handler) Execute(ctx context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	config := ec.Node.Config

	if err := h.Validate(config); err != nil {
		return nil, err
	}

	channel := adapters.Channel(nodes.ConfigString(config, "channel", ""))

	adapter, err := h.registry.Adapter(channel)
	if err != nil {
		return nil, err
	}

	subject, body, err := h.resolveContent(ctx, config)
	if err != nil {
		return nil, err
	}

	recipients, err := h.resolveRecipients(config, ec)
	if err != nil {
		return nil, err
	}

	scope := ec.Variables.Snapshot()
	if ec.TriggerData != nil {
		scope["trigger"] = ec.TriggerData
	}

	payload := &adapters.Payload{
		Channel:     channel,
		Recipients:  recipients,
		Subject:     Render(subject, scope),
		Body:        Render(body, scope),
		WorkflowID:  ec.WorkflowID,
		ExecutionID: ec.ExecutionID,
		NodeID:      ec.Node.NodeID,
	}

	if metadata, ok := config["metadata"].(map[string]any); ok {
		payload.Metadata = metadata
	}

	delivery, err := adapter.Send(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: channel %s: %w", adapters.ErrDeliveryFailed, channel, err)
	}

	return &nodes.Result{
		Output: map[string]any{
			"delivery_id": delivery.ID,
			"channel":     string(delivery.Channel),
			"provider":    delivery.Provider,
			"recipients":  delivery.Recipients,
			"sent_at":     delivery.SentAt,
		},
	}, nil
}

func (h *Handler) resolveContent(ctx context.Context, config map[string]any) (subject, body string, err error) {
	if nodes.ConfigString(config, "content_mode", "") == ContentModeTemplate {
		templateID := nodes.ConfigString(config, "template_id", "")

		template, err := h.templates.Resolve(ctx, templateID)
		if err != nil {
			return "", "", fmt.Errorf("template %s: %w", templateID, err)
		}

		return template.Subject, template.Body, nil
	}

	return nodes.ConfigString(config, "subject", ""), nodes.ConfigString(config, "body", ""), nil
}

func (h *Handler) resolveRecipients(config map[string]any, ec nodes.ExecContext) ([]string, error) {
	recipients := nodes.ConfigStrings(config, "recipients")

	if key := nodes.ConfigString(config, "recipients_key", ""); key != "" {
		values, err := ec.Variables.GetArray(key)
		if err != nil {
			return nil, err
		}

		for _, value := range values {
			if recipient, ok := value.(string); ok && recipient != "" {
				recipients = append(recipients, recipient)
			}
		}
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients resolved", adapters.ErrDeliveryFailed)
	}

	return recipients, nil
}
