// Package registry maps node types to their handlers and validates node
// configurations before save and before execution.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// ErrHandlerNotRegistered indicates no handler is registered for a node type.
var ErrHandlerNotRegistered = errors.New("node type not registered")

// ErrConfigRejected indicates a node config failed schema validation.
var ErrConfigRejected = errors.New("node configuration rejected")

// Registry holds one handler per node type.
type Registry struct {
	logger   *slog.Logger
	handlers map[models.NodeType]nodes.Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		handlers: make(map[models.NodeType]nodes.Handler),
	}
}

// Register adds a handler, replacing any previous handler of the same type.
func (r *Registry) Register(handler nodes.Handler) {
	r.handlers[handler.Type()] = handler
}

// Handler returns the handler for a node type.
func (r *Registry) Handler(nodeType models.NodeType) (nodes.Handler, error) {
	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, nodeType)
	}

	return handler, nil
}

// Types returns the registered node types.
func (r *Registry) Types() []models.NodeType {
	types := make([]models.NodeType, 0, len(r.handlers))
	for nodeType := range r.handlers {
		types = append(types, nodeType)
	}

	return types
}

// ValidateConfig checks a config against the handler's JSON schema and then
// its semantic Validate. Trigger nodes carry no handler and validate to true.
func (r *Registry) ValidateConfig(nodeType models.NodeType, config map[string]any) error {
	if nodeType == models.NodeTypeTrigger {
		return nil
	}

	handler, err := r.Handler(nodeType)
	if err != nil {
		return err
	}

	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(handler.Schema())
	configLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, configLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", nodeType, err)
	}

	if !result.Valid() {
		messages := make([]string, len(result.Errors()))
		for i, issue := range result.Errors() {
			messages[i] = issue.String()
		}

		return fmt.Errorf("%w: %s: %s", ErrConfigRejected, nodeType, strings.Join(messages, "; "))
	}

	return handler.Validate(config)
}

// ValidateNode validates a node's type and configuration.
func (r *Registry) ValidateNode(node *models.WorkflowNode) error {
	if !node.Type.Valid() {
		return fmt.Errorf("%w: %s", ErrHandlerNotRegistered, node.Type)
	}

	return r.ValidateConfig(node.Type, node.Config)
}
