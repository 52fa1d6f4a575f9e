// Package query provides the query node: it reads domain records through an
// injected DataSource and stores the result set in a variable.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/cascadehq/cascade/pkg/conditions"
	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/nodes"
)

// Request describes one read against a domain data source.
type Request struct {
	Model          string
	OrganizationID string
	Filters        *models.ConditionGroup
	OrderBy        string
	Descending     bool
	Limit          int
	Offset         int
	Select         []string
}

// DataSource reads domain records (CRM contacts, deals, projects) for query
// nodes. Implementations live with the owning module; tests use an in-memory
// source.
type DataSource interface {
	Query(ctx context.Context, req Request) ([]map[string]any, error)
}

// InMemorySource is a DataSource over fixed records, used by tests and local
// development. Filtering, ordering, and paging run in process.
type InMemorySource struct {
	Records map[string][]map[string]any // model -> rows
}

// Query applies the request against the fixture records.
func (s *InMemorySource) Query(_ context.Context, req Request) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(s.Records[req.Model]))

	for _, row := range s.Records[req.Model] {
		if req.Filters != nil {
			keep, err := conditions.Evaluate(req.Filters, row)
			if err != nil {
				return nil, err
			}

			if !keep {
				continue
			}
		}

		rows = append(rows, row)
	}

	if req.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			less := compareValues(rows[i][req.OrderBy], rows[j][req.OrderBy])
			if req.Descending {
				return !less
			}

			return less
		})
	}

	if req.Offset > 0 {
		if req.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[req.Offset:]
		}
	}

	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}

	if len(req.Select) > 0 {
		projected := make([]map[string]any, len(rows))

		for i, row := range rows {
			fields := make(map[string]any, len(req.Select))

			for _, field := range req.Select {
				if value, ok := row[field]; ok {
					fields[field] = value
				}
			}

			projected[i] = fields
		}

		rows = projected
	}

	return rows, nil
}

func compareValues(a, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}

	return fmt.Sprint(a) < fmt.Sprint(b)
}

// Handler implements the query node.
type Handler struct {
	source DataSource
}

// NewHandler creates a query node handler reading through the given source.
func NewHandler(source DataSource) *Handler {
	return &Handler{source: source}
}

// Type returns the node type.
func (h *Handler) Type() models.NodeType {
	return models.NodeTypeQuery
}

// Schema returns the JSON schema for query node configuration.
func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"model": map[string]any{
				"type":        "string",
				"description": "Domain model to read (contacts, deals, tasks).",
				"minLength":   1,
			},
			"filters": map[string]any{
				"type":        "object",
				"description": "Condition tree applied by the data source.",
			},
			"order_by":   map[string]any{"type": "string"},
			"descending": map[string]any{"type": "boolean"},
			"limit":      map[string]any{"type": "integer", "minimum": 0},
			"offset":     map[string]any{"type": "integer", "minimum": 0},
			"select": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"result_key": map[string]any{
				"type":        "string",
				"description": "Variable receiving the result rows.",
				"minLength":   1,
			},
			"fallback_key": map[string]any{
				"type":        "string",
				"description": "Variable set to true when the query returned nothing.",
			},
		},
		"required": []string{"model", "result_key"},
	}
}

// Validate checks the model, result key, and filter tree.
func (h *Handler) Validate(config map[string]any) error {
	if _, err := nodes.RequireConfigString(config, "model"); err != nil {
		return err
	}

	if _, err := nodes.RequireConfigString(config, "result_key"); err != nil {
		return err
	}

	if _, err := nodes.ConfigConditionGroup(config, "filters"); err != nil {
		return err
	}

	return nil
}

// Execute runs the query and writes the rows to the result key. An empty
// result set also sets the fallback key when one is configured.
func (h *Handler) Execute(ctx context.Context, ec nodes.ExecContext) (*nodes.Result, error) {
	config := ec.Node.Config

	model, err := nodes.RequireConfigString(config, "model")
	if err != nil {
		return nil, err
	}

	resultKey, err := nodes.RequireConfigString(config, "result_key")
	if err != nil {
		return nil, err
	}

	filters, err := nodes.ConfigConditionGroup(config, "filters")
	if err != nil {
		return nil, err
	}

	rows, err := h.source.Query(ctx, Request{
		Model:          model,
		OrganizationID: ec.OrganizationID,
		Filters:        filters,
		OrderBy:        nodes.ConfigString(config, "order_by", ""),
		Descending:     nodes.ConfigBool(config, "descending", false),
		Limit:          nodes.ConfigInt(config, "limit", 0),
		Offset:         nodes.ConfigInt(config, "offset", 0),
		Select:         nodes.ConfigStrings(config, "select"),
	})
	if err != nil {
		return nil, fmt.Errorf("query failed for model %s: %w", model, err)
	}

	results := make([]any, len(rows))
	for i, row := range rows {
		results[i] = row
	}

	ec.Variables.Set(resultKey, results, ec.Node.NodeID)

	if len(results) == 0 {
		if fallbackKey := nodes.ConfigString(config, "fallback_key", ""); fallbackKey != "" {
			ec.Variables.Set(fallbackKey, true, ec.Node.NodeID)
		}
	}

	return &nodes.Result{
		Output: map[string]any{"count": len(results), "model": model},
	}, nil
}
