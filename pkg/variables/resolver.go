// Package variables provides the typed, execution-scoped variable store that
// node handlers read their inputs from and merge their outputs into.
package variables

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cascadehq/cascade/pkg/models"
)

var (
	// ErrVariableNotFound indicates a resultKey/sourceKey reference that no
	// upstream node or trigger produced.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrTypeMismatch indicates a typed read against a value of another type.
	ErrTypeMismatch = errors.New("variable type mismatch")
)

// Resolver holds the variables of a single execution. Writes merge node
// outputs; reads are type checked. Safe for concurrent use so loop iterations
// of independent executions can share nothing but still reuse the type.
type Resolver struct {
	executionID string

	mu     sync.RWMutex
	values map[string]*models.ExecutionVariable
}

// NewResolver creates a resolver seeded with any pre-existing variables, for
// example when resuming a suspended execution from persisted state.
func NewResolver(executionID string, seed []*models.ExecutionVariable) *Resolver {
	values := make(map[string]*models.ExecutionVariable, len(seed))
	for _, variable := range seed {
		values[variable.Name] = variable
	}

	return &Resolver{
		executionID: executionID,
		values:      values,
	}
}

// Set writes one variable, inferring its data type.
func (r *Resolver) Set(name string, value any, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[name] = &models.ExecutionVariable{
		ExecutionID: r.executionID,
		Name:        name,
		Value:       value,
		DataType:    models.InferDataType(value),
		Source:      source,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Merge writes a node's variable updates, last writer wins per name.
func (r *Resolver) Merge(updates map[string]any, source string) {
	for name, value := range updates {
		r.Set(name, value, source)
	}
}

// Get returns the raw value of a variable.
func (r *Resolver) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variable, ok := r.values[name]
	if !ok {
		return nil, false
	}

	return variable.Value, true
}

// GetTyped returns a variable value, failing when the stored type differs
// from the requested one.
func (r *Resolver) GetTyped(name string, want models.DataType) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	variable, ok := r.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}

	if variable.DataType != want {
		return nil, fmt.Errorf("%w: %q is %s, want %s", ErrTypeMismatch, name, variable.DataType, want)
	}

	return variable.Value, nil
}

// GetArray is a typed read for the array-valued inputs of LOOP and FILTER.
func (r *Resolver) GetArray(name string) ([]any, error) {
	value, err := r.GetTyped(name, models.DataTypeArray)
	if err != nil {
		return nil, err
	}

	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q holds %T", ErrTypeMismatch, name, value)
	}

	return items, nil
}

// Snapshot returns the current values as a document for condition evaluation
// and templating. The map is a copy; mutating it does not affect the store.
func (r *Resolver) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := make(map[string]any, len(r.values))
	for name, variable := range r.values {
		doc[name] = variable.Value
	}

	return doc
}

// Variables returns the stored variables sorted by name, for persistence.
func (r *Resolver) Variables() []*models.ExecutionVariable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.ExecutionVariable, 0, len(r.values))
	for _, variable := range r.values {
		out = append(out, variable)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
