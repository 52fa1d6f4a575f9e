package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowError_WrapsSentinel(t *testing.T) {
	err := NewWorkflowError("GetByID", "wf-1", ErrWorkflowNotFound)

	assert.True(t, IsWorkflowNotFound(err))
	assert.True(t, errors.Is(err, ErrWorkflowNotFound))
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "wf-1")
}

func TestExecutionError_NodeContext(t *testing.T) {
	err := &ExecutionError{Op: "UpdateNodeExecution", ExecutionID: "exec-1", NodeID: "node-a", Err: ErrNodeExecutionNotFound}

	assert.Contains(t, err.Error(), "node-a")
	assert.True(t, errors.Is(err, ErrNodeExecutionNotFound))
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(fmt.Errorf("save: %w", ErrDuplicateNode)))
	assert.True(t, IsDuplicateKey(ErrDuplicateConnection))
	assert.False(t, IsDuplicateKey(ErrWorkflowNotFound))
}
