package models

import "time"

// DataType classifies a variable value for type-checked reads.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeObject  DataType = "object"
	DataTypeArray   DataType = "array"
	DataTypeNull    DataType = "null"
)

// VariableSourceTrigger and VariableSourceAPI are the non-node variable
// origins; node-written variables use the node id as source.
const (
	VariableSourceTrigger = "trigger"
	VariableSourceAPI     = "api"
)

// ExecutionVariable is a typed value scoped to one execution, passed between
// nodes by resultKey/sourceKey references.
type ExecutionVariable struct {
	ExecutionID string    `json:"execution_id" validate:"required"`
	Name        string    `json:"name"         validate:"required,min=1"`
	Value       any       `json:"value"`
	DataType    DataType  `json:"data_type"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InferDataType classifies a decoded JSON value.
func InferDataType(value any) DataType {
	switch value.(type) {
	case nil:
		return DataTypeNull
	case string:
		return DataTypeString
	case bool:
		return DataTypeBoolean
	case int, int32, int64, float32, float64:
		return DataTypeNumber
	case []any:
		return DataTypeArray
	case map[string]any:
		return DataTypeObject
	default:
		return DataTypeObject
	}
}
