package tools

import (
	"context"
	"encoding/json"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

// Tool represents a callable capability exposed to the LLM.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string
	// Description returns a short human-readable summary.
	Description() string
	// Parameters returns the JSON-schema object describing the arguments.
	Parameters() map[string]interface{}
	// Execute performs the tool's action using decoded JSON arguments.
	Execute(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// HandlerFunc is the function signature for tool handlers.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// FunctionTool is a simple Tool implementation backed by a handler function.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]interface{}
	handler     HandlerFunc
}

// New creates a new function-backed Tool.
func New(name, description string, parameters map[string]interface{}, handler HandlerFunc) Tool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		handler:     handler,
	}
}

// Name returns the tool identifier.
func (t *FunctionTool) Name() string { return t.name }

// Description returns a human description of the tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTool) Parameters() map[string]interface{} {
	if t.parameters == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return t.parameters
}

// Execute runs the underlying handler.
func (t *FunctionTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if t.handler == nil {
		return nil, errors.Newf("tool %s has no handler", t.name)
	}
	return t.handler(ctx, args)
}

// objectSchema builds a JSON-schema object declaration.
func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func booleanProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func enumProp(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description, "enum": values}
}

func stringArrayProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}
