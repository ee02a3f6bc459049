package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/ai"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

// Registry stores tools by name for discovery and dispatch.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds or replaces a tool under its own name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name if registered.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the names of all registered tools, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the registry as LLM function declarations.
func (r *Registry) Definitions() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ai.ToolDefinition{
			Type: "function",
			Function: ai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Function.Name < defs[j].Function.Name
	})
	return defs
}

// Call dispatches a tool by name. Arguments may arrive as a JSON-encoded
// string, raw bytes, or an already-decoded map; anything that is not valid
// JSON is a validation error.
func (r *Registry) Call(ctx context.Context, name string, args interface{}) (interface{}, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownTool, "%s", name)
	}

	raw, err := normalizeArgs(args)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrValidation, "tool %s: %v", name, err)
	}

	return tool.Execute(ctx, raw)
}

func normalizeArgs(args interface{}) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(v) {
			return nil, errors.Newf("malformed JSON arguments: %q", string(v))
		}
		return v, nil
	case string:
		if v == "" {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid([]byte(v)) {
			return nil, errors.Newf("malformed JSON arguments: %q", v)
		}
		return json.RawMessage(v), nil
	case []byte:
		return normalizeArgs(json.RawMessage(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrap(err, "encode arguments")
		}
		return raw, nil
	}
}
