package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

func echoTool(name string) Tool {
	return New(name, "echoes its arguments",
		objectSchema(map[string]interface{}{
			"value": stringProp("value to echo"),
		}, "value"),
		func(_ context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, errors.Wrapf(errors.ErrValidation, "decode: %v", err)
			}
			return in.Value, nil
		})
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.Register(echoTool("echo"))

	tool, ok := registry.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry()
	registry.Register(echoTool("b_tool"))
	registry.Register(echoTool("a_tool"))

	assert.Equal(t, []string{"a_tool", "b_tool"}, registry.List())
}

func TestRegistryDefinitions(t *testing.T) {
	registry := NewRegistry()
	registry.Register(echoTool("echo"))

	defs := registry.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "echo", defs[0].Function.Name)
	assert.Equal(t, "echoes its arguments", defs[0].Function.Description)

	schema := defs[0].Function.Parameters
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema, "properties")
	assert.Equal(t, []string{"value"}, schema["required"])
}

func TestRegistryCallStringArguments(t *testing.T) {
	registry := NewRegistry()
	registry.Register(echoTool("echo"))

	result, err := registry.Call(context.Background(), "echo", `{"value":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistryCallMapArguments(t *testing.T) {
	registry := NewRegistry()
	registry.Register(echoTool("echo"))

	result, err := registry.Call(context.Background(), "echo", map[string]interface{}{"value": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRegistryCallEmptyArguments(t *testing.T) {
	registry := NewRegistry()
	registry.Register(New("noargs", "takes nothing", nil,
		func(_ context.Context, args json.RawMessage) (interface{}, error) {
			assert.JSONEq(t, `{}`, string(args))
			return "ok", nil
		}))

	result, err := registry.Call(context.Background(), "noargs", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestRegistryCallMalformedJSON(t *testing.T) {
	registry := NewRegistry()
	registry.Register(echoTool("echo"))

	_, err := registry.Call(context.Background(), "echo", `{not-json]`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestRegistryCallUnknownTool(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Call(context.Background(), "nope", `{}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownTool))
	assert.Contains(t, err.Error(), "nope")
}

func TestRegisterAllExposesFullSurface(t *testing.T) {
	registry := NewRegistry()
	RegisterAll(registry, Deps{})

	expected := []string{
		"cancel_order",
		"get_balance",
		"get_candles",
		"get_instruments",
		"get_open_orders",
		"get_order_book",
		"get_order_history",
		"get_positions",
		"get_ticker",
		"get_tickers",
		"place_order",
	}
	assert.Equal(t, expected, registry.List())

	defs := registry.Definitions()
	require.Len(t, defs, len(expected))
	for _, def := range defs {
		assert.Equal(t, "function", def.Type)
		assert.NotEmpty(t, def.Function.Description, def.Function.Name)
		assert.Equal(t, "object", def.Function.Parameters["type"], def.Function.Name)
	}
}
