package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/ai"
	"github.com/Tengfei-Z/AiTrader/internal/tools"
	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

const analysisSystemPrompt = "You are an experienced quantitative trading analyst. " +
	"Use the available tools to inspect OKX market data before answering. Provide concise, " +
	"actionable insights grounded in the data you fetched."

const chatSystemPrompt = "You are a trading assistant for the OKX exchange. " +
	"Use the available tools to answer questions about market data, account state and orders. " +
	"Confirm order details before placing or canceling anything."

// Notifier announces completed order actions. Implementations are
// best-effort and never return an error.
type Notifier interface {
	Publish(payload map[string]interface{})
}

// Config tunes the orchestration loop.
type Config struct {
	MaxToolRounds   int
	HistoryLimit    int
	Temperature     float64
	ChatTemperature float64
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		MaxToolRounds:   10,
		HistoryLimit:    20,
		Temperature:     0.4,
		ChatTemperature: 0.7,
	}
}

// Analyzer drives the LLM through the bounded tool-calling loop and turns
// terminal responses into analysis summaries or chat replies.
type Analyzer struct {
	provider ai.ChatProvider
	registry *tools.Registry
	store    *ConversationStore
	notifier Notifier
	cfg      Config
	log      *logger.Logger
}

// NewAnalyzer constructs an analyzer over its collaborators.
func NewAnalyzer(provider ai.ChatProvider, registry *tools.Registry, store *ConversationStore, notifier Notifier, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = def.MaxToolRounds
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.ChatTemperature <= 0 {
		cfg.ChatTemperature = def.ChatTemperature
	}
	return &Analyzer{
		provider: provider,
		registry: registry,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      logger.Get().With("component", "analyzer"),
	}
}

// Analyze runs one analysis request through the loop. History and order
// notifications are only touched on successful termination.
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error) {
	if req.Message == "" {
		return nil, errors.Wrap(errors.ErrValidation, "message is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	messages := []ai.Message{{Role: ai.RoleSystem, Content: analysisSystemPrompt}}
	messages = append(messages, a.store.GetHistory(sessionID, a.cfg.HistoryLimit)...)
	if req.InstID != "" {
		messages = append(messages, ai.Message{
			Role:    ai.RoleUser,
			Content: fmt.Sprintf("Focus your analysis on the instrument %s.", req.InstID),
		})
	}
	userMessage := ai.Message{Role: ai.RoleUser, Content: req.Message}
	messages = append(messages, userMessage)

	result, err := a.runLoop(ctx, messages, a.cfg.Temperature)
	if err != nil {
		return nil, err
	}

	a.store.AddMessage(sessionID, userMessage)
	a.store.AddMessage(sessionID, ai.Message{Role: ai.RoleAssistant, Content: result.content})
	a.publishOrders(result.orders)

	return &AnalyzeResponse{
		Summary:     result.content,
		Suggestions: extractSuggestions(result.content),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Chat runs one conversational turn through the same loop.
func (a *Analyzer) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Message == "" {
		return nil, errors.Wrap(errors.ErrValidation, "message is required")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "default"
	}

	system := req.SystemPrompt
	if system == "" {
		system = chatSystemPrompt
	}
	messages := []ai.Message{{Role: ai.RoleSystem, Content: system}}
	if req.UseHistory {
		limit := req.HistoryLimit
		if limit <= 0 {
			limit = a.cfg.HistoryLimit
		}
		messages = append(messages, a.store.GetHistory(sessionID, limit)...)
	}
	userMessage := ai.Message{Role: ai.RoleUser, Content: req.Message}
	messages = append(messages, userMessage)

	result, err := a.runLoop(ctx, messages, a.cfg.ChatTemperature)
	if err != nil {
		return nil, err
	}

	a.store.AddMessage(sessionID, userMessage)
	a.store.AddMessage(sessionID, ai.Message{Role: ai.RoleAssistant, Content: result.content})
	a.publishOrders(result.orders)

	return &ChatResponse{
		SessionID: sessionID,
		Reply:     result.content,
		Usage:     result.usage,
	}, nil
}

// ClearSession drops a session's conversation history.
func (a *Analyzer) ClearSession(sessionID string) {
	a.store.ClearSession(sessionID)
}

type loopResult struct {
	content string
	orders  []OrderEvent
	usage   ai.Usage
}

// runLoop is the core state machine: dispatch to the LLM, execute any
// requested tools in order, fold results back into the message list, and
// repeat. The iteration cap forces termination with the last assistant
// content even if tool calls are still pending.
func (a *Analyzer) runLoop(ctx context.Context, messages []ai.Message, temperature float64) (*loopResult, error) {
	result := &loopResult{}
	definitions := a.registry.Definitions()

	for round := 0; round < a.cfg.MaxToolRounds; round++ {
		resp, err := a.provider.Chat(ctx, ai.ChatRequest{
			Messages:    messages,
			Tools:       definitions,
			ToolChoice:  "auto",
			Temperature: temperature,
		})
		if err != nil {
			return nil, err
		}
		accumulateUsage(&result.usage, resp.Usage)

		msg := resp.First()
		if len(msg.ToolCalls) == 0 {
			result.content = msg.Content
			return result, nil
		}
		if msg.Content != "" {
			result.content = msg.Content
		}

		// Echo the assistant message so every tool result has its request
		// on record before the next dispatch.
		messages = append(messages, msg)

		for _, call := range msg.ToolCalls {
			toolResult, err := a.registry.Call(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				return nil, err
			}

			payload, err := json.Marshal(toolResult)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrExternalService, "encode result of %s: %v", call.Function.Name, err)
			}

			a.log.Infow("tool executed",
				"tool", call.Function.Name,
				"tool_call_id", call.ID,
				"round", round,
			)

			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				Content:    string(payload),
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})

			if call.Function.Name == "place_order" {
				if orderID := extractOrderID(payload); orderID != "" {
					result.orders = append(result.orders, OrderEvent{
						Tool:    call.Function.Name,
						OrderID: orderID,
					})
				} else {
					a.log.Warnw("order result without recognizable id", "tool", call.Function.Name)
				}
			}
		}
	}

	a.log.Warnw("iteration cap reached, forcing termination", "rounds", a.cfg.MaxToolRounds)
	return result, nil
}

func (a *Analyzer) publishOrders(orders []OrderEvent) {
	if a.notifier == nil {
		return
	}
	for _, order := range orders {
		a.notifier.Publish(map[string]interface{}{
			"type":     "order_submitted",
			"tool":     order.Tool,
			"order_id": order.OrderID,
		})
	}
}

func accumulateUsage(total *ai.Usage, u ai.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

// extractOrderID digs an order identifier out of an exchange acknowledgment,
// accepting the common key variants. The payload may be a single object or a
// one-element array of objects.
func extractOrderID(payload []byte) string {
	keys := []string{"ordId", "orderId", "order_id"}

	lookup := func(obj map[string]interface{}) string {
		for _, key := range keys {
			if v, ok := obj[key].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err == nil {
		if id := lookup(obj); id != "" {
			return id
		}
		if data, ok := obj["data"].([]interface{}); ok && len(data) > 0 {
			if inner, ok := data[0].(map[string]interface{}); ok {
				return lookup(inner)
			}
		}
		return ""
	}

	var list []map[string]interface{}
	if err := json.Unmarshal(payload, &list); err == nil && len(list) > 0 {
		return lookup(list[0])
	}
	return ""
}
