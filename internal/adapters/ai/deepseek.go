package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

// Ensure DeepSeekProvider implements ChatProvider
var _ ChatProvider = (*DeepSeekProvider)(nil)

// DeepSeekProvider speaks the OpenAI-compatible DeepSeek chat API.
type DeepSeekProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewDeepSeekProvider creates a new DeepSeek chat provider. baseURL may omit
// the /v1 suffix; it is appended when absent.
func NewDeepSeekProvider(apiKey, baseURL, model string, timeout time.Duration) (*DeepSeekProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrConfiguration, "deepseek API key is required")
	}
	if model == "" {
		model = "deepseek-chat"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.deepseek.com"
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}

	return &DeepSeekProvider{
		apiKey:     apiKey,
		baseURL:    base,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Get().With("component", "deepseek"),
	}, nil
}

// Name returns the provider name.
func (p *DeepSeekProvider) Name() string { return "deepseek" }

// Chat sends a chat completion request to the DeepSeek API.
func (p *DeepSeekProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	wireReq := p.toWire(req)

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, errors.Wrap(err, "marshal deepseek request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create deepseek request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.log.Debugw("deepseek chat request",
		"model", wireReq.Model,
		"messages", len(wireReq.Messages),
		"tools", len(wireReq.Tools),
	)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExternalService, "send deepseek request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExternalService, "read deepseek response: %v", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrapf(errors.ErrRateLimited, "deepseek: %s", strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, errors.Wrapf(errors.ErrExternalService, "deepseek API error (%d): %s - %s",
				resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, errors.Wrapf(errors.ErrExternalService, "deepseek API error (%d): %s",
			resp.StatusCode, string(respBody))
	}

	var wireResp wireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, errors.Wrapf(errors.ErrExternalService, "unmarshal deepseek response: %v", err)
	}

	return p.fromWire(&wireResp), nil
}

// OpenAI-compatible wire types

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string           `json:"tool_choice,omitempty"`
}

type wireChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

func (p *DeepSeekProvider) toWire(req ChatRequest) wireRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	return wireRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	}
}

func (p *DeepSeekProvider) fromWire(resp *wireResponse) *ChatResponse {
	out := &ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: resp.Usage,
	}
	for _, choice := range resp.Choices {
		finish := FinishReasonStop
		switch choice.FinishReason {
		case "length":
			finish = FinishReasonLength
		case "tool_calls", "function_call":
			finish = FinishReasonToolCalls
		}
		out.Choices = append(out.Choices, Choice{
			Index:        choice.Index,
			Message:      choice.Message,
			FinishReason: finish,
		})
	}
	return out
}
