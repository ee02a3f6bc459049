package agents

import (
	"strings"
	"time"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/ai"
)

// AnalyzeRequest asks for one analysis run of the orchestration loop.
type AnalyzeRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	InstID    string `json:"inst_id,omitempty"`
}

// AnalyzeResponse is the terminal output of a successful analysis run.
type AnalyzeResponse struct {
	Summary     string    `json:"summary"`
	Suggestions []string  `json:"suggestions"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatRequest is a session-scoped conversational turn through the same
// tool-calling loop.
type ChatRequest struct {
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	UseHistory   bool   `json:"use_history"`
	HistoryLimit int    `json:"history_limit,omitempty"`
}

// ChatResponse carries the assistant reply and token accounting.
type ChatResponse struct {
	SessionID string   `json:"session_id"`
	Reply     string   `json:"reply"`
	Usage     ai.Usage `json:"usage"`
}

// OrderEvent records an order acknowledgment produced during a loop run,
// for event notification after successful termination.
type OrderEvent struct {
	Tool    string `json:"tool"`
	OrderID string `json:"order_id"`
}

// extractSuggestions pulls list-item lines out of a summary. A line counts
// when, after trimming, it starts with "-", "1", "2" or "3"; the bullet
// prefix is stripped from the result.
func extractSuggestions(summary string) []string {
	var suggestions []string
	for _, line := range strings.Split(summary, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		switch trimmed[0] {
		case '-', '1', '2', '3':
			cleaned := strings.TrimSpace(strings.Trim(trimmed, "- "))
			if cleaned != "" {
				suggestions = append(suggestions, cleaned)
			}
		}
	}
	return suggestions
}
