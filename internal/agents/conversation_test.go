package agents

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tengfei-Z/AiTrader/internal/adapters/ai"
)

func userMsg(content string) ai.Message {
	return ai.Message{Role: ai.RoleUser, Content: content}
}

func TestConversationFIFOEviction(t *testing.T) {
	store := NewConversationStore(3)

	for i := 0; i < 5; i++ {
		store.AddMessage("s1", userMsg(strconv.Itoa(i)))
	}

	history := store.GetHistory("s1", 0)
	require.Len(t, history, 3)
	assert.Equal(t, "2", history[0].Content)
	assert.Equal(t, "3", history[1].Content)
	assert.Equal(t, "4", history[2].Content)
}

func TestConversationHistoryLimit(t *testing.T) {
	store := NewConversationStore(10)
	for i := 0; i < 6; i++ {
		store.AddMessage("s1", userMsg(strconv.Itoa(i)))
	}

	history := store.GetHistory("s1", 2)
	require.Len(t, history, 2)
	assert.Equal(t, "4", history[0].Content)
	assert.Equal(t, "5", history[1].Content)
}

func TestConversationSessionsIsolated(t *testing.T) {
	store := NewConversationStore(10)
	store.AddMessage("a", userMsg("for a"))
	store.AddMessage("b", userMsg("for b"))

	require.Len(t, store.GetHistory("a", 0), 1)
	assert.Equal(t, "for a", store.GetHistory("a", 0)[0].Content)
	require.Len(t, store.GetHistory("b", 0), 1)
}

func TestConversationClearSession(t *testing.T) {
	store := NewConversationStore(10)
	store.AddMessage("s1", userMsg("hello"))
	store.ClearSession("s1")

	assert.Empty(t, store.GetHistory("s1", 0))
}

func TestConversationHistoryIsACopy(t *testing.T) {
	store := NewConversationStore(10)
	store.AddMessage("s1", userMsg("original"))

	history := store.GetHistory("s1", 0)
	history[0].Content = "mutated"

	assert.Equal(t, "original", store.GetHistory("s1", 0)[0].Content)
}

func TestConversationConcurrentAppends(t *testing.T) {
	store := NewConversationStore(20)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.AddMessage("s1", userMsg(strconv.Itoa(n)))
		}(i)
	}
	wg.Wait()

	// Capacity holds regardless of append volume
	assert.Len(t, store.GetHistory("s1", 0), 20)
}
