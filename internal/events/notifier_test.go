package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// dialSubscriber connects a real WebSocket pair and registers the server
// side with the notifier.
func dialSubscriber(t *testing.T, n *Notifier) *websocket.Conn {
	t.Helper()

	registered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		n.Subscribe(conn)
		close(registered)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	<-registered
	return client
}

func TestPublishReachesSubscriber(t *testing.T) {
	notifier := NewNotifier()
	client := dialSubscriber(t, notifier)

	notifier.Publish(map[string]interface{}{
		"type":     EventTypeOrderSubmitted,
		"order_id": "777",
	})

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]interface{}
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, EventTypeOrderSubmitted, got["type"])
	assert.Equal(t, "777", got["order_id"])
}

func TestPublishToMultipleSubscribers(t *testing.T) {
	notifier := NewNotifier()
	first := dialSubscriber(t, notifier)
	second := dialSubscriber(t, notifier)
	require.Equal(t, 2, notifier.SubscriberCount())

	notifier.Publish(map[string]interface{}{"type": "ping"})

	for _, client := range []*websocket.Conn{first, second} {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]interface{}
		require.NoError(t, client.ReadJSON(&got))
		assert.Equal(t, "ping", got["type"])
	}
}

func TestPublishDropsDeadSubscriber(t *testing.T) {
	notifier := NewNotifier()
	client := dialSubscriber(t, notifier)
	require.Equal(t, 1, notifier.SubscriberCount())

	_ = client.Close()

	// The first write may still land in the OS buffer; publishing twice
	// guarantees the dead connection is detected.
	for i := 0; i < 5 && notifier.SubscriberCount() > 0; i++ {
		notifier.Publish(map[string]interface{}{"type": "ping"})
		time.Sleep(50 * time.Millisecond)
	}

	assert.Equal(t, 0, notifier.SubscriberCount())
}

func TestPublishWithNoSubscribers(t *testing.T) {
	notifier := NewNotifier()
	// Must not panic or block
	notifier.Publish(map[string]interface{}{"type": "ping"})
	assert.Equal(t, 0, notifier.SubscriberCount())
}

func TestUnsubscribe(t *testing.T) {
	notifier := NewNotifier()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		notifier.Subscribe(conn)
		notifier.Unsubscribe(conn)
		// Unsubscribing twice is a no-op
		notifier.Unsubscribe(conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.Eventually(t, func() bool {
		return notifier.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
