// Package events broadcasts order and task notifications to WebSocket
// subscribers. Delivery is best-effort: a subscriber that cannot be written
// to is dropped, and publishing never fails the caller.
package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tengfei-Z/AiTrader/pkg/logger"
)

// EventTypeOrderSubmitted marks order acknowledgments from the loop.
const EventTypeOrderSubmitted = "order_submitted"

const writeTimeout = 5 * time.Second

// Notifier maintains the process-wide subscriber set.
type Notifier struct {
	subscribers map[*websocket.Conn]struct{}
	mu          sync.Mutex
	log         *logger.Logger
}

// NewNotifier constructs an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[*websocket.Conn]struct{}),
		log:         logger.Get().With("component", "events"),
	}
}

// Subscribe registers a connection for broadcasts. The caller keeps
// ownership of the read side.
func (n *Notifier) Subscribe(conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers[conn] = struct{}{}
	n.log.Debugw("subscriber added", "total", len(n.subscribers))
}

// Unsubscribe removes and closes a connection.
func (n *Notifier) Unsubscribe(conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subscribers[conn]; !ok {
		return
	}
	delete(n.subscribers, conn)
	_ = conn.Close()
	n.log.Debugw("subscriber removed", "total", len(n.subscribers))
}

// SubscriberCount reports the current number of subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

// Publish broadcasts a JSON payload to every subscriber. Write failures are
// logged and the failed subscriber dropped; the error never reaches the
// caller.
func (n *Notifier) Publish(payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for conn := range n.subscribers {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			n.log.Warnw("dropping unreachable subscriber", "error", err)
			delete(n.subscribers, conn)
			_ = conn.Close()
		}
	}
}

// Close disconnects every subscriber.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for conn := range n.subscribers {
		_ = conn.Close()
		delete(n.subscribers, conn)
	}
}
