package services

import (
	"sync"

	"github.com/huangang/teamhub/internal/models"
)

type hubClient struct {
	userID uint
	ch     chan models.Notification
}

// NotificationHub fans new notifications out to the connected SSE clients of
// their recipient.
type NotificationHub struct {
	clients map[string]*hubClient
	mu      sync.RWMutex
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		clients: make(map[string]*hubClient),
	}
}

// Subscribe registers a client of userID and returns its event channel.
func (h *NotificationHub) Subscribe(clientID string, userID uint) <-chan models.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[clientID]; ok {
		close(old.ch)
	}
	ch := make(chan models.Notification, 32)
	h.clients[clientID] = &hubClient{userID: userID, ch: ch}
	return ch
}

func (h *NotificationHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[clientID]; ok {
		close(c.ch)
		delete(h.clients, clientID)
	}
}

// Publish sends n to every client of its recipient. Slow clients miss events
// rather than block the publisher.
func (h *NotificationHub) Publish(n models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.clients {
		if c.userID != n.UserID {
			continue
		}
		select {
		case c.ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *NotificationHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
