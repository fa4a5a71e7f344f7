package services

import (
	"testing"
	"time"

	"github.com/huangang/teamhub/internal/models"
)

func TestNotificationHub_New(t *testing.T) {
	hub := NewNotificationHub()
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}
}

func TestNotificationHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewNotificationHub()

	hub.Subscribe("client1", 1)
	hub.Subscribe("client2", 1)
	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client1")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unsubscribe, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("unsubscribing nonexistent should not affect count, got %d", hub.ClientCount())
	}
}

func TestNotificationHub_ResubscribeClosesOldChannel(t *testing.T) {
	hub := NewNotificationHub()

	old := hub.Subscribe("client1", 1)
	hub.Subscribe("client1", 1)

	if _, ok := <-old; ok {
		t.Error("previous channel should be closed")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}
}

func TestNotificationHub_PublishOnlyToRecipient(t *testing.T) {
	hub := NewNotificationHub()

	alex := hub.Subscribe("alex-phone", 1)
	raymond := hub.Subscribe("raymond-phone", 2)

	delivered := hub.Publish(models.Notification{ID: 7, UserID: 1, Type: models.NotificationTeamAccepted})
	if delivered != 1 {
		t.Errorf("delivered = %d, expected 1", delivered)
	}

	select {
	case n := <-alex:
		if n.ID != 7 {
			t.Errorf("ID = %d, expected 7", n.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for notification")
	}

	select {
	case n := <-raymond:
		t.Errorf("other users must not receive notification %d", n.ID)
	default:
	}
}

func TestNotificationHub_NonBlockingPublish(t *testing.T) {
	hub := NewNotificationHub()
	hub.Subscribe("slow_client", 1)

	for i := 0; i < 100; i++ {
		hub.Publish(models.Notification{ID: uint(i), UserID: 1})
	}
}
