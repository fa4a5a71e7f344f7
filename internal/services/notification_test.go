package services

import (
	"context"
	"testing"
	"time"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_RecordsAndDelivers(t *testing.T) {
	f := newFixture(t)
	raymond := f.user(t, "raymond@example.com")
	alex := f.user(t, "alex@example.com")
	mine := f.hub.Subscribe("raymond-browser", raymond.ID)
	theirs := f.hub.Subscribe("alex-browser", alex.ID)

	n := f.notifications.Notify(NotificationEvent{
		UserID:  raymond.ID,
		Type:    models.NotificationGeneric,
		Title:   "Hello",
		Message: "Welcome to TeamHub",
		Data:    map[string]interface{}{"action": "welcome"},
	})
	require.NotNil(t, n)
	assert.NotZero(t, n.ID)
	assert.False(t, n.Read)

	select {
	case got := <-mine:
		assert.Equal(t, n.ID, got.ID)
	default:
		t.Fatal("recipient did not receive the notification")
	}
	select {
	case <-theirs:
		t.Fatal("another user received the notification")
	default:
	}

	tasks := f.queue.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, DeliveryNotification, tasks[0].Kind)
	assert.Equal(t, n.ID, tasks[0].NotificationID)

	f.process(t)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"raymond@example.com"}, f.mailer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"[TeamHub] Hello"}, f.mailer.sent[0].GetHeader("Subject"))
}

func TestNotify_EmailDisabledSkipsQueue(t *testing.T) {
	f := newFixture(t)
	raymond := f.user(t, "raymond@example.com")
	f.notifications.email = NewEmailService(&config.EmailConfig{})

	n := f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "Hi"})
	require.NotNil(t, n)
	assert.Empty(t, f.queue.Tasks())
}

func TestRecord_FailureReturnsNil(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&models.Notification{}))

	n := f.notifications.Notify(NotificationEvent{UserID: 1, Type: models.NotificationGeneric, Title: "Hi"})
	assert.Nil(t, n)
	assert.Empty(t, f.queue.Tasks())
}

func TestNotificationList(t *testing.T) {
	f := newFixture(t)
	raymond := f.user(t, "raymond@example.com")
	alex := f.user(t, "alex@example.com")

	for i := 0; i < 3; i++ {
		f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "for raymond"})
	}
	f.notifications.Notify(NotificationEvent{UserID: alex.ID, Type: models.NotificationGeneric, Title: "for alex"})

	res, err := f.notifications.List(raymond.ID, &NotificationListRequest{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Total)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 1, res.Page)
	for _, n := range res.Items {
		assert.Equal(t, raymond.ID, n.UserID)
	}
	assert.Greater(t, res.Items[0].ID, res.Items[1].ID, "newest first")

	count, err := f.notifications.UnreadCount(raymond.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestNotificationMarkRead(t *testing.T) {
	f := newFixture(t)
	raymond := f.user(t, "raymond@example.com")
	alex := f.user(t, "alex@example.com")

	first := f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "one"})
	f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "two"})
	other := f.notifications.Notify(NotificationEvent{UserID: alex.ID, Type: models.NotificationGeneric, Title: "three"})

	require.NoError(t, f.notifications.MarkRead(raymond.ID, first.ID))
	// someone else's notification is left untouched
	require.NoError(t, f.notifications.MarkRead(raymond.ID, other.ID))

	count, err := f.notifications.UnreadCount(raymond.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = f.notifications.UnreadCount(alex.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	unread, err := f.notifications.List(raymond.ID, &NotificationListRequest{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	assert.Equal(t, "two", unread.Items[0].Title)

	marked, err := f.notifications.MarkAllRead(raymond.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	count, err = f.notifications.UnreadCount(raymond.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCleanupRead(t *testing.T) {
	f := newFixture(t)
	raymond := f.user(t, "raymond@example.com")

	old := f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "old"})
	oldUnread := f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "old unread"})
	recent := f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "recent"})
	require.NoError(t, f.notifications.MarkRead(raymond.ID, old.ID))
	require.NoError(t, f.notifications.MarkRead(raymond.ID, recent.ID))

	longAgo := time.Now().AddDate(0, 0, -120)
	require.NoError(t, f.db.Model(&models.Notification{}).
		Where("id IN ?", []uint{old.ID, oldUnread.ID}).
		UpdateColumn("created_at", longAgo).Error)

	deleted, err := f.notifications.CleanupRead(90)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, int64(2), f.count(t, &models.Notification{}, "user_id = ?", raymond.ID))

	deleted, err = f.notifications.CleanupRead(0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestProcessDelivery_InvitationSkipsSettled(t *testing.T) {
	f := newFixture(t)
	alex := f.user(t, "alex@example.com")
	project := f.project(t, alex, "Apollo")

	created, err := f.invitations.Create(project.ID, alex.ID, &CreateInvitationRequest{Email: "raymond@example.com", Role: models.RoleMember})
	require.NoError(t, err)
	require.NoError(t, f.invitations.Revoke(alex.ID, project.ID, created.InvitationID))

	f.process(t)
	assert.Empty(t, f.mailer.sent)
}

func TestProcessDelivery_SendFailureIsDeliveryError(t *testing.T) {
	f := newFixture(t)
	raymond := f.user(t, "raymond@example.com")
	f.mailer.err = assert.AnError

	n := f.notifications.Notify(NotificationEvent{UserID: raymond.ID, Type: models.NotificationGeneric, Title: "Hi"})
	require.NotNil(t, n)

	err := f.notifications.ProcessDelivery(context.Background(), &DeliveryTask{Kind: DeliveryNotification, NotificationID: n.ID})
	assert.ErrorIs(t, err, ErrNotificationDelivery)
	assert.ErrorIs(t, err, assert.AnError)

	err = f.notifications.ProcessDelivery(context.Background(), &DeliveryTask{Kind: DeliveryNotification, NotificationID: 9999})
	assert.Error(t, err)

	assert.NoError(t, f.notifications.ProcessDelivery(context.Background(), &DeliveryTask{Kind: "unknown"}))
}
