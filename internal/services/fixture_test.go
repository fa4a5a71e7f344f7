package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huangang/teamhub/internal/config"
	"github.com/huangang/teamhub/internal/models"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// newTestDB opens a private in-memory database. A single connection keeps
// transactions serialized the way a row lock would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:teamhub_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []DeliveryTask
}

func (q *recordingQueue) Enqueue(task *DeliveryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, *task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return true }
func (q *recordingQueue) Close() error  { return nil }

func (q *recordingQueue) Tasks() []DeliveryTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeliveryTask(nil), q.tasks...)
}

type failingQueue struct{}

func (failingQueue) Enqueue(*DeliveryTask) error { return errors.New("redis: connection refused") }
func (failingQueue) IsAsync() bool               { return true }
func (failingQueue) Close() error                { return nil }

type recordingMailer struct {
	mu   sync.Mutex
	sent []*gomail.Message
	err  error
}

func (m *recordingMailer) DialAndSend(msgs ...*gomail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msgs...)
	return nil
}

type fixture struct {
	db            *gorm.DB
	clock         time.Time
	store         *InvitationStore
	access        *AccessService
	auth          *AuthService
	projects      *ProjectService
	notifications *NotificationService
	invitations   *InvitationService
	members       *MemberService
	hub           *NotificationHub
	queue         *recordingQueue
	email         *EmailService
	mailer        *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:     newTestDB(t),
		clock:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		hub:    NewNotificationHub(),
		queue:  &recordingQueue{},
		mailer: &recordingMailer{},
	}
	now := func() time.Time { return f.clock }

	f.email = NewEmailService(&config.EmailConfig{
		Enabled:   true,
		Host:      "smtp.example.com",
		Port:      587,
		From:      "noreply@example.com",
		FromName:  "TeamHub",
		PublicURL: "https://teamhub.example.com",
	})
	f.email.SetMailer(f.mailer)

	f.store = NewInvitationStore(f.db)
	f.store.now = now
	f.access = NewAccessService(f.db, NewMemoryAccessCache(128, time.Minute))
	f.auth = NewAuthService(f.db, &config.JWTConfig{Secret: "test", ExpireHour: 1})
	f.projects = NewProjectService(f.db, f.store, f.access)
	f.notifications = NewNotificationService(f.db, f.hub, f.queue, f.email)
	f.invitations = NewInvitationService(f.store, f.access, f.projects, f.auth, f.notifications,
		&config.InvitationConfig{TTLDays: 7, CodeLength: 32})
	f.invitations.now = now
	f.members = NewMemberService(f.store, f.access, f.projects, f.notifications)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.auth.Register(&RegisterRequest{Email: email, Password: "password123", Name: email})
	require.NoError(t, err)
	u, err = f.auth.VerifyContacts(u.ID, true, false)
	require.NoError(t, err)
	return u
}

func (f *fixture) project(t *testing.T, owner *models.User, name string) *models.Project {
	t.Helper()
	p, err := f.projects.Create(&CreateProjectRequest{Name: name}, owner.ID)
	require.NoError(t, err)
	return p
}

// join adds user to the project with role through a real invitation.
func (f *fixture) join(t *testing.T, project *models.Project, inviter, user *models.User, role models.Role) {
	t.Helper()
	res, err := f.invitations.Create(project.ID, inviter.ID, &CreateInvitationRequest{UserID: &user.ID, Role: role})
	require.NoError(t, err)
	_, err = f.invitations.Accept(res.InvitationCode, user.ID)
	require.NoError(t, err)
}

func (f *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (f *fixture) process(t *testing.T) {
	t.Helper()
	for _, task := range f.queue.Tasks() {
		task := task
		require.NoError(t, f.notifications.ProcessDelivery(context.Background(), &task))
	}
}
