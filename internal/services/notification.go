package services

import (
	"context"
	"fmt"
	"time"

	"github.com/huangang/teamhub/internal/models"
	"github.com/huangang/teamhub/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationEvent is a notification to be appended for a recipient.
type NotificationEvent struct {
	UserID  uint
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]interface{}
}

// NotificationService records in-app notifications and hands them to the
// out-of-app channels. Nothing it does can fail the workflow that triggered it.
type NotificationService struct {
	db    *gorm.DB
	hub   *NotificationHub
	queue TaskQueue
	email *EmailService
	log   zerolog.Logger
}

// NewNotificationService wires the dispatcher. hub, queue and email are optional.
func NewNotificationService(db *gorm.DB, hub *NotificationHub, queue TaskQueue, email *EmailService) *NotificationService {
	return &NotificationService{
		db:    db,
		hub:   hub,
		queue: queue,
		email: email,
		log:   logger.Component("notification"),
	}
}

// Record appends a notification through db, which may be an open transaction.
// The insert runs in a nested transaction so a failure rolls back only the
// notification. It returns nil when the notification could not be recorded.
func (s *NotificationService) Record(db *gorm.DB, ev NotificationEvent) *models.Notification {
	if db == nil {
		db = s.db
	}
	n := &models.Notification{
		UserID:  ev.UserID,
		Type:    ev.Type,
		Title:   ev.Title,
		Message: ev.Message,
		Data:    datatypes.JSONMap(ev.Data),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(n).Error
	})
	if err != nil {
		s.failure(err, ev).Msg("failed to record notification")
		return nil
	}
	return n
}

// Deliver pushes recorded notifications to live SSE clients and queues the
// email mirror. Call it only after the recording transaction committed.
func (s *NotificationService) Deliver(notifications ...*models.Notification) {
	for _, n := range notifications {
		if n == nil {
			continue
		}
		if s.hub != nil {
			s.hub.Publish(*n)
		}
		s.enqueue(&DeliveryTask{Kind: DeliveryNotification, NotificationID: n.ID})
	}
}

// Notify records and delivers a single notification.
func (s *NotificationService) Notify(ev NotificationEvent) *models.Notification {
	n := s.Record(s.db, ev)
	s.Deliver(n)
	return n
}

// DeliverInvitationEmail queues the invitation email for an invitee without
// an account.
func (s *NotificationService) DeliverInvitationEmail(invitationID uint) {
	s.enqueue(&DeliveryTask{Kind: DeliveryInvitation, InvitationID: invitationID})
}

func (s *NotificationService) enqueue(task *DeliveryTask) {
	if s.queue == nil || !s.email.Enabled() {
		return
	}
	if err := s.queue.Enqueue(task); err != nil {
		s.log.Warn().
			Err(&Error{Kind: KindNotificationDelivery, Message: "enqueue failed", Err: err}).
			Str("kind", task.Kind).
			Uint("notification_id", task.NotificationID).
			Uint("invitation_id", task.InvitationID).
			Msg("failed to queue delivery")
	}
}

func (s *NotificationService) failure(err error, ev NotificationEvent) *zerolog.Event {
	return s.log.Warn().
		Err(&Error{Kind: KindNotificationDelivery, Message: ErrNotificationDelivery.Message, Err: err}).
		Uint("user_id", ev.UserID).
		Str("notification_type", string(ev.Type))
}

// ProcessDelivery is the queue processor for DeliveryTask.
func (s *NotificationService) ProcessDelivery(ctx context.Context, task *DeliveryTask) error {
	if !s.email.Enabled() {
		return nil
	}
	db := s.db.WithContext(ctx)

	switch task.Kind {
	case DeliveryNotification:
		var n models.Notification
		if err := db.First(&n, task.NotificationID).Error; err != nil {
			return fmt.Errorf("load notification %d: %w", task.NotificationID, err)
		}
		var user models.User
		if err := db.Select("id", "email").First(&user, n.UserID).Error; err != nil {
			return fmt.Errorf("load recipient %d: %w", n.UserID, err)
		}
		subject, body, err := s.email.RenderNotification(&n)
		if err != nil {
			return err
		}
		return s.email.Send(user.Email, subject, body)

	case DeliveryInvitation:
		var inv models.TeamInvitation
		if err := db.Preload("Project").Preload("Inviter").First(&inv, task.InvitationID).Error; err != nil {
			return fmt.Errorf("load invitation %d: %w", task.InvitationID, err)
		}
		if inv.Status != models.InvitationPending || inv.InvitedEmail == nil {
			return nil
		}
		data := &InvitationEmail{
			Role:      inv.Role,
			Message:   inv.Message,
			Code:      inv.Code,
			ExpiresAt: inv.ExpiresAt,
		}
		if inv.Project != nil {
			data.ProjectName = inv.Project.Name
		}
		if inv.Inviter != nil {
			data.InviterName = inv.Inviter.DisplayName()
		}
		subject, body, err := s.email.RenderInvitation(data)
		if err != nil {
			return err
		}
		return s.email.Send(*inv.InvitedEmail, subject, body)

	default:
		s.log.Warn().Str("kind", task.Kind).Msg("unknown delivery kind")
		return nil
	}
}

type NotificationListRequest struct {
	Page       int  `form:"page" binding:"omitempty,min=1"`
	PageSize   int  `form:"page_size" binding:"omitempty,min=1,max=100"`
	UnreadOnly bool `form:"unread_only"`
}

type NotificationListResponse struct {
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Items    []models.Notification `json:"items"`
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(userID uint, req *NotificationListRequest) (*NotificationListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if req.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	var items []models.Notification
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, storeError(err, ErrNotFound)
	}

	return &NotificationListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    items,
	}, nil
}

func (s *NotificationService) UnreadCount(userID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, storeError(err, ErrNotFound)
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications as read. The update is
// scoped to the caller, so ids of other users' notifications are a silent no-op.
func (s *NotificationService) MarkRead(userID, notificationID uint) error {
	now := time.Now()
	err := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", notificationID, userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
	return storeError(err, ErrNotFound)
}

// MarkAllRead marks every unread notification of the caller as read.
func (s *NotificationService) MarkAllRead(userID uint) (int64, error) {
	now := time.Now()
	res := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if res.Error != nil {
		return 0, storeError(res.Error, ErrNotFound)
	}
	return res.RowsAffected, nil
}

// CleanupRead deletes read notifications older than retentionDays.
func (s *NotificationService) CleanupRead(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := s.db.Where("is_read = ? AND created_at < ?", true, cutoff).Delete(&models.Notification{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
