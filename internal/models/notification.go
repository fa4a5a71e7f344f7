package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is an in-app message owned by its recipient.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    uint              `gorm:"index:idx_notification_user_read;not null" json:"user_id"`
	Type      NotificationType  `gorm:"size:50;not null" json:"type"`
	Title     string            `gorm:"size:200" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Data      datatypes.JSONMap `json:"data"` // invitation_code, project_id, role, ...
	Read      bool              `gorm:"column:is_read;index:idx_notification_user_read;default:false" json:"read"`
	ReadAt    *time.Time        `json:"read_at,omitempty"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }
