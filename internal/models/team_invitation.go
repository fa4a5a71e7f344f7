package models

import (
	"time"
)

// TeamInvitation is an offer to join a project with a given role. Rows are never
// physically deleted except by cascade when the project goes away.
type TeamInvitation struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	ProjectID     uint             `gorm:"index;uniqueIndex:idx_invitation_pending_slot;not null" json:"project_id"`
	Project       *Project         `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	InviterID     uint             `gorm:"index;not null" json:"inviter_id"`
	Inviter       *User            `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`
	InvitedUserID *uint            `gorm:"index" json:"invited_user_id,omitempty"`
	InvitedEmail  *string          `gorm:"index;size:255" json:"invited_email,omitempty"`
	InvitedPhone  *string          `gorm:"index;size:32" json:"invited_phone,omitempty"`
	Code          string           `gorm:"column:invitation_code;uniqueIndex;size:64;not null" json:"invitation_code"`
	Role          Role             `gorm:"size:20;not null" json:"role"`
	Message       string           `gorm:"type:text" json:"message"`
	Status        InvitationStatus `gorm:"size:20;not null;index" json:"status"`
	// PendingSlot holds the target key while the invitation is pending and is
	// cleared on any transition, so the unique index allows one live invitation
	// per (project, target).
	PendingSlot *string    `gorm:"uniqueIndex:idx_invitation_pending_slot;size:300" json:"-"`
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (TeamInvitation) TableName() string { return "team_invitations" }

// IsExpiredAt reports whether the invitation is past due at the given instant,
// regardless of its stored status.
func (i *TeamInvitation) IsExpiredAt(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
