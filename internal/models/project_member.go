package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProjectMembership represents a user's role and standing within a project.
// Rows are unique per (project, user) and per (project, invited email).
type ProjectMembership struct {
	ID           uint                            `gorm:"primaryKey" json:"id"`
	ProjectID    uint                            `gorm:"uniqueIndex:idx_member_project_user;uniqueIndex:idx_member_project_email;not null" json:"project_id"`
	Project      *Project                        `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	UserID       *uint                           `gorm:"uniqueIndex:idx_member_project_user" json:"user_id"`
	User         *User                           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	InvitedEmail *string                         `gorm:"uniqueIndex:idx_member_project_email;size:255" json:"invited_email,omitempty"`
	InvitedPhone *string                         `gorm:"size:32" json:"invited_phone,omitempty"`
	Role         Role                            `gorm:"size:20;not null" json:"role"`
	Status       MembershipStatus                `gorm:"size:20;not null;index" json:"status"`
	Permissions  datatypes.JSONSlice[Permission] `json:"permissions"`
	InvitationID *uint                           `json:"invitation_id,omitempty"`
	JoinedAt     *time.Time                      `json:"joined_at"`
	CreatedAt    time.Time                       `json:"created_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

func (ProjectMembership) TableName() string { return "project_team_members" }

// IsActive reports whether the membership currently grants access.
func (m *ProjectMembership) IsActive() bool {
	return m.Status == MembershipActive
}

// HasPermission checks the denormalized permission set.
func (m *ProjectMembership) HasPermission(p Permission) bool {
	if !m.IsActive() {
		return false
	}
	for _, perm := range m.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}
