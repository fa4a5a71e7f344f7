package models

import (
	"time"
)

// User is an account known to the identity provider.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Email     string     `gorm:"uniqueIndex;size:255;not null" json:"email"` // stored lower-cased
	Phone     *string    `gorm:"uniqueIndex;size:32" json:"phone,omitempty"` // E.164-ish, digits with leading +
	Password  string     `gorm:"size:255" json:"-"`
	Name      string     `gorm:"size:100" json:"name"`
	Avatar    string     `gorm:"size:500" json:"avatar"`
	Role      string     `gorm:"size:50;default:user" json:"role"` // admin, user
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	LastLogin *time.Time `json:"last_login"`

	// Contacts only match email or phone invitations once verified.
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// VerifiedEmail returns the email if it has been confirmed, else "".
func (u *User) VerifiedEmail() string {
	if u.EmailVerifiedAt == nil {
		return ""
	}
	return u.Email
}

// VerifiedPhone returns the phone if it has been confirmed, else "".
func (u *User) VerifiedPhone() string {
	if u.Phone == nil || u.PhoneVerifiedAt == nil {
		return ""
	}
	return *u.Phone
}
