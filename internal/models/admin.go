package models

import "time"

// Admin is an operator allowed to manage members and events.
type Admin struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"size:255;not null;uniqueIndex:idx_admins_email" json:"email"`
	PasswordHash string     `gorm:"column:pass_hash;size:255;not null" json:"-"`
	Role         string     `gorm:"size:32;not null;default:admin" json:"role"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
