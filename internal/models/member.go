package models

import "time"

// MemberStatus is the lifecycle state of a membership record.
type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "PENDING"
	MemberStatusVerified MemberStatus = "VERIFIED"
	MemberStatusBlocked  MemberStatus = "BLOCKED"
)

// Valid reports whether s is one of the known statuses.
func (s MemberStatus) Valid() bool {
	switch s {
	case MemberStatusPending, MemberStatusVerified, MemberStatusBlocked:
		return true
	}
	return false
}

// Member is a registered (or registering) association member. Email is stored
// lowercased and is unique. VerificationToken is set only while PENDING.
// Free-text fields hold HTML-escaped input, so their columns are six times
// the accepted input length.
type Member struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	FirstName         string       `gorm:"size:480;not null" json:"first_name"`
	LastName          string       `gorm:"size:480;not null" json:"last_name"`
	Email             string       `gorm:"size:255;not null;uniqueIndex:idx_members_email" json:"email"`
	YearLevel         string       `gorm:"size:300" json:"year_level"`
	Major             string       `gorm:"size:720" json:"major"`
	Campus            string       `gorm:"size:720" json:"campus"`
	Phone             *string      `gorm:"size:240" json:"phone,omitempty"`
	ConsentComms      bool         `gorm:"not null;default:false" json:"consent_comms"`
	AcceptedCode      bool         `gorm:"not null;default:false" json:"accepted_code"`
	ConsentPrivacy    bool         `gorm:"not null;default:false" json:"consent_privacy"`
	Status            MemberStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	VerificationToken *string      `gorm:"size:128;index" json:"-"`
	CreatedAt         time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	VerifiedAt        *time.Time   `json:"verified_at,omitempty"`
}

// FullName joins first and last name.
func (m Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}
