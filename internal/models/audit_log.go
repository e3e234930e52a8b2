package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// AuditLog records an administrative action. IDs increase monotonically so
// entries can be replayed in the order they were written.
type AuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
	AdminID    *uint          `gorm:"index" json:"admin_id,omitempty"`
	AdminEmail string         `gorm:"size:255" json:"admin_email"`
	Action     string         `gorm:"size:64;not null;index" json:"action"`
	Resource   string         `gorm:"size:128;index" json:"resource"`
	Result     string         `gorm:"size:16;not null" json:"result"`
	IPAddress  string         `gorm:"size:45" json:"ip_address"`
	UserAgent  string         `gorm:"size:255" json:"user_agent"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
}

// Scope returns the action namespace, e.g. "member" for "member.verify".
func (a AuditLog) Scope() string {
	scope, _, found := strings.Cut(a.Action, ".")
	if !found {
		return ""
	}
	return scope
}
