package models

import "time"

// RateLimitRecord counts attempts per (ip, email, endpoint) inside a sliding window.
type RateLimitRecord struct {
	ID          uint      `gorm:"primaryKey"`
	IPAddress   string    `gorm:"size:45;not null;uniqueIndex:idx_rate_limits_key,priority:1"`
	Email       string    `gorm:"size:255;not null;default:'';uniqueIndex:idx_rate_limits_key,priority:2;index"`
	Endpoint    string    `gorm:"size:100;not null;uniqueIndex:idx_rate_limits_key,priority:3"`
	Attempts    int       `gorm:"not null;default:1"`
	LastAttempt time.Time `gorm:"not null;index"`
}

// TableName pins the table name.
func (RateLimitRecord) TableName() string {
	return "rate_limits"
}
