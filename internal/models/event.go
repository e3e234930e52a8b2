package models

import "time"

// Event is an association event shown on the public site.
type Event struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Summary     string     `gorm:"size:500;not null" json:"summary"`
	Description *string    `gorm:"type:text" json:"description,omitempty"`
	StartTime   time.Time  `gorm:"not null;index" json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Location    *string    `gorm:"size:255" json:"location,omitempty"`
	RSVPURL     *string    `gorm:"column:rsvp_url;size:500" json:"rsvp_url,omitempty"`
	MaxCapacity *int       `json:"max_capacity,omitempty"`
	CreatedBy   *uint      `gorm:"index" json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsUpcoming reports whether the event starts at or after now.
func (e Event) IsUpcoming(now time.Time) bool {
	return !e.StartTime.Before(now)
}
