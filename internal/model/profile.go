package model

import (
	"time"
)

// UserProfile is the read-mostly view of a child account used to
// personalize prompts and to hold engagement targets.
type UserProfile struct {
	ID           string `gorm:"primaryKey;size:64" json:"id"`
	FirstName    string `gorm:"size:128;not null" json:"first_name"`
	Grade        string `gorm:"size:32" json:"grade"`
	City         string `gorm:"size:128" json:"city"`
	DailyTarget  int    `gorm:"not null;default:1" json:"daily_target"`
	WeeklyTarget int    `gorm:"not null;default:5" json:"weekly_target"`

	// TimezoneOffset is the last offset reported by the client, in minutes,
	// using the browser convention (UTC+2 is -120).
	TimezoneOffset int `gorm:"not null;default:0" json:"timezone_offset"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profiles" }
