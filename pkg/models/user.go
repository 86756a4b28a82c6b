package models

import (
	"time"

	"gorm.io/gorm"
)

type Preferences struct {
	Theme       string `gorm:"default:'auto'" json:"theme"`
	PreferredAI string `json:"preferredAI,omitempty"`
}

// UserStats are counters maintained from report and vote events.
type UserStats struct {
	ReportsSubmitted int64 `gorm:"default:0" json:"reportsSubmitted"`
	ReportsVerified  int64 `gorm:"default:0" json:"reportsVerified"`
	TotalVotes       int64 `gorm:"default:0" json:"totalVotes"`
}

type User struct {
	ID          string         `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email       string         `gorm:"uniqueIndex;not null" json:"email"`
	Password    string         `gorm:"not null" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Role        Role           `gorm:"default:'user'" json:"role"`
	Preferences Preferences    `gorm:"embedded;embeddedPrefix:pref_" json:"preferences"`
	Stats       UserStats      `gorm:"embedded;embeddedPrefix:stat_" json:"stats"`
	LastLogin   *time.Time     `json:"lastLogin,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Principal returns the identity carried in tokens for this user.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
