package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account identified by phone number. Accounts are created
// inactive and become active after phone activation.
type User struct {
	BaseModel
	Phone        string `gorm:"uniqueIndex" json:"phone"`
	Ref          string `gorm:"uniqueIndex" json:"ref"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PasswordHash string `json:"-"`
	IsActive     bool   `json:"is_active"`
	IsStaff      bool   `json:"is_staff"`
	IsSuperuser  bool   `json:"is_superuser"`
}

// FullName combines the name fields, falling back to the phone number.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Phone
}

// PhoneActivation keeps track of activation codes sent to users.
// A code is confirmable only within ExpiresDays of its creation.
type PhoneActivation struct {
	BaseModel
	UserID        uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Phone         string    `gorm:"index" json:"phone"`
	Code          string    `json:"-"`
	Activated     bool      `json:"activated"`
	ForcedExpired bool      `json:"forced_expired"`
	ExpiresDays   int       `gorm:"default:7" json:"expires_days"`
}

// Expired reports whether the confirmation window has passed.
func (a *PhoneActivation) Expired(now time.Time) bool {
	days := a.ExpiresDays
	if days <= 0 {
		days = 7
	}
	return now.After(a.CreatedAt.Add(time.Duration(days) * 24 * time.Hour))
}

// AccountBalance holds a user's bonus points and their monetary value.
// Amount is always bonus count multiplied by the active bonus rate.
type AccountBalance struct {
	BaseModel
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Bonus  int       `json:"bonus"`
	Amount float64   `json:"amount"`
}

// BonusRate is a versioned point-to-money rate. At most one row is active;
// rows are only written through the referral service's rate accessor.
type BonusRate struct {
	BaseModel
	Value    float64 `json:"value"`
	IsActive bool    `json:"is_active"`
}

// UserReferral records who referred a user. The set of users someone referred
// is derived by querying rows where CalledByID equals their id.
type UserReferral struct {
	BaseModel
	UserID     uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	CalledByID *uuid.UUID `gorm:"type:uuid;index" json:"called_by_id"`
	IsReferred bool       `json:"is_referred"`
}

// Notification is a short message shown on a user's profile page.
type Notification struct {
	BaseModel
	UserID     uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Title      string    `json:"title"`
	ShowStatus bool      `gorm:"default:true" json:"show_status"`
}
