package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// UserSettings carries the recognized per-user preferences. Unknown keys are
// dropped on write.
type UserSettings struct {
	Timezone string `json:"timezone,omitempty"`
	Theme    string `json:"theme,omitempty"`
}

type User struct {
	ID             uuid.UUID     `json:"id" gorm:"primaryKey;type:uuid"`
	Email          string        `json:"email" gorm:"uniqueIndex;not null"`
	CredentialHash string        `json:"-" gorm:"not null"`
	DisplayName    string        `json:"display_name,omitempty"`
	Status         UserStatus    `json:"status" gorm:"not null;default:'active'"`
	Settings       *UserSettings `json:"settings,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time     `json:"created_at"`
	LastLoginAt    *time.Time    `json:"last_login_at,omitempty"`
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
