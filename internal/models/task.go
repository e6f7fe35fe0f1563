package models

import (
	"time"

	"github.com/gofrs/uuid"
)

const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 3
)

// Task is a flat record; parent/child structure is expressed through ParentID
// rather than nesting, so children can be mutated independently. Children are
// discovered by query, never enumerated on the parent.
type Task struct {
	ID               uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           uuid.UUID  `json:"user_id" gorm:"type:uuid;not null"`
	ParentID         *uuid.UUID `json:"parent_id,omitempty" gorm:"type:uuid"`
	Title            string     `json:"title" gorm:"not null"`
	Description      string     `json:"description"`
	Priority         int        `json:"priority" gorm:"not null;default:3"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	Completed        bool       `json:"completed" gorm:"not null;default:false"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Tags             []string   `json:"tags" gorm:"serializer:json"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (t *Task) IsRoot() bool {
	return t.ParentID == nil
}

func (t *Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}
