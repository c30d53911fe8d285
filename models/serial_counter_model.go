package models

import (
	"time"

	"github.com/google/uuid"
)

// SerialCounter holds the last issued sequence value for one allocation
// scope. Issued values are strictly increasing and never reused, even when
// the certificate that consumed one is deleted later.
type SerialCounter struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	TemplateID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_serial_scope" json:"template_id"`
	TargetType string    `gorm:"size:32;not null;uniqueIndex:idx_serial_scope" json:"target_type"`
	Year       int       `gorm:"not null;uniqueIndex:idx_serial_scope" json:"year"`
	LastIssued int       `gorm:"not null;default:0" json:"last_issued"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
