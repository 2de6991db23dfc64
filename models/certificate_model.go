package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate is the durable record behind one student-course completion
// credential. Records are never hard-deleted; revocation flips IsActive so
// the row stays available for audit while failing every validity check.
type Certificate struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`

	// DisplayCode is the human-facing certificate number printed on the
	// document. Assigned once, never changed by regeneration.
	DisplayCode string `gorm:"size:20;not null;uniqueIndex" json:"certificate_id"`

	// VerificationCode is the current opaque token. Regeneration replaces it
	// in place, which is what invalidates previously issued links.
	VerificationCode string `gorm:"type:text;not null;uniqueIndex" json:"-"`

	// The partial unique index is the backstop for concurrent issuance:
	// at most one active certificate may exist per (student, course).
	StudentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_certificates_active_pair" json:"student_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_certificates_active_pair,where:is_active = true" json:"course_id"`
	TeacherID uuid.UUID `gorm:"type:uuid;not null" json:"teacher_id"`

	GeneratedAt time.Time `gorm:"not null;index" json:"generated_at"`
	GeneratedBy uuid.UUID `gorm:"type:uuid;not null" json:"generated_by"`

	DocumentURL *string `gorm:"size:512" json:"document_url"`

	IsActive bool `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
