package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Enrollment struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	StudentID uuid.UUID `gorm:"type:uuid;not null;index" json:"student_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Status    string    `gorm:"size:20;not null;default:'active'" json:"status"`

	Student User   `gorm:"foreignkey:StudentID" json:"-"`
	Course  Course `gorm:"foreignkey:CourseID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
