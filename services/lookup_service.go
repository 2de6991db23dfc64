package services

import (
	"context"
	"errors"

	"github.com/edulink/course_platform/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLookup serves the collaborator interfaces straight off the platform
// tables. It implements UserLookup, CourseLookup and EnrollmentCheck.
type GormLookup struct {
	db *gorm.DB
}

func NewGormLookup(db *gorm.DB) *GormLookup {
	return &GormLookup{db: db}
}

func (l *GormLookup) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := l.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (l *GormLookup) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	err := l.db.WithContext(ctx).First(&course, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (l *GormLookup) IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status = ?", studentID, courseID, "active").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
