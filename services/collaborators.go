package services

import (
	"context"

	"github.com/edulink/course_platform/documents"
	"github.com/edulink/course_platform/models"
	"github.com/edulink/course_platform/notifications"
	"github.com/google/uuid"
)

// The certificate workflows only ever talk to the rest of the platform
// through these interfaces. A missing entity is (nil, nil), not an error.

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type CourseLookup interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

type EnrollmentCheck interface {
	IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
}

type DocumentRenderer interface {
	Render(ctx context.Context, data documents.CertificateData) ([]byte, error)
}

// DocumentUploader hosts a rendered document and returns its public URL.
type DocumentUploader interface {
	Upload(ctx context.Context, fileBytes []byte, displayCode string) (string, error)
}

type EmailSender interface {
	Send(ctx context.Context, toName, toEmail, subject, htmlContent string, attachments []notifications.Attachment) error
}
