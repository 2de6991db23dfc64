package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/edulink/course_platform/documents"
	"github.com/edulink/course_platform/models"
	"github.com/edulink/course_platform/notifications"
	"github.com/edulink/course_platform/repository"
	"github.com/edulink/course_platform/tokens"
	"github.com/edulink/course_platform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificateService owns issuance, regeneration and public validation of
// course-completion certificates.
type CertificateService struct {
	db          *gorm.DB
	repo        *repository.CertificateRepository
	codec       *tokens.Codec
	users       UserLookup
	courses     CourseLookup
	enrollments EnrollmentCheck
	renderer    DocumentRenderer
	uploader    DocumentUploader
	mailer      EmailSender
	verifyBase  string
}

func NewCertificateService(
	db *gorm.DB,
	codec *tokens.Codec,
	users UserLookup,
	courses CourseLookup,
	enrollments EnrollmentCheck,
	renderer DocumentRenderer,
	uploader DocumentUploader,
	mailer EmailSender,
	verifyBaseURL string,
) *CertificateService {
	return &CertificateService{
		db:          db,
		repo:        repository.NewCertificateRepository(db),
		codec:       codec,
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		renderer:    renderer,
		uploader:    uploader,
		mailer:      mailer,
		verifyBase:  strings.TrimRight(verifyBaseURL, "/"),
	}
}

type IssueInput struct {
	StudentID uuid.UUID
	CourseID  uuid.UUID
	TeacherID uuid.UUID
	IssuedBy  uuid.UUID
}

type IssueResult struct {
	CertificateID    string    `json:"certificate_id"`
	VerificationCode string    `json:"verification_code"`
	VerificationURL  string    `json:"verification_url"`
	DocumentURL      string    `json:"document_url,omitempty"`
	StudentName      string    `json:"student_name"`
	CourseName       string    `json:"course_name"`
	GeneratedAt      time.Time `json:"generated_at"`
}

type RegenerateResult struct {
	IssueResult
	Delivered     bool   `json:"delivered"`
	DeliveryError string `json:"delivery_error,omitempty"`
}

// Issue mints a certificate for a student who completed a course. Issuing
// twice for the same (student, course) pair updates the existing record with
// a fresh token instead of creating a second one; the display code never
// changes after first allocation.
func (s *CertificateService) Issue(ctx context.Context, in IssueInput) (*IssueResult, error) {
	student, course, teacher, err := s.resolveParties(ctx, in.StudentID, in.CourseID, in.TeacherID)
	if err != nil {
		return nil, err
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, in.StudentID, in.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	existing, err := s.repo.FindActiveByStudentAndCourse(ctx, in.StudentID, in.CourseID)
	if err != nil {
		return nil, err
	}

	var cert *models.Certificate
	if existing != nil {
		cert, err = s.reissue(ctx, existing, in.TeacherID, in.IssuedBy)
	} else {
		cert, err = s.issueFresh(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	// A brand-new certificate the student never receives is a failure the
	// caller must see.
	if err := s.deliver(ctx, cert, student, course, teacher); err != nil {
		return nil, err
	}

	return s.issueResult(cert, student, course), nil
}

func (s *CertificateService) issueFresh(ctx context.Context, in IssueInput) (*models.Certificate, error) {
	displayCode, err := utils.GenerateUniqueCertificateCode(s.db)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	token, err := s.mintToken(displayCode, in.StudentID, in.CourseID, now)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		DisplayCode:      displayCode,
		VerificationCode: token,
		StudentID:        in.StudentID,
		CourseID:         in.CourseID,
		TeacherID:        in.TeacherID,
		GeneratedAt:      now,
		GeneratedBy:      in.IssuedBy,
		IsActive:         true,
	}

	err = s.repo.Create(ctx, cert)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the check-then-act race against a concurrent issuance for
		// the same pair. The unique index is the backstop; resolve the
		// conflict by updating the row the winner created.
		existing, findErr := s.repo.FindActiveByStudentAndCourse(ctx, in.StudentID, in.CourseID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		log.Printf("Concurrent issuance for student %s course %s resolved as update", in.StudentID, in.CourseID)
		return s.reissue(ctx, existing, in.TeacherID, in.IssuedBy)
	}
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// reissue replaces the token on an existing record in place. The old
// verification code stops resolving the moment the new one is written.
func (s *CertificateService) reissue(ctx context.Context, existing *models.Certificate, teacherID, actor uuid.UUID) (*models.Certificate, error) {
	now := time.Now().UTC()
	token, err := s.mintToken(existing.DisplayCode, existing.StudentID, existing.CourseID, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, existing.ID, map[string]interface{}{
		"teacher_id":        teacherID,
		"verification_code": token,
		"generated_at":      now,
		"generated_by":      actor,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &NotFoundError{Entity: "certificate", ID: existing.ID.String()}
	}
	return updated, nil
}

// Regenerate re-mints the token of an existing certificate and re-sends the
// document. Unlike fresh issuance, a delivery failure here does not fail the
// operation; the result reports it so delivery can be retried out of band.
func (s *CertificateService) Regenerate(ctx context.Context, certID, regeneratedBy uuid.UUID) (*RegenerateResult, error) {
	cert, err := s.repo.FindByID(ctx, certID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, &NotFoundError{Entity: "certificate", ID: certID.String()}
	}

	cert, err = s.reissue(ctx, cert, cert.TeacherID, regeneratedBy)
	if err != nil {
		return nil, err
	}

	student, course, teacher, err := s.resolveParties(ctx, cert.StudentID, cert.CourseID, cert.TeacherID)
	if err != nil {
		return nil, err
	}

	result := &RegenerateResult{
		IssueResult: *s.issueResult(cert, student, course),
		Delivered:   true,
	}
	if err := s.deliver(ctx, cert, student, course, teacher); err != nil {
		log.Printf("🔥 Regenerated certificate %s but delivery failed: %v", cert.DisplayCode, err)
		result.Delivered = false
		result.DeliveryError = err.Error()
	}
	return result, nil
}

type PartyInfo struct {
	FullName                string  `json:"full_name"`
	ProfessionalDescription *string `json:"professional_description,omitempty"`
	SignatureURL            *string `json:"signature_url,omitempty"`
}

type CourseInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Location    *string    `json:"location,omitempty"`
}

type CertificateInfo struct {
	CertificateID string    `json:"certificate_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	GeneratedBy   uuid.UUID `json:"generated_by"`
}

// ValidationResult is what the public verify endpoint returns. Messages are
// deliberately generic; this endpoint takes adversarial input and must not
// act as a token-forgery oracle.
type ValidationResult struct {
	IsValid     bool             `json:"is_valid"`
	Message     string           `json:"message,omitempty"`
	Student     *PartyInfo       `json:"student,omitempty"`
	Course      *CourseInfo      `json:"course,omitempty"`
	Teacher     *PartyInfo       `json:"teacher,omitempty"`
	Certificate *CertificateInfo `json:"certificate_info,omitempty"`
}

func invalid(message string) *ValidationResult {
	return &ValidationResult{IsValid: false, Message: message}
}

// Validate checks a presented verification code. It never returns an error;
// every failure mode collapses into an IsValid=false result.
func (s *CertificateService) Validate(ctx context.Context, code string) *ValidationResult {
	decoded, err := s.codec.Decode(code)
	if err != nil {
		return invalid("invalid code")
	}

	if decoded.Expired(time.Now().UTC()) {
		return invalid("expired")
	}

	// The stored record is the source of truth: a token that survived a
	// revocation decodes fine but must still fail here.
	cert, err := s.repo.FindActiveByVerificationCode(ctx, code)
	if err != nil {
		log.Printf("🔥 Certificate lookup failed during validation: %v", err)
		return invalid("not found")
	}
	if cert == nil {
		return invalid("not found")
	}
	if cert.DisplayCode != decoded.CertificateID {
		return invalid("invalid code")
	}

	student, err := s.users.GetUser(ctx, cert.StudentID)
	if err != nil {
		log.Printf("🔥 Student lookup failed during validation: %v", err)
		return invalid("incomplete data")
	}
	course, err := s.courses.GetCourse(ctx, cert.CourseID)
	if err != nil {
		log.Printf("🔥 Course lookup failed during validation: %v", err)
		return invalid("incomplete data")
	}
	if student == nil || course == nil {
		return invalid("incomplete data")
	}

	result := &ValidationResult{
		IsValid: true,
		Student: &PartyInfo{FullName: student.FullName()},
		Course: &CourseInfo{
			Name:        course.Name,
			Description: course.Description,
			StartDate:   course.StartDate,
			EndDate:     course.EndDate,
			Location:    course.Location,
		},
		Certificate: &CertificateInfo{
			CertificateID: cert.DisplayCode,
			GeneratedAt:   cert.GeneratedAt,
			GeneratedBy:   cert.GeneratedBy,
		},
	}

	// Teacher data is display-only; a missing teacher does not invalidate
	// the certificate.
	teacher, err := s.users.GetUser(ctx, cert.TeacherID)
	if err == nil && teacher != nil {
		result.Teacher = &PartyInfo{
			FullName:                teacher.FullName(),
			ProfessionalDescription: teacher.ProfessionalDescription,
			SignatureURL:            teacher.SignatureURL,
		}
	}
	return result
}

// Exists reports whether an active certificate exists for the pair.
func (s *CertificateService) Exists(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	cert, err := s.repo.FindActiveByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		return false, err
	}
	return cert != nil, nil
}

// ExistsByID reports whether any certificate row, revoked or not, has the id.
func (s *CertificateService) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return cert != nil, nil
}

func (s *CertificateService) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Certificate, error) {
	return s.repo.ListByCourse(ctx, courseID)
}

func (s *CertificateService) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Certificate, error) {
	return s.repo.ListByStudent(ctx, studentID)
}

func (s *CertificateService) ListAll(ctx context.Context) ([]models.Certificate, error) {
	return s.repo.ListAll(ctx)
}

// SoftDelete revokes a certificate; its tokens stop validating immediately.
func (s *CertificateService) SoftDelete(ctx context.Context, id uuid.UUID) error {
	cert, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return err
	}
	if cert == nil {
		return &NotFoundError{Entity: "certificate", ID: id.String()}
	}
	return nil
}

func (s *CertificateService) resolveParties(ctx context.Context, studentID, courseID, teacherID uuid.UUID) (*models.User, *models.Course, *models.User, error) {
	student, err := s.users.GetUser(ctx, studentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if student == nil {
		return nil, nil, nil, &NotFoundError{Entity: "student", ID: studentID.String()}
	}

	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, nil, nil, err
	}
	if course == nil {
		return nil, nil, nil, &NotFoundError{Entity: "course", ID: courseID.String()}
	}

	teacher, err := s.users.GetUser(ctx, teacherID)
	if err != nil {
		return nil, nil, nil, err
	}
	if teacher == nil {
		return nil, nil, nil, &NotFoundError{Entity: "teacher", ID: teacherID.String()}
	}
	return student, course, teacher, nil
}

func (s *CertificateService) mintToken(displayCode string, studentID, courseID uuid.UUID, now time.Time) (string, error) {
	return s.codec.Encode(tokens.Payload{
		CertificateID: displayCode,
		StudentID:     studentID.String(),
		CourseID:      courseID.String(),
		GeneratedAt:   now,
		ExpiresAt:     now.Add(tokens.ValidityPeriod),
	})
}

func (s *CertificateService) verificationURL(code string) string {
	return s.verifyBase + "/" + code
}

// deliver renders the certificate document, hosts a copy when an uploader is
// configured, and emails the PDF to the student. One attempt each, no
// retries.
func (s *CertificateService) deliver(ctx context.Context, cert *models.Certificate, student *models.User, course *models.Course, teacher *models.User) error {
	data := documents.CertificateData{
		StudentName:     student.FullName(),
		TeacherName:     teacher.FullName(),
		CourseName:      course.Name,
		DisplayCode:     cert.DisplayCode,
		VerificationURL: s.verificationURL(cert.VerificationCode),
		CompletionDate:  cert.GeneratedAt,
	}

	pdfBytes, err := s.renderer.Render(ctx, data)
	if err != nil {
		return &DeliveryError{Stage: "render", Err: err}
	}

	if s.uploader != nil {
		url, err := s.uploader.Upload(ctx, pdfBytes, cert.DisplayCode)
		if err != nil {
			// Hosting a copy is a convenience; the attachment below is
			// the actual delivery.
			log.Printf("⚠️ Failed to upload certificate %s: %v", cert.DisplayCode, err)
		} else if _, err := s.repo.Update(ctx, cert.ID, map[string]interface{}{"document_url": url}); err != nil {
			log.Printf("⚠️ Failed to store document URL for certificate %s: %v", cert.DisplayCode, err)
		} else {
			cert.DocumentURL = &url
		}
	}

	if s.mailer == nil {
		log.Printf("Email client not configured, skipping delivery of certificate %s", cert.DisplayCode)
		return nil
	}

	subject := fmt.Sprintf("Your certificate for %s", course.Name)
	body := fmt.Sprintf(
		"<h1>Congratulations, %s!</h1><p>Your certificate for <b>%s</b> is attached.</p><p>Anyone can confirm its authenticity here: <a href='%s'>verify certificate</a></p>",
		student.FirstName, course.Name, s.verificationURL(cert.VerificationCode),
	)
	attachments := []notifications.Attachment{{Name: cert.DisplayCode + ".pdf", Content: pdfBytes}}

	if err := s.mailer.Send(ctx, student.FullName(), student.Email, subject, body, attachments); err != nil {
		return &DeliveryError{Stage: "email", Err: err}
	}
	return nil
}

func (s *CertificateService) issueResult(cert *models.Certificate, student *models.User, course *models.Course) *IssueResult {
	result := &IssueResult{
		CertificateID:    cert.DisplayCode,
		VerificationCode: cert.VerificationCode,
		VerificationURL:  s.verificationURL(cert.VerificationCode),
		StudentName:      student.FullName(),
		CourseName:       course.Name,
		GeneratedAt:      cert.GeneratedAt,
	}
	if cert.DocumentURL != nil {
		result.DocumentURL = *cert.DocumentURL
	}
	return result
}
