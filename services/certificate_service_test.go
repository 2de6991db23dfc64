package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edulink/course_platform/documents"
	"github.com/edulink/course_platform/models"
	"github.com/edulink/course_platform/notifications"
	"github.com/edulink/course_platform/repository"
	"github.com/edulink/course_platform/tokens"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeDirectory struct {
	users    map[uuid.UUID]*models.User
	courses  map[uuid.UUID]*models.Course
	enrolled map[[2]uuid.UUID]bool
}

func (d *fakeDirectory) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return d.users[id], nil
}

func (d *fakeDirectory) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	return d.courses[id], nil
}

func (d *fakeDirectory) IsEnrolled(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	return d.enrolled[[2]uuid.UUID{studentID, courseID}], nil
}

type fakeRenderer struct {
	fail  bool
	calls int
}

func (r *fakeRenderer) Render(ctx context.Context, data documents.CertificateData) ([]byte, error) {
	r.calls++
	if r.fail {
		return nil, errors.New("chrome crashed")
	}
	return []byte("%PDF-1.4 fake"), nil
}

type sentEmail struct {
	toEmail     string
	subject     string
	attachments []notifications.Attachment
}

type fakeMailer struct {
	fail bool
	sent []sentEmail
}

func (m *fakeMailer) Send(ctx context.Context, toName, toEmail, subject, htmlContent string, attachments []notifications.Attachment) error {
	if m.fail {
		return errors.New("brevo is down")
	}
	m.sent = append(m.sent, sentEmail{toEmail: toEmail, subject: subject, attachments: attachments})
	return nil
}

type serviceFixture struct {
	svc      *CertificateService
	repo     *repository.CertificateRepository
	dir      *fakeDirectory
	renderer *fakeRenderer
	mailer   *fakeMailer
	student  *models.User
	course   *models.Course
	teacher  *models.User
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Certificate{}))

	desc := "Teaches distributed systems"
	student := &models.User{ID: uuid.New(), FirstName: "Ada", LastName: "Wanjiru", Email: "ada@example.com"}
	teacher := &models.User{ID: uuid.New(), FirstName: "Grace", LastName: "Otieno", Email: "grace@example.com", Role: "teacher", ProfessionalDescription: &desc}
	course := &models.Course{ID: uuid.New(), Name: "Distributed Systems 101", Description: "Consensus and friends", StartDate: time.Now().AddDate(0, -3, 0)}

	dir := &fakeDirectory{
		users:    map[uuid.UUID]*models.User{student.ID: student, teacher.ID: teacher},
		courses:  map[uuid.UUID]*models.Course{course.ID: course},
		enrolled: map[[2]uuid.UUID]bool{{student.ID, course.ID}: true},
	}
	renderer := &fakeRenderer{}
	mailer := &fakeMailer{}

	codec, err := tokens.NewCodec(tokens.Config{Passphrase: "service-test-secret"})
	require.NoError(t, err)

	svc := NewCertificateService(db, codec, dir, dir, dir, renderer, nil, mailer, "https://courses.example.com/verify")

	return &serviceFixture{
		svc:      svc,
		repo:     repository.NewCertificateRepository(db),
		dir:      dir,
		renderer: renderer,
		mailer:   mailer,
		student:  student,
		course:   course,
		teacher:  teacher,
	}
}

func (f *serviceFixture) issueInput() IssueInput {
	return IssueInput{
		StudentID: f.student.ID,
		CourseID:  f.course.ID,
		TeacherID: f.teacher.ID,
		IssuedBy:  uuid.New(),
	}
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Issue(ctx, f.issueInput())
	require.NoError(t, err)

	assert.Contains(t, result.CertificateID, "CERT-")
	assert.Contains(t, result.VerificationURL, result.VerificationCode)
	assert.Equal(t, "Ada Wanjiru", result.StudentName)
	assert.Equal(t, "Distributed Systems 101", result.CourseName)

	cert, err := f.repo.FindActiveByVerificationCode(ctx, result.VerificationCode)
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.True(t, cert.IsActive)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "ada@example.com", f.mailer.sent[0].toEmail)
	require.Len(t, f.mailer.sent[0].attachments, 1)
	assert.Equal(t, result.CertificateID+".pdf", f.mailer.sent[0].attachments[0].Name)
}

func TestIssuePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown student", func(t *testing.T) {
		f := newFixture(t)
		in := f.issueInput()
		in.StudentID = uuid.New()

		_, err := f.svc.Issue(ctx, in)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "student", nf.Entity)
	})

	t.Run("unknown course", func(t *testing.T) {
		f := newFixture(t)
		in := f.issueInput()
		in.CourseID = uuid.New()

		_, err := f.svc.Issue(ctx, in)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "course", nf.Entity)
	})

	t.Run("unknown teacher", func(t *testing.T) {
		f := newFixture(t)
		in := f.issueInput()
		in.TeacherID = uuid.New()

		_, err := f.svc.Issue(ctx, in)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "teacher", nf.Entity)
	})

	t.Run("not enrolled", func(t *testing.T) {
		f := newFixture(t)
		f.dir.enrolled = map[[2]uuid.UUID]bool{}

		_, err := f.svc.Issue(ctx, f.issueInput())
		assert.ErrorIs(t, err, ErrNotEnrolled)
	})
}

func TestIssueIsIdempotentPerPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Issue(ctx, f.issueInput())
	require.NoError(t, err)

	secondActor := uuid.New()
	in := f.issueInput()
	in.IssuedBy = secondActor
	second, err := f.svc.Issue(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.CertificateID, second.CertificateID, "display code must survive re-issuance")
	assert.NotEqual(t, first.VerificationCode, second.VerificationCode)
	assert.True(t, second.GeneratedAt.After(first.GeneratedAt) || second.GeneratedAt.Equal(first.GeneratedAt))

	all, err := f.repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "re-issuance must never create a second record")
	assert.Equal(t, secondActor, all[0].GeneratedBy)

	// the overwritten token stops resolving
	old, err := f.repo.FindActiveByVerificationCode(ctx, first.VerificationCode)
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestIssueResolvesCreateRaceAsUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A concurrent request wins the race after our existence check came up
	// empty: the pair already holds an active certificate when create runs.
	winner := &models.Certificate{
		DisplayCode:      "CERT-WINNER0001",
		VerificationCode: "aa:bb",
		StudentID:        f.student.ID,
		CourseID:         f.course.ID,
		TeacherID:        f.teacher.ID,
		GeneratedAt:      time.Now().UTC().Add(-time.Minute),
		GeneratedBy:      uuid.New(),
		IsActive:         true,
	}
	require.NoError(t, f.repo.Create(ctx, winner))

	cert, err := f.svc.issueFresh(ctx, f.issueInput())
	require.NoError(t, err)

	assert.Equal(t, winner.ID, cert.ID, "the loser must update the winner's record")
	assert.Equal(t, "CERT-WINNER0001", cert.DisplayCode)
	assert.NotEqual(t, "aa:bb", cert.VerificationCode)

	all, err := f.repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIssueDeliveryFailureIsFatal(t *testing.T) {
	ctx := context.Background()

	t.Run("render failure", func(t *testing.T) {
		f := newFixture(t)
		f.renderer.fail = true

		_, err := f.svc.Issue(ctx, f.issueInput())
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "render", de.Stage)
	})

	t.Run("email failure", func(t *testing.T) {
		f := newFixture(t)
		f.mailer.fail = true

		_, err := f.svc.Issue(ctx, f.issueInput())
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "email", de.Stage)

		// the record exists regardless; only delivery failed
		all, listErr := f.repo.ListAll(ctx)
		require.NoError(t, listErr)
		assert.Len(t, all, 1)
	})
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, f.issueInput())
	require.NoError(t, err)

	cert, err := f.repo.FindActiveByVerificationCode(ctx, issued.VerificationCode)
	require.NoError(t, err)
	require.NotNil(t, cert)

	actor := uuid.New()
	result, err := f.svc.Regenerate(ctx, cert.ID, actor)
	require.NoError(t, err)

	assert.True(t, result.Delivered)
	assert.Empty(t, result.DeliveryError)
	assert.Equal(t, issued.CertificateID, result.CertificateID)
	assert.NotEqual(t, issued.VerificationCode, result.VerificationCode)

	updated, err := f.repo.FindByID(ctx, cert.ID)
	require.NoError(t, err)
	assert.Equal(t, actor, updated.GeneratedBy)
	assert.Len(t, f.mailer.sent, 2)
}

func TestRegenerateUnknownCertificate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Regenerate(context.Background(), uuid.New(), uuid.New())
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "certificate", nf.Entity)
}

func TestRegenerateToleratesDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, f.issueInput())
	require.NoError(t, err)
	cert, err := f.repo.FindActiveByVerificationCode(ctx, issued.VerificationCode)
	require.NoError(t, err)

	f.mailer.fail = true
	result, err := f.svc.Regenerate(ctx, cert.ID, uuid.New())
	require.NoError(t, err, "delivery failure must not fail regeneration")

	assert.False(t, result.Delivered)
	assert.NotEmpty(t, result.DeliveryError)
	assert.NotEqual(t, issued.VerificationCode, result.VerificationCode, "token was still rotated")
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("well-formed certificate", func(t *testing.T) {
		f := newFixture(t)
		issued, err := f.svc.Issue(ctx, f.issueInput())
		require.NoError(t, err)

		result := f.svc.Validate(ctx, issued.VerificationCode)
		require.True(t, result.IsValid)
		assert.Equal(t, "Ada Wanjiru", result.Student.FullName)
		assert.Equal(t, "Distributed Systems 101", result.Course.Name)
		require.NotNil(t, result.Teacher)
		assert.Equal(t, "Grace Otieno", result.Teacher.FullName)
		assert.Equal(t, issued.CertificateID, result.Certificate.CertificateID)
	})

	t.Run("garbage input", func(t *testing.T) {
		f := newFixture(t)
		for _, code := range []string{"", "nonsense", "aa:bb", "aa:bb:cc"} {
			result := f.svc.Validate(ctx, code)
			assert.False(t, result.IsValid)
			assert.Equal(t, "invalid code", result.Message)
		}
	})

	t.Run("token minted with a foreign key", func(t *testing.T) {
		f := newFixture(t)
		foreign, err := tokens.NewCodec(tokens.Config{Passphrase: "someone-elses-secret"})
		require.NoError(t, err)
		forged, err := foreign.Encode(tokens.Payload{
			CertificateID: "CERT-FORGED001",
			StudentID:     f.student.ID.String(),
			CourseID:      f.course.ID.String(),
			GeneratedAt:   time.Now(),
			ExpiresAt:     time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		result := f.svc.Validate(ctx, forged)
		assert.False(t, result.IsValid)
		assert.Equal(t, "invalid code", result.Message)
	})

	t.Run("expired token with an active record", func(t *testing.T) {
		f := newFixture(t)
		issued, err := f.svc.Issue(ctx, f.issueInput())
		require.NoError(t, err)
		cert, err := f.repo.FindActiveByVerificationCode(ctx, issued.VerificationCode)
		require.NoError(t, err)

		codec, err := tokens.NewCodec(tokens.Config{Passphrase: "service-test-secret"})
		require.NoError(t, err)
		stale, err := codec.Encode(tokens.Payload{
			CertificateID: cert.DisplayCode,
			StudentID:     cert.StudentID.String(),
			CourseID:      cert.CourseID.String(),
			GeneratedAt:   time.Now().AddDate(-2, 0, 0),
			ExpiresAt:     time.Now().AddDate(-1, 0, 0),
		})
		require.NoError(t, err)
		_, err = f.repo.Update(ctx, cert.ID, map[string]interface{}{"verification_code": stale})
		require.NoError(t, err)

		result := f.svc.Validate(ctx, stale)
		assert.False(t, result.IsValid)
		assert.Equal(t, "expired", result.Message)
	})

	t.Run("revoked certificate with an unexpired token", func(t *testing.T) {
		f := newFixture(t)
		issued, err := f.svc.Issue(ctx, f.issueInput())
		require.NoError(t, err)
		cert, err := f.repo.FindActiveByVerificationCode(ctx, issued.VerificationCode)
		require.NoError(t, err)

		require.NoError(t, f.svc.SoftDelete(ctx, cert.ID))

		result := f.svc.Validate(ctx, issued.VerificationCode)
		assert.False(t, result.IsValid)
		assert.Equal(t, "not found", result.Message)
	})

	t.Run("referential drift", func(t *testing.T) {
		f := newFixture(t)
		issued, err := f.svc.Issue(ctx, f.issueInput())
		require.NoError(t, err)

		delete(f.dir.users, f.student.ID)

		result := f.svc.Validate(ctx, issued.VerificationCode)
		assert.False(t, result.IsValid)
		assert.Equal(t, "incomplete data", result.Message)
	})

	t.Run("missing teacher stays valid", func(t *testing.T) {
		f := newFixture(t)
		issued, err := f.svc.Issue(ctx, f.issueInput())
		require.NoError(t, err)

		delete(f.dir.users, f.teacher.ID)

		result := f.svc.Validate(ctx, issued.VerificationCode)
		assert.True(t, result.IsValid)
		assert.Nil(t, result.Teacher)
	})
}

func TestExistenceChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exists, err := f.svc.Exists(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	issued, err := f.svc.Issue(ctx, f.issueInput())
	require.NoError(t, err)

	exists, err = f.svc.Exists(ctx, f.student.ID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	cert, err := f.repo.FindActiveByVerificationCode(ctx, issued.VerificationCode)
	require.NoError(t, err)

	byID, err := f.svc.ExistsByID(ctx, cert.ID)
	require.NoError(t, err)
	assert.True(t, byID)

	t.Run("revoked pair no longer exists, id still does", func(t *testing.T) {
		require.NoError(t, f.svc.SoftDelete(ctx, cert.ID))

		exists, err := f.svc.Exists(ctx, f.student.ID, f.course.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		byID, err := f.svc.ExistsByID(ctx, cert.ID)
		require.NoError(t, err)
		assert.True(t, byID, "administrative id check sees revoked records")
	})
}

func TestSoftDeleteUnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.SoftDelete(context.Background(), uuid.New())
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

// Full lifecycle: issue, verify, regenerate, revoke.
func TestCertificateLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, f.issueInput())
	require.NoError(t, err)
	require.True(t, f.svc.Validate(ctx, issued.VerificationCode).IsValid)

	cert, err := f.repo.FindActiveByVerificationCode(ctx, issued.VerificationCode)
	require.NoError(t, err)

	regen, err := f.svc.Regenerate(ctx, cert.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, issued.CertificateID, regen.CertificateID)

	assert.False(t, f.svc.Validate(ctx, issued.VerificationCode).IsValid, "old code must die on regeneration")
	assert.True(t, f.svc.Validate(ctx, regen.VerificationCode).IsValid)

	require.NoError(t, f.svc.SoftDelete(ctx, cert.ID))
	assert.False(t, f.svc.Validate(ctx, issued.VerificationCode).IsValid)
	assert.False(t, f.svc.Validate(ctx, regen.VerificationCode).IsValid)
}
