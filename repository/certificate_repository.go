package repository

import (
	"context"
	"errors"

	"github.com/edulink/course_platform/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificateRepository is the persistence layer for certificate records.
// Every query is scoped to is_active = true unless the method says otherwise.
// Uniqueness of display_code, verification_code and the active
// (student, course) pair is enforced by database indexes; Create surfaces a
// violation as gorm.ErrDuplicatedKey rather than hiding it.
type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	return r.db.WithContext(ctx).Create(cert).Error
}

// Update applies the given fields to the certificate with the given id.
// Returns nil when the id is unknown.
func (r *CertificateRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Certificate, error) {
	result := r.db.WithContext(ctx).Model(&models.Certificate{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return r.FindByID(ctx, id)
}

// FindByID looks a certificate up regardless of is_active. Administrative
// checks need to see revoked records too.
func (r *CertificateRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	var cert models.Certificate
	err := r.db.WithContext(ctx).First(&cert, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) FindActiveByVerificationCode(ctx context.Context, code string) (*models.Certificate, error) {
	var cert models.Certificate
	err := r.db.WithContext(ctx).
		Where("verification_code = ? AND is_active = ?", code, true).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// FindActiveByStudentAndCourse returns the active certificate for the pair.
// The partial unique index guarantees at most one; should corrupt data ever
// hold several, the most recently generated one wins.
func (r *CertificateRepository) FindActiveByStudentAndCourse(ctx context.Context, studentID, courseID uuid.UUID) (*models.Certificate, error) {
	var cert models.Certificate
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND is_active = ?", studentID, courseID, true).
		Order("generated_at DESC").
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// SoftDelete revokes a certificate. The row is kept for audit; it simply
// stops matching any active-scoped query. Returns nil for an unknown id.
func (r *CertificateRepository) SoftDelete(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	return r.Update(ctx, id, map[string]interface{}{"is_active": false})
}

func (r *CertificateRepository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Certificate, error) {
	var certs []models.Certificate
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND is_active = ?", courseID, true).
		Order("generated_at DESC").
		Find(&certs).Error
	return certs, err
}

func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]models.Certificate, error) {
	var certs []models.Certificate
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND is_active = ?", studentID, true).
		Order("generated_at DESC").
		Find(&certs).Error
	return certs, err
}

// ListAll returns every record, revoked ones included. Debug endpoint only.
func (r *CertificateRepository) ListAll(ctx context.Context) ([]models.Certificate, error) {
	var certs []models.Certificate
	err := r.db.WithContext(ctx).Order("generated_at DESC").Find(&certs).Error
	return certs, err
}
