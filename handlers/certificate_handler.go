package handlers

import (
	"errors"
	"log"

	"github.com/edulink/course_platform/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var validate = validator.New()

type CertificateHandler struct {
	service *services.CertificateService
}

func NewCertificateHandler(service *services.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

type IssueCertificateRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	CourseID  string `json:"course_id" validate:"required,uuid4"`
	TeacherID string `json:"teacher_id" validate:"required,uuid4"`
}

func (h *CertificateHandler) Issue(c *fiber.Ctx) error {
	var req IssueCertificateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := h.service.Issue(c.Context(), services.IssueInput{
		StudentID: uuid.MustParse(req.StudentID),
		CourseID:  uuid.MustParse(req.CourseID),
		TeacherID: uuid.MustParse(req.TeacherID),
		IssuedBy:  actorID(c),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *CertificateHandler) Regenerate(c *fiber.Ctx) error {
	certID, err := uuid.Parse(c.Params("certificateId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid certificate id"})
	}

	result, err := h.service.Regenerate(c.Context(), certID, actorID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(result)
}

func (h *CertificateHandler) Validate(c *fiber.Ctx) error {
	// Always 200 with a structured result: any string can arrive here and
	// none of them deserve an error page.
	result := h.service.Validate(c.Context(), c.Params("code"))
	return c.JSON(result)
}

func (h *CertificateHandler) Exists(c *fiber.Ctx) error {
	studentID, err := uuid.Parse(c.Query("student_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student id"})
	}
	courseID, err := uuid.Parse(c.Query("course_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid course id"})
	}

	exists, err := h.service.Exists(c.Context(), studentID, courseID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"exists": exists})
}

func (h *CertificateHandler) ExistsByID(c *fiber.Ctx) error {
	certID, err := uuid.Parse(c.Params("certificateId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid certificate id"})
	}

	exists, err := h.service.ExistsByID(c.Context(), certID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"exists": exists})
}

func (h *CertificateHandler) ListByCourse(c *fiber.Ctx) error {
	courseID, err := uuid.Parse(c.Params("courseId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid course id"})
	}

	certs, err := h.service.ListByCourse(c.Context(), courseID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(certs)
}

func (h *CertificateHandler) ListByStudent(c *fiber.Ctx) error {
	studentID, err := uuid.Parse(c.Params("studentId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid student id"})
	}

	certs, err := h.service.ListByStudent(c.Context(), studentID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(certs)
}

func (h *CertificateHandler) SoftDelete(c *fiber.Ctx) error {
	certID, err := uuid.Parse(c.Params("certificateId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid certificate id"})
	}

	if err := h.service.SoftDelete(c.Context(), certID); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CertificateHandler) DebugListAll(c *fiber.Ctx) error {
	certs, err := h.service.ListAll(c.Context())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(certs)
}

func actorID(c *fiber.Ctx) uuid.UUID {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil
	}
	raw, _ := claims["user_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func respondServiceError(c *fiber.Ctx, err error) error {
	var nf *services.NotFoundError
	if errors.As(err, &nf) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": nf.Error()})
	}
	if errors.Is(err, services.ErrNotEnrolled) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	var de *services.DeliveryError
	if errors.As(err, &de) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Certificate was created but could not be delivered"})
	}
	// a duplicate the issuance workflow could not resolve as an update
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Certificate already exists"})
	}

	log.Printf("[ERROR] certificate operation failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
