package routes

import (
	"github.com/edulink/course_platform/handlers"
	"github.com/edulink/course_platform/middleware"
	"github.com/gofiber/fiber/v2"
)

func CertificateRoutes(app *fiber.App, handler *handlers.CertificateHandler) {
	api := app.Group("/api/v1")

	// Public verification endpoint; anyone holding a link may check it.
	api.Get("/certificates/verify/:code", handler.Validate)

	admin := api.Group("/certificates", middleware.Protected(), middleware.AdminRequired())
	admin.Post("", handler.Issue)
	admin.Get("/exists", handler.Exists)
	admin.Get("/debug/all", handler.DebugListAll)
	admin.Get("/course/:courseId", handler.ListByCourse)
	admin.Get("/student/:studentId", handler.ListByStudent)
	admin.Post("/:certificateId/regenerate", handler.Regenerate)
	admin.Get("/:certificateId/exists", handler.ExistsByID)
	admin.Delete("/:certificateId", handler.SoftDelete)
}
