package main

import (
	"log"
	"time"

	config "github.com/edulink/course_platform/configs"
	"github.com/edulink/course_platform/database"
	"github.com/edulink/course_platform/documents"
	"github.com/edulink/course_platform/handlers"
	"github.com/edulink/course_platform/jobs"
	"github.com/edulink/course_platform/notifications"
	"github.com/edulink/course_platform/routes"
	"github.com/edulink/course_platform/services"
	"github.com/edulink/course_platform/tokens"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	database.ConnectDB()
	database.Migrate()
	database.SeedAdmin()

	codec, err := tokens.NewCodec(tokens.Config{
		Passphrase:         config.Config("CERTIFICATE_SECRET"),
		FallbackPassphrase: tokens.DefaultFallbackPassphrase,
		Production:         config.Config("APP_ENV") == "production",
	})
	if err != nil {
		log.Fatalf("🔥 Failed to initialize token codec: %v", err)
	}

	var mailer services.EmailSender
	brevo, err := notifications.NewBrevoService(
		config.Config("BREVO_API_KEY"),
		config.Config("EMAIL_SENDER"),
		config.Config("EMAIL_SENDER_NAME"),
	)
	if err != nil {
		log.Printf("⚠️ %v; certificates will not be emailed", err)
	} else {
		mailer = brevo
	}

	var uploader services.DocumentUploader
	if cloudinaryURL := config.Config("CLOUDINARY_URL"); cloudinaryURL != "" {
		uploader = documents.NewCloudinaryUploader(cloudinaryURL)
	}

	lookup := services.NewGormLookup(database.DB)
	certificateService := services.NewCertificateService(
		database.DB,
		codec,
		lookup,
		lookup,
		lookup,
		documents.NewPDFRenderer("templates/certificate.html"),
		uploader,
		mailer,
		config.Config("VERIFY_BASE_URL"),
	)

	expiryReminder := &jobs.ExpiryReminder{DB: database.DB, Mailer: mailer}
	c := cron.New()
	c.AddFunc("0 8 * * *", expiryReminder.Run)
	go c.Start()
	log.Println("✅ Cron job for expiry reminders scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Course Platform",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "Welcome to Course Platform API",
		})
	})

	routes.AuthRoutes(app)
	routes.CertificateRoutes(app, handlers.NewCertificateHandler(certificateService))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Println("✅ Server is running on port 8080")
	if err := app.Listen(":8080"); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
