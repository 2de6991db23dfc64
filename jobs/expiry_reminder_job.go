package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/edulink/course_platform/models"
	"github.com/edulink/course_platform/services"
	"github.com/edulink/course_platform/tokens"
	"gorm.io/gorm"
)

const reminderWindow = 30 * 24 * time.Hour

// ExpiryReminder emails students whose certificate verification links run
// out within the next 30 days, inviting them to request regeneration.
type ExpiryReminder struct {
	DB     *gorm.DB
	Mailer services.EmailSender
}

func (j *ExpiryReminder) Run() {
	log.Println("Running job: SendExpiryReminders...")

	if j.Mailer == nil {
		log.Println("Email client not configured, skipping expiry reminders.")
		return
	}

	now := time.Now().UTC()
	newest := now.Add(reminderWindow - tokens.ValidityPeriod)
	oldest := now.Add(-tokens.ValidityPeriod)

	var expiring []models.Certificate
	err := j.DB.
		Where("is_active = ? AND generated_at BETWEEN ? AND ?", true, oldest, newest).
		Find(&expiring).Error
	if err != nil {
		log.Printf("Error checking for expiring certificates: %v", err)
		return
	}

	if len(expiring) == 0 {
		return
	}

	for _, cert := range expiring {
		var student models.User
		if err := j.DB.First(&student, "id = ?", cert.StudentID).Error; err != nil {
			log.Printf("Skipping reminder for certificate %s: student lookup failed: %v", cert.DisplayCode, err)
			continue
		}
		var course models.Course
		if err := j.DB.First(&course, "id = ?", cert.CourseID).Error; err != nil {
			log.Printf("Skipping reminder for certificate %s: course lookup failed: %v", cert.DisplayCode, err)
			continue
		}

		expiresAt := cert.GeneratedAt.Add(tokens.ValidityPeriod)
		emailSubject := "Your certificate verification link expires soon"
		emailBody := fmt.Sprintf(
			"<h1>Certificate Expiry Reminder</h1><p>Hi %s,</p><p>The verification link for your <b>%s</b> certificate (%s) expires on %s.</p><p>Reply to this email or contact your course administrator to have it regenerated.</p>",
			student.FirstName, course.Name, cert.DisplayCode, expiresAt.Format("January 2, 2006"),
		)

		if err := j.Mailer.Send(context.Background(), student.FullName(), student.Email, emailSubject, emailBody, nil); err != nil {
			log.Printf("🔥 Failed to send expiry reminder for certificate %s: %v", cert.DisplayCode, err)
		}
	}

	log.Printf("✅ Sent expiry reminders for %d certificate(s)", len(expiring))
}
