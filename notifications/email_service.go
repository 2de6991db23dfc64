package notifications

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// Attachment is a file sent along with an email.
type Attachment struct {
	Name    string
	Content []byte
}

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	client      *http.Client
}

type brevoAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
	Attachment  []brevoAttachment   `json:"attachment,omitempty"`
}

func NewBrevoService(apiKey, senderEmail, senderName string) (*BrevoService, error) {
	if apiKey == "" || senderEmail == "" || senderName == "" {
		return nil, fmt.Errorf("email service not configured: missing API key, sender email, or sender name")
	}

	log.Printf("✅ Email service initialized (sender: %s <%s>)", senderName, senderEmail)
	return &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		client:      &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Send delivers one email through the Brevo transactional API. A single
// attempt, no retries; the caller decides whether a failure is fatal.
func (s *BrevoService) Send(ctx context.Context, toName, toEmail, subject, htmlContent string, attachments []Attachment) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}
	for _, att := range attachments {
		payload.Attachment = append(payload.Attachment, brevoAttachment{
			Name:    att.Name,
			Content: base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		log.Printf("Brevo API error: Status %d, Body: %s", resp.StatusCode, string(respBytes))
		return fmt.Errorf("failed to send email via Brevo: %s", string(respBytes))
	}

	log.Printf("✅ Email sent successfully to %s", toEmail)
	return nil
}
