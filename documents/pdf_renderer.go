package documents

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// CertificateData is everything the certificate document layout needs.
type CertificateData struct {
	StudentName     string
	TeacherName     string
	CourseName      string
	DisplayCode     string
	VerificationURL string
	CompletionDate  time.Time
}

// PDFRenderer renders the certificate HTML template to PDF through headless
// Chrome.
type PDFRenderer struct {
	templatePath string
}

func NewPDFRenderer(templatePath string) *PDFRenderer {
	return &PDFRenderer{templatePath: templatePath}
}

func (r *PDFRenderer) Render(ctx context.Context, data CertificateData) ([]byte, error) {
	htmlContent, err := r.renderHTML(data)
	if err != nil {
		return nil, err
	}
	return printToPDF(ctx, htmlContent)
}

func (r *PDFRenderer) renderHTML(data CertificateData) (string, error) {
	tmpl, err := template.ParseFiles(r.templatePath)
	if err != nil {
		return "", err
	}

	view := struct {
		StudentName     string
		TeacherName     string
		CourseName      string
		CertificateID   string
		VerificationURL string
		CompletionDate  string
	}{
		StudentName:     data.StudentName,
		TeacherName:     data.TeacherName,
		CourseName:      data.CourseName,
		CertificateID:   data.DisplayCode,
		VerificationURL: data.VerificationURL,
		CompletionDate:  data.CompletionDate.Format("January 2, 2006"),
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, view); err != nil {
		return "", err
	}
	return rendered.String(), nil
}

func printToPDF(parent context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(parent)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).WithLandscape(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}
