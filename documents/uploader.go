package documents

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryUploader hosts rendered certificate PDFs so the issuance summary
// can hand out a stable document URL next to the verification link.
type CloudinaryUploader struct {
	cloudinaryURL string
}

func NewCloudinaryUploader(cloudinaryURL string) *CloudinaryUploader {
	return &CloudinaryUploader{cloudinaryURL: cloudinaryURL}
}

func (u *CloudinaryUploader) Upload(ctx context.Context, fileBytes []byte, displayCode string) (string, error) {
	cld, err := cloudinary.NewFromURL(u.cloudinaryURL)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	uploadParams := uploader.UploadParams{
		PublicID:     fmt.Sprintf("certificates/%s", displayCode),
		Folder:       "course_platform_certificates",
		ResourceType: "raw",
	}

	uploadResult, err := cld.Upload.Upload(ctx, bytes.NewReader(fileBytes), uploadParams)
	if err != nil {
		return "", err
	}

	return uploadResult.SecureURL, nil
}
