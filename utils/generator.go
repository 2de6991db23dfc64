package utils

import (
	"math/rand"
	"time"

	"github.com/edulink/course_platform/models"
	"gorm.io/gorm"
)

const certificateCodePrefix = "CERT-"
const certificateCodeLength = 10
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUniqueCertificateCode allocates a display code no certificate row
// holds yet, retrying on the rare collision.
func GenerateUniqueCertificateCode(tx *gorm.DB) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		b := make([]byte, certificateCodeLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		code := certificateCodePrefix + string(b)

		var cert models.Certificate
		err := tx.Where("display_code = ?", code).First(&cert).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return code, nil
			}
			return "", err
		}
	}
}
