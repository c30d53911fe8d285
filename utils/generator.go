package utils

import (
	"math/rand"
	"time"

	"github.com/eventra/certhub/models"
	"gorm.io/gorm"
)

const uniqueCodeLength = 8
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUniqueCertificateCode returns a short human-checkable code that
// no existing certificate record uses.
func GenerateUniqueCertificateCode(tx *gorm.DB) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		b := make([]byte, uniqueCodeLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		code := string(b)

		var record models.CertificateRecord
		err := tx.Where("unique_code = ?", code).First(&record).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return code, nil
			}
			return "", err
		}
	}
}
