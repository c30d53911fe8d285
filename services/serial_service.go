package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eventra/certhub/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultSerialPrefix = "CERT"
	serialSeqWidth      = 4
	maxSerialSeq        = 9999
	allocationAttempts  = 5
)

var serialPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*/\d{4}/[A-Z]{2}/\d{4}$`)

var typeCodes = map[string]string{
	string(models.OwnershipEventWinner):  "EW",
	string(models.OwnershipContingent):   "CT",
	string(models.OwnershipState):        "ST",
	string(models.OwnershipContestant):   "CN",
	string(models.OwnershipPregenerated): "PG",
}

// SerialAllocator issues unique, ordered serial numbers per
// (template, target type, year) scope. The counter row is the only
// contended resource in the system; every update is a conditional
// compare-and-swap so two concurrent callers can never read the same
// sequence value.
type SerialAllocator struct {
	db       *gorm.DB
	prefix   string
	attempts int
}

func NewSerialAllocator(db *gorm.DB, prefix string) *SerialAllocator {
	if prefix == "" {
		prefix = defaultSerialPrefix
	}
	return &SerialAllocator{db: db, prefix: prefix, attempts: allocationAttempts}
}

func typeCodeFor(targetType string) (string, error) {
	code, ok := typeCodes[targetType]
	if !ok {
		return "", fmt.Errorf("unknown target type %q", targetType)
	}
	return code, nil
}

func (a *SerialAllocator) format(year int, code string, seq int) string {
	return fmt.Sprintf("%s/%d/%s/%0*d", a.prefix, year, code, serialSeqWidth, seq)
}

// Generate allocates the next serial for the scope. On a lost
// compare-and-swap it retries up to the budget, then fails with
// ErrAllocationContention. A scope past 9999 fails with
// ErrAllocationExhausted.
func (a *SerialAllocator) Generate(ctx context.Context, templateID uuid.UUID, targetType string, year int) (string, error) {
	code, err := typeCodeFor(targetType)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < a.attempts; attempt++ {
		var counter models.SerialCounter
		err := a.db.WithContext(ctx).
			Where("template_id = ? AND target_type = ? AND year = ?", templateID, targetType, year).
			First(&counter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.SerialCounter{TemplateID: templateID, TargetType: targetType, Year: year}
			if err := a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
				return "", err
			}
			counter.LastIssued = 0
		} else if err != nil {
			return "", err
		}

		next := counter.LastIssued + 1
		if next > maxSerialSeq {
			return "", ErrAllocationExhausted
		}

		res := a.db.WithContext(ctx).Model(&models.SerialCounter{}).
			Where("template_id = ? AND target_type = ? AND year = ? AND last_issued = ?",
				templateID, targetType, year, counter.LastIssued).
			Update("last_issued", next)
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected == 1 {
			return a.format(year, code, next), nil
		}
		// Another caller won the swap; re-read and try again.
	}

	return "", ErrAllocationContention
}

// PreviewNext projects what the next allocation would currently produce.
// It is advisory only: nothing is reserved and the value may be stale by
// the time a real allocation runs. Never mutates counter state.
func (a *SerialAllocator) PreviewNext(ctx context.Context, templateID uuid.UUID, targetType string, year int) (string, error) {
	code, err := typeCodeFor(targetType)
	if err != nil {
		return "", err
	}

	var counter models.SerialCounter
	err = a.db.WithContext(ctx).
		Where("template_id = ? AND target_type = ? AND year = ?", templateID, targetType, year).
		First(&counter).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	next := counter.LastIssued + 1
	if next > maxSerialSeq {
		return "", ErrAllocationExhausted
	}
	return a.format(year, code, next), nil
}

// ValidateSerial is the authoritative format check for external
// verification tooling.
func (a *SerialAllocator) ValidateSerial(serial string) bool {
	if !serialPattern.MatchString(serial) {
		return false
	}
	typeCode := strings.Split(serial, "/")[2]
	for _, code := range typeCodes {
		if typeCode == code {
			return true
		}
	}
	return false
}

// CertificateBySerial is a pure lookup; an unknown serial returns (nil, nil).
func (a *SerialAllocator) CertificateBySerial(ctx context.Context, serial string) (*models.CertificateRecord, error) {
	var record models.CertificateRecord
	err := a.db.WithContext(ctx).Where("serial_number = ?", serial).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
