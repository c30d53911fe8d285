package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/eventra/certhub/models"
	"github.com/eventra/certhub/storage"
	"github.com/eventra/certhub/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const DefaultFreshnessWindow = 24 * time.Hour

// ArtifactCache decides whether a stored artifact can be reused or must be
// regenerated. Regeneration per certificate id goes through singleflight so
// two concurrent callers for the same stale artifact do not both pay for a
// render.
type ArtifactCache struct {
	db        *gorm.DB
	renderer  *CertificateRenderer
	allocator *SerialAllocator
	store     *storage.ArtifactStore
	publisher storage.Publisher
	freshness time.Duration
	group     singleflight.Group
}

func NewArtifactCache(db *gorm.DB, renderer *CertificateRenderer, allocator *SerialAllocator, store *storage.ArtifactStore, publisher storage.Publisher, freshness time.Duration) *ArtifactCache {
	if freshness <= 0 {
		freshness = DefaultFreshnessWindow
	}
	return &ArtifactCache{
		db:        db,
		renderer:  renderer,
		allocator: allocator,
		store:     store,
		publisher: publisher,
		freshness: freshness,
	}
}

// GetOrGenerate returns fresh cached bytes when they exist, otherwise
// renders, persists and returns new bytes. A failed persist is logged and
// degraded: the caller still gets the bytes, the record stays untouched.
func (c *ArtifactCache) GetOrGenerate(ctx context.Context, certificateID uuid.UUID) ([]byte, error) {
	v, err, _ := c.group.Do(certificateID.String(), func() (interface{}, error) {
		return c.getOrGenerate(ctx, certificateID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *ArtifactCache) getOrGenerate(ctx context.Context, certificateID uuid.UUID) ([]byte, error) {
	var record models.CertificateRecord
	err := c.db.WithContext(ctx).First(&record, "id = ?", certificateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}

	if record.FilePath != nil {
		if info, err := c.store.Stat(*record.FilePath); err == nil && time.Since(info.ModTime()) < c.freshness {
			if data, err := c.store.Read(*record.FilePath); err == nil {
				return data, nil
			}
		}
	}

	if err := c.ensureIdentifiers(ctx, &record); err != nil {
		return nil, err
	}

	data, err := c.renderer.Generate(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	path := c.store.PathFor(record.ID)
	if err := c.store.Write(path, data); err != nil {
		perr := &PersistError{Path: path, Err: err}
		log.Printf("🔥 %v (serving in-memory artifact)", perr)
		return data, nil
	}

	update := map[string]interface{}{
		"file_path":  path,
		"status":     models.CertificateStatusReady,
		"updated_at": time.Now(),
	}
	if err := c.db.WithContext(ctx).Model(&record).Updates(update).Error; err != nil {
		perr := &PersistError{Path: path, Err: err}
		log.Printf("🔥 %v (record not marked READY)", perr)
		return data, nil
	}

	if c.publisher != nil {
		c.publish(ctx, &record, data)
	}

	return data, nil
}

// ensureIdentifiers assigns the serial number and unique code exactly once,
// at first generation. A record never moves to a different serial.
func (c *ArtifactCache) ensureIdentifiers(ctx context.Context, record *models.CertificateRecord) error {
	if record.SerialNumber == nil {
		serial, err := c.allocator.Generate(ctx, record.TemplateID, record.RecipientType, record.CreatedAt.Year())
		if err != nil {
			return err
		}
		if err := c.db.WithContext(ctx).Model(record).Update("serial_number", serial).Error; err != nil {
			return err
		}
		record.SerialNumber = &serial
	}

	if record.UniqueCode == "" {
		code, err := utils.GenerateUniqueCertificateCode(c.db.WithContext(ctx))
		if err != nil {
			return err
		}
		if err := c.db.WithContext(ctx).Model(record).Update("unique_code", code).Error; err != nil {
			return err
		}
		record.UniqueCode = code
	}

	return nil
}

func (c *ArtifactCache) publish(ctx context.Context, record *models.CertificateRecord, data []byte) {
	publicID := record.ID.String()
	if record.SerialNumber != nil {
		publicID = sanitizeSerial(*record.SerialNumber)
	}
	url, err := c.publisher.Publish(ctx, publicID, data)
	if err != nil {
		log.Printf("🔥 Failed to publish certificate %s: %v", record.ID, err)
		return
	}
	if err := c.db.WithContext(ctx).Model(record).Update("public_url", url).Error; err != nil {
		log.Printf("🔥 Failed to store public URL for certificate %s: %v", record.ID, err)
	}
}

// Peek returns the stored artifact only. It never triggers regeneration;
// batch merging depends on the cache having been populated beforehand.
func (c *ArtifactCache) Peek(ctx context.Context, certificateID uuid.UUID) ([]byte, error) {
	var record models.CertificateRecord
	err := c.db.WithContext(ctx).First(&record, "id = ?", certificateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}
	if record.FilePath == nil {
		return nil, errors.New("no artifact on file")
	}
	return c.store.Read(*record.FilePath)
}

// Invalidate drops the stored artifact so the next GetOrGenerate renders
// again. The serial number is untouched.
func (c *ArtifactCache) Invalidate(ctx context.Context, certificateID uuid.UUID) error {
	var record models.CertificateRecord
	err := c.db.WithContext(ctx).First(&record, "id = ?", certificateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCertificateNotFound
	}
	if err != nil {
		return err
	}
	if record.FilePath == nil {
		return nil
	}
	if err := c.store.Remove(*record.FilePath); err != nil {
		return err
	}
	return c.db.WithContext(ctx).Model(&record).
		Updates(map[string]interface{}{"file_path": nil, "status": models.CertificateStatusDraft}).Error
}
