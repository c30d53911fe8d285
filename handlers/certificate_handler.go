package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	config "github.com/eventra/certhub/configs"
	"github.com/eventra/certhub/database"
	"github.com/eventra/certhub/services"
	"github.com/eventra/certhub/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	serialAllocator *services.SerialAllocator
	artifactCache   *services.ArtifactCache
	batchMerger     *services.BatchMerger
)

// InitCertificateServices wires the certificate core against the live
// database. Must run after database.ConnectDB.
func InitCertificateServices() {
	storageDir := config.Config("STORAGE_DIR")
	if storageDir == "" {
		storageDir = "data"
	}

	store, err := storage.NewArtifactStore(storageDir)
	if err != nil {
		log.Fatalf("🔥 Failed to prepare artifact storage: %v", err)
	}

	engine := services.NewChromeEngine(time.Duration(config.ConfigInt("BATCH_BUDGET_SECONDS", 60)) * time.Second)

	renderer, err := services.NewCertificateRenderer(
		database.DB, engine, store, services.DefaultCalibration(), "templates/certificate.html")
	if err != nil {
		log.Fatalf("🔥 Failed to load certificate render template: %v", err)
	}

	serialAllocator = services.NewSerialAllocator(database.DB, config.Config("SERIAL_PREFIX"))

	var publisher storage.Publisher
	if config.Config("CLOUDINARY_URL") != "" {
		publisher = storage.NewCloudinaryPublisher()
	}

	artifactCache = services.NewArtifactCache(
		database.DB, renderer, serialAllocator, store, publisher,
		config.ConfigHours("FRESHNESS_HOURS", services.DefaultFreshnessWindow))

	batchMerger = services.NewBatchMerger(
		database.DB, artifactCache, engine,
		time.Duration(config.ConfigInt("BATCH_BUDGET_SECONDS", 60))*time.Second)

	log.Println("✅ Certificate services initialized")
}

func certificateError(c *fiber.Ctx, err error) error {
	var renderErr *services.RenderError
	switch {
	case errors.Is(err, services.ErrCertificateNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Certificate not found"})
	case errors.As(err, &renderErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":      "Failed to render certificate element",
			"element_id": renderErr.ElementID,
			"detail":     renderErr.Error(),
		})
	case errors.Is(err, services.ErrTemplateAssetMissing):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrAllocationContention):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Serial allocation is contended, retry shortly"})
	case errors.Is(err, services.ErrAllocationExhausted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Serial sequence exhausted for this scope"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func DownloadCertificate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("certificateId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid certificate id"})
	}

	data, err := artifactCache.GetOrGenerate(c.Context(), id)
	if err != nil {
		return certificateError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="Certificate_%s.pdf"`, id))
	return c.Send(data)
}

func RegenerateCertificate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("certificateId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid certificate id"})
	}

	if err := artifactCache.Invalidate(c.Context(), id); err != nil {
		return certificateError(c, err)
	}
	if _, err := artifactCache.GetOrGenerate(c.Context(), id); err != nil {
		return certificateError(c, err)
	}

	return c.JSON(fiber.Map{"status": "success", "message": "Certificate regenerated"})
}

func PreviewSerialNumber(c *fiber.Ctx) error {
	templateID, err := uuid.Parse(c.Query("template_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid template_id"})
	}
	targetType := c.Query("target_type")
	year := c.QueryInt("year", time.Now().Year())

	serial, err := serialAllocator.PreviewNext(c.Context(), templateID, targetType, year)
	if err != nil {
		if errors.Is(err, services.ErrAllocationExhausted) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Serial sequence exhausted for this scope"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	// Advisory only: nothing is reserved for the caller.
	return c.JSON(fiber.Map{"next_serial_number": serial})
}

func VerifySerialNumber(c *fiber.Ctx) error {
	serial := strings.ReplaceAll(c.Params("serial"), "-", "/")

	if !serialAllocator.ValidateSerial(serial) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"valid": false, "error": "Malformed serial number"})
	}

	record, err := serialAllocator.CertificateBySerial(c.Context(), serial)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Lookup failed"})
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"valid": true, "issued": false})
	}

	return c.JSON(fiber.Map{
		"valid":  true,
		"issued": true,
		"certificate": fiber.Map{
			"serial_number":  record.SerialNumber,
			"recipient_name": record.RecipientName,
			"recipient_type": record.RecipientType,
			"unique_code":    record.UniqueCode,
			"status":         record.Status,
			"issued_at":      record.CreatedAt,
		},
	})
}

type BatchDownloadRequest struct {
	CertificateIDs []uuid.UUID `json:"certificate_ids"`
	ContestID      *uuid.UUID  `json:"contest_id"`
	BatchNumber    int         `json:"batch_number" validate:"min=0"`
	Offset         int         `json:"offset" validate:"min=0"`
	Limit          int         `json:"limit" validate:"min=0"`
}

func BatchDownload(c *fiber.Ctx) error {
	var req BatchDownloadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	orderedIDs := req.CertificateIDs
	if len(orderedIDs) == 0 {
		if req.ContestID == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Provide certificate_ids or contest_id"})
		}
		ids, err := batchMerger.OrderedIDsForContest(c.Context(), *req.ContestID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to order batch"})
		}
		orderedIDs = ids
	}

	result, err := batchMerger.MergeBatch(c.Context(), orderedIDs, req.Offset, req.Limit)
	if err != nil {
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	}

	if c.Query("report") == "json" {
		return c.JSON(result)
	}

	skippedSerials := make([]string, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		if s.SerialNumber != "" {
			skippedSerials = append(skippedSerials, s.SerialNumber)
		} else {
			skippedSerials = append(skippedSerials, s.CertificateID.String())
		}
	}

	if len(result.Document) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "No artifacts available for this window",
			"skipped": skippedSerials,
		})
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, services.BatchFilename(req.BatchNumber, result.FirstSerial, result.LastSerial)))
	c.Set("X-Skipped-Serials", strings.Join(skippedSerials, ","))
	return c.Send(result.Document)
}

type PregenerateRequest struct {
	CertificateIDs []uuid.UUID `json:"certificate_ids" validate:"required,min=1"`
}

func PregenerateBatch(c *fiber.Ctx) error {
	var req PregenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	failed := batchMerger.Pregenerate(c.Context(), req.CertificateIDs)

	return c.JSON(fiber.Map{
		"requested": len(req.CertificateIDs),
		"generated": len(req.CertificateIDs) - len(failed),
		"failed":    failed,
	})
}
