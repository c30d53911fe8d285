package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eventra/certhub/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	DefaultBatchBudget     = time.Minute
	pregenerateConcurrency = 4
)

// BatchMerger concatenates already-cached artifacts into one paged
// download. The caller supplies the total order; storage iteration order is
// never used as an ordering source.
type BatchMerger struct {
	db     *gorm.DB
	cache  *ArtifactCache
	engine PDFEngine
	budget time.Duration
}

func NewBatchMerger(db *gorm.DB, cache *ArtifactCache, engine PDFEngine, budget time.Duration) *BatchMerger {
	if budget <= 0 {
		budget = DefaultBatchBudget
	}
	return &BatchMerger{db: db, cache: cache, engine: engine, budget: budget}
}

type BatchResult struct {
	Document    []byte            `json:"-"`
	Skipped     []SkippedArtifact `json:"skipped"`
	Included    int               `json:"included"`
	PageCount   int               `json:"page_count"`
	FirstSerial string            `json:"first_serial,omitempty"`
	LastSerial  string            `json:"last_serial,omitempty"`
}

// MergeBatch walks the window of the caller-ordered id list, appends each
// stored artifact in list order, and records (never fails on) absent ones.
// On a blown wall-clock budget the whole merge is discarded; callers retry
// with a smaller window.
func (m *BatchMerger) MergeBatch(ctx context.Context, orderedIDs []uuid.UUID, offset, limit int) (*BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.budget)
	defer cancel()

	if offset < 0 {
		offset = 0
	}
	if offset > len(orderedIDs) {
		offset = len(orderedIDs)
	}
	end := len(orderedIDs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	window := orderedIDs[offset:end]

	result := &BatchResult{}
	var docs [][]byte

	for _, id := range window {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch merge aborted: %w", err)
		}

		var record models.CertificateRecord
		err := m.db.WithContext(ctx).First(&record, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Skipped = append(result.Skipped, SkippedArtifact{CertificateID: id, Reason: "certificate not found"})
			continue
		}
		if err != nil {
			return nil, err
		}

		serial := ""
		if record.SerialNumber != nil {
			serial = *record.SerialNumber
		}

		data, err := m.cache.Peek(ctx, id)
		if err != nil {
			result.Skipped = append(result.Skipped, SkippedArtifact{CertificateID: id, SerialNumber: serial, Reason: "artifact missing"})
			continue
		}

		docs = append(docs, data)
		result.Included++
		if result.FirstSerial == "" {
			result.FirstSerial = serial
		}
		result.LastSerial = serial
	}

	if len(docs) == 0 {
		return result, nil
	}

	merged, err := m.engine.Merge(docs)
	if err != nil {
		return nil, fmt.Errorf("merge batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch merge aborted: %w", err)
	}

	result.Document = merged
	if pages, err := m.engine.PageCount(merged); err == nil {
		result.PageCount = pages
	}
	return result, nil
}

// OrderedIDsForContest computes the canonical batch order
// (contest, rank, member number) with the record id as the final tiebreak.
func (m *BatchMerger) OrderedIDsForContest(ctx context.Context, contestID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.db.WithContext(ctx).Model(&models.CertificateRecord{}).
		Where("ownership ->> 'contest_id' = ?", contestID.String()).
		Order("(ownership ->> 'rank')::int, (ownership ->> 'member_number')::int, id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Pregenerate populates the cache for a batch ahead of merging. Failures
// are reported per certificate; the rest of the batch proceeds.
func (m *BatchMerger) Pregenerate(ctx context.Context, ids []uuid.UUID) []SkippedArtifact {
	ctx, cancel := context.WithTimeout(ctx, m.budget)
	defer cancel()

	var mu sync.Mutex
	var failed []SkippedArtifact

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pregenerateConcurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				failed = append(failed, SkippedArtifact{CertificateID: id, Reason: "budget exceeded"})
				mu.Unlock()
				return nil
			}
			if _, err := m.cache.GetOrGenerate(ctx, id); err != nil {
				mu.Lock()
				failed = append(failed, SkippedArtifact{CertificateID: id, Reason: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return failed
}

func sanitizeSerial(serial string) string {
	return strings.ReplaceAll(serial, "/", "-")
}

// BatchFilename follows the download contract:
// Certificates_Batch_{n}_{first}_to_{last}.pdf
func BatchFilename(batchNumber int, firstSerial, lastSerial string) string {
	return fmt.Sprintf("Certificates_Batch_%d_%s_to_%s.pdf",
		batchNumber, sanitizeSerial(firstSerial), sanitizeSerial(lastSerial))
}
