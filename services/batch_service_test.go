package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/eventra/certhub/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type batchFixture struct {
	db     *gorm.DB
	engine *fakeEngine
	cache  *ArtifactCache
	merger *BatchMerger
	tplID  uuid.UUID
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	db := newTestDB(t)
	engine := &fakeEngine{}
	cache := newTestCache(t, db, engine)
	tpl := seedTemplate(t, db, nameElement("name", 0))
	return &batchFixture{
		db:     db,
		engine: engine,
		cache:  cache,
		merger: NewBatchMerger(db, cache, engine, time.Minute),
		tplID:  tpl.ID,
	}
}

func (f *batchFixture) seedGenerated(t *testing.T, name string) models.CertificateRecord {
	t.Helper()
	record := seedCertificate(t, f.db, f.tplID, name)
	_, err := f.cache.GetOrGenerate(context.Background(), record.ID)
	require.NoError(t, err)

	var fresh models.CertificateRecord
	require.NoError(t, f.db.First(&fresh, "id = ?", record.ID).Error)
	return fresh
}

func TestMergeBatchPreservesOrder(t *testing.T) {
	f := newBatchFixture(t)

	c1 := f.seedGenerated(t, "ALPHA-RECIPIENT")
	c2 := f.seedGenerated(t, "BRAVO-RECIPIENT")
	c3 := f.seedGenerated(t, "CHARLIE-RECIPIENT")

	result, err := f.merger.MergeBatch(context.Background(), []uuid.UUID{c1.ID, c2.ID, c3.ID}, 0, 0)
	require.NoError(t, err)
	require.Empty(t, result.Skipped)
	assert.Equal(t, 3, result.Included)
	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, *c1.SerialNumber, result.FirstSerial)
	assert.Equal(t, *c3.SerialNumber, result.LastSerial)

	i1 := bytes.Index(result.Document, []byte("ALPHA-RECIPIENT"))
	i2 := bytes.Index(result.Document, []byte("BRAVO-RECIPIENT"))
	i3 := bytes.Index(result.Document, []byte("CHARLIE-RECIPIENT"))
	require.NotEqual(t, -1, i1)
	require.NotEqual(t, -1, i2)
	require.NotEqual(t, -1, i3)
	assert.Less(t, i1, i2)
	assert.Less(t, i2, i3)
}

func TestMergeBatchSkipsMissingArtifact(t *testing.T) {
	f := newBatchFixture(t)

	c1 := f.seedGenerated(t, "ALPHA-RECIPIENT")
	c2 := f.seedGenerated(t, "BRAVO-RECIPIENT")
	c3 := f.seedGenerated(t, "CHARLIE-RECIPIENT")

	require.NoError(t, f.cache.store.Remove(*c2.FilePath))

	result, err := f.merger.MergeBatch(context.Background(), []uuid.UUID{c1.ID, c2.ID, c3.ID}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Included)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, c2.ID, result.Skipped[0].CertificateID)
	assert.Equal(t, *c2.SerialNumber, result.Skipped[0].SerialNumber)

	assert.Contains(t, string(result.Document), "ALPHA-RECIPIENT")
	assert.NotContains(t, string(result.Document), "BRAVO-RECIPIENT")
	assert.Contains(t, string(result.Document), "CHARLIE-RECIPIENT")
}

func TestMergeBatchSkipsUnknownCertificate(t *testing.T) {
	f := newBatchFixture(t)

	c1 := f.seedGenerated(t, "ALPHA-RECIPIENT")
	ghost := uuid.New()

	result, err := f.merger.MergeBatch(context.Background(), []uuid.UUID{c1.ID, ghost}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Included)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ghost, result.Skipped[0].CertificateID)
}

func TestMergeBatchWindow(t *testing.T) {
	f := newBatchFixture(t)

	c1 := f.seedGenerated(t, "ALPHA-RECIPIENT")
	c2 := f.seedGenerated(t, "BRAVO-RECIPIENT")
	c3 := f.seedGenerated(t, "CHARLIE-RECIPIENT")
	ids := []uuid.UUID{c1.ID, c2.ID, c3.ID}

	result, err := f.merger.MergeBatch(context.Background(), ids, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Included)
	assert.Contains(t, string(result.Document), "BRAVO-RECIPIENT")
	assert.NotContains(t, string(result.Document), "ALPHA-RECIPIENT")
	assert.NotContains(t, string(result.Document), "CHARLIE-RECIPIENT")

	result, err = f.merger.MergeBatch(context.Background(), ids, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Included)
	assert.Empty(t, result.Document)
}

func TestMergeBatchDiscardsOnBlownBudget(t *testing.T) {
	f := newBatchFixture(t)
	c1 := f.seedGenerated(t, "ALPHA-RECIPIENT")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.merger.MergeBatch(ctx, []uuid.UUID{c1.ID}, 0, 0)
	assert.Error(t, err)
	assert.Nil(t, result, "an aborted merge must not return partial output")
}

func TestPregenerateReportsFailures(t *testing.T) {
	f := newBatchFixture(t)

	c1 := f.seedGenerated(t, "ALPHA-RECIPIENT")
	fresh := seedCertificate(t, f.db, f.tplID, "DELTA-RECIPIENT")
	ghost := uuid.New()

	failed := f.merger.Pregenerate(context.Background(), []uuid.UUID{c1.ID, fresh.ID, ghost})
	require.Len(t, failed, 1)
	assert.Equal(t, ghost, failed[0].CertificateID)

	_, err := f.cache.Peek(context.Background(), fresh.ID)
	assert.NoError(t, err, "pregenerate must populate the cache")
}

func TestBatchFilename(t *testing.T) {
	name := BatchFilename(3, "CERT/2025/EW/0001", "CERT/2025/EW/0150")
	assert.Equal(t, "Certificates_Batch_3_CERT-2025-EW-0001_to_CERT-2025-EW-0150.pdf", name)
}
