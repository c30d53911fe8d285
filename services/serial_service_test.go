package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/eventra/certhub/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSequence(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")
	templateID := uuid.New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		serial, err := allocator.Generate(ctx, templateID, string(models.OwnershipEventWinner), 2025)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("CERT/2025/EW/%04d", i), serial)
	}
}

func TestScopesAreIndependent(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")
	templateID := uuid.New()
	ctx := context.Background()

	winner, err := allocator.Generate(ctx, templateID, string(models.OwnershipEventWinner), 2025)
	require.NoError(t, err)
	contingent, err := allocator.Generate(ctx, templateID, string(models.OwnershipContingent), 2025)
	require.NoError(t, err)
	lastYear, err := allocator.Generate(ctx, templateID, string(models.OwnershipEventWinner), 2024)
	require.NoError(t, err)

	assert.Equal(t, "CERT/2025/EW/0001", winner)
	assert.Equal(t, "CERT/2025/CT/0001", contingent)
	assert.Equal(t, "CERT/2024/EW/0001", lastYear)
}

func TestPreviewDoesNotAllocate(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")
	templateID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		preview, err := allocator.PreviewNext(ctx, templateID, string(models.OwnershipEventWinner), 2025)
		require.NoError(t, err)
		assert.Equal(t, "CERT/2025/EW/0001", preview)
	}

	serial, err := allocator.Generate(ctx, templateID, string(models.OwnershipEventWinner), 2025)
	require.NoError(t, err)
	assert.Equal(t, "CERT/2025/EW/0001", serial)

	preview, err := allocator.PreviewNext(ctx, templateID, string(models.OwnershipEventWinner), 2025)
	require.NoError(t, err)
	assert.Equal(t, "CERT/2025/EW/0002", preview)
}

func TestGenerateConcurrent(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")
	allocator.attempts = 200
	templateID := uuid.New()

	const n = 12
	serials := make([]string, n)
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			serials[i], errs[i] = allocator.Generate(context.Background(), templateID, string(models.OwnershipEventWinner), 2025)
		}(i)
	}
	wg.Wait()

	seqs := make([]int, 0, n)
	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.False(t, seen[serials[i]], "duplicate serial %s", serials[i])
		seen[serials[i]] = true

		parts := strings.Split(serials[i], "/")
		seq, err := strconv.Atoi(parts[3])
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}

	sort.Ints(seqs)
	for i, seq := range seqs {
		assert.Equal(t, i+1, seq, "sequence must have no gaps")
	}
}

func TestGenerateExhausted(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")
	templateID := uuid.New()

	counter := models.SerialCounter{
		TemplateID: templateID,
		TargetType: string(models.OwnershipEventWinner),
		Year:       2025,
		LastIssued: 9999,
	}
	require.NoError(t, db.Create(&counter).Error)

	_, err := allocator.Generate(context.Background(), templateID, string(models.OwnershipEventWinner), 2025)
	assert.ErrorIs(t, err, ErrAllocationExhausted)

	_, err = allocator.PreviewNext(context.Background(), templateID, string(models.OwnershipEventWinner), 2025)
	assert.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestGenerateUnknownTargetType(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")

	_, err := allocator.Generate(context.Background(), uuid.New(), "POTATO", 2025)
	assert.Error(t, err)
}

func TestValidateSerial(t *testing.T) {
	allocator := NewSerialAllocator(newTestDB(t), "CERT")

	valid := []string{
		"CERT/2025/EW/0001",
		"CERT/2024/CT/9999",
		"MTQ2025/2025/PG/0042",
	}
	for _, s := range valid {
		assert.True(t, allocator.ValidateSerial(s), s)
	}

	invalid := []string{
		"",
		"CERT/25/EW/0001",
		"CERT/2025/XX/0001",
		"cert/2025/EW/0001",
		"CERT/2025/EW/001",
		"CERT/2025/EW/00001",
		"CERT/2025/EW/0001/extra",
	}
	for _, s := range invalid {
		assert.False(t, allocator.ValidateSerial(s), s)
	}
}

func TestGeneratedSerialsValidate(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "MTQ")
	templateID := uuid.New()

	for _, targetType := range []string{
		string(models.OwnershipEventWinner),
		string(models.OwnershipContingent),
		string(models.OwnershipState),
		string(models.OwnershipContestant),
		string(models.OwnershipPregenerated),
	} {
		serial, err := allocator.Generate(context.Background(), templateID, targetType, 2025)
		require.NoError(t, err)
		assert.True(t, allocator.ValidateSerial(serial), serial)
	}
}

func TestCertificateBySerial(t *testing.T) {
	db := newTestDB(t)
	allocator := NewSerialAllocator(db, "CERT")
	tpl := seedTemplate(t, db)
	record := seedCertificate(t, db, tpl.ID, "Nur Aisyah")

	serial := "CERT/2025/EW/0001"
	require.NoError(t, db.Model(&record).Update("serial_number", serial).Error)

	found, err := allocator.CertificateBySerial(context.Background(), serial)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, record.ID, found.ID)

	missing, err := allocator.CertificateBySerial(context.Background(), "CERT/2025/EW/0999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
