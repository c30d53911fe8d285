package services

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/eventra/certhub/models"
	"github.com/eventra/certhub/storage"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.TemplateDefinition{},
		&models.CertificateRecord{},
		&models.SerialCounter{},
	))
	return db
}

// fakeEngine stands in for Chrome so tests can assert on the composed
// document instead of real PDF bytes.
type fakeEngine struct {
	mu      sync.Mutex
	renders int
}

func (f *fakeEngine) RenderHTML(_ context.Context, html string) ([]byte, error) {
	f.mu.Lock()
	f.renders++
	f.mu.Unlock()
	return []byte("%FAKEPDF\n" + html), nil
}

func (f *fakeEngine) Merge(docs [][]byte) ([]byte, error) {
	if len(docs) == 1 {
		return docs[0], nil
	}
	return bytes.Join(docs, []byte("\n%%PAGEBREAK%%\n")), nil
}

func (f *fakeEngine) PageCount(doc []byte) (int, error) {
	return bytes.Count(doc, []byte("%%PAGEBREAK%%")) + 1, nil
}

func (f *fakeEngine) renderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renders
}

func newTestStore(t *testing.T) *storage.ArtifactStore {
	t.Helper()
	store, err := storage.NewArtifactStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.AssetPath("bg.png"), []byte("png-bytes"), 0o644))
	return store
}

func newTestRenderer(t *testing.T, db *gorm.DB, engine PDFEngine, store *storage.ArtifactStore) *CertificateRenderer {
	t.Helper()
	renderer, err := NewCertificateRenderer(db, engine, store, DefaultCalibration(), "../templates/certificate.html")
	require.NoError(t, err)
	return renderer
}

func seedTemplate(t *testing.T, db *gorm.DB, elements ...models.TemplateElement) models.TemplateDefinition {
	t.Helper()
	tpl := models.TemplateDefinition{
		ID:   uuid.New(),
		Name: "Winner Certificate",
		Layout: models.TemplateLayout{
			Canvas:     models.Canvas{Width: 842, Height: 595, Scale: 1},
			Background: models.Background{AssetPath: "bg.png", Page: 1},
			Elements:   elements,
		},
	}
	require.NoError(t, db.Create(&tpl).Error)
	return tpl
}

func seedCertificate(t *testing.T, db *gorm.DB, templateID uuid.UUID, name string) models.CertificateRecord {
	t.Helper()
	contestID := uuid.New()
	record := models.CertificateRecord{
		ID:            uuid.New(),
		TemplateID:    templateID,
		RecipientName: name,
		RecipientType: string(models.OwnershipEventWinner),
		Ownership:     models.EventWinnerOwnership(uuid.New(), contestID, 1, 1, nil),
		UniqueCode:    uuid.New().String()[:8],
		Status:        models.CertificateStatusDraft,
		CreatedAt:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&record).Error)
	return record
}

func nameElement(id string, layer int) models.TemplateElement {
	return models.TemplateElement{
		ID:          id,
		Type:        models.ElementDynamicText,
		Position:    models.Position{X: 421, Y: 260},
		Placeholder: "recipient_name",
		Style:       &models.ElementStyle{FontFamily: "Georgia", FontSize: 28, Color: "#1A2B3C", Align: "center"},
		Layer:       layer,
	}
}
