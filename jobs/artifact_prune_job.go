package jobs

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	config "github.com/eventra/certhub/configs"
	"github.com/eventra/certhub/database"
	"github.com/eventra/certhub/models"
)

// PruneStaleArtifacts removes cached certificate PDFs that have sat on disk
// well past the freshness window. The cache regenerates them on the next
// download, with the same serial number.
func PruneStaleArtifacts() {
	log.Println("Running job: PruneStaleArtifacts...")

	storageDir := config.Config("STORAGE_DIR")
	if storageDir == "" {
		storageDir = "data"
	}
	retention := config.ConfigHours("PRUNE_AFTER_HOURS", 7*24*time.Hour)
	cutoff := time.Now().Add(-retention)

	dir := filepath.Join(storageDir, "certificates")
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("Error reading artifact directory: %v", err)
		return
	}

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("Error pruning artifact %s: %v", path, err)
			continue
		}

		certID := strings.TrimSuffix(entry.Name(), ".pdf")
		err = database.DB.Model(&models.CertificateRecord{}).
			Where("id = ?", certID).
			Updates(map[string]interface{}{"file_path": nil, "status": models.CertificateStatusDraft}).Error
		if err != nil {
			log.Printf("Error resetting certificate %s after prune: %v", certID, err)
		}
		pruned++
	}

	if pruned == 0 {
		log.Println("No stale artifacts found.")
		return
	}
	log.Printf("Pruned %d stale artifact(s).", pruned)
}
