package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	config "github.com/eventra/certhub/configs"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// ArtifactStore keeps rendered certificates on local disk under a
// deterministic per-certificate path, and resolves template asset paths.
type ArtifactStore struct {
	root string
}

func NewArtifactStore(root string) (*ArtifactStore, error) {
	for _, dir := range []string{filepath.Join(root, "certificates"), filepath.Join(root, "assets")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &ArtifactStore{root: root}, nil
}

func (s *ArtifactStore) PathFor(certificateID uuid.UUID) string {
	return filepath.Join(s.root, "certificates", certificateID.String()+".pdf")
}

func (s *ArtifactStore) AssetPath(rel string) string {
	return filepath.Join(s.root, "assets", filepath.Clean("/"+rel))
}

func (s *ArtifactStore) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (s *ArtifactStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Write lands the artifact via a temp file and rename so a crashed writer
// never leaves a half-written PDF at the final path.
func (s *ArtifactStore) Write(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *ArtifactStore) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Publisher uploads a READY artifact somewhere shareable and returns its
// public URL. Publishing is best-effort; the local artifact stays canonical.
type Publisher interface {
	Publish(ctx context.Context, publicID string, data []byte) (string, error)
}

type CloudinaryPublisher struct{}

func NewCloudinaryPublisher() *CloudinaryPublisher {
	return &CloudinaryPublisher{}
}

func (p *CloudinaryPublisher) Publish(ctx context.Context, publicID string, data []byte) (string, error) {
	cld, err := cloudinary.NewFromURL(config.Config("CLOUDINARY_URL"))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	uploadParams := uploader.UploadParams{
		PublicID:     fmt.Sprintf("certificates/%s", publicID),
		Folder:       "certhub_certificates",
		ResourceType: "raw",
	}

	uploadResult, err := cld.Upload.Upload(ctx, bytes.NewReader(data), uploadParams)
	if err != nil {
		return "", err
	}

	return uploadResult.SecureURL, nil
}
