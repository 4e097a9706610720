package documents

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/marketplace/marketplace-backend/pkg/storage"
)

const presignExpiry = 15 * time.Minute

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StorageProvider places project files in one bucket
type StorageProvider struct {
	s3     storage.S3Client
	bucket string
}

func NewStorageProvider(s3 storage.S3Client, bucket string) *StorageProvider {
	return &StorageProvider{s3: s3, bucket: bucket}
}

func (p *StorageProvider) Bucket() string { return p.bucket }

func (p *StorageProvider) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	return p.s3.Upload(ctx, p.bucket, key, contentType, body)
}

func (p *StorageProvider) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return p.s3.Download(ctx, p.bucket, key)
}

func (p *StorageProvider) Delete(ctx context.Context, key string) error {
	return p.s3.Delete(ctx, p.bucket, key)
}

func (p *StorageProvider) PresignedURL(ctx context.Context, key string) (string, error) {
	return p.s3.GetPresignedURL(ctx, p.bucket, key, presignExpiry)
}

// GenerateKey builds projects/<project>/<kind>/<file id>-<sanitized name>.
func (p *StorageProvider) GenerateKey(projectID uuid.UUID, kind string, fileID uuid.UUID, fileName string) string {
	name := unsafeName.ReplaceAllString(path.Base(fileName), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("projects/%s/%s/%s-%s", projectID, kind, fileID, name)
}
