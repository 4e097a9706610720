package documents

import (
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
)

// ProjectFile is an uploaded metadata, image or document file of a project.
// The object key doubles as the content identifier stored on the project.
type ProjectFile struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id" db:"id"`
	ProjectID   uuid.UUID         `gorm:"type:uuid;not null;index" json:"project_id" db:"project_id"`
	Kind        projects.FileKind `gorm:"type:varchar(16);not null" json:"kind" db:"kind"`
	FileName    string            `gorm:"type:varchar(255);not null" json:"file_name" db:"file_name"`
	ContentType string            `gorm:"type:varchar(255)" json:"content_type" db:"content_type"`
	FileSize    int64             `gorm:"not null" json:"file_size" db:"file_size"`
	Checksum    string            `gorm:"type:varchar(64);not null" json:"checksum" db:"checksum"`
	S3Bucket    string            `gorm:"type:varchar(255);not null" json:"s3_bucket" db:"s3_bucket"`
	S3Key       string            `gorm:"type:varchar(512);not null;uniqueIndex" json:"s3_key" db:"s3_key"`
	UploadedBy  uuid.UUID         `gorm:"type:uuid;not null" json:"uploaded_by" db:"uploaded_by"`
	UploadedAt  time.Time         `gorm:"not null" json:"uploaded_at" db:"uploaded_at"`

	URL string `gorm:"-" json:"url,omitempty" db:"-"`
}

func (ProjectFile) TableName() string { return "project_files" }

// UploadRequest carries one multipart file
type UploadRequest struct {
	ProjectID   uuid.UUID
	Kind        projects.FileKind
	FileName    string
	ContentType string
	FileSize    int64
	FileContent io.Reader
}

// Migrate creates the project_files table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ProjectFile{})
}
