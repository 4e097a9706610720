package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

// Status is the review status of a project
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

const DefaultVintage = 2024

// Project represents a submitted carbon offset project
type Project struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	VerifierID        *uuid.UUID `gorm:"type:uuid;index" json:"verifier_id"`
	Name              string     `gorm:"type:varchar(255);not null" json:"name"`
	Description       string     `gorm:"type:text;not null" json:"description"`
	Location          string     `gorm:"type:varchar(255);not null" json:"location"`
	Tonnage           int        `gorm:"not null" json:"tonnage"`
	Vintage           int        `gorm:"not null" json:"vintage"`
	Status            Status     `gorm:"type:varchar(16);not null;index" json:"status"`
	ExternalProjectID *string    `gorm:"type:varchar(255)" json:"external_project_id"`
	MetadataCID       *string    `gorm:"column:metadata_cid;type:varchar(255)" json:"metadata_cid"`
	ImageCID          *string    `gorm:"column:image_cid;type:varchar(255)" json:"image_cid"`
	DocumentCID       *string    `gorm:"column:document_cid;type:varchar(255)" json:"document_cid"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	Owner    *auth.User `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT" json:"-"`
	Verifier *auth.User `gorm:"foreignKey:VerifierID;constraint:OnDelete:SET NULL" json:"-"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProjectStatusHistory tracks status changes
type ProjectStatusHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	FromStatus Status    `gorm:"type:varchar(16)" json:"from_status"`
	Status     Status    `gorm:"type:varchar(16);not null" json:"status"`
	ChangedAt  time.Time `json:"changed_at"`
	ChangedBy  uuid.UUID `gorm:"type:uuid;not null" json:"changed_by"`
}

func (h *ProjectStatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// ProjectActivity logs activities on the project
type ProjectActivity struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	ActivityType string         `gorm:"type:varchar(32);not null" json:"activity_type"`
	Description  string         `json:"description"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null" json:"user_id"`
}

func (a *ProjectActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

const (
	ActivityCreated  = "CREATED"
	ActivityUpdated  = "UPDATED"
	ActivityReviewed = "REVIEWED"
	ActivityFile     = "FILE_ATTACHED"
)

// FileKind names the content identifier slot a project file fills.
type FileKind string

const (
	FileMetadata FileKind = "metadata"
	FileImage    FileKind = "image"
	FileDocument FileKind = "document"
)

func (k FileKind) Valid() bool {
	switch k {
	case FileMetadata, FileImage, FileDocument:
		return true
	}
	return false
}

type SubmitRequest struct {
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	Location          string  `json:"location"`
	Tonnage           *int    `json:"tonnage"`
	Vintage           *int    `json:"vintage"`
	ExternalProjectID *string `json:"external_project_id"`
	MetadataCID       *string `json:"metadata_cid"`
	ImageCID          *string `json:"image_cid"`
	DocumentCID       *string `json:"document_cid"`
}

type UpdateRequest struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Location          *string `json:"location"`
	Tonnage           *int    `json:"tonnage"`
	Vintage           *int    `json:"vintage"`
	ExternalProjectID *string `json:"external_project_id"`
	Status            *string `json:"status"`
}

// Filter narrows project listings
type Filter struct {
	Status  *Status
	OwnerID *uuid.UUID
}

// Migrate creates the project tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Project{}, &ProjectStatusHistory{}, &ProjectActivity{})
}
