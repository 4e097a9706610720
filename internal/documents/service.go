package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
	"carbon-scribe/marketplace/marketplace-backend/pkg/storage"
)

// ProjectRegistry is the part of the project registry file uploads need.
type ProjectRegistry interface {
	GetByID(ctx context.Context, caller auth.Caller, id uuid.UUID) (*projects.Project, error)
	AttachFile(ctx context.Context, caller auth.Caller, id uuid.UUID, kind projects.FileKind, cid string) (*projects.Project, error)
}

type Service interface {
	UploadFile(ctx context.Context, caller auth.Caller, req UploadRequest) (*ProjectFile, error)
	ListFiles(ctx context.Context, caller auth.Caller, projectID uuid.UUID) ([]ProjectFile, error)
	DownloadFile(ctx context.Context, caller auth.Caller, projectID, fileID uuid.UUID) (*ProjectFile, io.ReadCloser, error)
}

type documentService struct {
	repo        Repository
	storage     *StorageProvider
	registry    ProjectRegistry
	maxFileSize int64
	logger      *zap.Logger
}

func NewService(repo Repository, storage *StorageProvider, registry ProjectRegistry, maxFileSize int64, logger *zap.Logger) Service {
	return &documentService{
		repo:        repo,
		storage:     storage,
		registry:    registry,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// UploadFile stores the object, records it and points the project's
// matching content identifier at it.
func (s *documentService) UploadFile(ctx context.Context, caller auth.Caller, req UploadRequest) (*ProjectFile, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}
	if !req.Kind.Valid() {
		return nil, apperrors.Validation("kind must be one of metadata, image, document")
	}
	if req.FileSize <= 0 {
		return nil, apperrors.Validation("file is empty")
	}
	if s.maxFileSize > 0 && req.FileSize > s.maxFileSize {
		return nil, apperrors.Validation(fmt.Sprintf("file exceeds the %d byte limit", s.maxFileSize))
	}

	if _, err := s.ownedProject(ctx, caller, req.ProjectID); err != nil {
		return nil, err
	}

	fileID := uuid.New()
	key := s.storage.GenerateKey(req.ProjectID, string(req.Kind), fileID, req.FileName)

	hash := sha256.New()
	body := io.TeeReader(req.FileContent, hash)
	if err := s.storage.Upload(ctx, key, req.ContentType, body); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &ProjectFile{
		ID:          fileID,
		ProjectID:   req.ProjectID,
		Kind:        req.Kind,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		FileSize:    req.FileSize,
		Checksum:    hex.EncodeToString(hash.Sum(nil)),
		S3Bucket:    s.storage.Bucket(),
		S3Key:       key,
		UploadedBy:  caller.UserID,
		UploadedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateFile(ctx, file); err != nil {
		s.discard(key)
		return nil, fmt.Errorf("failed to record file: %w", err)
	}

	if _, err := s.registry.AttachFile(ctx, caller, req.ProjectID, req.Kind, key); err != nil {
		if derr := s.repo.DeleteFile(ctx, file.ID); derr != nil {
			s.logger.Warn("Failed to remove file record", zap.String("file_id", file.ID.String()), zap.Error(derr))
		}
		s.discard(key)
		return nil, err
	}

	s.logger.Info("Project file uploaded",
		zap.String("project_id", req.ProjectID.String()),
		zap.String("kind", string(req.Kind)),
		zap.String("key", key),
		zap.Int64("size", req.FileSize))
	return file, nil
}

func (s *documentService) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete orphaned object", zap.String("key", key), zap.Error(err))
	}
}

func (s *documentService) ownedProject(ctx context.Context, caller auth.Caller, projectID uuid.UUID) (*projects.Project, error) {
	project, err := s.registry.GetByID(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	if project.OwnerID != caller.UserID {
		return nil, apperrors.NotFound("project not found")
	}
	return project, nil
}

// visibleProject lets the owner, verifiers and admins see a project's files.
func (s *documentService) visibleProject(ctx context.Context, caller auth.Caller, projectID uuid.UUID) error {
	project, err := s.registry.GetByID(ctx, caller, projectID)
	if err != nil {
		return err
	}
	switch {
	case project.OwnerID == caller.UserID:
	case caller.Role == auth.RoleVerifier, caller.Role == auth.RoleAdmin:
	default:
		return apperrors.NotFound("project not found")
	}
	return nil
}

func (s *documentService) ListFiles(ctx context.Context, caller auth.Caller, projectID uuid.UUID) ([]ProjectFile, error) {
	if err := s.visibleProject(ctx, caller, projectID); err != nil {
		return nil, err
	}
	files, err := s.repo.ListFiles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	for i := range files {
		url, err := s.storage.PresignedURL(ctx, files[i].S3Key)
		if err != nil {
			s.logger.Warn("Failed to presign file", zap.String("key", files[i].S3Key), zap.Error(err))
			continue
		}
		files[i].URL = url
	}
	return files, nil
}

func (s *documentService) DownloadFile(ctx context.Context, caller auth.Caller, projectID, fileID uuid.UUID) (*ProjectFile, io.ReadCloser, error) {
	if err := s.visibleProject(ctx, caller, projectID); err != nil {
		return nil, nil, err
	}
	file, err := s.repo.GetFile(ctx, projectID, fileID)
	if errors.Is(err, ErrFileNotFound) {
		return nil, nil, apperrors.NotFound("file not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load file: %w", err)
	}
	body, err := s.storage.Download(ctx, file.S3Key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil, apperrors.NotFound("file not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	return file, body, nil
}

// Cleaner drops the file records of a project being deleted. Stored objects
// are left in the bucket.
type Cleaner struct{}

func (Cleaner) DeleteProjectDependents(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error {
	return tx.WithContext(ctx).Where("project_id = ?", projectID).Delete(&ProjectFile{}).Error
}
