package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/apperrors"
	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/notifications"
)

// DependentCleaner removes rows owned by other packages that reference a
// project. It runs inside the delete transaction and may veto the delete.
type DependentCleaner interface {
	DeleteProjectDependents(ctx context.Context, tx *gorm.DB, projectID uuid.UUID) error
}

// Service is the project registry
type Service interface {
	Submit(ctx context.Context, caller auth.Caller, req SubmitRequest) (*Project, error)
	ListApproved(ctx context.Context, caller auth.Caller) ([]Project, error)
	ListOwn(ctx context.Context, caller auth.Caller) ([]Project, error)
	ListPendingForReview(ctx context.Context, caller auth.Caller) ([]Project, error)
	ListForVerifierDashboard(ctx context.Context, caller auth.Caller) ([]Project, error)
	GetByID(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, caller auth.Caller, id uuid.UUID, req UpdateRequest) (*Project, error)
	Delete(ctx context.Context, caller auth.Caller, id uuid.UUID) error
	AttachFile(ctx context.Context, caller auth.Caller, id uuid.UUID, kind FileKind, cid string) (*Project, error)
	ListActivity(ctx context.Context, caller auth.Caller, id uuid.UUID) ([]ProjectActivity, error)
}

type projectService struct {
	repo      Repository
	cleaners  []DependentCleaner
	publisher notifications.Publisher
	logger    *zap.Logger
}

func NewService(repo Repository, publisher notifications.Publisher, logger *zap.Logger, cleaners ...DependentCleaner) Service {
	return &projectService{
		repo:      repo,
		cleaners:  cleaners,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *projectService) Submit(ctx context.Context, caller auth.Caller, req SubmitRequest) (*Project, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	location := strings.TrimSpace(req.Location)
	switch {
	case name == "":
		return nil, apperrors.Validation("name is required")
	case description == "":
		return nil, apperrors.Validation("description is required")
	case location == "":
		return nil, apperrors.Validation("location is required")
	case len(name) > 255:
		return nil, apperrors.Validation("name must be at most 255 characters")
	case len(location) > 255:
		return nil, apperrors.Validation("location must be at most 255 characters")
	}

	tonnage := 0
	if req.Tonnage != nil {
		tonnage = *req.Tonnage
	}
	vintage := DefaultVintage
	if req.Vintage != nil {
		vintage = *req.Vintage
	}
	if err := validateQuantities(tonnage, vintage); err != nil {
		return nil, err
	}

	project := &Project{
		OwnerID:           caller.UserID,
		Name:              name,
		Description:       description,
		Location:          location,
		Tonnage:           tonnage,
		Vintage:           vintage,
		Status:            StatusPending,
		ExternalProjectID: req.ExternalProjectID,
		MetadataCID:       req.MetadataCID,
		ImageCID:          req.ImageCID,
		DocumentCID:       req.DocumentCID,
	}

	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, project); err != nil {
			return err
		}
		if err := repo.AddStatusHistory(ctx, &ProjectStatusHistory{
			ProjectID: project.ID,
			Status:    StatusPending,
			ChangedAt: time.Now(),
			ChangedBy: caller.UserID,
		}); err != nil {
			return err
		}
		return repo.AddActivity(ctx, NewActivity(project.ID, caller.UserID, ActivityCreated,
			fmt.Sprintf("Project %s submitted", project.Name), nil))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Project submitted",
		zap.String("project_id", project.ID.String()),
		zap.String("owner_id", caller.UserID.String()))

	evt := notifications.NewEvent(notifications.EventProjectSubmitted, caller.UserID)
	evt.ProjectID = &project.ID
	evt.Data["project_name"] = project.Name
	s.publisher.Publish(ctx, evt)

	return project, nil
}

func validateQuantities(tonnage, vintage int) error {
	if tonnage < 0 {
		return apperrors.Validation("tonnage must be a non-negative integer")
	}
	if vintage < 1900 || vintage > 2100 {
		return apperrors.Validation("vintage must be a valid year")
	}
	return nil
}

func (s *projectService) ListApproved(ctx context.Context, caller auth.Caller) ([]Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	status := StatusApproved
	return s.list(ctx, Filter{Status: &status})
}

func (s *projectService) ListOwn(ctx context.Context, caller auth.Caller) ([]Project, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}
	return s.list(ctx, Filter{OwnerID: &caller.UserID})
}

func (s *projectService) ListPendingForReview(ctx context.Context, caller auth.Caller) ([]Project, error) {
	if err := auth.RequireRole(caller, auth.RoleVerifier); err != nil {
		return nil, err
	}
	status := StatusPending
	return s.list(ctx, Filter{Status: &status})
}

func (s *projectService) ListForVerifierDashboard(ctx context.Context, caller auth.Caller) ([]Project, error) {
	if err := auth.RequireRole(caller, auth.RoleVerifier); err != nil {
		return nil, err
	}
	projects, err := s.repo.ListForVerifier(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (s *projectService) list(ctx context.Context, filter Filter) ([]Project, error) {
	projects, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (s *projectService) GetByID(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Project, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return project, nil
}

var errQuantitiesLocked = apperrors.State("tonnage and vintage cannot change after review")

// Update edits non-status fields of a project the caller owns. Tonnage and
// vintage are fixed once the project has been reviewed.
func (s *projectService) Update(ctx context.Context, caller auth.Caller, id uuid.UUID, req UpdateRequest) (*Project, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}
	if req.Status != nil {
		return nil, apperrors.Validation("status can only be changed through review")
	}

	project, err := s.repo.GetOwned(ctx, id, caller.UserID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	changed := []string{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.Validation("name is required")
		}
		project.Name = name
		changed = append(changed, "name")
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if description == "" {
			return nil, apperrors.Validation("description is required")
		}
		project.Description = description
		changed = append(changed, "description")
	}
	if req.Location != nil {
		location := strings.TrimSpace(*req.Location)
		if location == "" {
			return nil, apperrors.Validation("location is required")
		}
		project.Location = location
		changed = append(changed, "location")
	}
	quantities := (req.Tonnage != nil && *req.Tonnage != project.Tonnage) ||
		(req.Vintage != nil && *req.Vintage != project.Vintage)
	if quantities && project.Status != StatusPending {
		return nil, errQuantitiesLocked
	}
	if req.Tonnage != nil {
		project.Tonnage = *req.Tonnage
		changed = append(changed, "tonnage")
	}
	if req.Vintage != nil {
		project.Vintage = *req.Vintage
		changed = append(changed, "vintage")
	}
	if req.ExternalProjectID != nil {
		project.ExternalProjectID = req.ExternalProjectID
		changed = append(changed, "external_project_id")
	}
	if err := validateQuantities(project.Tonnage, project.Vintage); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if quantities {
			// A review may have landed since the read above.
			current, err := repo.GetByIDForUpdate(ctx, project.ID)
			if err != nil {
				return err
			}
			if current.Status != StatusPending {
				return errQuantitiesLocked
			}
		}
		if err := repo.Update(ctx, project); err != nil {
			return err
		}
		return repo.AddActivity(ctx, NewActivity(project.ID, caller.UserID, ActivityUpdated,
			fmt.Sprintf("Project %s updated", project.Name),
			map[string]interface{}{"fields": changed}))
	})
	if err != nil {
		if apperrors.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return project, nil
}

// Delete removes an owned project together with its credits and listings.
func (s *projectService) Delete(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return err
	}

	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetOwned(ctx, id, caller.UserID); err != nil {
			return mapNotFound(err)
		}
		for _, cleaner := range s.cleaners {
			if err := cleaner.DeleteProjectDependents(ctx, tx, id); err != nil {
				return err
			}
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		if apperrors.KindOf(err) != "" {
			return err
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}

	s.logger.Info("Project deleted",
		zap.String("project_id", id.String()),
		zap.String("owner_id", caller.UserID.String()))
	return nil
}

// AttachFile records the content identifier of an uploaded project file.
func (s *projectService) AttachFile(ctx context.Context, caller auth.Caller, id uuid.UUID, kind FileKind, cid string) (*Project, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, apperrors.Validation("kind must be one of metadata, image, document")
	}

	project, err := s.repo.GetOwned(ctx, id, caller.UserID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	switch kind {
	case FileMetadata:
		project.MetadataCID = &cid
	case FileImage:
		project.ImageCID = &cid
	case FileDocument:
		project.DocumentCID = &cid
	}

	err = s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, project); err != nil {
			return err
		}
		return repo.AddActivity(ctx, NewActivity(project.ID, caller.UserID, ActivityFile,
			fmt.Sprintf("%s file attached", kind),
			map[string]interface{}{"kind": kind, "cid": cid}))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach file: %w", err)
	}
	return project, nil
}

// ListActivity is visible to the owner and to verifiers.
func (s *projectService) ListActivity(ctx context.Context, caller auth.Caller, id uuid.UUID) ([]ProjectActivity, error) {
	if err := auth.RequireRole(caller, auth.RoleSeller, auth.RoleVerifier, auth.RoleAdmin); err != nil {
		return nil, err
	}
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if caller.Role == auth.RoleSeller && project.OwnerID != caller.UserID {
		return nil, apperrors.NotFound("project not found")
	}
	activities, err := s.repo.ListActivity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return activities, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrProjectNotFound) {
		return apperrors.NotFound("project not found")
	}
	return fmt.Errorf("failed to load project: %w", err)
}

// NewActivity builds an activity row with optional JSON metadata.
func NewActivity(projectID, userID uuid.UUID, activityType, description string, metadata map[string]interface{}) *ProjectActivity {
	activity := &ProjectActivity{
		ProjectID:    projectID,
		ActivityType: activityType,
		Description:  description,
		UserID:       userID,
	}
	if metadata != nil {
		if data, err := json.Marshal(metadata); err == nil {
			activity.Metadata = datatypes.JSON(data)
		}
	}
	return activity
}
