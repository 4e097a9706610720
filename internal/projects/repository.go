package projects

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProjectNotFound is returned when no project matches.
var ErrProjectNotFound = errors.New("project not found")

type Repository interface {
	// WithTx returns a repository bound to tx.
	WithTx(tx *gorm.DB) Repository
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Project, error)
	GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) error
	UpdateReview(ctx context.Context, id uuid.UUID, from, to Status, verifierID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter Filter) ([]Project, error)
	ListForVerifier(ctx context.Context, verifierID uuid.UUID) ([]Project, error)

	AddStatusHistory(ctx context.Context, history *ProjectStatusHistory) error
	AddActivity(ctx context.Context, activity *ProjectActivity) error
	ListActivity(ctx context.Context, projectID uuid.UUID) ([]ProjectActivity, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *gormRepository) Create(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *gormRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Project, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *gormRepository) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*Project, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID))
}

func (r *gormRepository) first(q *gorm.DB) (*Project, error) {
	var project Project
	err := q.First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepository) Update(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).
		Model(project).
		Select("name", "description", "location", "tonnage", "vintage",
			"external_project_id", "metadata_cid", "image_cid", "document_cid", "updated_at").
		Updates(project).Error
}

// UpdateReview moves a project from one status to another only if it is still in from.
func (r *gormRepository) UpdateReview(ctx context.Context, id uuid.UUID, from, to Status, verifierID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Project{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":      to,
			"verifier_id": verifierID,
		})
	return result.RowsAffected, result.Error
}

// Delete removes the project with its history and activity rows.
func (r *gormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("project_id = ?", id).Delete(&ProjectStatusHistory{}).Error; err != nil {
		return err
	}
	if err := db.Where("project_id = ?", id).Delete(&ProjectActivity{}).Error; err != nil {
		return err
	}
	result := db.Where("id = ?", id).Delete(&Project{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func (r *gormRepository) List(ctx context.Context, filter Filter) ([]Project, error) {
	q := r.db.WithContext(ctx).Model(&Project{})
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	var projects []Project
	err := q.Order("created_at DESC").Find(&projects).Error
	return projects, err
}

// ListForVerifier returns pending projects plus those the verifier reviewed.
func (r *gormRepository) ListForVerifier(ctx context.Context, verifierID uuid.UUID) ([]Project, error) {
	var projects []Project
	err := r.db.WithContext(ctx).
		Where("status = ? OR verifier_id = ?", StatusPending, verifierID).
		Order("created_at DESC").
		Find(&projects).Error
	return projects, err
}

func (r *gormRepository) AddStatusHistory(ctx context.Context, history *ProjectStatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *gormRepository) AddActivity(ctx context.Context, activity *ProjectActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *gormRepository) ListActivity(ctx context.Context, projectID uuid.UUID) ([]ProjectActivity, error) {
	var activities []ProjectActivity
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&activities).Error
	return activities, err
}
