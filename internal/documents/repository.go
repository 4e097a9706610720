package documents

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrFileNotFound = errors.New("file not found")

type Repository interface {
	CreateFile(ctx context.Context, file *ProjectFile) error
	GetFile(ctx context.Context, projectID, id uuid.UUID) (*ProjectFile, error)
	ListFiles(ctx context.Context, projectID uuid.UUID) ([]ProjectFile, error)
	DeleteFile(ctx context.Context, id uuid.UUID) error
}

type sqlxRepository struct {
	db *sqlx.DB
}

// NewRepository wraps db; queries are written with ? and rebound for the driver.
func NewRepository(db *sqlx.DB) Repository {
	return &sqlxRepository{db: db}
}

func (r *sqlxRepository) CreateFile(ctx context.Context, file *ProjectFile) error {
	query := `
		INSERT INTO project_files (
			id, project_id, kind, file_name, content_type, file_size,
			checksum, s3_bucket, s3_key, uploaded_by, uploaded_at
		) VALUES (
			:id, :project_id, :kind, :file_name, :content_type, :file_size,
			:checksum, :s3_bucket, :s3_key, :uploaded_by, :uploaded_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, file)
	return err
}

const fileColumns = `id, project_id, kind, file_name, content_type, file_size,
	checksum, s3_bucket, s3_key, uploaded_by, uploaded_at`

func (r *sqlxRepository) GetFile(ctx context.Context, projectID, id uuid.UUID) (*ProjectFile, error) {
	var file ProjectFile
	query := r.db.Rebind(`SELECT ` + fileColumns + ` FROM project_files WHERE id = ? AND project_id = ?`)
	err := r.db.GetContext(ctx, &file, query, id, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *sqlxRepository) ListFiles(ctx context.Context, projectID uuid.UUID) ([]ProjectFile, error) {
	files := []ProjectFile{}
	query := r.db.Rebind(`SELECT ` + fileColumns + ` FROM project_files WHERE project_id = ? ORDER BY uploaded_at DESC`)
	err := r.db.SelectContext(ctx, &files, query, projectID)
	return files, err
}

func (r *sqlxRepository) DeleteFile(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM project_files WHERE id = ?`), id)
	return err
}
