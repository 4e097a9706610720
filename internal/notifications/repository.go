package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	Save(ctx context.Context, record *EventRecord) error
	ListForRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]EventRecord, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Save(ctx context.Context, record *EventRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) ListForRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]EventRecord, error) {
	var records []EventRecord
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

func (r *gormRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&EventRecord{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Update("read_at", at)
	return result.RowsAffected, result.Error
}
