package settings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetNotifications(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error)
	SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// GetNotifications returns stored preferences, or the defaults when the user never saved any.
func (r *gormRepository) GetNotifications(ctx context.Context, userID uuid.UUID) (*NotificationPreferences, error) {
	var prefs NotificationPreferences
	err := r.db.WithContext(ctx).First(&prefs, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultPreferences(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (r *gormRepository) SaveNotifications(ctx context.Context, prefs *NotificationPreferences) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email_on_sale", "email_on_review", "updated_at"}),
		}).
		Create(prefs).Error
}
