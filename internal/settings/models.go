package settings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
)

// UserProfile is the account view returned by the profile endpoints.
type UserProfile struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	Role            auth.Role `json:"role"`
	LedgerAccountID *string   `json:"ledger_account_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type UpdateProfileRequest struct {
	LedgerAccountID *string `json:"ledger_account_id"`
	Role            *string `json:"role"`
}

// NotificationPreferences controls which marketplace emails a user receives.
type NotificationPreferences struct {
	UserID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	EmailOnSale   bool      `gorm:"not null" json:"email_on_sale"`
	EmailOnReview bool      `gorm:"not null" json:"email_on_review"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (NotificationPreferences) TableName() string { return "notification_preferences" }

type UpdateNotificationsRequest struct {
	EmailOnSale   *bool `json:"email_on_sale"`
	EmailOnReview *bool `json:"email_on_review"`
}

func defaultPreferences(userID uuid.UUID) *NotificationPreferences {
	return &NotificationPreferences{UserID: userID, EmailOnSale: true, EmailOnReview: true}
}

func profileFromUser(u *auth.User) *UserProfile {
	return &UserProfile{
		ID:              u.ID,
		Email:           u.Email,
		Role:            u.Role,
		LedgerAccountID: u.LedgerAccountID,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// Migrate creates the settings tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&NotificationPreferences{})
}
