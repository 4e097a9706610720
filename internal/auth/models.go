package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the single marketplace role a user holds.
type Role string

const (
	RoleBuyer    Role = "BUYER"
	RoleSeller   Role = "SELLER"
	RoleVerifier Role = "VERIFIER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole normalizes a role name. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleBuyer, RoleSeller, RoleVerifier, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// User is a marketplace account.
type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash    string    `gorm:"type:varchar(255);not null" json:"-"`
	Role            Role      `gorm:"type:varchar(16);index;not null" json:"role"`
	LedgerAccountID *string   `gorm:"type:varchar(255)" json:"ledger_account_id,omitempty"`
	IsActive        bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RevokedToken records a refresh token id that may no longer be exchanged.
type RevokedToken struct {
	TokenID   string    `gorm:"type:varchar(64);primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (RevokedToken) TableName() string { return "revoked_tokens" }

// Migrate creates the identity tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &RevokedToken{})
}
