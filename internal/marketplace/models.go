package marketplace

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/projects"
)

// CreditStatus is where a credit sits in the listing book
type CreditStatus string

const (
	CreditMinted CreditStatus = "MINTED"
	CreditListed CreditStatus = "LISTED"
	CreditSold   CreditStatus = "SOLD"
)

// CarbonCredit is the minted record of an approved project's offsets.
// One credit per project; (token_id, serial_number) is globally unique.
type CarbonCredit struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"project_id"`
	OwnerID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"owner_id"`
	TokenID      string       `gorm:"type:varchar(255);not null;uniqueIndex:idx_credit_token_serial" json:"token_id"`
	SerialNumber int64        `gorm:"not null;uniqueIndex:idx_credit_token_serial" json:"serial_number"`
	Status       CreditStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt    time.Time    `json:"created_at"`

	Project *projects.Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:RESTRICT" json:"project,omitempty"`
	Owner   *auth.User        `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (CarbonCredit) TableName() string { return "carbon_credits" }

func (c *CarbonCredit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Listing is a fixed-price sale offer for one credit. Only one listing per
// credit may be active; inactive rows are kept as sale history.
type Listing struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"seller_id"`
	CreditID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"credit_id"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	IsActive  bool            `gorm:"not null;default:true;index" json:"is_active"`
	Claimed   bool            `gorm:"not null;default:false" json:"claimed"`
	BuyerID   *uuid.UUID      `gorm:"type:uuid" json:"buyer_id,omitempty"`
	SoldAt    *time.Time      `json:"sold_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	Credit *CarbonCredit `gorm:"foreignKey:CreditID;constraint:OnDelete:RESTRICT" json:"credit,omitempty"`
	Seller *auth.User    `gorm:"foreignKey:SellerID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (Listing) TableName() string { return "listings" }

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// MarshalJSON renders the price with exactly two decimal places.
func (l Listing) MarshalJSON() ([]byte, error) {
	type listing Listing
	return json.Marshal(struct {
		listing
		Price string `json:"price"`
	}{listing: listing(l), Price: l.Price.StringFixed(2)})
}

// Sold reports whether the listing ended in a purchase rather than a withdrawal.
func (l *Listing) Sold() bool {
	return !l.IsActive && l.BuyerID != nil
}

// ReviewRequest is the verifier's decision on a project
type ReviewRequest struct {
	Status       string  `json:"status" binding:"required"`
	SerialNumber *int64  `json:"serial_number"`
	TokenAddress *string `json:"token_address"`
}

type CreateListingRequest struct {
	CreditID uuid.UUID       `json:"credit_id" binding:"required"`
	Price    decimal.Decimal `json:"price"`
}

// Migrate creates the credit and listing tables and the one-active-listing index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&CarbonCredit{}, &Listing{}); err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_active_credit
		ON listings (credit_id) WHERE is_active`).Error
}
