package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketSummary is the admin overview of the registry and the listing book.
type MarketSummary struct {
	ProjectsByStatus map[string]int64 `json:"projects_by_status"`
	CreditsByStatus  map[string]int64 `json:"credits_by_status"`
	ActiveListings   int64            `json:"active_listings"`
	SalesCount       int64            `json:"sales_count"`
	SalesVolume      decimal.Decimal  `json:"sales_volume"`
	ClaimedVolume    decimal.Decimal  `json:"claimed_volume"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// SaleRecord is one completed sale of a seller's listing
type SaleRecord struct {
	ListingID    uuid.UUID       `db:"listing_id" json:"listing_id"`
	CreditID     uuid.UUID       `db:"credit_id" json:"credit_id"`
	ProjectName  string          `db:"project_name" json:"project_name"`
	TokenID      string          `db:"token_id" json:"token_id"`
	SerialNumber int64           `db:"serial_number" json:"serial_number"`
	Price        decimal.Decimal `db:"price" json:"price"`
	BuyerID      uuid.UUID       `db:"buyer_id" json:"buyer_id"`
	SoldAt       time.Time       `db:"sold_at" json:"sold_at"`
	Claimed      bool            `db:"claimed" json:"claimed"`
}

// Certificate carries what is printed on a credit ownership certificate.
type Certificate struct {
	CreditID     uuid.UUID `db:"credit_id"`
	OwnerID      uuid.UUID `db:"owner_id"`
	OwnerEmail   string    `db:"owner_email"`
	TokenID      string    `db:"token_id"`
	SerialNumber int64     `db:"serial_number"`
	Status       string    `db:"status"`
	MintedAt     time.Time `db:"minted_at"`
	ProjectID    uuid.UUID `db:"project_id"`
	ProjectName  string    `db:"project_name"`
	Location     string    `db:"location"`
	Tonnage      int       `db:"tonnage"`
	Vintage      int       `db:"vintage"`
}

// Export formats for the seller sales export
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

var saleColumns = []string{
	"listing_id", "project_name", "token_id", "serial_number",
	"price", "buyer_id", "sold_at", "claimed",
}

func (r SaleRecord) row() map[string]interface{} {
	price, _ := r.Price.Float64()
	return map[string]interface{}{
		"listing_id":    r.ListingID.String(),
		"project_name":  r.ProjectName,
		"token_id":      r.TokenID,
		"serial_number": r.SerialNumber,
		"price":         price,
		"buyer_id":      r.BuyerID.String(),
		"sold_at":       r.SoldAt,
		"claimed":       r.Claimed,
	}
}
