package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCreditNotFound  = errors.New("credit not found")
	ErrListingNotFound = errors.New("listing not found")
)

// Repository is the listing book and credit ledger store. It applies no
// authorization; the conditional updates report how many rows matched so the
// caller can tell a lost race from success.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Credits
	CreateCredit(ctx context.Context, credit *CarbonCredit) error
	GetCredit(ctx context.Context, id uuid.UUID) (*CarbonCredit, error)
	GetCreditByProject(ctx context.Context, projectID uuid.UUID) (*CarbonCredit, error)
	ListCreditsByOwner(ctx context.Context, ownerID uuid.UUID) ([]CarbonCredit, error)
	CompareAndSetCreditStatus(ctx context.Context, id uuid.UUID, from, to CreditStatus) (int64, error)
	TransferCredit(ctx context.Context, id uuid.UUID, from CreditStatus, newOwner uuid.UUID) (int64, error)
	CountSoldCredits(ctx context.Context, projectID uuid.UUID) (int64, error)
	DeleteCreditsForProject(ctx context.Context, projectID uuid.UUID) error

	// Listings
	CreateListing(ctx context.Context, listing *Listing) error
	GetListing(ctx context.Context, id uuid.UUID) (*Listing, error)
	GetListingForSeller(ctx context.Context, id, sellerID uuid.UUID) (*Listing, error)
	GetListingForCreditOwner(ctx context.Context, id, ownerID uuid.UUID) (*Listing, error)
	ListActive(ctx context.Context) ([]Listing, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Listing, error)
	MarkSold(ctx context.Context, id, buyerID uuid.UUID, at time.Time) (int64, error)
	Deactivate(ctx context.Context, id uuid.UUID) (int64, error)
	MarkClaimed(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteListingsForProject(ctx context.Context, projectID uuid.UUID) error
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

func (r *gormRepository) CreateCredit(ctx context.Context, credit *CarbonCredit) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(credit).Error
}

func (r *gormRepository) GetCredit(ctx context.Context, id uuid.UUID) (*CarbonCredit, error) {
	var credit CarbonCredit
	err := r.db.WithContext(ctx).Preload("Project").Where("id = ?", id).First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCreditNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (r *gormRepository) GetCreditByProject(ctx context.Context, projectID uuid.UUID) (*CarbonCredit, error) {
	var credit CarbonCredit
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCreditNotFound
	}
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (r *gormRepository) ListCreditsByOwner(ctx context.Context, ownerID uuid.UUID) ([]CarbonCredit, error) {
	var credits []CarbonCredit
	err := r.db.WithContext(ctx).
		Preload("Project").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&credits).Error
	return credits, err
}

func (r *gormRepository) CompareAndSetCreditStatus(ctx context.Context, id uuid.UUID, from, to CreditStatus) (int64, error) {
	result := r.db.WithContext(ctx).Model(&CarbonCredit{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

// TransferCredit hands the credit to newOwner and marks it sold.
func (r *gormRepository) TransferCredit(ctx context.Context, id uuid.UUID, from CreditStatus, newOwner uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&CarbonCredit{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"owner_id": newOwner,
			"status":   CreditSold,
		})
	return result.RowsAffected, result.Error
}

func (r *gormRepository) CountSoldCredits(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&CarbonCredit{}).
		Where("project_id = ? AND status = ?", projectID, CreditSold).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) DeleteCreditsForProject(ctx context.Context, projectID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&CarbonCredit{}).Error
}

func (r *gormRepository) CreateListing(ctx context.Context, listing *Listing) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(listing).Error
}

func (r *gormRepository) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	return r.firstListing(r.db.WithContext(ctx).Where("listings.id = ?", id))
}

func (r *gormRepository) GetListingForSeller(ctx context.Context, id, sellerID uuid.UUID) (*Listing, error) {
	return r.firstListing(r.db.WithContext(ctx).
		Where("listings.id = ? AND listings.seller_id = ?", id, sellerID))
}

func (r *gormRepository) GetListingForCreditOwner(ctx context.Context, id, ownerID uuid.UUID) (*Listing, error) {
	return r.firstListing(r.db.WithContext(ctx).
		Joins("JOIN carbon_credits ON carbon_credits.id = listings.credit_id").
		Where("listings.id = ? AND carbon_credits.owner_id = ?", id, ownerID))
}

func (r *gormRepository) firstListing(q *gorm.DB) (*Listing, error) {
	var listing Listing
	err := q.Preload("Credit").Preload("Credit.Project").First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *gormRepository) ListActive(ctx context.Context) ([]Listing, error) {
	var listings []Listing
	err := r.db.WithContext(ctx).
		Preload("Credit").Preload("Credit.Project").
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&listings).Error
	return listings, err
}

func (r *gormRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Listing, error) {
	var listings []Listing
	err := r.db.WithContext(ctx).
		Preload("Credit").Preload("Credit.Project").
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&listings).Error
	return listings, err
}

// MarkSold closes an active listing as purchased by buyerID.
func (r *gormRepository) MarkSold(ctx context.Context, id, buyerID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Listing{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"buyer_id":  buyerID,
			"sold_at":   at,
		})
	return result.RowsAffected, result.Error
}

func (r *gormRepository) Deactivate(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Listing{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

// MarkClaimed flips claimed once, and only on a completed sale.
func (r *gormRepository) MarkClaimed(ctx context.Context, id uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Listing{}).
		Where("id = ? AND claimed = ? AND is_active = ? AND buyer_id IS NOT NULL", id, false, false).
		Update("claimed", true)
	return result.RowsAffected, result.Error
}

func (r *gormRepository) DeleteListingsForProject(ctx context.Context, projectID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("credit_id IN (?)", r.db.Model(&CarbonCredit{}).Select("id").Where("project_id = ?", projectID)).
		Delete(&Listing{}).Error
}
