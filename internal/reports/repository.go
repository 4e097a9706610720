package reports

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var ErrCertificateNotFound = errors.New("certificate not found")

// Repository runs the read-only aggregate queries behind reports.
type Repository interface {
	CountProjectsByStatus(ctx context.Context) (map[string]int64, error)
	CountCreditsByStatus(ctx context.Context) (map[string]int64, error)
	CountActiveListings(ctx context.Context) (int64, error)
	SalesTotals(ctx context.Context) (count int64, volume, claimed decimal.Decimal, err error)
	ListSellerSales(ctx context.Context, sellerID uuid.UUID) ([]SaleRecord, error)
	GetCertificate(ctx context.Context, creditID uuid.UUID) (*Certificate, error)
}

// PostgresRepository implements Repository over sqlx. Queries use ? and are
// rebound for the connection's driver, so the same code runs on sqlite.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

func (r *PostgresRepository) countByStatus(ctx context.Context, table string) (map[string]int64, error) {
	var rows []statusCount
	query := `SELECT status, COUNT(*) AS count FROM ` + table + ` GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *PostgresRepository) CountProjectsByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countByStatus(ctx, "projects")
}

func (r *PostgresRepository) CountCreditsByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countByStatus(ctx, "carbon_credits")
}

func (r *PostgresRepository) CountActiveListings(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM listings WHERE is_active = ?`), true)
	return n, err
}

func (r *PostgresRepository) SalesTotals(ctx context.Context) (int64, decimal.Decimal, decimal.Decimal, error) {
	var totals struct {
		Count   int64           `db:"count"`
		Volume  decimal.Decimal `db:"volume"`
		Claimed decimal.Decimal `db:"claimed"`
	}
	query := r.db.Rebind(`
		SELECT
			COUNT(*) AS count,
			COALESCE(SUM(price), 0) AS volume,
			COALESCE(SUM(CASE WHEN claimed = ? THEN price ELSE 0 END), 0) AS claimed
		FROM listings
		WHERE is_active = ? AND buyer_id IS NOT NULL`)
	if err := r.db.GetContext(ctx, &totals, query, true, false); err != nil {
		return 0, decimal.Zero, decimal.Zero, err
	}
	return totals.Count, totals.Volume, totals.Claimed, nil
}

func (r *PostgresRepository) ListSellerSales(ctx context.Context, sellerID uuid.UUID) ([]SaleRecord, error) {
	sales := []SaleRecord{}
	query := r.db.Rebind(`
		SELECT
			l.id AS listing_id,
			l.credit_id,
			p.name AS project_name,
			c.token_id,
			c.serial_number,
			l.price,
			l.buyer_id,
			l.sold_at,
			l.claimed
		FROM listings l
		JOIN carbon_credits c ON c.id = l.credit_id
		JOIN projects p ON p.id = c.project_id
		WHERE l.seller_id = ? AND l.is_active = ? AND l.buyer_id IS NOT NULL
		ORDER BY l.sold_at DESC`)
	err := r.db.SelectContext(ctx, &sales, query, sellerID, false)
	return sales, err
}

func (r *PostgresRepository) GetCertificate(ctx context.Context, creditID uuid.UUID) (*Certificate, error) {
	var cert Certificate
	query := r.db.Rebind(`
		SELECT
			c.id AS credit_id,
			c.owner_id,
			u.email AS owner_email,
			c.token_id,
			c.serial_number,
			c.status,
			c.created_at AS minted_at,
			p.id AS project_id,
			p.name AS project_name,
			p.location,
			p.tonnage,
			p.vintage
		FROM carbon_credits c
		JOIN projects p ON p.id = c.project_id
		JOIN users u ON u.id = c.owner_id
		WHERE c.id = ?`)
	err := r.db.GetContext(ctx, &cert, query, creditID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
