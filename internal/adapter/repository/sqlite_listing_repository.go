package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"pasarbekas/internal/domain/entity"
	"pasarbekas/internal/domain/repository"
	"pasarbekas/pkg/errors"
)

type listingRow struct {
	ID              string `db:"id"`
	Title           string `db:"title"`
	Description     string `db:"description"`
	Price           int64  `db:"price"`
	Category        string `db:"category"`
	Condition       string `db:"condition"`
	Location        string `db:"location"`
	SellerID        string `db:"seller_id"`
	Status          string `db:"status"`
	RejectionReason string `db:"rejection_reason"`
	Version         int64  `db:"version"`
	CreatedAt       int64  `db:"created_at"`
	UpdatedAt       int64  `db:"updated_at"`
}

func (r listingRow) toEntity() *entity.Listing {
	return &entity.Listing{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Price:           r.Price,
		Category:        entity.Category(r.Category),
		Condition:       entity.Condition(r.Condition),
		Location:        r.Location,
		SellerID:        r.SellerID,
		Status:          entity.ListingStatus(r.Status),
		RejectionReason: r.RejectionReason,
		Version:         r.Version,
		CreatedAt:       fromNanos(r.CreatedAt),
		UpdatedAt:       fromNanos(r.UpdatedAt),
	}
}

func newListingRow(l *entity.Listing) listingRow {
	return listingRow{
		ID:              l.ID,
		Title:           l.Title,
		Description:     l.Description,
		Price:           l.Price,
		Category:        string(l.Category),
		Condition:       string(l.Condition),
		Location:        l.Location,
		SellerID:        l.SellerID,
		Status:          string(l.Status),
		RejectionReason: l.RejectionReason,
		Version:         l.Version,
		CreatedAt:       toNanos(l.CreatedAt),
		UpdatedAt:       toNanos(l.UpdatedAt),
	}
}

const listingColumns = `id, title, description, price, category, condition, location, seller_id,
  status, rejection_reason, version, created_at, updated_at`

type sqliteListingRepository struct {
	db *sqlx.DB
}

func NewSQLiteListingRepository(db *sqlx.DB) repository.ListingRepository {
	return &sqliteListingRepository{db: db}
}

func (r *sqliteListingRepository) Create(ctx context.Context, listing *entity.Listing) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO listings(`+listingColumns+`)
		VALUES(:id, :title, :description, :price, :category, :condition, :location, :seller_id,
		  :status, :rejection_reason, :version, :created_at, :updated_at)`, newListingRow(listing))
	if err != nil {
		return wrapSQL("Failed to create listing", err)
	}
	return nil
}

func (r *sqliteListingRepository) GetByID(ctx context.Context, id string) (*entity.Listing, error) {
	return getListing(ctx, r.db, id)
}

func getListing(ctx context.Context, q sqlx.QueryerContext, id string) (*entity.Listing, error) {
	var row listingRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Listing", err)
		}
		return nil, wrapSQL("Failed to get listing", err)
	}
	return row.toEntity(), nil
}

func (r *sqliteListingRepository) List(ctx context.Context, filter repository.ListingFilter, limit, offset int) ([]*entity.Listing, int64, error) {
	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.SellerID != "" {
		where = append(where, "seller_id = ?")
		args = append(args, filter.SellerID)
	}
	if filter.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, filter.MaxPrice)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM listings`+clause, args...); err != nil {
		return nil, 0, wrapSQL("Failed to count listings", err)
	}

	var rows []listingRow
	query := `SELECT ` + listingColumns + ` FROM listings` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, query, append(args, sqlLimit(limit), offset)...); err != nil {
		return nil, 0, wrapSQL("Failed to list listings", err)
	}

	listings := make([]*entity.Listing, 0, len(rows))
	for _, row := range rows {
		listings = append(listings, row.toEntity())
	}
	return listings, total, nil
}

func (r *sqliteListingRepository) CompareAndSwap(ctx context.Context, listing *entity.Listing, expectedVersion int64) error {
	return casListing(ctx, r.db, listing, expectedVersion)
}

func casListing(ctx context.Context, e sqlx.ExtContext, listing *entity.Listing, expectedVersion int64) error {
	row := newListingRow(listing)
	res, err := e.ExecContext(ctx, `UPDATE listings SET title = ?, description = ?, price = ?, category = ?,
		  condition = ?, location = ?, status = ?, rejection_reason = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		row.Title, row.Description, row.Price, row.Category, row.Condition, row.Location,
		row.Status, row.RejectionReason, row.Version, row.UpdatedAt, row.ID, expectedVersion)
	if err != nil {
		return wrapSQL("Failed to update listing", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQL("Failed to update listing", err)
	}
	if n == 0 {
		if _, err := getListing(ctx, e, listing.ID); err != nil {
			return err
		}
		return errors.ConcurrentModification("listing", listing.ID)
	}
	return nil
}
