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

type transactionRow struct {
	ID                 string        `db:"id"`
	ListingID          string        `db:"listing_id"`
	BuyerID            string        `db:"buyer_id"`
	SellerID           string        `db:"seller_id"`
	ConversationID     string        `db:"conversation_id"`
	Amount             int64         `db:"amount"`
	PaymentMethod      string        `db:"payment_method"`
	Status             string        `db:"status"`
	Notes              string        `db:"notes"`
	DisputeReason      string        `db:"dispute_reason"`
	Resolution         string        `db:"resolution"`
	CancellationReason string        `db:"cancellation_reason"`
	Version            int64         `db:"version"`
	CreatedAt          int64         `db:"created_at"`
	UpdatedAt          int64         `db:"updated_at"`
	FundsConfirmedAt   sql.NullInt64 `db:"funds_confirmed_at"`
	DisputedAt         sql.NullInt64 `db:"disputed_at"`
	CompletedAt        sql.NullInt64 `db:"completed_at"`
	CancelledAt        sql.NullInt64 `db:"cancelled_at"`
	ResolvedAt         sql.NullInt64 `db:"resolved_at"`
}

func (r transactionRow) toEntity() *entity.Transaction {
	return &entity.Transaction{
		ID:                 r.ID,
		ListingID:          r.ListingID,
		BuyerID:            r.BuyerID,
		SellerID:           r.SellerID,
		ConversationID:     r.ConversationID,
		Amount:             r.Amount,
		PaymentMethod:      entity.PaymentMethod(r.PaymentMethod),
		Status:             entity.TransactionStatus(r.Status),
		Notes:              r.Notes,
		DisputeReason:      r.DisputeReason,
		Resolution:         entity.DisputeOutcome(r.Resolution),
		CancellationReason: r.CancellationReason,
		Version:            r.Version,
		CreatedAt:          fromNanos(r.CreatedAt),
		UpdatedAt:          fromNanos(r.UpdatedAt),
		FundsConfirmedAt:   fromNullNanos(r.FundsConfirmedAt),
		DisputedAt:         fromNullNanos(r.DisputedAt),
		CompletedAt:        fromNullNanos(r.CompletedAt),
		CancelledAt:        fromNullNanos(r.CancelledAt),
		ResolvedAt:         fromNullNanos(r.ResolvedAt),
	}
}

func newTransactionRow(t *entity.Transaction) transactionRow {
	return transactionRow{
		ID:                 t.ID,
		ListingID:          t.ListingID,
		BuyerID:            t.BuyerID,
		SellerID:           t.SellerID,
		ConversationID:     t.ConversationID,
		Amount:             t.Amount,
		PaymentMethod:      string(t.PaymentMethod),
		Status:             string(t.Status),
		Notes:              t.Notes,
		DisputeReason:      t.DisputeReason,
		Resolution:         string(t.Resolution),
		CancellationReason: t.CancellationReason,
		Version:            t.Version,
		CreatedAt:          toNanos(t.CreatedAt),
		UpdatedAt:          toNanos(t.UpdatedAt),
		FundsConfirmedAt:   toNullNanos(t.FundsConfirmedAt),
		DisputedAt:         toNullNanos(t.DisputedAt),
		CompletedAt:        toNullNanos(t.CompletedAt),
		CancelledAt:        toNullNanos(t.CancelledAt),
		ResolvedAt:         toNullNanos(t.ResolvedAt),
	}
}

const transactionColumns = `id, listing_id, buyer_id, seller_id, conversation_id, amount, payment_method, status,
  notes, dispute_reason, resolution, cancellation_reason, version, created_at, updated_at,
  funds_confirmed_at, disputed_at, completed_at, cancelled_at, resolved_at`

const openStatuses = `('pending','in_progress','disputed')`

type sqliteTransactionRepository struct {
	db *sqlx.DB
}

func NewSQLiteTransactionRepository(db *sqlx.DB) repository.TransactionRepository {
	return &sqliteTransactionRepository{db: db}
}

func (r *sqliteTransactionRepository) Create(ctx context.Context, transaction *entity.Transaction) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO transactions(`+transactionColumns+`)
		VALUES(:id, :listing_id, :buyer_id, :seller_id, :conversation_id, :amount, :payment_method, :status,
		  :notes, :dispute_reason, :resolution, :cancellation_reason, :version, :created_at, :updated_at,
		  :funds_confirmed_at, :disputed_at, :completed_at, :cancelled_at, :resolved_at)`, newTransactionRow(transaction))
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ConcurrentModification("listing", transaction.ListingID).
				With("reason", "listing already has an open transaction")
		}
		return wrapSQL("Failed to create transaction", err)
	}
	return nil
}

func (r *sqliteTransactionRepository) GetByID(ctx context.Context, id string) (*entity.Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

func getTransaction(ctx context.Context, q sqlx.QueryerContext, id string) (*entity.Transaction, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Transaction", err)
		}
		return nil, wrapSQL("Failed to get transaction", err)
	}
	return row.toEntity(), nil
}

func (r *sqliteTransactionRepository) FindOpenByListing(ctx context.Context, listingID string) (*entity.Transaction, error) {
	var row transactionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions
		WHERE listing_id = ? AND status IN `+openStatuses, listingID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("Open transaction", err)
		}
		return nil, wrapSQL("Failed to find open transaction", err)
	}
	return row.toEntity(), nil
}

func (r *sqliteTransactionRepository) ListByListing(ctx context.Context, listingID string) ([]*entity.Transaction, error) {
	var rows []transactionRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+transactionColumns+` FROM transactions
		WHERE listing_id = ? ORDER BY created_at ASC, id`, listingID)
	if err != nil {
		return nil, wrapSQL("Failed to list transactions for listing", err)
	}
	return transactionRowsToEntities(rows), nil
}

func (r *sqliteTransactionRepository) ListByUserID(ctx context.Context, userID string, role string, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error) {
	var where []string
	var args []interface{}

	switch role {
	case "buyer":
		where = append(where, "buyer_id = ?")
		args = append(args, userID)
	case "seller":
		where = append(where, "seller_id = ?")
		args = append(args, userID)
	case "":
		where = append(where, "(buyer_id = ? OR seller_id = ?)")
		args = append(args, userID, userID)
	default:
		return nil, 0, errors.Validation("Invalid role", nil).With("role", role)
	}

	if status != "" {
		where = append(where, "status = ?")
		args = append(args, string(status))
	}
	return r.list(ctx, " WHERE "+strings.Join(where, " AND "), args, limit, offset)
}

func (r *sqliteTransactionRepository) List(ctx context.Context, status entity.TransactionStatus, limit, offset int) ([]*entity.Transaction, int64, error) {
	if status == "" {
		return r.list(ctx, "", nil, limit, offset)
	}
	return r.list(ctx, " WHERE status = ?", []interface{}{string(status)}, limit, offset)
}

func (r *sqliteTransactionRepository) list(ctx context.Context, clause string, args []interface{}, limit, offset int) ([]*entity.Transaction, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions`+clause, args...); err != nil {
		return nil, 0, wrapSQL("Failed to count transactions", err)
	}

	var rows []transactionRow
	query := `SELECT ` + transactionColumns + ` FROM transactions` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, query, append(args, sqlLimit(limit), offset)...); err != nil {
		return nil, 0, wrapSQL("Failed to list transactions", err)
	}
	return transactionRowsToEntities(rows), total, nil
}

func transactionRowsToEntities(rows []transactionRow) []*entity.Transaction {
	out := make([]*entity.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out
}

func (r *sqliteTransactionRepository) CompareAndSwap(ctx context.Context, transaction *entity.Transaction, expectedVersion int64) error {
	return casTransaction(ctx, r.db, transaction, expectedVersion)
}

func (r *sqliteTransactionRepository) CompareAndSwapWithListing(ctx context.Context, transaction *entity.Transaction, expectedVersion int64, listing *entity.Listing, expectedListingVersion int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapSQL("Failed to begin transaction update", err)
	}
	defer tx.Rollback()

	if err := casListing(ctx, tx, listing, expectedListingVersion); err != nil {
		return err
	}
	if err := casTransaction(ctx, tx, transaction, expectedVersion); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapSQL("Failed to commit transaction update", err)
	}
	return nil
}

func casTransaction(ctx context.Context, e sqlx.ExtContext, transaction *entity.Transaction, expectedVersion int64) error {
	row := newTransactionRow(transaction)
	res, err := e.ExecContext(ctx, `UPDATE transactions SET status = ?, notes = ?, dispute_reason = ?, resolution = ?,
		  cancellation_reason = ?, version = ?, updated_at = ?, funds_confirmed_at = ?, disputed_at = ?,
		  completed_at = ?, cancelled_at = ?, resolved_at = ?
		WHERE id = ? AND version = ?`,
		row.Status, row.Notes, row.DisputeReason, row.Resolution, row.CancellationReason, row.Version, row.UpdatedAt,
		row.FundsConfirmedAt, row.DisputedAt, row.CompletedAt, row.CancelledAt, row.ResolvedAt,
		row.ID, expectedVersion)
	if err != nil {
		return wrapSQL("Failed to update transaction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrapSQL("Failed to update transaction", err)
	}
	if n == 0 {
		if _, err := getTransaction(ctx, e, transaction.ID); err != nil {
			return err
		}
		return errors.ConcurrentModification("transaction", transaction.ID)
	}
	return nil
}
