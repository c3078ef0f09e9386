package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jamesdoliver/featune-sub001/model"
)

// PayoutRepository defines the interface for payout ledger operations.
// The Tx variants run inside a payout-request transaction that holds a
// row lock on the creator, serializing concurrent requests so the
// requestable balance cannot be spent twice.
type PayoutRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	RollbackTx(tx *sql.Tx)
	CommitTx(tx *sql.Tx) error

	LockCreatorTx(ctx context.Context, tx *sql.Tx, creatorID int64) error
	SumEarningsTx(ctx context.Context, tx *sql.Tx, creatorID int64) (int64, error)
	SumPayoutsTx(ctx context.Context, tx *sql.Tx, creatorID int64, statuses ...string) (int64, error)
	CreatePayoutTx(ctx context.Context, tx *sql.Tx, payout *model.Payout) (int64, error)

	SumEarnings(ctx context.Context, creatorID int64) (int64, error)
	SumPayouts(ctx context.Context, creatorID int64, statuses ...string) (int64, error)
	GetPayoutByID(ctx context.Context, id int64) (*model.Payout, error)
	GetPayoutsByCreatorID(ctx context.Context, creatorID int64) ([]*model.Payout, error)
	CompletePayout(ctx context.Context, id int64, paidAt time.Time) error
}

// mysqlPayoutRepository implements PayoutRepository for MySQL.
type mysqlPayoutRepository struct {
	DB *sql.DB
}

// NewMySQLPayoutRepository creates a new instance of mysqlPayoutRepository.
func NewMySQLPayoutRepository(db *sql.DB) PayoutRepository {
	return &mysqlPayoutRepository{DB: db}
}

func (r *mysqlPayoutRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.DB.BeginTx(ctx, nil)
}

func (r *mysqlPayoutRepository) RollbackTx(tx *sql.Tx) {
	if tx != nil {
		tx.Rollback()
	}
}

func (r *mysqlPayoutRepository) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// LockCreatorTx takes a row lock on the creator for the duration of the
// transaction. Two concurrent payout requests for the same creator block
// here and observe each other's inserted payout.
func (r *mysqlPayoutRepository) LockCreatorTx(ctx context.Context, tx *sql.Tx, creatorID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ? FOR UPDATE`, creatorID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("creator %d not found", creatorID)
		}
		return fmt.Errorf("failed to lock creator %d: %w", creatorID, err)
	}
	return nil
}

func sumEarningsQuery(q queryRower, ctx context.Context, creatorID int64) (int64, error) {
	var total sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(creator_earnings), 0) FROM order_line_items WHERE creator_id = ?`,
		creatorID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum earnings for creator %d: %w", creatorID, err)
	}
	return total.Int64, nil
}

func sumPayoutsQuery(q queryRower, ctx context.Context, creatorID int64, statuses []string) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := "?"
	args := []interface{}{creatorID, statuses[0]}
	for _, s := range statuses[1:] {
		placeholders += ", ?"
		args = append(args, s)
	}

	var total sql.NullInt64
	query := `SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE creator_id = ? AND status IN (` + placeholders + `)`
	if err := q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum payouts for creator %d: %w", creatorID, err)
	}
	return total.Int64, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *mysqlPayoutRepository) SumEarningsTx(ctx context.Context, tx *sql.Tx, creatorID int64) (int64, error) {
	return sumEarningsQuery(tx, ctx, creatorID)
}

func (r *mysqlPayoutRepository) SumPayoutsTx(ctx context.Context, tx *sql.Tx, creatorID int64, statuses ...string) (int64, error) {
	return sumPayoutsQuery(tx, ctx, creatorID, statuses)
}

func (r *mysqlPayoutRepository) SumEarnings(ctx context.Context, creatorID int64) (int64, error) {
	return sumEarningsQuery(r.DB, ctx, creatorID)
}

func (r *mysqlPayoutRepository) SumPayouts(ctx context.Context, creatorID int64, statuses ...string) (int64, error) {
	return sumPayoutsQuery(r.DB, ctx, creatorID, statuses)
}

// CreatePayoutTx inserts a payout inside the payout-request transaction.
func (r *mysqlPayoutRepository) CreatePayoutTx(ctx context.Context, tx *sql.Tx, payout *model.Payout) (int64, error) {
	query := `INSERT INTO payouts (creator_id, amount, status, created_at) VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, payout.CreatorID, payout.Amount, payout.Status, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreatePayoutTx: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreatePayoutTx: %w", err)
	}
	return id, nil
}

const payoutColumns = `id, creator_id, amount, status, created_at, paid_at`

func scanPayout(row interface{ Scan(...interface{}) error }) (*model.Payout, error) {
	payout := &model.Payout{}
	err := row.Scan(&payout.ID, &payout.CreatorID, &payout.Amount, &payout.Status,
		&payout.CreatedAt, &payout.PaidAt)
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// GetPayoutByID retrieves a payout by ID.
func (r *mysqlPayoutRepository) GetPayoutByID(ctx context.Context, id int64) (*model.Payout, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id)
	payout, err := scanPayout(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan payout by ID %d: %w", id, err)
	}
	return payout, nil
}

// GetPayoutsByCreatorID returns a creator's payouts, newest first.
func (r *mysqlPayoutRepository) GetPayoutsByCreatorID(ctx context.Context, creatorID int64) ([]*model.Payout, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE creator_id = ? ORDER BY created_at DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts for creator ID %d: %w", creatorID, err)
	}
	defer rows.Close()

	payouts := make([]*model.Payout, 0)
	for rows.Next() {
		payout, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout in GetPayoutsByCreatorID: %w", err)
		}
		payouts = append(payouts, payout)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetPayoutsByCreatorID: %w", err)
	}

	return payouts, nil
}

// CompletePayout transitions a payout to completed. The status guard makes
// repeated completion a no-op: paid_at is set exactly once.
func (r *mysqlPayoutRepository) CompletePayout(ctx context.Context, id int64, paidAt time.Time) error {
	query := `UPDATE payouts SET status = ?, paid_at = ? WHERE id = ? AND status <> ?`
	_, err := r.DB.ExecContext(ctx, query, model.PayoutStatusCompleted, paidAt, id, model.PayoutStatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to execute CompletePayout for payout ID %d: %w", id, err)
	}
	return nil
}
