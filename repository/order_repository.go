package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jamesdoliver/featune-sub001/model"
)

// ErrDuplicateOrder is returned when an order already exists for the same
// external payment reference. Callers treat it as "already settled".
var ErrDuplicateOrder = errors.New("order already exists for payment reference")

// OrderRepository defines the interface for order and line item operations.
// The Tx methods participate in the settlement transaction; BeginTx /
// CommitTx / RollbackTx mirror the repository transaction helpers used
// elsewhere in the codebase.
type OrderRepository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	RollbackTx(tx *sql.Tx)
	CommitTx(tx *sql.Tx) error

	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *model.Order) (int64, error)
	CreateLineItemTx(ctx context.Context, tx *sql.Tx, item *model.OrderLineItem) (int64, error)
	UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, orderID int64, status string) error

	GetOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error)
	GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]*model.Order, error)
	GetLineItemsByOrderID(ctx context.Context, orderID int64) ([]*model.OrderLineItem, error)
	UpdateLineItemDocumentRef(ctx context.Context, lineItemID int64, documentRef string) error
}

// mysqlOrderRepository implements OrderRepository for MySQL.
type mysqlOrderRepository struct {
	DB *sql.DB
}

// NewMySQLOrderRepository creates a new instance of mysqlOrderRepository.
func NewMySQLOrderRepository(db *sql.DB) OrderRepository {
	return &mysqlOrderRepository{DB: db}
}

// BeginTx starts a new transaction.
func (r *mysqlOrderRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.DB.BeginTx(ctx, nil)
}

// RollbackTx rolls back a transaction. Safe after commit.
func (r *mysqlOrderRepository) RollbackTx(tx *sql.Tx) {
	if tx != nil {
		tx.Rollback()
	}
}

// CommitTx commits a transaction.
func (r *mysqlOrderRepository) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// CreateOrderTx inserts the order inside the settlement transaction. The
// unique key on external_payment_ref turns a duplicate confirmation into
// ErrDuplicateOrder instead of a second order row.
func (r *mysqlOrderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *model.Order) (int64, error) {
	query := `INSERT INTO orders (buyer_id, subtotal, discount_percent, discount_amount, total,
	           status, external_payment_ref, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	res, err := tx.ExecContext(ctx, query, order.BuyerID, order.Subtotal, order.DiscountPercent,
		order.DiscountAmount, order.Total, order.Status, order.ExternalPaymentRef, now, now)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate entry") {
			return 0, ErrDuplicateOrder
		}
		return 0, fmt.Errorf("failed to execute CreateOrderTx: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateOrderTx: %w", err)
	}
	return id, nil
}

// CreateLineItemTx inserts one line item inside the settlement transaction.
func (r *mysqlOrderRepository) CreateLineItemTx(ctx context.Context, tx *sql.Tx, item *model.OrderLineItem) (int64, error) {
	query := `INSERT INTO order_line_items (order_id, track_id, creator_id, license_type,
	           price_at_purchase, creator_earnings, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := tx.ExecContext(ctx, query, item.OrderID, item.TrackID, item.CreatorID,
		item.LicenseType, item.PriceAtPurchase, item.CreatorEarnings, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateLineItemTx: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateLineItemTx: %w", err)
	}
	return id, nil
}

// UpdateOrderStatusTx flips the order status inside the settlement transaction.
func (r *mysqlOrderRepository) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, orderID int64, status string) error {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, status, time.Now(), orderID); err != nil {
		return fmt.Errorf("failed to execute UpdateOrderStatusTx for order ID %d: %w", orderID, err)
	}
	return nil
}

const orderColumns = `id, buyer_id, subtotal, discount_percent, discount_amount, total,
	status, external_payment_ref, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*model.Order, error) {
	order := &model.Order{}
	err := row.Scan(&order.ID, &order.BuyerID, &order.Subtotal, &order.DiscountPercent,
		&order.DiscountAmount, &order.Total, &order.Status, &order.ExternalPaymentRef,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderByPaymentRef looks up an order by its external payment reference.
func (r *mysqlOrderRepository) GetOrderByPaymentRef(ctx context.Context, ref string) (*model.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_payment_ref = ?`, ref)
	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan order by payment ref %s: %w", ref, err)
	}
	return order, nil
}

// GetOrdersByBuyerID returns a buyer's orders, newest first.
func (r *mysqlOrderRepository) GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]*model.Order, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders for buyer ID %d: %w", buyerID, err)
	}
	defer rows.Close()

	orders := make([]*model.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order in GetOrdersByBuyerID: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetOrdersByBuyerID: %w", err)
	}

	return orders, nil
}

// GetLineItemsByOrderID returns the line items belonging to an order.
func (r *mysqlOrderRepository) GetLineItemsByOrderID(ctx context.Context, orderID int64) ([]*model.OrderLineItem, error) {
	query := `SELECT id, order_id, track_id, creator_id, license_type, price_at_purchase,
	           creator_earnings, license_document_ref, created_at
	           FROM order_line_items WHERE order_id = ?`
	rows, err := r.DB.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items for order ID %d: %w", orderID, err)
	}
	defer rows.Close()

	items := make([]*model.OrderLineItem, 0)
	for rows.Next() {
		item := &model.OrderLineItem{}
		err := rows.Scan(&item.ID, &item.OrderID, &item.TrackID, &item.CreatorID, &item.LicenseType,
			&item.PriceAtPurchase, &item.CreatorEarnings, &item.LicenseDocumentRef, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item in GetLineItemsByOrderID: %w", err)
		}
		items = append(items, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetLineItemsByOrderID: %w", err)
	}

	return items, nil
}

// UpdateLineItemDocumentRef records the issued license certificate reference.
func (r *mysqlOrderRepository) UpdateLineItemDocumentRef(ctx context.Context, lineItemID int64, documentRef string) error {
	query := `UPDATE order_line_items SET license_document_ref = ? WHERE id = ?`
	if _, err := r.DB.ExecContext(ctx, query, documentRef, lineItemID); err != nil {
		return fmt.Errorf("failed to execute UpdateLineItemDocumentRef for line item ID %d: %w", lineItemID, err)
	}
	return nil
}
