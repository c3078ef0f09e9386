// Package settlement turns confirmed payments into durable orders. This is
// the authoritative inventory step: availability was only pre-checked at
// checkout time, so every license is claimed here with a conditional
// increment, and everything runs inside one database transaction anchored
// on the unique external payment reference.
package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jamesdoliver/featune-sub001/core/pricing"
	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
	"github.com/jamesdoliver/featune-sub001/repository"
)

// Task kinds enqueued after a settlement commits.
const (
	TaskLicenseIssue       = "license_issue"
	TaskNotifyBuyer        = "notify_buyer"
	TaskNotifyCreator      = "notify_creator"
	TaskCompensationReview = "compensation_review"
)

// Confirmation is the payment gateway's word that money moved. Items is the
// cart snapshot taken at checkout; the live catalog is consulted only for
// claiming licenses, never for prices.
type Confirmation struct {
	PaymentRef      string
	BuyerID         int64
	Items           []model.OrderItemSnapshot
	DiscountPercent int
	Subtotal        int64
	Total           int64
}

// Result reports what a settlement attempt did.
type Result struct {
	AlreadySettled bool
	OrderID        int64
	Status         string
	Succeeded      []model.OrderItemSnapshot
	Lost           []model.OrderItemSnapshot
	LineItemIDs    []int64
}

// Enqueuer hands follow-up work to the durable task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any) error
}

// LicenseIssuePayload is the payload for a license_issue task.
type LicenseIssuePayload struct {
	OrderID     int64  `json:"orderId"`
	LineItemID  int64  `json:"lineItemId"`
	BuyerID     int64  `json:"buyerId"`
	TrackID     int64  `json:"trackId"`
	LicenseType string `json:"licenseType"`
}

// CompensationPayload is the payload for a compensation_review task. One is
// enqueued per lost line so a human can refund the difference; money is
// never moved automatically.
type CompensationPayload struct {
	OrderID     int64  `json:"orderId"`
	BuyerID     int64  `json:"buyerId"`
	TrackID     int64  `json:"trackId"`
	LicenseType string `json:"licenseType"`
	AmountPaid  int64  `json:"amountPaid"`
}

// NotifyPayload is the payload for notify_buyer and notify_creator tasks.
type NotifyPayload struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
	TrackID int64 `json:"trackId"`
}

// Processor settles confirmed payments.
type Processor struct {
	orders repository.OrderRepository
	tracks repository.TrackRepository
	users  repository.UserRepository
	tasks  Enqueuer
}

// NewProcessor creates a settlement Processor.
func NewProcessor(orders repository.OrderRepository, tracks repository.TrackRepository,
	users repository.UserRepository, tasks Enqueuer) *Processor {
	return &Processor{orders: orders, tracks: tracks, users: users, tasks: tasks}
}

// Settle processes one payment confirmation exactly once. Redeliveries hit
// either the fast-path lookup or the unique key on the payment reference
// and return AlreadySettled without touching inventory. A mid-flight crash
// rolls back the whole transaction, leaving redelivery to retry cleanly.
//
// Items the buyer paid for can still be lost here (an exclusive race, a cap
// filled during the payment window). Lost lines do not fail the order: the
// order completes with the surviving lines and every loss goes to the
// compensation review queue.
func (p *Processor) Settle(ctx context.Context, conf *Confirmation) (*Result, error) {
	if conf.PaymentRef == "" {
		return nil, fmt.Errorf("confirmation has no payment reference")
	}
	if len(conf.Items) == 0 {
		return nil, fmt.Errorf("confirmation %s has no items", conf.PaymentRef)
	}

	existing, err := p.orders.GetOrderByPaymentRef(ctx, conf.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment ref %s: %w", conf.PaymentRef, err)
	}
	if existing != nil {
		logger.Info("Settlement replay ignored",
			logger.String("paymentRef", conf.PaymentRef),
			logger.Int64("orderID", existing.ID))
		return &Result{AlreadySettled: true, OrderID: existing.ID, Status: existing.Status}, nil
	}

	tx, err := p.orders.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer p.orders.RollbackTx(tx)

	order := &model.Order{
		BuyerID:            conf.BuyerID,
		Subtotal:           conf.Subtotal,
		DiscountPercent:    conf.DiscountPercent,
		DiscountAmount:     conf.Subtotal - conf.Total,
		Total:              conf.Total,
		Status:             model.OrderStatusPending,
		ExternalPaymentRef: conf.PaymentRef,
	}

	orderID, err := p.orders.CreateOrderTx(ctx, tx, order)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			// a concurrent redelivery won the insert race
			logger.Info("Settlement lost insert race, treating as settled",
				logger.String("paymentRef", conf.PaymentRef))
			return &Result{AlreadySettled: true}, nil
		}
		return nil, fmt.Errorf("failed to create order for payment ref %s: %w", conf.PaymentRef, err)
	}

	result := &Result{OrderID: orderID}

	for _, item := range conf.Items {
		claimed, err := p.claimLine(ctx, tx, orderID, item, result)
		if err != nil {
			return nil, err
		}
		if claimed {
			result.Succeeded = append(result.Succeeded, item)
		} else {
			result.Lost = append(result.Lost, item)
		}
	}

	if len(result.Succeeded) > 0 {
		result.Status = model.OrderStatusCompleted
	} else {
		result.Status = model.OrderStatusFailed
	}
	if err := p.orders.UpdateOrderStatusTx(ctx, tx, orderID, result.Status); err != nil {
		return nil, fmt.Errorf("failed to update order %d status: %w", orderID, err)
	}

	if err := p.orders.CommitTx(tx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement for payment ref %s: %w", conf.PaymentRef, err)
	}

	logger.Info("Settlement committed",
		logger.String("paymentRef", conf.PaymentRef),
		logger.Int64("orderID", orderID),
		logger.String("status", result.Status),
		logger.Int("succeeded", len(result.Succeeded)),
		logger.Int("lost", len(result.Lost)))

	p.enqueueFollowups(ctx, conf, result)
	return result, nil
}

// claimLine attempts to reserve one license and record its line item. A
// false return means the item was lost to a race, not an error.
func (p *Processor) claimLine(ctx context.Context, tx *sql.Tx, orderID int64,
	item model.OrderItemSnapshot, result *Result) (bool, error) {

	track, err := p.tracks.GetTrackByID(ctx, item.TrackID)
	if err != nil {
		return false, fmt.Errorf("failed to load track %d during settlement: %w", item.TrackID, err)
	}
	if track == nil || track.Status != model.TrackStatusApproved {
		return false, nil
	}

	claimed, err := p.tracks.ReserveLicenseTx(ctx, tx, track, item.LicenseType)
	if err != nil {
		return false, fmt.Errorf("failed to reserve license on track %d: %w", item.TrackID, err)
	}
	if !claimed {
		return false, nil
	}

	creator, err := p.users.GetUserByID(ctx, item.CreatorID)
	if err != nil {
		return false, fmt.Errorf("failed to load creator %d: %w", item.CreatorID, err)
	}
	split := 0.0
	if creator != nil {
		split = creator.RevenueSplit
	}

	lineID, err := p.orders.CreateLineItemTx(ctx, tx, &model.OrderLineItem{
		OrderID:         orderID,
		TrackID:         item.TrackID,
		CreatorID:       item.CreatorID,
		LicenseType:     item.LicenseType,
		PriceAtPurchase: item.Price,
		CreatorEarnings: pricing.CreatorEarnings(item.Price, split),
	})
	if err != nil {
		return false, fmt.Errorf("failed to create line item for track %d: %w", item.TrackID, err)
	}
	result.LineItemIDs = append(result.LineItemIDs, lineID)

	return true, nil
}

// enqueueFollowups schedules post-commit work. Enqueue failures are logged
// and swallowed: the settlement already committed and must not be retried.
func (p *Processor) enqueueFollowups(ctx context.Context, conf *Confirmation, result *Result) {
	for i, item := range result.Succeeded {
		var lineID int64
		if i < len(result.LineItemIDs) {
			lineID = result.LineItemIDs[i]
		}
		p.enqueue(ctx, TaskLicenseIssue, LicenseIssuePayload{
			OrderID:     result.OrderID,
			LineItemID:  lineID,
			BuyerID:     conf.BuyerID,
			TrackID:     item.TrackID,
			LicenseType: item.LicenseType,
		})
		p.enqueue(ctx, TaskNotifyCreator, NotifyPayload{
			OrderID: result.OrderID,
			UserID:  item.CreatorID,
			TrackID: item.TrackID,
		})
	}

	if len(result.Succeeded) > 0 {
		p.enqueue(ctx, TaskNotifyBuyer, NotifyPayload{OrderID: result.OrderID, UserID: conf.BuyerID})
	}

	for _, item := range result.Lost {
		p.enqueue(ctx, TaskCompensationReview, CompensationPayload{
			OrderID:     result.OrderID,
			BuyerID:     conf.BuyerID,
			TrackID:     item.TrackID,
			LicenseType: item.LicenseType,
			AmountPaid:  item.Price,
		})
	}
}

func (p *Processor) enqueue(ctx context.Context, kind string, payload any) {
	if p.tasks == nil {
		return
	}
	if err := p.tasks.Enqueue(ctx, kind, payload); err != nil {
		logger.Error("Failed to enqueue settlement follow-up",
			logger.String("kind", kind), logger.ErrorField(err))
	}
}
