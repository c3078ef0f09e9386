// Package payout maintains the creator earnings ledger. Balances are never
// stored; they are derived on demand from line item earnings and payout
// history, so there is no running counter to drift.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
	"github.com/jamesdoliver/featune-sub001/repository"
)

// Errors surfaced to the API layer.
var (
	ErrInsufficientBalance = errors.New("requestable balance is negative")
	ErrBelowMinimum        = errors.New("requestable balance is below the payout minimum")
	ErrPayoutNotFound      = errors.New("payout not found")
)

// Ledger computes creator balances and processes payout requests.
type Ledger struct {
	payouts repository.PayoutRepository
	minimum int64 // cents, smallest payout a creator may request
}

// NewLedger creates a Ledger with the configured payout minimum.
func NewLedger(payouts repository.PayoutRepository, minimum int64) *Ledger {
	return &Ledger{payouts: payouts, minimum: minimum}
}

// ComputeBalances derives the creator's ledger position from first
// principles. Available = earnings - completed payouts; requestable
// additionally subtracts payouts still in flight.
func (l *Ledger) ComputeBalances(ctx context.Context, creatorID int64) (*model.CreatorBalances, error) {
	earnings, err := l.payouts.SumEarnings(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	completed, err := l.payouts.SumPayouts(ctx, creatorID, model.PayoutStatusCompleted)
	if err != nil {
		return nil, err
	}
	inFlight, err := l.payouts.SumPayouts(ctx, creatorID,
		model.PayoutStatusPending, model.PayoutStatusProcessing)
	if err != nil {
		return nil, err
	}

	return &model.CreatorBalances{
		TotalEarnings:       earnings,
		CompletedPayouts:    completed,
		PendingPayoutsTotal: inFlight,
		AvailableBalance:    earnings - completed,
		RequestableBalance:  earnings - completed - inFlight,
	}, nil
}

// RequestPayout creates a pending payout for the creator's entire
// requestable balance at this instant. The creator row is locked and the
// balance recomputed inside the transaction, so two concurrent requests
// cannot both spend the same earnings. The amount is frozen at creation and
// never recomputed.
func (l *Ledger) RequestPayout(ctx context.Context, creatorID int64) (*model.Payout, error) {
	tx, err := l.payouts.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin payout transaction: %w", err)
	}
	defer l.payouts.RollbackTx(tx)

	if err := l.payouts.LockCreatorTx(ctx, tx, creatorID); err != nil {
		return nil, err
	}

	earnings, err := l.payouts.SumEarningsTx(ctx, tx, creatorID)
	if err != nil {
		return nil, err
	}
	spoken, err := l.payouts.SumPayoutsTx(ctx, tx, creatorID,
		model.PayoutStatusCompleted, model.PayoutStatusPending, model.PayoutStatusProcessing)
	if err != nil {
		return nil, err
	}

	requestable := earnings - spoken
	if requestable < 0 {
		return nil, ErrInsufficientBalance
	}
	if requestable < l.minimum {
		return nil, ErrBelowMinimum
	}

	payout := &model.Payout{
		CreatorID: creatorID,
		Amount:    requestable,
		Status:    model.PayoutStatusPending,
	}
	payout.ID, err = l.payouts.CreatePayoutTx(ctx, tx, payout)
	if err != nil {
		return nil, err
	}

	if err := l.payouts.CommitTx(tx); err != nil {
		return nil, fmt.Errorf("failed to commit payout for creator %d: %w", creatorID, err)
	}

	logger.Info("Payout requested",
		logger.Int64("creatorID", creatorID),
		logger.Int64("payoutID", payout.ID),
		logger.Int64("amount", payout.Amount))

	return payout, nil
}

// CompletePayout marks a payout as paid. Idempotent: completing a completed
// payout changes nothing and keeps the original paid_at.
func (l *Ledger) CompletePayout(ctx context.Context, payoutID int64) (*model.Payout, error) {
	payout, err := l.payouts.GetPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}

	if payout.Status != model.PayoutStatusCompleted {
		if err := l.payouts.CompletePayout(ctx, payoutID, time.Now()); err != nil {
			return nil, err
		}
		payout, err = l.payouts.GetPayoutByID(ctx, payoutID)
		if err != nil {
			return nil, err
		}
		logger.Info("Payout completed", logger.Int64("payoutID", payoutID))
	}

	return payout, nil
}

// History returns the creator's payouts, newest first.
func (l *Ledger) History(ctx context.Context, creatorID int64) ([]*model.Payout, error) {
	return l.payouts.GetPayoutsByCreatorID(ctx, creatorID)
}
