// Package notify delivers purchase and sale notifications. The current
// implementation only records them to the application log; swapping in an
// email or push sender is a matter of implementing Notifier.
package notify

import (
	"context"

	"github.com/jamesdoliver/featune-sub001/logger"
)

// Notifier delivers user-facing notifications.
type Notifier interface {
	NotifyBuyer(ctx context.Context, userID, orderID int64) error
	NotifyCreator(ctx context.Context, userID, orderID, trackID int64) error
	NotifyCompensationReview(ctx context.Context, orderID, buyerID, trackID, amount int64) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyBuyer(ctx context.Context, userID, orderID int64) error {
	logger.Info("Purchase confirmation",
		logger.Int64("buyerID", userID),
		logger.Int64("orderID", orderID))
	return nil
}

func (n *LogNotifier) NotifyCreator(ctx context.Context, userID, orderID, trackID int64) error {
	logger.Info("Sale notification",
		logger.Int64("creatorID", userID),
		logger.Int64("orderID", orderID),
		logger.Int64("trackID", trackID))
	return nil
}

func (n *LogNotifier) NotifyCompensationReview(ctx context.Context, orderID, buyerID, trackID, amount int64) error {
	logger.Warn("Compensation review required",
		logger.Int64("orderID", orderID),
		logger.Int64("buyerID", buyerID),
		logger.Int64("trackID", trackID),
		logger.Int64("amountPaid", amount))
	return nil
}
