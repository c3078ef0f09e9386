package model

import (
	"database/sql"
	"time"
)

// Payout states. Transitions are forward only: pending -> processing ->
// completed, never reversed.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
)

// Payout is a creator-initiated withdrawal against accumulated earnings.
// Amount is fixed at creation time and never recomputed.
type Payout struct {
	ID        int64        `json:"id"`
	CreatorID int64        `json:"creatorId"`
	Amount    int64        `json:"amount"` // cents
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	PaidAt    sql.NullTime `json:"-"`
}

// CreatorBalances summarizes a creator's ledger position.
type CreatorBalances struct {
	TotalEarnings       int64 `json:"totalEarnings"`
	CompletedPayouts    int64 `json:"completedPayouts"`
	PendingPayoutsTotal int64 `json:"pendingPayoutsTotal"`
	AvailableBalance    int64 `json:"availableBalance"`
	RequestableBalance  int64 `json:"requestableBalance"`
}

// CartItem is a buyer's intent to license one track, held server-side in
// Redis until checkout.
type CartItem struct {
	TrackID     int64  `json:"trackId"`
	LicenseType string `json:"licenseType"`
}
