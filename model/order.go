package model

import (
	"database/sql"
	"time"
)

// Order states. Orders are created once by settlement and only ever flip
// status forward; a retried confirmation never produces a second row.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Order is the durable result of a settled payment. ExternalPaymentRef is
// unique and acts as the idempotency anchor for confirmation redelivery.
type Order struct {
	ID                 int64     `json:"id"`
	BuyerID            int64     `json:"buyerId"`
	Subtotal           int64     `json:"subtotal"` // cents, before discount
	DiscountPercent    int       `json:"discountPercent"`
	DiscountAmount     int64     `json:"discountAmount"`
	Total              int64     `json:"total"`
	Status             string    `json:"status"`
	ExternalPaymentRef string    `json:"externalPaymentRef"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// OrderLineItem is one licensed track within an order. Immutable once
// created, except for the license document reference filled in after the
// certificate has been issued.
type OrderLineItem struct {
	ID                 int64          `json:"id"`
	OrderID            int64          `json:"orderId"`
	TrackID            int64          `json:"trackId"`
	CreatorID          int64          `json:"creatorId"`
	LicenseType        string         `json:"licenseType"`
	PriceAtPurchase    int64          `json:"priceAtPurchase"` // cents, discounted per-item price
	CreatorEarnings    int64          `json:"creatorEarnings"` // cents, price x revenue split at settlement time
	LicenseDocumentRef sql.NullString `json:"-"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// OrderItemSnapshot is the serialized form of a cart item embedded in the
// external payment session. By the time the confirmation arrives the live
// cart may no longer exist, so this snapshot is the sole input settlement
// trusts.
type OrderItemSnapshot struct {
	TrackID     int64  `json:"trackId"`
	LicenseType string `json:"licenseType"`
	Price       int64  `json:"price"` // cents, discounted per-item price
	CreatorID   int64  `json:"creatorId"`
}
