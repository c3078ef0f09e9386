package model

import (
	"database/sql"
	"time"
)

// License modes govern how many licenses a track may sell.
const (
	LicenseModeUnlimited = "unlimited"
	LicenseModeLimited   = "limited"
	LicenseModeExclusive = "exclusive"
)

// Moderation states for a track. Only approved tracks are purchasable.
const (
	TrackStatusPending  = "pending"
	TrackStatusApproved = "approved"
	TrackStatusRejected = "rejected"
	TrackStatusRemoved  = "removed"
)

// License types a buyer can request for a cart item.
const (
	LicenseTypeNonExclusive = "non_exclusive"
	LicenseTypeExclusive    = "exclusive"
)

// Track represents an audio track offered for licensing.
// LicensesSold is only ever mutated by the settlement processor's
// conditional increment and never decremented.
type Track struct {
	ID                int64         `json:"id"`
	CreatorID         int64         `json:"creatorId"`
	Title             string        `json:"title"`
	Genre             string        `json:"genre,omitempty"`
	LicenseMode       string        `json:"licenseMode"`
	LicenseLimit      int           `json:"licenseLimit,omitempty"` // meaningful only when LicenseMode is limited
	LicensesSold      int           `json:"licensesSold"`
	PriceNonExclusive sql.NullInt64 `json:"-"` // cents; unset means not offered non-exclusively
	PriceExclusive    sql.NullInt64 `json:"-"` // cents; unset means not offered exclusively
	Status            string        `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// UnitPrice returns the track's price in cents for the requested license
// type. ok is false when the track is not offered under that license type.
func (t *Track) UnitPrice(licenseType string) (int64, bool) {
	switch licenseType {
	case LicenseTypeExclusive:
		if !t.PriceExclusive.Valid {
			return 0, false
		}
		return t.PriceExclusive.Int64, true
	case LicenseTypeNonExclusive:
		if !t.PriceNonExclusive.Valid {
			return 0, false
		}
		return t.PriceNonExclusive.Int64, true
	default:
		return 0, false
	}
}
