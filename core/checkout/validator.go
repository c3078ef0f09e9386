// Package checkout validates carts against the live catalog and packages
// priced carts into external payment sessions.
//
// The validation here is advisory only: it keeps obviously doomed carts
// out of the payment flow, but the authoritative inventory decision is
// made at settlement time. Between this pre-check and the confirmation
// callback lies the payment redirect window, during which inventory can
// change; the design accepts that window instead of reserving inventory.
package checkout

import (
	"context"
	"fmt"

	"github.com/jamesdoliver/featune-sub001/model"
	"github.com/jamesdoliver/featune-sub001/repository"
)

// Rejection reasons reported to the buyer on a failed pre-check.
const (
	ReasonUnavailable = "track is not available for purchase"
	ReasonAlreadySold = "exclusive license already sold"
	ReasonSoldOut     = "license limit reached"
	ReasonNotOffered  = "track is not offered under this license type"
)

// PricedItem is a cart item with its catalog data resolved.
type PricedItem struct {
	TrackID     int64
	Title       string
	LicenseType string
	UnitPrice   int64 // cents
	CreatorID   int64
}

// RejectedItem explains why one cart item failed validation.
type RejectedItem struct {
	TrackID     int64  `json:"trackId"`
	LicenseType string `json:"licenseType"`
	Reason      string `json:"reason"`
}

func (r RejectedItem) String() string {
	return fmt.Sprintf("track %d (%s): %s", r.TrackID, r.LicenseType, r.Reason)
}

// Validator performs the advisory availability pre-check.
type Validator struct {
	trackRepo repository.TrackRepository
}

// NewValidator creates a Validator.
func NewValidator(trackRepo repository.TrackRepository) *Validator {
	return &Validator{trackRepo: trackRepo}
}

// Validate checks every cart item against the current catalog state.
// Checkout is all-or-nothing: any rejection aborts the whole cart, and all
// rejections are reported together. An error return means the check itself
// could not run.
func (v *Validator) Validate(ctx context.Context, items []model.CartItem) ([]PricedItem, []RejectedItem, error) {
	priced := make([]PricedItem, 0, len(items))
	rejected := make([]RejectedItem, 0)

	for _, item := range items {
		track, err := v.trackRepo.GetTrackByID(ctx, item.TrackID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load track %d: %w", item.TrackID, err)
		}

		if reason := checkItem(track, item.LicenseType); reason != "" {
			rejected = append(rejected, RejectedItem{
				TrackID:     item.TrackID,
				LicenseType: item.LicenseType,
				Reason:      reason,
			})
			continue
		}

		price, _ := track.UnitPrice(item.LicenseType)
		priced = append(priced, PricedItem{
			TrackID:     track.ID,
			Title:       track.Title,
			LicenseType: item.LicenseType,
			UnitPrice:   price,
			CreatorID:   track.CreatorID,
		})
	}

	if len(rejected) > 0 {
		return nil, rejected, nil
	}
	return priced, nil, nil
}

func checkItem(track *model.Track, licenseType string) string {
	if track == nil || track.Status != model.TrackStatusApproved {
		return ReasonUnavailable
	}

	switch licenseType {
	case model.LicenseTypeExclusive:
		if track.LicenseMode != model.LicenseModeExclusive {
			return ReasonNotOffered
		}
		if track.LicensesSold > 0 {
			return ReasonAlreadySold
		}
		if !track.PriceExclusive.Valid {
			return ReasonNotOffered
		}
	case model.LicenseTypeNonExclusive:
		if track.LicenseMode == model.LicenseModeExclusive {
			return ReasonNotOffered
		}
		if track.LicenseMode == model.LicenseModeLimited && track.LicensesSold >= track.LicenseLimit {
			return ReasonSoldOut
		}
		if !track.PriceNonExclusive.Valid {
			return ReasonNotOffered
		}
	default:
		return ReasonNotOffered
	}

	return ""
}
