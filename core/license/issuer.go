// Package license issues license certificates for settled purchases.
package license

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/repository"
)

// Putter stores a certificate artifact.
type Putter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Issuer renders license certificates and records their storage reference
// on the purchased line item. Running as an at-least-once task handler, it
// may issue the same certificate twice; the second run just overwrites the
// document reference, which is harmless.
type Issuer struct {
	store  Putter
	orders repository.OrderRepository
	tracks repository.TrackRepository
	users  repository.UserRepository
}

// NewIssuer creates an Issuer.
func NewIssuer(store Putter, orders repository.OrderRepository,
	tracks repository.TrackRepository, users repository.UserRepository) *Issuer {
	return &Issuer{store: store, orders: orders, tracks: tracks, users: users}
}

// certificate is the stored artifact.
type certificate struct {
	CertificateID string    `json:"certificateId"`
	OrderID       int64     `json:"orderId"`
	TrackID       int64     `json:"trackId"`
	TrackTitle    string    `json:"trackTitle"`
	LicenseType   string    `json:"licenseType"`
	BuyerID       int64     `json:"buyerId"`
	BuyerName     string    `json:"buyerName"`
	CreatorID     int64     `json:"creatorId"`
	CreatorName   string    `json:"creatorName"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// Issue renders the certificate for one purchased line item, stores it, and
// writes the object key back onto the line item.
func (i *Issuer) Issue(ctx context.Context, orderID, lineItemID, buyerID, trackID int64, licenseType string) error {
	track, err := i.tracks.GetTrackByID(ctx, trackID)
	if err != nil {
		return fmt.Errorf("failed to load track %d for certificate: %w", trackID, err)
	}
	if track == nil {
		return fmt.Errorf("track %d not found for certificate", trackID)
	}

	cert := certificate{
		CertificateID: uuid.NewString(),
		OrderID:       orderID,
		TrackID:       trackID,
		TrackTitle:    track.Title,
		LicenseType:   licenseType,
		BuyerID:       buyerID,
		CreatorID:     track.CreatorID,
		IssuedAt:      time.Now().UTC(),
	}

	if buyer, err := i.users.GetUserByID(ctx, buyerID); err == nil && buyer != nil {
		cert.BuyerName = buyer.Username
	}
	if creator, err := i.users.GetUserByID(ctx, track.CreatorID); err == nil && creator != nil {
		cert.CreatorName = creator.Username
	}

	data, err := json.MarshalIndent(cert, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode certificate: %w", err)
	}

	key := fmt.Sprintf("licenses/%d/%s.json", orderID, cert.CertificateID)
	if err := i.store.Put(ctx, key, data, "application/json"); err != nil {
		return err
	}

	if err := i.orders.UpdateLineItemDocumentRef(ctx, lineItemID, key); err != nil {
		return fmt.Errorf("failed to record certificate ref on line item %d: %w", lineItemID, err)
	}

	logger.Info("License certificate issued",
		logger.Int64("orderID", orderID),
		logger.Int64("lineItemID", lineItemID),
		logger.String("key", key))
	return nil
}
