package checkout

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/jamesdoliver/featune-sub001/core/pricing"
	"github.com/jamesdoliver/featune-sub001/model"
)

// CheckoutRedirect is what the buyer needs to continue payment.
type CheckoutRedirect struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"checkoutUrl"`
}

// SessionCreator abstracts the payment gateway so handlers can be tested
// without network access.
type SessionCreator interface {
	CreateSession(buyerID int64, items []PricedItem, quote pricing.Quote) (*CheckoutRedirect, error)
}

// SessionBuilder creates Stripe Checkout Sessions through an explicitly
// constructed API client.
type SessionBuilder struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewSessionBuilder creates a SessionBuilder with its own gateway client
// and the redirect URLs the gateway sends buyers back to.
func NewSessionBuilder(apiKey, successURL, cancelURL string) *SessionBuilder {
	return &SessionBuilder{
		api:        client.New(apiKey, nil),
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateSession opens a payment session for the priced cart. Each cart item
// becomes one session line at its discounted price, so the gateway charge
// equals the quote total exactly. The full cart snapshot rides along as
// session metadata; settlement reads it back from the completion webhook
// and never trusts any later catalog state.
func (b *SessionBuilder) CreateSession(buyerID int64, items []PricedItem, quote pricing.Quote) (*CheckoutRedirect, error) {
	if len(items) != len(quote.Items) {
		return nil, fmt.Errorf("priced items and quote lines mismatch: %d vs %d", len(items), len(quote.Items))
	}

	snapshot := make([]model.OrderItemSnapshot, 0, len(items))
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(b.successURL),
		CancelURL:  stripe.String(b.cancelURL),
	}

	for i, item := range items {
		discounted := quote.Items[i].DiscountedPrice
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(discounted),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(item.Title),
					Description: stripe.String(fmt.Sprintf("%s license", item.LicenseType)),
				},
			},
			Quantity: stripe.Int64(1),
		})
		snapshot = append(snapshot, model.OrderItemSnapshot{
			TrackID:     item.TrackID,
			LicenseType: item.LicenseType,
			Price:       discounted,
			CreatorID:   item.CreatorID,
		})
	}

	itemsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart snapshot: %w", err)
	}

	params.AddMetadata("buyer_id", fmt.Sprintf("%d", buyerID))
	params.AddMetadata("discount_percent", fmt.Sprintf("%d", quote.DiscountPercent))
	params.AddMetadata("subtotal", fmt.Sprintf("%d", quote.Subtotal))
	params.AddMetadata("total", fmt.Sprintf("%d", quote.Total))
	params.AddMetadata("items", string(itemsJSON))

	sess, err := b.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutRedirect{SessionID: sess.ID, URL: sess.URL}, nil
}
