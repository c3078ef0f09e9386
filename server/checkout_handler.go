package server

import (
	"encoding/json"
	"net/http"

	"github.com/jamesdoliver/featune-sub001/db"
	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
)

// CheckoutRequest starts a checkout. Items may be omitted, in which case
// the buyer's server-side cart is used.
type CheckoutRequest struct {
	Items         []model.CartItem `json:"items"`
	TermsAccepted bool             `json:"termsAccepted"`
}

// CheckoutHandler validates the cart, prices it, and opens a payment
// session. Nothing is reserved here; the session only carries the priced
// snapshot that settlement will act on.
func (h *APIHandler) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.TermsAccepted {
		writeError(w, http.StatusBadRequest, "License terms must be accepted")
		return
	}

	items := req.Items
	if len(items) == 0 {
		items, err = db.GetCart(r.Context(), buyerID)
		if err != nil {
			logger.Error("Failed to load cart for checkout", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to load cart")
			return
		}
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "Cart is empty")
		return
	}

	priced, rejected, err := h.validator.Validate(r.Context(), items)
	if err != nil {
		logger.Error("Checkout validation failed", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to validate cart")
		return
	}
	if len(rejected) > 0 {
		writeErrorDetails(w, http.StatusConflict, "Some items are unavailable", rejected)
		return
	}

	quote := quoteFor(priced)

	redirect, err := h.sessions.CreateSession(buyerID, priced, quote)
	if err != nil {
		logger.Error("Failed to create checkout session", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	logger.Info("Checkout session created",
		logger.Int64("buyerId", buyerID),
		logger.String("sessionId", redirect.SessionID),
		logger.Int("items", len(priced)),
		logger.Int64("total", quote.Total))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checkoutUrl":     redirect.URL,
		"sessionId":       redirect.SessionID,
		"subtotal":        quote.Subtotal,
		"discountPercent": quote.DiscountPercent,
		"discountAmount":  quote.DiscountAmount,
		"total":           quote.Total,
	})
}
