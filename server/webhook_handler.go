package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/jamesdoliver/featune-sub001/db"
	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
	"github.com/jamesdoliver/featune-sub001/core/settlement"
)

const maxWebhookBody = int64(65536)

// StripeWebhookHandler receives payment gateway events. A completed
// checkout session is handed to the settlement processor; any settlement
// failure answers 500 so the gateway redelivers the event.
func (h *APIHandler) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to read payload")
		return
	}

	var event stripe.Event
	if h.cfg.StripeWebhookSecret != "" {
		event, err = webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.cfg.StripeWebhookSecret)
		if err != nil {
			logger.Error("Webhook signature verification failed", logger.ErrorField(err))
			writeError(w, http.StatusBadRequest, "Invalid signature")
			return
		}
	} else {
		// no secret configured (local development): trust the payload
		if err := json.Unmarshal(payload, &event); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payload")
			return
		}
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			logger.Error("Failed to unmarshal checkout session",
				logger.String("eventId", event.ID), logger.ErrorField(err))
			writeError(w, http.StatusBadRequest, "Invalid checkout session")
			return
		}

		conf, err := confirmationFromSession(&session)
		if err != nil {
			logger.Error("Failed to parse session metadata",
				logger.String("sessionId", session.ID), logger.ErrorField(err))
			writeError(w, http.StatusBadRequest, "Invalid session metadata")
			return
		}

		result, err := h.processor.Settle(r.Context(), conf)
		if err != nil {
			logger.Error("Settlement failed",
				logger.String("sessionId", session.ID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Settlement failed")
			return
		}

		if !result.AlreadySettled {
			if err := db.ClearCart(r.Context(), conf.BuyerID); err != nil {
				logger.Warn("Failed to clear cart after settlement",
					logger.Int64("buyerId", conf.BuyerID), logger.ErrorField(err))
			}
		}

	default:
		logger.Debug("Ignoring webhook event", logger.String("eventType", string(event.Type)))
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// confirmationFromSession rebuilds the settlement input from the metadata
// attached at session creation.
func confirmationFromSession(session *stripe.CheckoutSession) (*settlement.Confirmation, error) {
	buyerID, err := strconv.ParseInt(session.Metadata["buyer_id"], 10, 64)
	if err != nil {
		return nil, err
	}
	discountPercent, err := strconv.Atoi(session.Metadata["discount_percent"])
	if err != nil {
		return nil, err
	}
	subtotal, err := strconv.ParseInt(session.Metadata["subtotal"], 10, 64)
	if err != nil {
		return nil, err
	}
	total, err := strconv.ParseInt(session.Metadata["total"], 10, 64)
	if err != nil {
		return nil, err
	}

	var items []model.OrderItemSnapshot
	if err := json.Unmarshal([]byte(session.Metadata["items"]), &items); err != nil {
		return nil, err
	}

	return &settlement.Confirmation{
		PaymentRef:      session.ID,
		BuyerID:         buyerID,
		Items:           items,
		DiscountPercent: discountPercent,
		Subtotal:        subtotal,
		Total:           total,
	}, nil
}
