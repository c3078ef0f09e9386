package server

import (
	"encoding/json"
	"net/http"

	"github.com/jamesdoliver/featune-sub001/db"
	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
)

// CartHandler serves the buyer's server-side cart.
func (h *APIHandler) CartHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		items, err := db.GetCart(ctx, buyerID)
		if err != nil {
			logger.Error("Failed to get cart", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to get cart")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})

	case http.MethodPost:
		var item model.CartItem
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if item.TrackID <= 0 {
			writeError(w, http.StatusBadRequest, "Track ID is required")
			return
		}
		if item.LicenseType != model.LicenseTypeNonExclusive && item.LicenseType != model.LicenseTypeExclusive {
			writeError(w, http.StatusBadRequest, "License type must be non_exclusive or exclusive")
			return
		}

		track, err := h.trackRepo.GetTrackByID(ctx, item.TrackID)
		if err != nil {
			logger.Error("Failed to get track for cart", logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to get track")
			return
		}
		if track == nil {
			writeError(w, http.StatusNotFound, "Track not found")
			return
		}

		if err := db.AddToCart(ctx, buyerID, item); err != nil {
			logger.Error("Failed to add to cart", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to add to cart")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Item added to cart"})

	case http.MethodDelete:
		if r.URL.Query().Get("clear") == "true" {
			if err := db.ClearCart(ctx, buyerID); err != nil {
				logger.Error("Failed to clear cart", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
				writeError(w, http.StatusInternalServerError, "Failed to clear cart")
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Cart cleared"})
			return
		}

		var item model.CartItem
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := db.RemoveFromCart(ctx, buyerID, item); err != nil {
			logger.Error("Failed to remove from cart", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to remove from cart")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Item removed from cart"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
