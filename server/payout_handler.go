package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jamesdoliver/featune-sub001/core/payout"
	"github.com/jamesdoliver/featune-sub001/logger"
)

// RequestPayoutHandler creates a pending payout for the creator's entire
// requestable balance.
func (h *APIHandler) RequestPayoutHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	created, err := h.ledger.RequestPayout(r.Context(), creatorID)
	if err != nil {
		switch {
		case errors.Is(err, payout.ErrInsufficientBalance):
			writeError(w, http.StatusBadRequest, "insufficient_balance")
		case errors.Is(err, payout.ErrBelowMinimum):
			writeError(w, http.StatusBadRequest, "below_minimum")
		default:
			logger.Error("Failed to request payout", logger.Int64("creatorId", creatorID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to request payout")
		}
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// CompletePayoutHandler marks a payout as paid. Idempotent.
func (h *APIHandler) CompletePayoutHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	payoutID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	completed, err := h.ledger.CompletePayout(r.Context(), payoutID)
	if err != nil {
		if errors.Is(err, payout.ErrPayoutNotFound) {
			writeError(w, http.StatusNotFound, "Payout not found")
			return
		}
		logger.Error("Failed to complete payout", logger.Int64("payoutId", payoutID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to complete payout")
		return
	}

	writeJSON(w, http.StatusOK, completed)
}

// BalanceHandler returns the creator's ledger position.
func (h *APIHandler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	balances, err := h.ledger.ComputeBalances(r.Context(), creatorID)
	if err != nil {
		logger.Error("Failed to compute balances", logger.Int64("creatorId", creatorID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to compute balances")
		return
	}

	writeJSON(w, http.StatusOK, balances)
}

// PayoutHistoryHandler returns the creator's payouts, newest first.
func (h *APIHandler) PayoutHistoryHandler(w http.ResponseWriter, r *http.Request) {
	creatorID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	payouts, err := h.ledger.History(r.Context(), creatorID)
	if err != nil {
		logger.Error("Failed to get payout history", logger.Int64("creatorId", creatorID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get payouts")
		return
	}

	writeJSON(w, http.StatusOK, payouts)
}
