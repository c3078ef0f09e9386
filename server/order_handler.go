package server

import (
	"net/http"

	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
)

// orderView is an order with its line items inlined.
type orderView struct {
	*model.Order
	Items []*model.OrderLineItem `json:"items"`
}

// GetOrdersHandler returns the buyer's order history with line items.
func (h *APIHandler) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	buyerID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orders, err := h.orderRepo.GetOrdersByBuyerID(r.Context(), buyerID)
	if err != nil {
		logger.Error("Failed to get orders", logger.Int64("buyerId", buyerID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to get orders")
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		items, err := h.orderRepo.GetLineItemsByOrderID(r.Context(), order.ID)
		if err != nil {
			logger.Error("Failed to get order line items",
				logger.Int64("orderId", order.ID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to get orders")
			return
		}
		views = append(views, orderView{Order: order, Items: items})
	}

	writeJSON(w, http.StatusOK, views)
}
