package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jamesdoliver/featune-sub001/config"
	"github.com/jamesdoliver/featune-sub001/core/auth"
	"github.com/jamesdoliver/featune-sub001/core/checkout"
	"github.com/jamesdoliver/featune-sub001/core/payout"
	"github.com/jamesdoliver/featune-sub001/core/pricing"
	"github.com/jamesdoliver/featune-sub001/core/settlement"
	"github.com/jamesdoliver/featune-sub001/repository"
)

// APIHandler holds the wired components behind all API endpoints.
type APIHandler struct {
	trackRepo repository.TrackRepository
	userRepo  repository.UserRepository
	orderRepo repository.OrderRepository

	validator *checkout.Validator
	sessions  checkout.SessionCreator
	processor *settlement.Processor
	ledger    *payout.Ledger

	cfg *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	userRepo repository.UserRepository,
	orderRepo repository.OrderRepository,
	validator *checkout.Validator,
	sessions checkout.SessionCreator,
	processor *settlement.Processor,
	ledger *payout.Ledger,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo: trackRepo,
		userRepo:  userRepo,
		orderRepo: orderRepo,
		validator: validator,
		sessions:  sessions,
		processor: processor,
		ledger:    ledger,
		cfg:       cfg,
	}
}

// quoteFor prices a validated cart.
func quoteFor(items []checkout.PricedItem) pricing.Quote {
	prices := make([]int64, 0, len(items))
	for _, item := range items {
		prices = append(prices, item.UnitPrice)
	}
	return pricing.Calculate(prices)
}

// AuthMiddleware checks for a valid JWT token and loads the identity into
// the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)
		ctx = context.WithValue(ctx, "role", claims.Role)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequireRole wraps a handler so only the given role may pass.
func (h *APIHandler) RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		got, err := GetRoleFromContext(r.Context())
		if err != nil || got != role {
			writeError(w, http.StatusForbidden, fmt.Sprintf("%s role required", role))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetRoleFromContext extracts the role from the request context.
func GetRoleFromContext(ctx context.Context) (string, error) {
	role, ok := ctx.Value("role").(string)
	if !ok {
		return "", fmt.Errorf("role not found in context")
	}
	return role, nil
}
