package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/jamesdoliver/featune-sub001/config"
	"github.com/jamesdoliver/featune-sub001/core/auth"
	"github.com/jamesdoliver/featune-sub001/core/checkout"
	"github.com/jamesdoliver/featune-sub001/core/license"
	"github.com/jamesdoliver/featune-sub001/core/notify"
	"github.com/jamesdoliver/featune-sub001/core/payout"
	"github.com/jamesdoliver/featune-sub001/core/settlement"
	"github.com/jamesdoliver/featune-sub001/core/task"
	"github.com/jamesdoliver/featune-sub001/db"
	"github.com/jamesdoliver/featune-sub001/logger"
	"github.com/jamesdoliver/featune-sub001/model"
	"github.com/jamesdoliver/featune-sub001/repository"
	"github.com/jamesdoliver/featune-sub001/storage"
)

// Start initializes dependencies and runs the HTTP server until a shutdown
// signal arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.Init(cfg.JWTSecret)

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database schema", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&task.Task{}); err != nil {
		logger.Fatal("Failed to migrate task queue", logger.ErrorField(err))
	}

	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	store, err := storage.NewObjectStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize object storage", logger.ErrorField(err))
	}

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	orderRepo := repository.NewMySQLOrderRepository(db.DB)
	payoutRepo := repository.NewMySQLPayoutRepository(db.DB)

	queue := task.NewQueue(db.GormDB)
	validator := checkout.NewValidator(trackRepo)
	sessions := checkout.NewSessionBuilder(cfg.StripeSecretKey, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	processor := settlement.NewProcessor(orderRepo, trackRepo, userRepo, queue)
	ledger := payout.NewLedger(payoutRepo, cfg.PayoutMinimum)
	issuer := license.NewIssuer(store, orderRepo, trackRepo, userRepo)
	notifier := notify.NewLogNotifier()

	apiHandler := NewAPIHandler(trackRepo, userRepo, orderRepo, validator, sessions, processor, ledger, cfg)

	worker := task.NewWorker(db.GormDB, 2*time.Second)
	registerTaskHandlers(worker, issuer, notifier)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	go worker.Run(workerCtx)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// auth
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// catalog
	router.HandleFunc("/api/tracks", apiHandler.RequireRole(model.RoleCreator, apiHandler.PublishTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/mine", apiHandler.RequireRole(model.RoleCreator, apiHandler.GetMyTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}/approve", apiHandler.RequireRole(model.RoleAdmin, apiHandler.ApproveTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}/reject", apiHandler.RequireRole(model.RoleAdmin, apiHandler.RejectTrackHandler)).Methods(http.MethodPost)

	// cart and checkout
	router.HandleFunc("/api/cart", apiHandler.AuthMiddleware(apiHandler.CartHandler)).Methods(http.MethodGet, http.MethodPost, http.MethodDelete)
	router.HandleFunc("/api/checkout", apiHandler.AuthMiddleware(apiHandler.CheckoutHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/webhooks/stripe", apiHandler.StripeWebhookHandler).Methods(http.MethodPost)

	// orders
	router.HandleFunc("/api/orders", apiHandler.AuthMiddleware(apiHandler.GetOrdersHandler)).Methods(http.MethodGet)

	// payouts
	router.HandleFunc("/api/payouts", apiHandler.RequireRole(model.RoleCreator, apiHandler.RequestPayoutHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/payouts", apiHandler.RequireRole(model.RoleCreator, apiHandler.PayoutHistoryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/payouts/balance", apiHandler.RequireRole(model.RoleCreator, apiHandler.BalanceHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/payouts/{id}/complete", apiHandler.RequireRole(model.RoleAdmin, apiHandler.CompletePayoutHandler)).Methods(http.MethodPost)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server")

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Stripe-Signature")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// registerTaskHandlers binds the settlement follow-up tasks to their
// implementations.
func registerTaskHandlers(worker *task.Worker, issuer *license.Issuer, notifier notify.Notifier) {
	worker.Register(settlement.TaskLicenseIssue, func(ctx context.Context, payload []byte) error {
		var p settlement.LicenseIssuePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return issuer.Issue(ctx, p.OrderID, p.LineItemID, p.BuyerID, p.TrackID, p.LicenseType)
	})

	worker.Register(settlement.TaskNotifyBuyer, func(ctx context.Context, payload []byte) error {
		var p settlement.NotifyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return notifier.NotifyBuyer(ctx, p.UserID, p.OrderID)
	})

	worker.Register(settlement.TaskNotifyCreator, func(ctx context.Context, payload []byte) error {
		var p settlement.NotifyPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return notifier.NotifyCreator(ctx, p.UserID, p.OrderID, p.TrackID)
	})

	worker.Register(settlement.TaskCompensationReview, func(ctx context.Context, payload []byte) error {
		var p settlement.CompensationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return notifier.NotifyCompensationReview(ctx, p.OrderID, p.BuyerID, p.TrackID, p.AmountPaid)
	})
}
