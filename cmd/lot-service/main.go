package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"

	"github.com/shelflife/shelflife-backend/internal/lots/events"
	"github.com/shelflife/shelflife-backend/internal/lots/handler"
	"github.com/shelflife/shelflife-backend/internal/lots/repository"
	"github.com/shelflife/shelflife-backend/internal/lots/scoring"
	"github.com/shelflife/shelflife-backend/internal/lots/service"
	"github.com/shelflife/shelflife-backend/internal/lots/velocity"
	"github.com/shelflife/shelflife-backend/pkg/config"
	"github.com/shelflife/shelflife-backend/pkg/database"
	"github.com/shelflife/shelflife-backend/pkg/httputil"
	"github.com/shelflife/shelflife-backend/pkg/logger"
	"github.com/shelflife/shelflife-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("lot-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("lot-service", cfg.Server.Environment)
	log.Info().Msg("starting Lot Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Connect to Redis (sales velocity cache)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Initialize event publisher
	publisher, err := events.NewLotEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	lotRepo := repository.NewLotRepository(db)
	productRepo := repository.NewProductRepository(db)
	consumptionRepo := repository.NewConsumptionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	// Initialize services
	velocityProvider := velocity.NewCachedProvider(
		velocity.NewSQLProvider(db), rdb, cfg.Redis.VelocityTTL, log)
	scorer := scoring.New(cfg.Scoring, cfg.Markdown)

	ledgerService := service.NewLedgerService(lotRepo, productRepo, consumptionRepo, auditRepo, log)
	allocatorService := service.NewAllocatorService(lotRepo, productRepo, log)
	consumptionService := service.NewConsumptionService(lotRepo, consumptionRepo, productRepo, auditRepo, publisher, velocityProvider, log)
	disposalService := service.NewDisposalService(db, lotRepo, auditRepo, publisher, log)
	priorityService := service.NewPriorityService(lotRepo, productRepo, velocityProvider, scorer, log)
	analyticsService := service.NewAnalyticsService(analyticsRepo, priorityService, log)

	// Initialize handlers
	lotHandler := handler.NewLotHandler(ledgerService, log)
	allocationHandler := handler.NewAllocationHandler(db, allocatorService, consumptionService, log)
	disposalHandler := handler.NewDisposalHandler(disposalService, log)
	priorityHandler := handler.NewPriorityHandler(priorityService, log)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the periodic expiry sweep
	sweeper := service.NewSweeper(ledgerService, lotRepo, productRepo, publisher, cfg.Sweep.Interval, log)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Actor-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.Actor)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "lot-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Lot ledger routes
		r.Route("/lots", func(r chi.Router) {
			r.Post("/", lotHandler.Create)
			r.Post("/sweep", lotHandler.Sweep)
			r.Get("/{id}", lotHandler.Get)
			r.Put("/{id}", lotHandler.Update)
			r.Delete("/{id}", lotHandler.Delete)
			r.Get("/{id}/audit", lotHandler.Audit)
			r.Post("/{id}/block", lotHandler.Block)
			r.Post("/{id}/unblock", lotHandler.Unblock)
			r.Get("/{id}/score", priorityHandler.Score)
		})

		// Product-scoped lot routes
		r.Route("/products/{productID}", func(r chi.Router) {
			r.Get("/lots", lotHandler.ListByProduct)
			r.Get("/reconcile", lotHandler.Reconcile)
		})

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/plan", allocationHandler.Plan)
			r.Post("/validate", allocationHandler.Validate)
			r.Post("/commit", allocationHandler.Commit)
			r.Post("/reverse", allocationHandler.Reverse)
		})

		// Disposal routes
		r.Route("/disposals", func(r chi.Router) {
			r.Get("/candidates", disposalHandler.ListDisposable)
			r.Post("/", disposalHandler.Dispose)
			r.Post("/undo", disposalHandler.Undo)
		})

		// Priority and analytics routes
		r.Get("/priorities", priorityHandler.Rank)
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/overview", analyticsHandler.Overview)
			r.Get("/categories", analyticsHandler.Categories)
			r.Get("/branches", analyticsHandler.Branches)
			r.Get("/expiry-timeline", analyticsHandler.ExpiryTimeline)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop the sweeper
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
