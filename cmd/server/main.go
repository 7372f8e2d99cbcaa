package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/exchange-api/internal/auth"
	"github.com/ksred/exchange-api/internal/database"
	"github.com/ksred/exchange-api/internal/engine"
	"github.com/ksred/exchange-api/internal/instruments"
	"github.com/ksred/exchange-api/internal/ledger"
	"github.com/ksred/exchange-api/internal/orders"
	"github.com/ksred/exchange-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// main initializes and runs the exchange API server with graceful shutdown
// support. It wires the database, services, books and routes.
func main() {
	db, err := database.NewDatabase(envOr("DB_PATH", "exchange.db"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	jwtSecret := envOr("JWT_SECRET", "exchange-secret-key")

	router := gin.Default()

	authService := auth.NewService(db, jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if err := authService.EnsureAdmin("exchange-admin"); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to bootstrap admin account")
	}

	ledgerService := ledger.NewService(db)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)

	instrumentService := instruments.NewService(db)
	instrumentHandlers := instruments.NewGinHandlers(instrumentService)

	orderRegistry := orders.NewService(db)

	engineService := engine.NewService(db, orderRegistry, ledgerService, instrumentService)
	engineHandlers := engine.NewGinHandlers(engineService)

	// Books must reflect every open order before matching resumes.
	if err := engineService.Rebuild(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to rebuild order books")
	}

	router.Use(middleware.RateLimit())

	setupRoutes(router, []byte(jwtSecret), authHandlers, ledgerHandlers, instrumentHandlers, engineHandlers)

	port := envOr("PORT", "8080")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// Routes are grouped by access level:
// - Public: registration, instrument list, market data
// - Authenticated: balances, transfers, order management
// - Admin: instrument registry changes
func setupRoutes(
	router *gin.Engine,
	jwtSecret []byte,
	authHandlers *auth.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	instrumentHandlers *instruments.GinHandlers,
	engineHandlers *engine.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		public := v1.Group("/public")
		{
			public.POST("/register", authHandlers.RegisterHandler())
			public.GET("/instrument", instrumentHandlers.ListHandler())
			public.GET("/orderbook/:ticker", engineHandlers.DepthHandler())
			public.GET("/transactions/:ticker", engineHandlers.TradesHandler())
		}

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		balance := v1.Group("/balance")
		balance.Use(middleware.JWTAuth(jwtSecret))
		{
			balance.GET("", ledgerHandlers.BalancesHandler())
			balance.POST("/deposit", ledgerHandlers.DepositHandler())
			balance.POST("/withdraw", ledgerHandlers.WithdrawHandler())
		}

		order := v1.Group("/order")
		order.Use(middleware.JWTAuth(jwtSecret))
		{
			order.POST("", engineHandlers.SubmitOrderHandler())
			order.GET("", engineHandlers.ListOrdersHandler())
			order.GET("/:order_id", engineHandlers.GetOrderHandler())
			order.DELETE("/:order_id", engineHandlers.CancelOrderHandler())
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(jwtSecret), middleware.AdminOnly())
		{
			admin.POST("/instrument", instrumentHandlers.CreateHandler())
			admin.DELETE("/instrument/:ticker", instrumentHandlers.DeleteHandler())
		}
	}
}
