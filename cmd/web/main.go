package main

import (
	"context"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/PamellaBolsas/SafeTradeGames/internal/auth"
	"github.com/PamellaBolsas/SafeTradeGames/internal/chat"
	"github.com/PamellaBolsas/SafeTradeGames/internal/config"
	"github.com/PamellaBolsas/SafeTradeGames/internal/database"
	"github.com/PamellaBolsas/SafeTradeGames/internal/escrow"
	"github.com/PamellaBolsas/SafeTradeGames/internal/handlers"
	"github.com/PamellaBolsas/SafeTradeGames/internal/store"
	"github.com/PamellaBolsas/SafeTradeGames/internal/users"
	"github.com/PamellaBolsas/SafeTradeGames/internal/wallet"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}

	ctx := context.Background()

	if err := database.Migrate(ctx, cfg.DSN); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DSN)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer pool.Close()

	authService, err := auth.New(cfg.JWTSecretKey)
	if err != nil {
		log.Fatalf("could not initialize auth service: %v", err)
	}

	st := store.NewPostgres(pool)
	hub := chat.NewHub()

	userService := users.NewService(st, authService)
	walletService := wallet.NewService(st, hub)
	escrowService := escrow.NewService(st, hub, cfg.SettlementDelay)

	// Settlements that were in flight when the process last stopped
	// pick up where they left off.
	if err := escrowService.RestoreScheduled(ctx); err != nil {
		log.Fatalf("could not restore scheduled settlements: %v", err)
	}

	h := handlers.NewHandler(userService, walletService, escrowService, hub)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	api := router.Group("/api")
	{
		api.POST("/register", h.RegisterHandler)
		api.POST("/login", h.LoginHandler)

		protected := api.Group("")
		protected.Use(authService.Middleware())
		{
			protected.GET("/profile", h.ProfileHandler)

			protected.GET("/balance", h.BalanceHandler)
			protected.POST("/balance/withdraw", h.WithdrawHandler)
			protected.GET("/balance/events", h.BalanceEventsHandler)

			protected.POST("/escrow/create", h.CreateEscrowHandler)
			protected.POST("/escrow/join", h.JoinEscrowHandler)
			protected.GET("/escrow", h.ListEscrowsHandler)
			protected.GET("/escrow/:id", h.GetEscrowHandler)
			protected.POST("/escrow/:id/complete", h.CompleteEscrowHandler)
			protected.POST("/escrow/:id/confirm-payment", h.ConfirmPaymentHandler)
			protected.POST("/escrow/:id/messages", h.SendMessageHandler)
			protected.GET("/escrow/:id/events", h.EscrowEventsHandler)
		}
	}

	log.Printf("SafeTrade Games server listening on %s", cfg.ListenAddr)
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
