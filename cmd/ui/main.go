package main

import (
	"fmt"
	"os"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/database"
	"asset-tracker-go/internal/exchange"
	"asset-tracker-go/internal/logger"
	"asset-tracker-go/internal/quote"
	"asset-tracker-go/internal/repository"
	"asset-tracker-go/internal/tracker"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.Components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := repository.NewStore(db)

	quotes, err := quote.NewClient(&cfg.Quote, log)
	if err != nil {
		log.Fatal("Failed to create quote client", zap.Error(err))
	}
	exchanges, err := exchange.NewClient(&cfg.Exchange, log)
	if err != nil {
		log.Fatal("Failed to create exchange client", zap.Error(err))
	}
	service := tracker.NewService(store, quotes, exchanges, &cfg.Tracker, cfg.Quote.FallbackUSDTWD, log)

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(NewAPIHandler(log, store, service, cfg.Tracker.BaseCurrency))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := router.Run(addr); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
