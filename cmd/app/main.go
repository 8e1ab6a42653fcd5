package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"

	"github.com/rfellner/marketdash/internal/config"
	"github.com/rfellner/marketdash/internal/db"
	"github.com/rfellner/marketdash/internal/handlers"
	"github.com/rfellner/marketdash/internal/ingest"
	"github.com/rfellner/marketdash/internal/marketdata"
	"github.com/rfellner/marketdash/internal/scheduler"
	"github.com/rfellner/marketdash/internal/util"
	"github.com/rfellner/marketdash/internal/watchlist"
)

func main() {
	// Load .env file if it exists (local dev)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run migrations
	if err := db.RunMigrations(cfg.Database.URL); err != nil {
		logger.Error("running migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations completed")

	// Connect to database
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	repo := db.NewRepository(pool)
	client := marketdata.NewClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKey)

	pipeline := ingest.NewPipeline(repo, client, repo, cfg.Ingest.RetentionYears, logger)
	thresholds := watchlist.Thresholds{
		MaxBelowHighRatio: decimal.NewFromFloat(cfg.Screener.MaxBelowHighRatio),
		MinBelowHighRatio: decimal.NewFromFloat(cfg.Screener.MinBelowHighRatio),
		VolumeRatio:       decimal.NewFromFloat(cfg.Screener.VolumeRatio),
		PriceFloor:        decimal.NewFromFloat(cfg.Screener.PriceFloor),
	}
	screener := watchlist.NewScreener(repo, thresholds, cfg.Screener.DaysThreshold, logger)
	maintainer := watchlist.NewMaintainer(repo, cfg.Screener.DaysThreshold, logger)

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				logger.Info("request", "status", v.Status, "uri", v.URI)
			} else {
				logger.Error("request", "status", v.Status, "uri", v.URI, "error", v.Error)
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	h := handlers.New(repo, pipeline, screener, maintainer, logger)

	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.POST("/companies/sync", h.SyncCompanies)
	api.GET("/prices/latest", h.LatestPrices)
	api.GET("/analysis/volume/:ticker", h.VolumeAnalysis)
	api.GET("/analysis/technical/:ticker", h.TechnicalAnalysis)
	api.GET("/analysis/correlations", h.Correlations)
	api.POST("/stock-prices/update", h.UpdatePrices)
	api.GET("/watchlist", h.Watchlist)
	api.POST("/watchlist/refresh", h.RefreshWatchlist)
	api.POST("/watchlist/update-prices", h.UpdateWatchlistPrices)
	api.POST("/watchlist/cleanup", h.CleanupWatchlist)
	api.POST("/transactions", h.CreateTransaction)
	api.GET("/transactions", h.ListTransactions)
	api.POST("/transactions/upload", h.UploadTransactions)
	api.GET("/transactions/template", h.TransactionTemplate)
	api.GET("/portfolio/summary", h.PortfolioSummary)

	// Scheduler
	location, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		logger.Error("loading timezone", "timezone", cfg.Schedule.Timezone, "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(ctx, pipeline, screener, maintainer, location, logger)
	if err := sched.Register(cfg.Schedule.IngestCron, cfg.Schedule.WatchlistCron); err != nil {
		logger.Error("registering jobs", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// Start server
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := e.Start(":" + cfg.Server.Port); err != nil {
			logger.Info("server stopped", "reason", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
}
