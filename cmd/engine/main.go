package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"evotrade/internal/canary"
	"evotrade/internal/config"
	cronrunner "evotrade/internal/cron"
	"evotrade/internal/db"
	"evotrade/internal/engine"
	"evotrade/internal/fitness"
	"evotrade/internal/handler"
	"evotrade/internal/logger"
	"evotrade/internal/marketdata"
	"evotrade/internal/models"
	gormrepository "evotrade/internal/repository/gorm"
	"evotrade/internal/risk"
	"evotrade/internal/service"
	"evotrade/internal/sim"

	_ "evotrade/docs"
)

func main() {
	cfgPath := os.Getenv("EVO_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("EVO_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	bootCtx := context.Background()
	startingCash := decimal.NewFromFloat(cfg.Execution.StartingCash)
	if err := store.EnsureAccount(bootCtx, &models.Account{
		ID:           cfg.App.AccountID,
		BaseCurrency: "USD",
		StartingCash: startingCash,
		CurrentCash:  startingCash,
	}); err != nil {
		logger.Warn("ensure account failed", zap.Error(err))
	}

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaults(bootCtx); err != nil {
		logger.Warn("init default system settings failed", zap.Error(err))
	}

	portfolioSvc := &service.PortfolioService{Repo: store, Logger: logger}
	governor := &risk.Governor{
		Config: cfg.Governor,
		Repo:   store,
		Logger: logger,
		Equity: func(ctx context.Context) (decimal.Decimal, error) {
			return portfolioSvc.Equity(ctx, cfg.App.AccountID, time.Now().UTC())
		},
	}
	canaryMgr := &canary.Manager{Config: cfg.Canary, Repo: store, Logger: logger}
	exec := &engine.Engine{
		Config:   cfg,
		Logger:   logger,
		Repo:     store,
		Sim:      sim.New(cfg.Execution),
		Governor: governor,
		Settings: settingsSvc,
	}
	fitnessSvc := &fitness.Service{
		Config:    cfg.Fitness,
		Execution: cfg.Execution,
		Logger:    logger,
		Repo:      store,
	}
	snapshotSvc := &service.SnapshotService{
		Repo:      store,
		Portfolio: portfolioSvc,
		Logger:    logger,
		AccountID: cfg.App.AccountID,
	}
	droughtDet := &risk.DroughtDetector{
		Config:   cfg.Drought,
		Repo:     store,
		Logger:   logger,
		Settings: settingsSvc,
	}
	poller := &marketdata.Poller{
		Store:  store,
		Logger: logger,
		Flags:  settingsSvc,
		Config: cfg.MarketData.Poll,
	}
	stream := &marketdata.Stream{
		Store:  store,
		Logger: logger,
		Flags:  settingsSvc,
		Config: cfg.MarketData.Stream,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn, Poller: poller}
	healthHandler.Register(router)
	orderHandler := &handler.OrderHandler{Engine: exec, Repo: store}
	orderHandler.Register(router)
	fillHandler := &handler.FillHandler{Repo: store}
	fillHandler.Register(router)
	positionHandler := &handler.PositionHandler{Repo: store, Portfolio: portfolioSvc, AccountID: cfg.App.AccountID}
	positionHandler.Register(router)
	priceHandler := &handler.PriceHandler{Repo: store}
	priceHandler.Register(router)
	performanceHandler := &handler.PerformanceHandler{Repo: store, Fitness: fitnessSvc, AdminToken: cfg.Server.AdminToken}
	performanceHandler.Register(router)
	strategyHandler := &handler.StrategyHandler{Repo: store}
	strategyHandler.Register(router)
	decisionHandler := &handler.DecisionHandler{Repo: store}
	decisionHandler.Register(router)
	governorHandler := &handler.GovernorHandler{Governor: governor, AdminToken: cfg.Server.AdminToken}
	governorHandler.Register(router)
	canaryHandler := &handler.CanaryHandler{Canary: canaryMgr, AdminToken: cfg.Server.AdminToken}
	canaryHandler.Register(router)
	droughtHandler := &handler.DroughtHandler{Repo: store}
	droughtHandler.Register(router)
	snapshotHandler := &handler.SnapshotHandler{Repo: store}
	snapshotHandler.Register(router)
	settingsHandler := &handler.SettingsHandler{Repo: store, Settings: settingsSvc, AdminToken: cfg.Server.AdminToken}
	settingsHandler.Register(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)

		if _, err := cronRunner.Add("fitness", cfg.Cron.Fitness, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, service.FeatureFitness, true) {
				return
			}
			evaluated, err := fitnessSvc.RunAll(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("cron fitness run failed", zap.Error(err))
				return
			}
			logger.Info("cron fitness run ok", zap.Int("evaluated", evaluated))
		}); err != nil {
			logger.Warn("cron register fitness failed", zap.Error(err))
		}

		if _, err := cronRunner.Add("snapshot", cfg.Cron.Snapshot, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, service.FeatureSnapshots, true) {
				return
			}
			if err := snapshotSvc.Run(ctx, time.Now().UTC()); err != nil {
				logger.Warn("cron equity snapshot failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register snapshot failed", zap.Error(err))
		}

		if _, err := cronRunner.Add("drought", cfg.Cron.Drought, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, service.FeatureDrought, true) {
				return
			}
			if _, err := droughtDet.Run(ctx, time.Now().UTC()); err != nil {
				logger.Warn("cron drought recompute failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register drought failed", zap.Error(err))
		}

		if _, err := cronRunner.Add("arm_sweep", cfg.Cron.ArmSweep, func(ctx context.Context) {
			if !settingsSvc.IsEnabled(ctx, service.FeatureArmSweep, true) {
				return
			}
			swept, err := canaryMgr.Sweep(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("cron arm sweep failed", zap.Error(err))
				return
			}
			if swept > 0 {
				logger.Info("cron arm sweep closed sessions", zap.Int64("count", swept))
			}
		}); err != nil {
			logger.Warn("cron register arm sweep failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.MarketData.Poll.Enabled {
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("market data poller stopped", zap.Error(err))
			}
		}()
	}
	if cfg.MarketData.Stream.Enabled {
		go func() {
			if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("market data stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
