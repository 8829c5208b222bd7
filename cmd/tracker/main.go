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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/client/amazon/storefront"
	"buybox/internal/config"
	cronrunner "buybox/internal/cron"
	"buybox/internal/db"
	"buybox/internal/handler"
	"buybox/internal/insight"
	"buybox/internal/logger"
	"buybox/internal/metrics"
	"buybox/internal/notify"
	"buybox/internal/ratelimit"
	"buybox/internal/repository"
	gormrepository "buybox/internal/repository/gorm"
	memrepo "buybox/internal/repository/memory"
	"buybox/internal/service"
	"buybox/internal/tracker"
	"buybox/internal/worker"

	_ "buybox/docs"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("BB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, "buybox-tracker")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var (
		store  repository.Repository
		dbConn *db.DB
	)
	memory := strings.EqualFold(strings.TrimSpace(cfg.DB.Driver), "memory")
	if memory {
		logger.Warn("using in-memory store; data is lost on restart")
		store = memrepo.New()
	} else {
		dbConn, err = db.Open(cfg.DB)
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
		store = gormrepository.New(dbConn.Gorm)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	apiLimiter := ratelimit.NewWithBurst(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	spapiClient := spapi.NewClient(spapi.Options{
		BaseURL:         cfg.SPAPI.BaseURL,
		TokenURL:        cfg.SPAPI.TokenURL,
		MarketplaceID:   cfg.SPAPI.MarketplaceID,
		ClientID:        cfg.SPAPI.ClientID,
		ClientSecret:    cfg.SPAPI.ClientSecret,
		RefreshToken:    cfg.SPAPI.RefreshToken,
		AccessToken:     cfg.SPAPI.AccessToken,
		Timeout:         cfg.SPAPI.Timeout,
		BreakerFailures: cfg.SPAPI.BreakerFailures,
		BreakerTimeout:  cfg.SPAPI.BreakerTimeout,
		Limiter:         apiLimiter,
		Logger:          logger.Named("spapi"),
	})

	sellers := &service.SellerIdentityService{
		Repo:   store,
		TTL:    cfg.Retention.SellerCacheTTL,
		Logger: logger.Named("sellers"),
	}
	if cfg.Storefront.Enabled {
		sellers.Lookup = storefront.NewClient(
			cfg.Storefront.BaseURL,
			cfg.Storefront.Timeout,
			ratelimit.NewWithBurst(cfg.Storefront.RPS, 1),
		)
	}

	hub := notify.NewHub()
	publisher := &notify.Multi{Logger: logger.Named("notify")}
	publisher.Add(hub)
	if cfg.Notify.Redis && strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisPub := notify.NewRedisPublisher(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Channel)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisPub.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, publishing anyway", zap.Error(err))
		}
		cancel()
		defer redisPub.Close()
		publisher.Add(redisPub)
	}
	if token := strings.TrimSpace(cfg.Notify.TelegramToken); token != "" {
		tg, err := notify.NewTelegramNotifier(token, cfg.Notify.TelegramChatID, cfg.Notify.TelegramTimeout)
		if err != nil {
			logger.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			tgLog := logger.Named("telegram")
			tg.OnError = func(err error) { tgLog.Warn("telegram send failed", zap.Error(err)) }
			tg.Start(ctx, cfg.Notify.TelegramQueue)
			publisher.Add(tg)
		}
	}

	insights := insight.NewGenerator(
		cfg.Insight.OurSellerIDs,
		cfg.Insight.TransitionImpactScale,
		cfg.Insight.GapImpactScale,
		cfg.Insight.Currency,
	)
	pricingSvc := &service.CompetitorPricingService{
		Repo:             store,
		Offers:           spapiClient,
		Sellers:          sellers,
		Tracker:          &tracker.Tracker{Repo: store},
		Insights:         insights,
		Publisher:        publisher,
		Logger:           logger.Named("pricing"),
		Marketplace:      cfg.SPAPI.MarketplaceID,
		NewCompetitorMin: cfg.Collector.NewCompetitorMin,
	}
	brandOwnerSvc := &service.BrandOwnerService{
		Repo:             store,
		Catalog:          spapiClient,
		Insights:         insights,
		Publisher:        publisher,
		Logger:           logger.Named("brand_owner"),
		BatchSize:        cfg.BrandOwner.BatchSize,
		BatchPause:       cfg.BrandOwner.BatchPause,
		RateLimitBackoff: cfg.Collector.RateLimitBackoff,
	}
	querySvc := &service.BuyBoxQueryService{Repo: store}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	meter := metrics.New(registry)
	if err := meter.TrackTokens("spapi", apiLimiter.Tokens); err != nil {
		logger.Warn("rate limit gauge not registered", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Collector.BusinessTimezone)
	if err != nil {
		logger.Warn("unknown business timezone, using UTC", zap.String("tz", cfg.Collector.BusinessTimezone), zap.Error(err))
		loc = time.UTC
	}
	scheduler := &worker.Scheduler{
		Repo:        store,
		Collector:   pricingSvc,
		BrandOwners: brandOwnerSvc,
		Metrics:     meter,
		Publisher:   publisher,
		Logger:      logger.Named("worker"),
		Options: worker.Options{
			BatchLimit:           cfg.Collector.BatchLimit,
			CallDelay:            cfg.Collector.CallDelay,
			IntensiveDelay:       cfg.Collector.IntensiveDelay,
			CallTimeout:          cfg.Collector.CallTimeout,
			RateLimitBackoff:     cfg.Collector.RateLimitBackoff,
			HotWindow:            cfg.Collector.HotWindow,
			HotMinObservations:   cfg.Collector.HotMinObservations,
			HotLimit:             cfg.Collector.HotLimit,
			NewCompetitorSince:   24 * time.Hour,
			BusinessHourStart:    cfg.Collector.BusinessHourStart,
			BusinessHourEnd:      cfg.Collector.BusinessHourEnd,
			Location:             loc,
			OfferRetention:       cfg.Retention.Offers,
			IntervalRetention:    cfg.Retention.Intervals,
			DismissedRetention:   cfg.Retention.DismissedInsights,
			SellerCacheRetention: cfg.Retention.SellerCache,
		},
	}

	cronRunner := cronrunner.New(logger.Named("cron"), ctx)
	if cfg.Cron.Enabled {
		switchGate := func(key string) cronrunner.Gate {
			return func(ctx context.Context) bool { return settingsSvc.IsEnabled(ctx, key, true) }
		}
		jobs := []struct {
			name string
			spec string
			gate cronrunner.Gate
			run  func(context.Context) (worker.PassSummary, error)
		}{
			{"regular", cfg.Cron.Regular, switchGate(service.FeatureCollector), scheduler.RunRegularPass},
			{"intensive", cfg.Cron.Intensive, switchGate(service.FeatureIntensive), scheduler.RunIntensivePass},
			{"cleanup", cfg.Cron.Cleanup, switchGate(service.FeatureCleanup), scheduler.RunCleanupPass},
			{"brand_owner", cfg.Cron.BrandOwner, switchGate(service.FeatureBrandOwner), scheduler.RunBrandOwnerPass},
		}
		for _, job := range jobs {
			run := job.run
			_, err := cronRunner.Add(job.name, job.spec, job.gate, func(ctx context.Context) error {
				_, err := run(ctx)
				if errors.Is(err, worker.ErrPassInProgress) {
					return nil
				}
				return err
			})
			if err != nil {
				logger.Warn("cron register failed", zap.String("job", job.name), zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequireBearer(cfg.Server.APIToken))
	engine.Use(handler.WriteAudit(logger.Named("audit")))

	healthHandler := &handler.HealthHandler{Memory: memory}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)
	(&handler.BuyBoxHandler{Query: querySvc, Pricing: pricingSvc}).Register(engine)
	(&handler.InsightHandler{Query: querySvc}).Register(engine)
	(&handler.BrandOwnerHandler{Service: brandOwnerSvc}).Register(engine)
	(&handler.WorkerHandler{
		Scheduler: scheduler,
		Query:     querySvc,
		Settings:  settingsSvc,
		Cron:      cronRunner,
		Logger:    logger.Named("worker_api"),
		BaseCtx:   ctx,
	}).Register(engine)
	(&handler.LiveHandler{Hub: hub, Logger: logger.Named("live"), OriginPatterns: []string{"*"}}).Register(engine)

	engine.GET("/metrics", gin.WrapH(meter.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr), zap.Bool("memory_store", memory))
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
