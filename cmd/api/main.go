package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taracart/api/internal/analytics"
	"github.com/taracart/api/internal/checkout"
	"github.com/taracart/api/internal/commerce"
	"github.com/taracart/api/internal/domain"
	"github.com/taracart/api/internal/handlers"
	"github.com/taracart/api/internal/platform/cache"
	"github.com/taracart/api/internal/platform/config"
	"github.com/taracart/api/internal/platform/kvstore"
	"github.com/taracart/api/internal/platform/observability"
	"github.com/taracart/api/internal/platform/ratelimit"
	"github.com/taracart/api/internal/risk"
)

const (
	verdictSweepInterval = time.Minute
	shutdownGrace        = 15 * time.Second
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store := buildStore(ctx, logger, cfg.Stores)

	commerceClient, err := commerce.NewClient(commerce.ClientDeps{
		Endpoint:      cfg.Commerce.Endpoint,
		SessionHeader: cfg.Commerce.SessionHeader,
		Logger:        logger.Named("commerce"),
	})
	if err != nil {
		logger.Fatal("failed to initialise commerce client", zap.Error(err))
	}

	verdictCache := cache.New[risk.Verdict](verdictSweepInterval, cache.WithTTL[risk.Verdict](cfg.Risk.CacheTTL))
	defer verdictCache.Close()

	historyClient, err := risk.NewHTTPHistoryClient(cfg.Risk.HistoryEndpoint, cfg.Risk.APIKey, nil)
	if err != nil {
		logger.Fatal("failed to initialise history client", zap.Error(err))
	}
	riskService, err := risk.NewService(risk.ServiceDeps{
		History:        historyClient,
		Cache:          verdictCache,
		BypassSuffixes: cfg.Risk.BypassSuffixes,
		FailOpen:       cfg.Risk.FailOpen,
		VerdictTTL:     cfg.Risk.CacheTTL,
		Logger:         logger.Named("risk"),
	})
	if err != nil {
		logger.Fatal("failed to initialise risk service", zap.Error(err))
	}

	audience, err := analytics.NewAudience(ctx, analytics.AudienceDeps{
		Store:  store,
		Logger: logger.Named("audience"),
	})
	if err != nil {
		logger.Fatal("failed to initialise audience tracker", zap.Error(err))
	}

	batcher, err := analytics.NewBatcher(analytics.BatcherDeps{
		Sinks:         buildSinks(logger, cfg.Analytics),
		Audience:      audience,
		FlushInterval: cfg.Analytics.FlushInterval,
		ChunkSize:     cfg.Analytics.ChunkSize,
		QueueLimit:    cfg.Analytics.QueueLimit,
		Logger:        logger.Named("analytics"),
	})
	if err != nil {
		logger.Fatal("failed to initialise event batcher", zap.Error(err))
	}

	batcherCtx, stopBatcher := context.WithCancel(ctx)
	go batcher.Run(batcherCtx)

	orchestrator, err := checkout.NewOrchestrator(checkout.OrchestratorDeps{
		Commerce:          commerceClient,
		Risk:              riskService,
		Values:            audience,
		Events:            batcher,
		Store:             store,
		CartBatchSize:     cfg.Commerce.CartBatchSize,
		CartBatchDelay:    cfg.Commerce.CartBatchDelay,
		OrderTimeout:      cfg.Commerce.OrderTimeout,
		SubmitWindow:      cfg.Checkout.SubmitWindow,
		SubmitMaxAttempts: cfg.Checkout.SubmitMaxAttempts,
		ShippingInside:    domain.FromTaka(cfg.Checkout.ShippingInsideBDT),
		ShippingOutside:   domain.FromTaka(cfg.Checkout.ShippingOutsideBDT),
		Logger:            logger.Named("checkout"),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout orchestrator", zap.Error(err))
	}

	checkoutLimiter := ratelimit.New(cfg.RateLimits.CheckoutPerWindow, cfg.RateLimits.Window)
	defer checkoutLimiter.Close()
	riskLimiter := ratelimit.New(cfg.RateLimits.RiskPerWindow, cfg.RateLimits.Window)
	defer riskLimiter.Close()

	router := handlers.NewRouter(
		handlers.WithMiddleware(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealth(handlers.NewHealthHandlers(
			map[string]handlers.StatsSource{"risk_verdicts": verdictCache},
			batcher,
		)),
		handlers.WithCheckout(
			handlers.NewCheckoutHandlers(orchestrator).Routes,
			ratelimit.Middleware(checkoutLimiter, ratelimit.RouteIPKey("checkout")),
		),
		handlers.WithRisk(
			handlers.NewRiskHandlers(riskService).Routes,
			ratelimit.Middleware(riskLimiter, ratelimit.RouteIPKey("risk")),
		),
		handlers.WithTrack(handlers.NewTrackHandlers(batcher).Routes),
		handlers.WithAdmin(handlers.NewAdminHandlers(
			cfg.Revalidate.BearerSecret,
			audience,
			map[string]handlers.Clearer{"risk_verdicts": verdictCache},
		).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}

	// Close first so the final drain runs before the loop context is cancelled.
	batcher.Close()
	stopBatcher()
	logger.Info("server stopped")
}

// buildStore assembles the persistence chain: Redis when configured, then the
// JSON file, then process memory. A backend that fails to initialise is
// skipped with a warning; memory always remains.
func buildStore(ctx context.Context, logger *zap.Logger, cfg config.StoreConfig) *kvstore.Chain {
	var stores []kvstore.Store

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, continuing without it", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = client.Close()
		} else if store, err := kvstore.NewRedisStore(client); err == nil {
			stores = append(stores, store)
		}
	}

	if cfg.FilePath != "" {
		store, err := kvstore.NewFileStore(cfg.FilePath)
		if err != nil {
			logger.Warn("file store unavailable", zap.String("path", cfg.FilePath), zap.Error(err))
		} else {
			stores = append(stores, store)
		}
	}

	stores = append(stores, kvstore.NewMemoryStore())
	return kvstore.NewChain(logger.Named("kvstore"), stores...)
}

func buildSinks(logger *zap.Logger, cfg config.AnalyticsConfig) []analytics.Sink {
	var sinks []analytics.Sink
	if cfg.PixelID != "" && cfg.PixelEndpoint != "" {
		if sink, err := analytics.NewPixelSink(cfg.PixelID, cfg.PixelEndpoint, nil); err == nil {
			sinks = append(sinks, sink)
		} else {
			logger.Warn("pixel sink disabled", zap.Error(err))
		}
	}
	if cfg.ServerEndpoint != "" && cfg.AccessToken != "" {
		if sink, err := analytics.NewServerSink(cfg.ServerEndpoint, cfg.AccessToken, nil); err == nil {
			sinks = append(sinks, sink)
		} else {
			logger.Warn("server sink disabled", zap.Error(err))
		}
	}
	if len(sinks) == 0 {
		logger.Warn("no analytics sinks configured, events will be dropped at dispatch")
	}
	return sinks
}
