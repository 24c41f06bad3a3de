package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/giaprika/Social-Media-Platform/internal/breaker"
	"github.com/giaprika/Social-Media-Platform/internal/broker"
	"github.com/giaprika/Social-Media-Platform/internal/cache"
	"github.com/giaprika/Social-Media-Platform/internal/config"
	"github.com/giaprika/Social-Media-Platform/internal/consumer"
	"github.com/giaprika/Social-Media-Platform/internal/relay"
	"github.com/giaprika/Social-Media-Platform/internal/repository"
	"github.com/giaprika/Social-Media-Platform/internal/routes"
	"github.com/giaprika/Social-Media-Platform/internal/services"
	"github.com/giaprika/Social-Media-Platform/pkg/logger"
	"github.com/giaprika/Social-Media-Platform/pkg/metrics"
	"github.com/giaprika/Social-Media-Platform/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting notification service", slog.String("app", cfg.AppName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	err = retry.Do(ctx, retry.DefaultDial(), "connect database", func() error {
		var dialErr error
		db, dialErr = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		return dialErr
	})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := repository.NewNotificationStore(db)
	if err != nil {
		logr.Error("failed to migrate notification table", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheClient *cache.Client
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		cacheClient = cache.New(rdb, cfg.CacheDefaultTTL, logr)
		defer cacheClient.Close()
	} else {
		cacheClient = cache.New(nil, cfg.CacheDefaultTTL, logr)
	}

	metricsCollector := metrics.New()

	userBreaker := breaker.New("user-service", breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}, logr)
	userClient := services.NewUserClient(cfg.UserServiceURL, cfg.UserServiceTimeout, userBreaker)
	notifyService := services.NewNotifyService(store, cacheClient, userClient, metricsCollector, logr)

	bridge := relay.NewBridge(cfg.GatewaySocketURL, cfg.RelayReconnectDelay, cfg.RelayMaxAttempts, metricsCollector, logr)
	if err := bridge.Connect(); err != nil {
		// Not fatal: notifications are persisted regardless, and the next
		// emission triggers reconnection.
		logr.Warn("gateway socket unavailable at startup", slog.Any("error", err))
	}
	defer bridge.Close()

	conn := broker.NewConnection(cfg.RabbitURL, cfg.Queue, cfg.DeadLetterQueue, cfg.ReconnectDelay, logr)
	defer conn.Close()

	publisher := broker.NewPublisher(conn, cfg.PublishBuffer, metricsCollector, logr)
	publisher.Start(ctx)

	handlers := consumer.NewHandlers(store, cacheClient, bridge, userClient, logr)
	events := consumer.New(conn, handlers, cfg.Prefetch, cfg.MaxDeliveries, metricsCollector, logr)

	started := time.Now()
	httpSrv := startHTTPServer(cfg.HTTPPort, metricsCollector, userBreaker, notifyService, publisher, logr, started)

	if err := events.Start(ctx); err != nil {
		logr.Error("event consumer exited", slog.Any("error", err))
	}

	shutdownHTTP(httpSrv, logr)
	logr.Info("notification service stopped")
}

func startHTTPServer(port string, m *metrics.Metrics, userBreaker *breaker.Breaker, notifies *services.NotifyService, pub *broker.Publisher, logr *slog.Logger, started time.Time) *http.Server {
	if port == "" {
		port = "8085"
	}
	handler := routes.NewRouter(m, userBreaker, notifies, pub, started)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logr *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
}
