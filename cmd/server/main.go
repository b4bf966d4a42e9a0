package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/fjod/qrorder/internal/auth"
	"github.com/fjod/qrorder/internal/backend"
	"github.com/fjod/qrorder/internal/cache"
	"github.com/fjod/qrorder/internal/cart"
	"github.com/fjod/qrorder/internal/checkout"
	"github.com/fjod/qrorder/internal/config"
	"github.com/fjod/qrorder/internal/gateway"
	h "github.com/fjod/qrorder/internal/http"
	"github.com/fjod/qrorder/internal/publisher"
	"github.com/fjod/qrorder/internal/repository"
	"github.com/fjod/qrorder/internal/session"
	"github.com/fjod/qrorder/pkg/circuitbreaker"
	"github.com/fjod/qrorder/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("qrorder", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New("qrorder", cfg.LogLevel)
	log.Info().Str("backend", cfg.BackendURL).Str("db_driver", cfg.DBDriver).Msg("qrorder starting")

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Receipts and outbox
	creds := &repository.Credentials{
		Driver:            cfg.DBDriver,
		DSN:               cfg.DBDSN,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(ctx, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database migrations completed")

	cartCache := newCartCache(ctx, cfg, log)

	client := backend.New(cfg.BackendURL,
		backend.WithLogger(log.With().Str("component", "backend").Logger()),
		backend.WithBreaker(circuitbreaker.Config{Name: "backend"}),
	)

	loader := gateway.NewHTTPScriptLoader(cfg.GatewayScriptURL, nil)
	widget := gateway.NewHostedWidget(log.With().Str("component", "widget").Logger())
	widgetCfg := gateway.Config{
		Key:       cfg.PaymentGatewayKey,
		ScriptURL: cfg.GatewayScriptURL,
		StoreName: cfg.StoreName,
	}
	flowLog := log.With().Str("component", "checkout").Logger()

	sessions := session.NewRegistry(cartCache, func(store *cart.Store) *checkout.Flow {
		return checkout.NewFlow(store, client, loader, widget,
			checkout.WithReceiptStore(repo),
			checkout.WithWidgetConfig(widgetCfg),
			checkout.WithLogger(flowLog),
		)
	},
		session.WithLogger(log.With().Str("component", "sessions").Logger()),
		session.WithIdleTTL(cfg.SessionIdleTTL),
	)
	go sessions.Run(ctx, time.Minute)

	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.KafkaBrokers...),
			log.With().Str("component", "outbox").Logger())
		defer poller.Close()
		go poller.Run(ctx)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("outbox poller started")
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, order-confirmed events stay in the outbox")
	}

	router := h.NewRouter(h.Deps{
		Sessions:      sessions,
		Backend:       client,
		Widget:        widget,
		Receipts:      repo,
		Gate:          auth.NewGate(client),
		Logger:        log,
		ContactEmail:  cfg.AdminContactEmail,
		Timeout:       cfg.RequestTimeout,
		MaxUploadSize: cfg.MaxRequestBodySize,
		SecureCookies: cfg.SecureCookies,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "qrorder"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server exited")
}

// newCartCache falls back to in-memory carts when Redis is not configured or
// not reachable at startup.
func newCartCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) cache.CartCache {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, carts live in memory only")
		return cache.Nop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed, carts live in memory only")
		_ = client.Close()
		return cache.Nop{}
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis ping succeeded")
	return cache.NewRedisCache(client, cache.WithTTL(7*24*time.Hour))
}
