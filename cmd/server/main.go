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
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/iliyamo/grouptrip/internal/catalog"
	"github.com/iliyamo/grouptrip/internal/config"
	"github.com/iliyamo/grouptrip/internal/database"
	"github.com/iliyamo/grouptrip/internal/handler"
	"github.com/iliyamo/grouptrip/internal/kvstore"
	"github.com/iliyamo/grouptrip/internal/lifecycle"
	"github.com/iliyamo/grouptrip/internal/obs"
	"github.com/iliyamo/grouptrip/internal/queue"
	"github.com/iliyamo/grouptrip/internal/repository"
	"github.com/iliyamo/grouptrip/internal/router"
	"github.com/iliyamo/grouptrip/internal/service"
)

func main() {
	cfg := config.Load()
	log := obs.NewLogger(cfg.Env, cfg.LogLevel, os.Stdout)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing, cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing init failed")
	}

	// Redis is optional unless it is the store backend: without it the
	// cache and the rate limiter pass requests straight through.
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		if cfg.Store.Backend == config.BackendRedis {
			log.Fatal().Err(err).Msg("redis store unavailable")
		}
		log.Warn().Err(err).Msg("redis unavailable, cache and rate limiting disabled")
	}

	store, closeStore, err := openStore(ctx, cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("store init failed")
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("store ready")
	if cfg.Ephemeral() && cfg.Env != "dev" && cfg.Env != "test" {
		log.Warn().Str("env", cfg.Env).Msg("memory store selected, groups and bookings will not survive a restart")
	}

	notifier, closeNotifier := buildNotifier(cfg.Broker, log)
	if cfg.Broker.Enabled && cfg.Broker.ConsumerEnabled {
		go func() {
			err := queue.StartNotificationConsumer(ctx, queue.ConsumerConfig{
				URL:     cfg.Broker.URL,
				Queue:   cfg.Broker.Queue,
				LogPath: cfg.Broker.NotificationLog,
			}, log)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("notification consumer stopped")
			}
		}()
	}

	svc := service.NewGroupService(service.Deps{
		Groups:   repository.NewGroupRepo(store),
		Bookings: repository.NewBookingRepo(store),
		Tickets:  repository.NewTicketRepo(store),
		Catalog:  catalog.Default(),
		Policy: lifecycle.Policy{
			DefaultCapacity: cfg.Group.DefaultCapacity,
			DefaultMinimum:  cfg.Group.DefaultMinimum,
			MaxCapacity:     cfg.Group.MaxCapacity,
		},
		Issuer:   service.NewTicketIssuer([]byte(cfg.QRSecret), nil),
		Notifier: notifier,
		Attempts: cfg.Store.CASAttempts,
		Logger:   log,
	})

	e := router.New(router.Deps{
		Groups:    handler.NewGroupHandler(svc, log),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		Cache:     cfg.Cache,
		RateLimit: cfg.RateLimit,
		Logger:    log,
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	closeNotifier()
	closeStore()
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := shutdownTracer(sctx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
}

// openStore returns the configured key-value backend and a func that
// releases it.
func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client) (kvstore.Store, func(), error) {
	noop := func() {}
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return kvstore.NewRedis(rdb, cfg.Store.Namespace+":"), noop, nil
	case config.BackendMySQL:
		db, err := database.Open(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		s := kvstore.NewMySQL(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("mysql schema: %w", err)
		}
		return s, func() { _ = db.Close() }, nil
	}
	return kvstore.NewMemory(), noop, nil
}

// buildNotifier publishes ticket events to RabbitMQ when the broker is
// enabled and reachable, and logs them otherwise.
func buildNotifier(cfg config.BrokerConfig, log zerolog.Logger) (service.Notifier, func()) {
	if !cfg.Enabled {
		return queue.NewLogNotifier(log), func() {}
	}
	pub, err := queue.NewPublisher(cfg.URL, cfg.Queue, log)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, ticket notifications will only be logged")
		return queue.NewLogNotifier(log), func() {}
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("close publisher")
		}
	}
}
