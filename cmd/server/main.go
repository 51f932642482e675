package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tabletap/api/internal/config"
	"github.com/tabletap/api/internal/database"
	"github.com/tabletap/api/internal/logger"
	"github.com/tabletap/api/internal/notify"
	"github.com/tabletap/api/internal/policy"
	"github.com/tabletap/api/internal/router"
	"github.com/tabletap/api/internal/ws"
)

func main() {
	cfg := config.Load()
	log := logger.New("tabletap-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("ping database", "error", err)
		os.Exit(1)
	}

	queries := database.New(pool)

	p, err := policy.Load(ctx, queries)
	if err != nil {
		log.Error("load access policy", "error", err)
		os.Exit(1)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	publishers, closers, err := buildPublishers(ctx, cfg, hub)
	if err != nil {
		log.Error("notification backends", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn("close publisher", "error", err)
			}
		}
	}()
	names := make([]string, len(publishers))
	for i, pub := range publishers {
		names[i] = pub.Name()
	}
	log.Info("notification publishers ready", "publishers", names)

	emitter := notify.NewEmitter(log, cfg.NotifyTimeout, publishers...)

	r := router.New(router.Deps{
		Config:  cfg,
		Queries: queries,
		Pool:    pool,
		Policy:  p,
		Hub:     hub,
		Emitter: emitter,
		Log:     log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	emitter.Close()
}

// buildPublishers returns the websocket hub plus every broker configured in
// cfg, and the closers to release them on exit.
func buildPublishers(ctx context.Context, cfg *config.Config, hub *ws.Hub) ([]notify.Publisher, []io.Closer, error) {
	publishers := []notify.Publisher{hub}
	var closers []io.Closer

	if cfg.RedisURL != "" {
		rp, err := notify.DialRedis(ctx, cfg.RedisURL, cfg.RedisChannelPrefix)
		if err != nil {
			return nil, closers, fmt.Errorf("redis: %w", err)
		}
		publishers = append(publishers, rp)
		closers = append(closers, rp)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, kp)
		closers = append(closers, kp)
	}
	if cfg.RabbitMQURL != "" {
		ap, err := notify.DialAMQP(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, closers, fmt.Errorf("rabbitmq: %w", err)
		}
		publishers = append(publishers, ap)
		closers = append(closers, ap)
	}
	return publishers, closers, nil
}
