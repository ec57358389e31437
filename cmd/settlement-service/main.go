package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/app"
	"github.com/radieske/vs-wager-platform/internal/settlement/cache"
	httpapi "github.com/radieske/vs-wager-platform/internal/settlement/http"
	sharedcache "github.com/radieske/vs-wager-platform/internal/shared/cache"
	"github.com/radieske/vs-wager-platform/internal/shared/config"
	"github.com/radieske/vs-wager-platform/internal/shared/db"
	"github.com/radieske/vs-wager-platform/internal/shared/kafka"
	"github.com/radieske/vs-wager-platform/internal/shared/logger"
	"github.com/radieske/vs-wager-platform/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "settlement-service"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres + schema
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	mctx, mcancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.Migrate(mctx, pg); err != nil {
		mcancel()
		log.Fatal("apply schema", zap.Error(err))
	}
	mcancel()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	m := app.NewMetrics(prometheus.DefaultRegisterer)
	comp, err := app.Build(cfg, log, pg, writer, m)
	if err != nil {
		log.Fatal("build components", zap.Error(err))
	}
	comp.Engine.WithCache(cache.NewPreviewCache(redisClient, cfg.PreviewCacheTTL, log.Named("cache")))

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: comp.Repo.Ping},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)

	api := httpapi.NewServer(log.Named("http"), comp.Manager, comp.Engine)
	api.OnRequest = func(route string, code int) {
		m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	_ = metricsSrv.Shutdown(shCtx)
}
