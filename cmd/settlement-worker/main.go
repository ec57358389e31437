package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/app"
	"github.com/radieske/vs-wager-platform/internal/settlement/cache"
	"github.com/radieske/vs-wager-platform/internal/settlement/scheduler"
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
		cfg.ServiceName = "settlement-worker"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	// o worker não lê previews, mas liquida apostas e precisa invalidar o cache da API
	comp.Engine.WithCache(cache.NewPreviewCache(redisClient, cfg.PreviewCacheTTL, log.Named("cache")))

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log,
		metrics.HealthCheck{Name: "postgres", Check: comp.Repo.Ping},
		metrics.HealthCheck{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	)

	// lock maior que o intervalo típico do sweep; liberado ao fim de cada job
	sched := scheduler.New(log.Named("scheduler"), scheduler.NewRedisLocker(redisClient),
		comp.Manager, comp.Engine, 5*time.Minute)
	sched.OnJob = func(job, status string) { m.Jobs.WithLabelValues(job, status).Inc() }

	if err := sched.Start(ctx, cfg.ExpirySweepSpec, cfg.PrizeRolloverSpec); err != nil {
		log.Fatal("scheduler start", zap.Error(err))
	}

	// primeira varredura na subida, sem esperar o cron
	sched.Sweep(ctx)

	<-ctx.Done()
	log.Info("shutting down")
	sched.Stop()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shCtx)
}
