// Package scheduler roda as rotinas periódicas do worker: varredura de
// apostas expiradas (mais retomada de runs pending) e o rollover do prêmio.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/lifecycle"
	"github.com/radieske/vs-wager-platform/internal/settlement/prize"
)

const (
	JobSweep    = "expiry-sweep"
	JobRollover = "prize-rollover"
)

type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type Settler interface {
	DetectAndSettleExpired(ctx context.Context, now time.Time) ([]lifecycle.Settlement, error)
	ResumePending(ctx context.Context) ([]lifecycle.Settlement, error)
}

type PrizeExecutor interface {
	ExecuteClosedPeriod(ctx context.Context, now time.Time) (*prize.Execution, error)
}

type Scheduler struct {
	log     *zap.Logger
	cron    *cron.Cron
	locker  Locker
	settler Settler
	prizes  PrizeExecutor
	lockTTL time.Duration
	now     func() time.Time

	OnJob func(job, status string) // métricas: ok | error | skipped
}

func New(log *zap.Logger, locker Locker, settler Settler, prizes PrizeExecutor, lockTTL time.Duration) *Scheduler {
	return &Scheduler{
		log:     log,
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		locker:  locker,
		settler: settler,
		prizes:  prizes,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// Start registra os jobs e inicia o cron. ctx encerra os jobs em andamento.
func (s *Scheduler) Start(ctx context.Context, sweepSpec, rolloverSpec string) error {
	if _, err := s.cron.AddFunc(sweepSpec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(rolloverSpec, func() { s.Rollover(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("sweep", sweepSpec), zap.String("rollover", rolloverSpec))
	return nil
}

// Stop para o cron e espera os jobs em execução
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep encerra apostas expiradas e retoma settlement runs pending
func (s *Scheduler) Sweep(ctx context.Context) {
	s.locked(ctx, JobSweep, func(ctx context.Context) error {
		settled, err := s.settler.DetectAndSettleExpired(ctx, s.now())
		if err != nil {
			return err
		}
		resumed, err := s.settler.ResumePending(ctx)
		if err != nil {
			return err
		}
		if len(settled)+len(resumed) > 0 {
			s.log.Info("sweep done", zap.Int("settled", len(settled)), zap.Int("resumed", len(resumed)))
		}
		return nil
	})
}

// Rollover executa o período quinzenal anterior se ainda não foi executado
func (s *Scheduler) Rollover(ctx context.Context) {
	s.locked(ctx, JobRollover, func(ctx context.Context) error {
		ex, err := s.prizes.ExecuteClosedPeriod(ctx, s.now())
		if err != nil {
			return err
		}
		if ex != nil {
			s.log.Info("closed period executed",
				zap.Time("periodStart", ex.Period.Start), zap.Bool("resumed", ex.Resumed))
		}
		return nil
	})
}

func (s *Scheduler) locked(ctx context.Context, job string, fn func(context.Context) error) {
	release, ok, err := s.locker.TryLock(ctx, job, s.lockTTL)
	if err != nil {
		s.log.Error("acquire job lock", zap.String("job", job), zap.Error(err))
		s.report(job, "error")
		return
	}
	if !ok {
		s.log.Debug("job locked elsewhere", zap.String("job", job))
		s.report(job, "skipped")
		return
	}
	defer release()

	if err := fn(ctx); err != nil {
		s.log.Error("job failed", zap.String("job", job), zap.Error(err))
		s.report(job, "error")
		return
	}
	s.report(job, "ok")
}

func (s *Scheduler) report(job, status string) {
	if s.OnJob != nil {
		s.OnJob(job, status)
	}
}
