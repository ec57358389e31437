package prize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/ledger"
	"github.com/radieske/vs-wager-platform/pkg/contracts/events"
)

// Store define as leituras do período e o registro de execução
type Store interface {
	// SumPredictions soma |amount| das predictions VS em [from, until)
	SumPredictions(ctx context.Context, from, until time.Time) (decimal.Decimal, error)
	PeriodPredictions(ctx context.Context, from, until time.Time) ([]domain.PeriodPrediction, error)

	// ClaimPrizeRun grava o run (pending) e as alocações numa única transação.
	// Se o run já existe e está pending, devolve o run e as alocações gravadas
	// com fresh=false. Run completed, ou qualquer outro run cuja janela
	// intercepte a nova => domain.ErrAlreadyExecuted.
	ClaimPrizeRun(ctx context.Context, run domain.PrizeRun, allocs []domain.Allocation) (domain.PrizeRun, []domain.Allocation, bool, error)
	CompletePrizeRun(ctx context.Context, periodStart time.Time) error
}

type Publisher interface {
	PublishPrizeExecuted(ctx context.Context, e events.PrizePeriodExecuted) error
}

// PreviewCache guarda distribuições calculadas por período
type PreviewCache interface {
	Get(ctx context.Context, p Period) (*Distribution, bool)
	Set(ctx context.Context, d *Distribution)
	Invalidate(ctx context.Context, p Period)
}

// Execution é o resultado de um execute: o run gravado e os créditos aplicados
type Execution struct {
	Period      Period           `json:"period"`
	TotalSpent  decimal.Decimal  `json:"totalTokensSpent"`
	Pool        decimal.Decimal  `json:"biweeklyPrizeUsdc"`
	TotalPoints decimal.Decimal  `json:"totalPoints"`
	Resumed     bool             `json:"resumed"`
	Applied     []ledger.Outcome `json:"distributions"`
}

type Engine struct {
	log     *zap.Logger
	store   Store
	applier *ledger.Applier
	publ    Publisher
	cache   PreviewCache
	timeout time.Duration
	now     func() time.Time

	OnExecuted func(resumed bool) // métricas
}

func NewEngine(log *zap.Logger, store Store, applier *ledger.Applier, publ Publisher, timeout time.Duration) *Engine {
	return &Engine{log: log, store: store, applier: applier, publ: publ, timeout: timeout, now: time.Now}
}

// WithCache habilita o cache de preview
func (e *Engine) WithCache(c PreviewCache) *Engine {
	e.cache = c
	return e
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

// Preview calcula a distribuição sem alterar nada. Só períodos da grade
// quinzenal passam pelo cache, porque só eles são invalidados quando as
// predictions mudam.
func (e *Engine) Preview(ctx context.Context, start, end *time.Time) (*Distribution, error) {
	p, err := ResolvePeriod(e.now(), start, end)
	if err != nil {
		return nil, err
	}
	cached := e.cache != nil && p.OnGrid()
	if cached {
		if d, ok := e.cache.Get(ctx, p); ok {
			return d, nil
		}
	}

	d, err := e.distribution(ctx, p)
	if err != nil {
		return nil, err
	}
	if cached {
		e.cache.Set(ctx, d)
	}
	return d, nil
}

// InvalidatePeriods descarta os previews de todos os períodos da grade que
// tocam [from, to]
func (e *Engine) InvalidatePeriods(ctx context.Context, from, to time.Time) {
	if e.cache == nil || to.Before(from) {
		return
	}
	if from.Before(Anchor) {
		from = Anchor
	}
	for p := CurrentPeriod(from); !p.Start.After(to); p = periodAt(p.Start.Add(Length)) {
		e.cache.Invalidate(ctx, p)
	}
}

func (e *Engine) distribution(ctx context.Context, p Period) (*Distribution, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	spent, err := e.store.SumPredictions(sctx, p.Start, p.Until())
	if err != nil {
		return nil, fmt.Errorf("sum period predictions: %w", err)
	}
	preds, err := e.store.PeriodPredictions(sctx, p.Start, p.Until())
	if err != nil {
		return nil, fmt.Errorf("load period predictions: %w", err)
	}
	d := Distribute(p, spent, preds)
	return &d, nil
}

// Execute congela as alocações do período e credita cada usuário. Um run
// pending de uma execução interrompida é retomado com as alocações gravadas.
func (e *Engine) Execute(ctx context.Context, start, end *time.Time) (*Execution, error) {
	p, err := ResolvePeriod(e.now(), start, end)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, p)
}

func (e *Engine) execute(ctx context.Context, p Period) (*Execution, error) {
	d, err := e.distribution(ctx, p)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	run, allocs, fresh, err := e.store.ClaimPrizeRun(sctx, domain.PrizeRun{
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
		TotalSpent:  d.TotalSpent,
		Pool:        d.Pool,
		TotalPoints: d.TotalPoints,
		Status:      domain.RunPending,
	}, d.Allocations())
	cancel()
	if err != nil {
		return nil, err
	}
	if !fresh {
		e.log.Info("resuming pending prize run", zap.Time("periodStart", p.Start))
	}

	outcomes := e.applier.ApplyPrizes(ctx, run.PeriodStart, allocs)
	paid, _, failed := ledger.Summary(outcomes)

	if failed == 0 {
		sctx, cancel := e.storeCtx(ctx)
		if err := e.store.CompletePrizeRun(sctx, run.PeriodStart); err != nil {
			e.log.Error("complete prize run", zap.Time("periodStart", run.PeriodStart), zap.Error(err))
		}
		cancel()
	} else {
		e.log.Warn("prize run left pending",
			zap.Time("periodStart", run.PeriodStart), zap.Int("failed", failed))
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, p)
	}

	e.log.Info("prize period executed",
		zap.Time("periodStart", run.PeriodStart),
		zap.String("pool", run.Pool.String()),
		zap.String("paidUsdc", paid.String()),
		zap.Int("recipients", len(allocs)),
		zap.Bool("resumed", !fresh),
	)

	if e.publ != nil {
		ev := events.PrizePeriodExecuted{
			EventID:     uuid.NewString(),
			PeriodStart: run.PeriodStart,
			PeriodEnd:   run.PeriodEnd,
			TotalSpent:  run.TotalSpent,
			Pool:        run.Pool,
			PaidUSDC:    paid,
			Recipients:  len(allocs),
			Failed:      failed,
			Resumed:     !fresh,
			Ts:          e.now().UTC(),
		}
		if err := e.publ.PublishPrizeExecuted(ctx, ev); err != nil {
			e.log.Warn("publish prize_period_executed", zap.Time("periodStart", run.PeriodStart), zap.Error(err))
		}
	}
	if e.OnExecuted != nil {
		e.OnExecuted(!fresh)
	}

	return &Execution{
		Period:      Period{Start: run.PeriodStart, End: run.PeriodEnd},
		TotalSpent:  run.TotalSpent,
		Pool:        run.Pool,
		TotalPoints: run.TotalPoints,
		Resumed:     !fresh,
		Applied:     outcomes,
	}, nil
}

// ExecuteClosedPeriod executa o período anterior ao de now. Período já
// executado não é erro: retorna nil.
func (e *Engine) ExecuteClosedPeriod(ctx context.Context, now time.Time) (*Execution, error) {
	p := CurrentPeriod(now).Previous()
	ex, err := e.execute(ctx, p)
	if errors.Is(err, domain.ErrAlreadyExecuted) {
		return nil, nil
	}
	return ex, err
}
