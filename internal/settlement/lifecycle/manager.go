// Package lifecycle conduz a aposta de active até ended e dispara o
// pagamento exatamente uma vez por transição.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/ledger"
	"github.com/radieske/vs-wager-platform/internal/settlement/payout"
	"github.com/radieske/vs-wager-platform/pkg/contracts/events"
)

const (
	TriggerManual = "manual"
	TriggerExpiry = "expiry"
	TriggerResume = "resume"
)

// Store define as operações do ledger usadas pelo ciclo de vida das apostas
type Store interface {
	CreateWager(ctx context.Context, creatorID int64, w domain.NewWager) (*domain.Wager, error)
	GetWager(ctx context.Context, id int64) (*domain.Wager, error)
	ListWagers(ctx context.Context, f domain.WagerFilter) ([]domain.Wager, error)
	ListExpiredActive(ctx context.Context, now time.Time) ([]int64, error)

	// EndWager faz active -> ended com um UPDATE condicional e grava o
	// settlement run na mesma transação. ErrAlreadySettled se já estava ended.
	EndWager(ctx context.Context, id int64, side domain.Side) (*domain.Wager, error)
	WinningStakes(ctx context.Context, wagerID int64, side domain.Side) ([]domain.Stake, error)
	CompleteSettlementRun(ctx context.Context, wagerID int64) error
	ListPendingSettlementRuns(ctx context.Context) ([]domain.SettlementRun, error)

	PlacePrediction(ctx context.Context, p domain.Prediction) (*domain.PredictionResult, error)
}

type Publisher interface {
	PublishWagerSettled(ctx context.Context, e events.WagerSettled) error
}

// Policy é a regra de produto para liquidações sem lado vencedor informado.
// DefaultWinningSide também é o lado usado quando a aposta expira.
type Policy struct {
	DefaultWinningSide  domain.Side
	RequireExplicitSide bool
}

func (p Policy) Validate() error {
	if !p.DefaultWinningSide.Valid() {
		return fmt.Errorf("%w: default winning side %q", domain.ErrValidation, p.DefaultWinningSide)
	}
	return nil
}

// Settlement é o resultado de uma liquidação: aposta encerrada, pagamentos
// calculados e o resultado por usuário da aplicação no ledger
type Settlement struct {
	Wager    domain.Wager     `json:"wager"`
	Trigger  string           `json:"trigger"`
	Payouts  []payout.Payout  `json:"payouts"`
	Outcomes []ledger.Outcome `json:"outcomes"`
}

type Manager struct {
	log     *zap.Logger
	store   Store
	applier *ledger.Applier
	policy  Policy
	publ    Publisher
	timeout time.Duration
	now     func() time.Time

	OnSettled func(trigger string) // métricas

	// OnPredictionsChanged recebe o intervalo de criação das predictions cujo
	// score pode ter mudado (nova prediction ou aposta encerrada)
	OnPredictionsChanged func(ctx context.Context, from, to time.Time)

	// ResumeGrace é a idade mínima de um settlement run pending antes que o
	// sweep o retome; abaixo disso o pagamento original ainda pode estar em curso
	ResumeGrace time.Duration
}

func NewManager(log *zap.Logger, store Store, applier *ledger.Applier, policy Policy, publ Publisher, timeout time.Duration) *Manager {
	return &Manager{
		log:     log,
		store:   store,
		applier: applier,
		policy:  policy,
		publ:    publ,
		timeout: timeout,
		now:     time.Now,
	}
}

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

// SettleWager encerra a aposta a pedido do criador. side nil cai na Policy.
func (m *Manager) SettleWager(ctx context.Context, wagerID, callerID int64, side *domain.Side) (*Settlement, error) {
	winning, err := m.resolveSide(side)
	if err != nil {
		return nil, err
	}

	sctx, cancel := m.storeCtx(ctx)
	w, err := m.store.GetWager(sctx, wagerID)
	cancel()
	if err != nil {
		return nil, err
	}
	if w.CreatedByID != callerID {
		return nil, fmt.Errorf("%w: only the wager creator can settle it", domain.ErrForbidden)
	}
	if w.WagerStatus != domain.WagerActive {
		return nil, domain.ErrAlreadySettled
	}

	return m.settle(ctx, wagerID, winning, TriggerManual)
}

func (m *Manager) resolveSide(side *domain.Side) (domain.Side, error) {
	if side == nil {
		if m.policy.RequireExplicitSide {
			return "", fmt.Errorf("%w: winningSide is required to settle", domain.ErrValidation)
		}
		return m.policy.DefaultWinningSide, nil
	}
	if !side.Valid() {
		return "", fmt.Errorf("%w: winningSide must be 'side1' or 'side2'", domain.ErrValidation)
	}
	return *side, nil
}

// settle é o único caminho de transição: UPDATE condicional e, só quando ele
// vence, cálculo e aplicação dos pagamentos
func (m *Manager) settle(ctx context.Context, wagerID int64, side domain.Side, trigger string) (*Settlement, error) {
	sctx, cancel := m.storeCtx(ctx)
	w, err := m.store.EndWager(sctx, wagerID, side)
	cancel()
	if err != nil {
		return nil, err
	}

	m.log.Info("wager ended",
		zap.Int64("wagerId", wagerID),
		zap.String("winningSide", string(side)),
		zap.String("trigger", trigger),
	)
	m.predictionsChanged(ctx, w.CreatedAt, m.now())
	return m.pay(ctx, *w, side, trigger)
}

// pay calcula e aplica os pagamentos de uma aposta já encerrada. Reexecutar
// é seguro: usuários já pagos voltam como skipped.
func (m *Manager) pay(ctx context.Context, w domain.Wager, side domain.Side, trigger string) (*Settlement, error) {
	sctx, cancel := m.storeCtx(ctx)
	stakes, err := m.store.WinningStakes(sctx, w.ID, side)
	cancel()
	if err != nil {
		// run fica pending e é retomado depois
		m.log.Error("load winning stakes", zap.Int64("wagerId", w.ID), zap.Error(err))
		return nil, fmt.Errorf("load winning stakes for wager %d: %w", w.ID, err)
	}

	payouts := payout.Compute(w, side, stakes)
	outcomes := m.applier.ApplyPayouts(ctx, w.ID, payouts)
	paid, _, failed := ledger.Summary(outcomes)

	if failed == 0 {
		sctx, cancel := m.storeCtx(ctx)
		if err := m.store.CompleteSettlementRun(sctx, w.ID); err != nil {
			m.log.Error("complete settlement run", zap.Int64("wagerId", w.ID), zap.Error(err))
		}
		cancel()
	} else {
		m.log.Warn("settlement left pending",
			zap.Int64("wagerId", w.ID), zap.Int("failed", failed))
	}

	m.log.Info("payouts distributed",
		zap.Int64("wagerId", w.ID),
		zap.String("winningSide", string(side)),
		zap.Int("winners", len(payouts)),
		zap.String("paidUsdc", paid.String()),
	)

	if m.publ != nil {
		ev := events.WagerSettled{
			EventID:     uuid.NewString(),
			WagerID:     w.ID,
			WinningSide: string(side),
			Trigger:     trigger,
			Pool:        w.Pool(),
			PaidUSDC:    paid,
			Winners:     len(payouts),
			Failed:      failed,
			Ts:          m.now().UTC(),
		}
		if err := m.publ.PublishWagerSettled(ctx, ev); err != nil {
			m.log.Warn("publish wager_settled", zap.Int64("wagerId", w.ID), zap.Error(err))
		}
	}
	if m.OnSettled != nil {
		m.OnSettled(trigger)
	}

	return &Settlement{Wager: w, Trigger: trigger, Payouts: payouts, Outcomes: outcomes}, nil
}

// DetectAndSettleExpired encerra toda aposta ativa com wagerEndTime < now
// usando o lado padrão da Policy. Perder a corrida para outro leitor não é erro.
func (m *Manager) DetectAndSettleExpired(ctx context.Context, now time.Time) ([]Settlement, error) {
	sctx, cancel := m.storeCtx(ctx)
	ids, err := m.store.ListExpiredActive(sctx, now)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list expired wagers: %w", err)
	}

	settled := make([]Settlement, 0, len(ids))
	for _, id := range ids {
		s, err := m.settle(ctx, id, m.policy.DefaultWinningSide, TriggerExpiry)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadySettled) {
				continue
			}
			m.log.Error("settle expired wager", zap.Int64("wagerId", id), zap.Error(err))
			continue
		}
		settled = append(settled, *s)
	}

	if len(settled) > 0 {
		m.log.Info("expired wagers settled", zap.Int("count", len(settled)))
	}
	return settled, nil
}

// ResumePending reaplica pagamentos de settlement runs que ficaram pending
func (m *Manager) ResumePending(ctx context.Context) ([]Settlement, error) {
	sctx, cancel := m.storeCtx(ctx)
	runs, err := m.store.ListPendingSettlementRuns(sctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list pending settlement runs: %w", err)
	}

	now := m.now()
	resumed := make([]Settlement, 0, len(runs))
	for _, run := range runs {
		if now.Sub(run.CreatedAt) < m.ResumeGrace {
			m.log.Debug("settlement run too recent to resume", zap.Int64("wagerId", run.WagerID))
			continue
		}
		sctx, cancel := m.storeCtx(ctx)
		w, err := m.store.GetWager(sctx, run.WagerID)
		cancel()
		if err != nil {
			m.log.Error("load wager for resume", zap.Int64("wagerId", run.WagerID), zap.Error(err))
			continue
		}
		s, err := m.pay(ctx, *w, run.WinningSide, TriggerResume)
		if err != nil {
			continue
		}
		resumed = append(resumed, *s)
	}
	return resumed, nil
}

// CreateWager valida e cria uma aposta ativa
func (m *Manager) CreateWager(ctx context.Context, creatorID int64, in domain.NewWager) (*domain.Wager, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Side1 = strings.TrimSpace(in.Side1)
	in.Side2 = strings.TrimSpace(in.Side2)

	if in.Name == "" || in.Category == "" || in.Side1 == "" || in.Side2 == "" || in.WagerEndTime.IsZero() {
		return nil, fmt.Errorf("%w: missing required fields: name, category, side1, side2, wagerEndTime", domain.ErrValidation)
	}
	if !in.WagerEndTime.After(m.now()) {
		return nil, fmt.Errorf("%w: wagerEndTime must be in the future", domain.ErrValidation)
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.CreateWager(sctx, creatorID, in)
}

// ListWagers roda a detecção de expiradas antes de ler
func (m *Manager) ListWagers(ctx context.Context, f domain.WagerFilter) ([]domain.Wager, error) {
	if _, err := m.DetectAndSettleExpired(ctx, m.now()); err != nil {
		return nil, err
	}
	if f.Status == "" {
		f.Status = domain.WagerActive
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.store.ListWagers(sctx, f)
}

// GetWager retorna apenas apostas ainda abertas
func (m *Manager) GetWager(ctx context.Context, id int64) (*domain.Wager, error) {
	if _, err := m.DetectAndSettleExpired(ctx, m.now()); err != nil {
		return nil, err
	}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	w, err := m.store.GetWager(sctx, id)
	if err != nil {
		return nil, err
	}
	if w.WagerStatus == domain.WagerEnded {
		return nil, fmt.Errorf("wager has ended: %w", domain.ErrNotFound)
	}
	return w, nil
}

// PlacePrediction debita VS e soma a stake no lado escolhido, numa única
// transação com decremento condicional do saldo
func (m *Manager) PlacePrediction(ctx context.Context, wagerID, userID int64, side domain.Side, amount decimal.Decimal) (*domain.PredictionResult, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: side must be 'side1' or 'side2'", domain.ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}

	now := m.now()
	if _, err := m.DetectAndSettleExpired(ctx, now); err != nil {
		return nil, err
	}

	sctx, cancel := m.storeCtx(ctx)
	res, err := m.store.PlacePrediction(sctx, domain.Prediction{
		WagerID: wagerID,
		UserID:  userID,
		Side:    side,
		Amount:  amount,
		At:      now,
	})
	cancel()
	if err != nil {
		return nil, err
	}
	m.predictionsChanged(ctx, now, now)
	return res, nil
}

func (m *Manager) predictionsChanged(ctx context.Context, from, to time.Time) {
	if m.OnPredictionsChanged != nil {
		m.OnPredictionsChanged(ctx, from, to)
	}
}
