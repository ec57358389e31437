// Package ledger aplica créditos USDC nas carteiras, um usuário por vez,
// sempre pareando o incremento com a transação do ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/payout"
)

type OutcomeStatus string

const (
	OutcomeApplied OutcomeStatus = "applied"
	OutcomeSkipped OutcomeStatus = "skipped" // referência já aplicada antes
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome é o resultado por item de um lote de créditos
type Outcome struct {
	UserID        int64           `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Status        OutcomeStatus   `json:"status"`
	TransactionID int64           `json:"transactionId,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Store grava um crédito de forma atômica: incremento de usdc_amount e
// transação pareada na mesma transação de banco. Retorna
// domain.ErrAlreadyApplied se a referência já existir.
type Store interface {
	CreditUSDC(ctx context.Context, c domain.Credit) (txID int64, err error)
}

type Applier struct {
	store   Store
	log     *zap.Logger
	timeout time.Duration

	OnOutcome func(domain.TxType, OutcomeStatus) // métricas
}

func NewApplier(log *zap.Logger, store Store, timeout time.Duration) *Applier {
	return &Applier{store: store, log: log, timeout: timeout}
}

// Apply processa cada crédito de forma independente. Falhas de um usuário
// são registradas e não interrompem o restante do lote.
func (a *Applier) Apply(ctx context.Context, credits []domain.Credit) []Outcome {
	out := make([]Outcome, 0, len(credits))
	for _, c := range credits {
		o := Outcome{UserID: c.UserID, Amount: c.Amount}

		txID, err := a.credit(ctx, c)
		switch {
		case err == nil:
			o.Status = OutcomeApplied
			o.TransactionID = txID
		case errors.Is(err, domain.ErrAlreadyApplied):
			o.Status = OutcomeSkipped
			a.log.Info("credit already applied",
				zap.String("reference", c.Reference), zap.Int64("userId", c.UserID))
		default:
			o.Status = OutcomeFailed
			o.Error = err.Error()
			a.log.Error("credit failed",
				zap.String("type", string(c.Type)),
				zap.String("reference", c.Reference),
				zap.Int64("userId", c.UserID),
				zap.String("amount", c.Amount.String()),
				zap.Error(err),
			)
		}

		if a.OnOutcome != nil {
			a.OnOutcome(c.Type, o.Status)
		}
		out = append(out, o)
	}
	return out
}

func (a *Applier) credit(ctx context.Context, c domain.Credit) (int64, error) {
	if !c.Amount.IsPositive() {
		return 0, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.store.CreditUSDC(ctx, c)
}

// ApplyPayouts credita os vencedores de uma aposta (type=payout, currency=USDC)
func (a *Applier) ApplyPayouts(ctx context.Context, wagerID int64, payouts []payout.Payout) []Outcome {
	credits := make([]domain.Credit, 0, len(payouts))
	for _, p := range payouts {
		id := wagerID
		credits = append(credits, domain.Credit{
			UserID:    p.UserID,
			WagerID:   &id,
			Type:      domain.TxPayout,
			Amount:    p.PayoutAmount,
			Reference: PayoutReference(wagerID, p.UserID),
		})
	}
	return a.Apply(ctx, credits)
}

// PayoutReference é a chave de idempotência do pagamento de um usuário numa aposta
func PayoutReference(wagerID, userID int64) string {
	return fmt.Sprintf("payout:%d:%d", wagerID, userID)
}

// Summary conta o total aplicado (applied + skipped) e as falhas de um lote
func Summary(outs []Outcome) (paid decimal.Decimal, ok, failed int) {
	paid = decimal.Zero
	for _, o := range outs {
		if o.Status == OutcomeFailed {
			failed++
			continue
		}
		ok++
		paid = paid.Add(o.Amount)
	}
	return paid, ok, failed
}

// ApplyPrizes credita as alocações de um período (type=biweekly_prize, currency=USDC)
func (a *Applier) ApplyPrizes(ctx context.Context, periodStart time.Time, allocs []domain.Allocation) []Outcome {
	credits := make([]domain.Credit, 0, len(allocs))
	for _, al := range allocs {
		credits = append(credits, domain.Credit{
			UserID:    al.UserID,
			Type:      domain.TxBiweeklyPrize,
			Amount:    al.Amount,
			Reference: PrizeReference(periodStart, al.UserID),
		})
	}
	return a.Apply(ctx, credits)
}

// PrizeReference é a chave de idempotência do prêmio de um usuário num período
func PrizeReference(periodStart time.Time, userID int64) string {
	return fmt.Sprintf("prize:%d:%d", periodStart.Unix(), userID)
}
