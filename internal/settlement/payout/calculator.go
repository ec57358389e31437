// Package payout calcula os pagamentos pari-mutuel de uma aposta encerrada.
package payout

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
)

// PayoutRatio é a fração do pool devolvida aos vencedores (rake fixo de 11%)
var PayoutRatio = decimal.RequireFromString("0.89")

// Payout é o valor devido a um usuário do lado vencedor
type Payout struct {
	UserID       int64           `json:"userId"`
	PayoutAmount decimal.Decimal `json:"payoutAmount"` // USDC
	StakedAmount decimal.Decimal `json:"stakedAmount"` // VS no lado vencedor
}

// Compute aplica Wi = (Ui / C) * P * R para cada usuário do lado vencedor.
// stakes são as linhas prediction/VS desse lado; o arredondamento acontece
// uma única vez, na saída. Resultado ordenado por userId.
func Compute(w domain.Wager, winning domain.Side, stakes []domain.Stake) []Payout {
	c := w.StakeOn(winning)
	if !c.IsPositive() {
		return nil // ninguém apostou no lado vencedor
	}
	p := w.Pool().Mul(PayoutRatio)

	perUser := make(map[int64]decimal.Decimal)
	for _, s := range stakes {
		perUser[s.UserID] = perUser[s.UserID].Add(s.Amount.Abs())
	}

	users := make([]int64, 0, len(perUser))
	for id := range perUser {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	out := make([]Payout, 0, len(users))
	for _, id := range users {
		ui := perUser[id]
		wi := domain.RoundUSDC(ui.Mul(p).Mul(domain.VSToUSDCRate).Div(c))
		if !wi.IsPositive() {
			continue
		}
		out = append(out, Payout{UserID: id, PayoutAmount: wi, StakedAmount: ui})
	}
	return out
}

// Total soma os valores pagos
func Total(ps []Payout) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range ps {
		sum = sum.Add(p.PayoutAmount)
	}
	return sum
}

// Store é o subconjunto do ledger usado pelo Calculator
type Store interface {
	GetWager(ctx context.Context, id int64) (*domain.Wager, error)
	WinningStakes(ctx context.Context, wagerID int64, side domain.Side) ([]domain.Stake, error)
}

// Calculator carrega a aposta e as stakes do lado vencedor e delega a Compute
type Calculator struct {
	store Store
}

func NewCalculator(store Store) *Calculator { return &Calculator{store: store} }

func (c *Calculator) ComputePayouts(ctx context.Context, wagerID int64, winning domain.Side) ([]Payout, error) {
	if !winning.Valid() {
		return nil, fmt.Errorf("%w: invalid winning side %q", domain.ErrValidation, winning)
	}
	w, err := c.store.GetWager(ctx, wagerID)
	if err != nil {
		return nil, err
	}
	stakes, err := c.store.WinningStakes(ctx, wagerID, winning)
	if err != nil {
		return nil, err
	}
	return Compute(*w, winning, stakes), nil
}
