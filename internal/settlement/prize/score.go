package prize

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
)

var (
	// RewardRate é a fração de S que vira prêmio, antes da conversão VS -> USDC
	RewardRate = decimal.RequireFromString("0.075")

	EarlyMultiplier    = decimal.NewFromInt(2)
	ReferralMultiplier = decimal.NewFromInt(1)

	hundred = decimal.NewFromInt(100)
)

const sharePctPlaces int32 = 4

// UserScore é o engajamento de um usuário no período
type UserScore struct {
	UserID             int64           `json:"userId"`
	BaseTokens         decimal.Decimal `json:"baseTokens"`
	CorrectTokens      decimal.Decimal `json:"correctTokens"`
	Accuracy           decimal.Decimal `json:"accuracy"`
	ReferralMultiplier decimal.Decimal `json:"referralMultiplier"`
	EarlyMultiplier    decimal.Decimal `json:"earlyMultiplier"`
	TotalPoints        decimal.Decimal `json:"totalPoints"`
	SharePct           decimal.Decimal `json:"prizeSharePct"`
	PrizeAmount        decimal.Decimal `json:"prizeAmountUsdc"`
}

type Distribution struct {
	Period      Period          `json:"period"`
	TotalSpent  decimal.Decimal `json:"totalTokensSpent"`
	Pool        decimal.Decimal `json:"biweeklyPrizeUsdc"`
	TotalPoints decimal.Decimal `json:"totalPoints"`
	Users       []UserScore     `json:"users"`
}

// PoolFor converte o total gasto no período no pool em USDC
func PoolFor(spent decimal.Decimal) decimal.Decimal {
	if spent.IsNegative() {
		spent = decimal.Zero
	}
	return spent.Mul(RewardRate).Mul(domain.VSToUSDCRate)
}

// Distribute calcula o score de cada usuário com prediction no período e a
// parte do pool de cada um. Usuários ordenados por userId.
func Distribute(p Period, spent decimal.Decimal, preds []domain.PeriodPrediction) Distribution {
	if spent.IsNegative() {
		spent = decimal.Zero
	}
	pool := PoolFor(spent)
	earlyCutoff := p.Start.Add(EarlyWindow)

	type acc struct {
		base, correct decimal.Decimal
		early         bool
	}
	perUser := make(map[int64]*acc)
	for _, pr := range preds {
		a, ok := perUser[pr.UserID]
		if !ok {
			a = &acc{base: decimal.Zero, correct: decimal.Zero}
			perUser[pr.UserID] = a
		}
		amt := pr.Amount.Abs()
		a.base = a.base.Add(amt)
		if pr.Side != nil && pr.WinningSide != nil && *pr.Side == *pr.WinningSide {
			a.correct = a.correct.Add(amt)
		}
		if !pr.CreatedAt.Before(p.Start) && !pr.CreatedAt.After(earlyCutoff) {
			a.early = true
		}
	}

	users := make([]UserScore, 0, len(perUser))
	total := decimal.Zero
	for id, a := range perUser {
		s := UserScore{
			UserID:             id,
			BaseTokens:         a.base,
			CorrectTokens:      a.correct,
			Accuracy:           decimal.Zero,
			ReferralMultiplier: ReferralMultiplier,
			EarlyMultiplier:    decimal.NewFromInt(1),
			TotalPoints:        decimal.Zero,
		}
		if a.early {
			s.EarlyMultiplier = EarlyMultiplier
		}
		if a.base.IsPositive() {
			s.Accuracy = a.correct.Div(a.base)
			// base × accuracy == correct; evita o erro da divisão
			s.TotalPoints = a.correct.Mul(s.ReferralMultiplier).Mul(s.EarlyMultiplier)
		}
		total = total.Add(s.TotalPoints)
		users = append(users, s)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	for i := range users {
		users[i].SharePct = decimal.Zero
		users[i].PrizeAmount = decimal.Zero
		if !total.IsPositive() {
			continue
		}
		users[i].SharePct = users[i].TotalPoints.Mul(hundred).Div(total).Truncate(sharePctPlaces)
		users[i].PrizeAmount = domain.RoundUSDC(users[i].TotalPoints.Mul(pool).Div(total))
	}

	return Distribution{Period: p, TotalSpent: spent, Pool: pool, TotalPoints: total, Users: users}
}

// Allocations são os créditos positivos da distribuição
func (d Distribution) Allocations() []domain.Allocation {
	out := make([]domain.Allocation, 0, len(d.Users))
	for _, u := range d.Users {
		if u.PrizeAmount.IsPositive() {
			out = append(out, domain.Allocation{UserID: u.UserID, Amount: u.PrizeAmount})
		}
	}
	return out
}
