package prize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
)

func side(s domain.Side) *domain.Side { return &s }

func pred(user int64, amount string, s, winning *domain.Side, at time.Time) domain.PeriodPrediction {
	return domain.PeriodPrediction{UserID: user, Amount: decimal.RequireFromString(amount), Side: s, WinningSide: winning, CreatedAt: at}
}

func TestDistributeEqualShares(t *testing.T) {
	p := CurrentPeriod(Anchor)
	late := p.Start.Add(3 * 24 * time.Hour)
	preds := []domain.PeriodPrediction{
		pred(1, "25000", side(domain.Side1), side(domain.Side1), late),
		pred(2, "25000", side(domain.Side2), side(domain.Side2), late),
	}

	d := Distribute(p, decimal.NewFromInt(50000), preds)

	assert.Equal(t, "0.075", d.Pool.String())
	require.Len(t, d.Users, 2)
	for _, u := range d.Users {
		assert.Equal(t, "0.0375", u.PrizeAmount.String())
		assert.Equal(t, "50", u.SharePct.String())
		assert.Equal(t, "1", u.Accuracy.String())
		assert.Equal(t, "1", u.EarlyMultiplier.String())
	}
	assert.Len(t, d.Allocations(), 2)
}

func TestDistributeScoring(t *testing.T) {
	p := CurrentPeriod(Anchor)
	early := p.Start.Add(24 * time.Hour) // limite inclusivo
	late := p.Start.Add(2 * 24 * time.Hour)

	preds := []domain.PeriodPrediction{
		// usuário 1: 100 certo cedo + 100 errado
		pred(1, "100", side(domain.Side1), side(domain.Side1), early),
		pred(1, "100", side(domain.Side2), side(domain.Side1), late),
		// usuário 2: 300 certo, tarde
		pred(2, "300", side(domain.Side2), side(domain.Side2), late),
		// usuário 3: aposta ainda não liquidada
		pred(3, "500", side(domain.Side1), nil, late),
	}

	d := Distribute(p, decimal.NewFromInt(1000), preds)
	require.Len(t, d.Users, 3)

	u1, u2, u3 := d.Users[0], d.Users[1], d.Users[2]
	assert.Equal(t, "200", u1.BaseTokens.String())
	assert.Equal(t, "100", u1.CorrectTokens.String())
	assert.Equal(t, "0.5", u1.Accuracy.String())
	assert.Equal(t, "2", u1.EarlyMultiplier.String())
	assert.Equal(t, "200", u1.TotalPoints.String())

	assert.Equal(t, "300", u2.TotalPoints.String())
	assert.True(t, u3.TotalPoints.IsZero())
	assert.True(t, u3.PrizeAmount.IsZero())
	assert.Equal(t, "500", d.TotalPoints.String())

	// pool = 1000 * 0.075 * 0.00002 = 0.0015
	assert.Equal(t, "0.0015", d.Pool.String())
	assert.Equal(t, "0.0006", u1.PrizeAmount.String())
	assert.Equal(t, "0.0009", u2.PrizeAmount.String())
	assert.Len(t, d.Allocations(), 2)
}

func TestDistributeSumNeverExceedsPool(t *testing.T) {
	p := CurrentPeriod(Anchor)
	at := p.Start.Add(72 * time.Hour)
	preds := []domain.PeriodPrediction{
		pred(1, "1", side(domain.Side1), side(domain.Side1), at),
		pred(2, "1", side(domain.Side1), side(domain.Side1), at),
		pred(3, "1", side(domain.Side1), side(domain.Side1), at),
	}

	d := Distribute(p, decimal.NewFromInt(1000), preds)

	sum := decimal.Zero
	for _, u := range d.Users {
		sum = sum.Add(u.PrizeAmount)
	}
	assert.True(t, sum.LessThanOrEqual(d.Pool))
	assert.True(t, d.Pool.Sub(sum).LessThan(decimal.New(1, -5)))
}

func TestDistributeNoPoints(t *testing.T) {
	p := CurrentPeriod(Anchor)
	preds := []domain.PeriodPrediction{
		pred(1, "100", side(domain.Side1), side(domain.Side2), p.Start),
	}

	d := Distribute(p, decimal.NewFromInt(-5), preds)

	assert.True(t, d.TotalSpent.IsZero())
	assert.True(t, d.Pool.IsZero())
	require.Len(t, d.Users, 1)
	assert.True(t, d.Users[0].SharePct.IsZero())
	assert.True(t, d.Users[0].PrizeAmount.IsZero())
	assert.Empty(t, d.Allocations())
}
