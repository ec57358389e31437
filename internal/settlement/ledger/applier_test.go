package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/payout"
)

// memStore simula o ledger: carteiras por usuário e referências já gravadas
type memStore struct {
	mu       sync.Mutex
	balances map[int64]decimal.Decimal
	refs     map[string]int64
	failFor  map[int64]error
	seq      int64
	deadline bool
}

func newMemStore(users ...int64) *memStore {
	s := &memStore{balances: map[int64]decimal.Decimal{}, refs: map[string]int64{}, failFor: map[int64]error{}}
	for _, u := range users {
		s.balances[u] = decimal.Zero
	}
	return s
}

func (m *memStore) CreditUSDC(ctx context.Context, c domain.Credit) (int64, error) {
	if _, ok := ctx.Deadline(); ok {
		m.deadline = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[c.UserID]; err != nil {
		return 0, err
	}
	bal, ok := m.balances[c.UserID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if _, dup := m.refs[c.Reference]; dup {
		return 0, domain.ErrAlreadyApplied
	}
	m.seq++
	m.refs[c.Reference] = m.seq
	m.balances[c.UserID] = bal.Add(c.Amount)
	return m.seq, nil
}

func payouts() []payout.Payout {
	return []payout.Payout{
		{UserID: 1, PayoutAmount: decimal.RequireFromString("0.003204")},
		{UserID: 2, PayoutAmount: decimal.RequireFromString("0.01")},
		{UserID: 3, PayoutAmount: decimal.RequireFromString("0.02")},
	}
}

func TestApplyPayoutsPartialFailure(t *testing.T) {
	store := newMemStore(1, 3) // usuário 2 sem carteira
	store.failFor[3] = errors.New("connection reset")
	a := NewApplier(zap.NewNop(), store, time.Second)

	var seen []OutcomeStatus
	a.OnOutcome = func(tt domain.TxType, s OutcomeStatus) {
		assert.Equal(t, domain.TxPayout, tt)
		seen = append(seen, s)
	}

	out := a.ApplyPayouts(context.Background(), 42, payouts())

	require.Len(t, out, 3)
	assert.Equal(t, OutcomeApplied, out[0].Status)
	assert.Equal(t, OutcomeFailed, out[1].Status)
	assert.Equal(t, OutcomeFailed, out[2].Status)
	assert.Contains(t, out[2].Error, "connection reset")
	assert.Equal(t, []OutcomeStatus{OutcomeApplied, OutcomeFailed, OutcomeFailed}, seen)
	assert.Equal(t, "0.003204", store.balances[1].String())
	assert.True(t, store.balances[3].IsZero())
	assert.True(t, store.deadline, "store calls must carry a timeout")
}

func TestApplyPayoutsIsIdempotentPerUser(t *testing.T) {
	store := newMemStore(1, 2, 3)
	a := NewApplier(zap.NewNop(), store, time.Second)

	first := a.ApplyPayouts(context.Background(), 42, payouts())
	second := a.ApplyPayouts(context.Background(), 42, payouts())

	for i := range first {
		assert.Equal(t, OutcomeApplied, first[i].Status)
		assert.Equal(t, OutcomeSkipped, second[i].Status)
	}
	assert.Equal(t, "0.01", store.balances[2].String())

	paid, ok, failed := Summary(second)
	assert.Equal(t, "0.033204", paid.String())
	assert.Equal(t, 3, ok)
	assert.Zero(t, failed)
}

func TestApplyRejectsNonPositive(t *testing.T) {
	store := newMemStore(1)
	a := NewApplier(zap.NewNop(), store, 0)

	out := a.Apply(context.Background(), []domain.Credit{{UserID: 1, Type: domain.TxBiweeklyPrize, Amount: decimal.Zero, Reference: "prize:1:1"}})

	require.Len(t, out, 1)
	assert.Equal(t, OutcomeFailed, out[0].Status)
	assert.Empty(t, store.refs)
}

func TestPayoutReference(t *testing.T) {
	assert.Equal(t, "payout:42:7", PayoutReference(42, 7))
}

func TestApplyPrizes(t *testing.T) {
	store := newMemStore(1, 2)
	a := NewApplier(zap.NewNop(), store, time.Second)
	start := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	allocs := []domain.Allocation{
		{UserID: 1, Amount: decimal.RequireFromString("0.0375")},
		{UserID: 2, Amount: decimal.RequireFromString("0.0375")},
	}

	out := a.ApplyPrizes(context.Background(), start, allocs)
	again := a.ApplyPrizes(context.Background(), start, allocs)

	assert.Equal(t, OutcomeApplied, out[1].Status)
	assert.Equal(t, OutcomeSkipped, again[1].Status)
	assert.Equal(t, "0.0375", store.balances[2].String())
	assert.Equal(t, "prize:1725148800:2", PrizeReference(start, 2))
}
