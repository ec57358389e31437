package prize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
)

func TestCurrentPeriod(t *testing.T) {
	cases := []struct {
		name  string
		now   time.Time
		start time.Time
	}{
		{"anchor", Anchor, Anchor},
		{"inside first", Anchor.Add(5 * 24 * time.Hour), Anchor},
		{"last ms of first", Anchor.Add(Length - time.Millisecond), Anchor},
		{"second", Anchor.Add(Length), Anchor.Add(Length)},
		{"before anchor", Anchor.Add(-time.Hour), Anchor.Add(-Length)},
		{"exact negative boundary", Anchor.Add(-Length), Anchor.Add(-Length)},
		{"later", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := CurrentPeriod(tc.now)
			assert.True(t, tc.start.Equal(p.Start), "start = %s", p.Start)
			assert.True(t, p.End.Equal(p.Start.Add(Length-time.Millisecond)))
			assert.True(t, p.Contains(tc.now))
		})
	}
}

func TestPrevious(t *testing.T) {
	p := CurrentPeriod(Anchor.Add(Length + time.Hour)).Previous()
	assert.True(t, Anchor.Equal(p.Start))
	assert.True(t, p.End.Equal(Anchor.Add(Length-time.Millisecond)))
}

func TestResolvePeriod(t *testing.T) {
	now := Anchor.Add(time.Hour)
	s := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := s.Add(48 * time.Hour)

	p, err := ResolvePeriod(now, nil, nil)
	require.NoError(t, err)
	assert.True(t, Anchor.Equal(p.Start))

	p, err = ResolvePeriod(now, &s, &e)
	require.NoError(t, err)
	assert.Equal(t, Period{Start: s, End: e}, p)

	_, err = ResolvePeriod(now, &s, nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = ResolvePeriod(now, &e, &s)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = ResolvePeriod(now, &s, &s)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSubMillisecondTailBelongsToPeriod(t *testing.T) {
	first := CurrentPeriod(Anchor)
	tail := Anchor.Add(Length - 500*time.Microsecond)

	assert.True(t, first.Contains(tail))
	assert.False(t, CurrentPeriod(tail).Previous().Contains(tail))
	assert.True(t, CurrentPeriod(tail).Start.Equal(first.Start))
	assert.True(t, first.Until().Equal(Anchor.Add(Length)))
	assert.False(t, first.Contains(Anchor.Add(Length)))
}

func TestExplicitWindowUntilKeepsInclusiveEnd(t *testing.T) {
	s := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := Period{Start: s, End: s.Add(48 * time.Hour)}

	assert.False(t, p.Anchored())
	assert.True(t, p.Contains(p.End))
	assert.False(t, p.Contains(p.End.Add(time.Microsecond)))
}

func TestOverlaps(t *testing.T) {
	p := CurrentPeriod(Anchor)
	shifted := Period{Start: p.Start.Add(time.Second), End: p.End}

	assert.True(t, p.Overlaps(shifted))
	assert.True(t, shifted.Overlaps(p))
	assert.True(t, p.Overlaps(Period{Start: p.End, End: p.End.Add(time.Hour)}))
	assert.False(t, p.Overlaps(CurrentPeriod(Anchor.Add(Length))))
}
