// Package prize calcula e distribui o prêmio quinzenal: janela do período,
// pool, score por usuário e a execução idempotente por período.
package prize

import (
	"fmt"
	"time"

	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
)

// Anchor é o início do primeiro período quinzenal
var Anchor = time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)

const (
	Length      = 14 * 24 * time.Hour
	EarlyWindow = 24 * time.Hour
)

// Period é a janela [Start, End]. End tem precisão de milissegundo para a
// saída JSON; as consultas usam o limite exclusivo de Until.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CurrentPeriod retorna o período que contém now. Instantes anteriores à
// âncora caem em períodos negativos (divisão com piso).
func CurrentPeriod(now time.Time) Period {
	d := now.Sub(Anchor)
	idx := d / Length
	if d < 0 && d%Length != 0 {
		idx--
	}
	return periodAt(Anchor.Add(idx * Length))
}

func periodAt(start time.Time) Period {
	start = start.UTC()
	return Period{Start: start, End: start.Add(Length - time.Millisecond)}
}

// Previous é o período quinzenal imediatamente anterior
func (p Period) Previous() Period { return periodAt(p.Start.Add(-Length)) }

// Anchored indica se a janela tem exatamente a duração quinzenal
func (p Period) Anchored() bool {
	return p.End.Equal(p.Start.Add(Length - time.Millisecond))
}

// OnGrid indica um período quinzenal alinhado à âncora
func (p Period) OnGrid() bool {
	return p.Anchored() && CurrentPeriod(p.Start).Start.Equal(p.Start)
}

// Until é o limite superior exclusivo. Para janelas quinzenais é o início do
// período seguinte, de modo que instantes no último milissegundo (timestamptz
// guarda microssegundos) não fiquem fora de todos os períodos.
func (p Period) Until() time.Time {
	if p.Anchored() {
		return p.Start.Add(Length)
	}
	return p.End.Add(time.Microsecond)
}

// Overlaps compara as janelas com os dois limites inclusivos
func (p Period) Overlaps(o Period) bool {
	return !p.Start.After(o.End) && !o.Start.After(p.End)
}

func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.Until())
}

// ResolvePeriod usa start/end explícitos quando ambos vêm; nenhum dos dois
// cai no período corrente
func ResolvePeriod(now time.Time, start, end *time.Time) (Period, error) {
	switch {
	case start == nil && end == nil:
		return CurrentPeriod(now), nil
	case start == nil || end == nil:
		return Period{}, fmt.Errorf("%w: start and end must be provided together", domain.ErrValidation)
	case !start.Before(*end):
		return Period{}, fmt.Errorf("%w: start must be before end", domain.ErrValidation)
	}
	return Period{Start: start.UTC(), End: end.UTC()}, nil
}
