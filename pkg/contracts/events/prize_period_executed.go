package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento publicado quando um período quinzenal é executado (ou retomado).
type PrizePeriodExecuted struct {
	EventID     string          `json:"event_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	Pool        decimal.Decimal `json:"pool"`
	PaidUSDC    decimal.Decimal `json:"paid_usdc"`
	Recipients  int             `json:"recipients"`
	Failed      int             `json:"failed"`
	Resumed     bool            `json:"resumed"`
	Ts          time.Time       `json:"ts"`
}
