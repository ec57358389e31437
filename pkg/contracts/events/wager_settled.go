package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento emitido após a transição active -> ended e a aplicação dos pagamentos.
type WagerSettled struct {
	EventID     string          `json:"event_id"`
	WagerID     int64           `json:"wager_id"`
	WinningSide string          `json:"winning_side"` // "side1" | "side2"
	Trigger     string          `json:"trigger"`      // "manual" | "expiry" | "resume"
	Pool        decimal.Decimal `json:"pool"`         // side1Amount + side2Amount (VS)
	PaidUSDC    decimal.Decimal `json:"paid_usdc"`
	Winners     int             `json:"winners"`
	Failed      int             `json:"failed"`
	Ts          time.Time       `json:"ts"`
}
