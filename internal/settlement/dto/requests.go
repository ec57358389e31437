package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateWagerRequest struct {
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category"`
	Side1        string    `json:"side1"`
	Side2        string    `json:"side2"`
	IsPublic     *bool     `json:"isPublic,omitempty"` // default true
	WagerEndTime time.Time `json:"wagerEndTime"`
}

type PredictRequest struct {
	Side   string          `json:"side"` // "side1" | "side2"
	Amount decimal.Decimal `json:"amount"`
}

type SettleRequest struct {
	WinningSide *string `json:"winningSide,omitempty"` // vazio = política padrão
}

// ExecutePrizeRequest aceita um período customizado; sem start/end usa o corrente
type ExecutePrizeRequest struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}
