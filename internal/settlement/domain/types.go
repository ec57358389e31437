// Package domain define os registros tipados do ledger de apostas: apostas,
// carteiras, transações e os registros de execução (settlement/prize runs).
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Side1 Side = "side1"
	Side2 Side = "side2"
)

func (s Side) Valid() bool { return s == Side1 || s == Side2 }

// ParseSide valida o lado vindo da borda (HTTP, config)
func ParseSide(v string) (Side, error) {
	s := Side(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: side must be 'side1' or 'side2'", ErrValidation)
	}
	return s, nil
}

type WagerStatus string

const (
	WagerActive WagerStatus = "active"
	WagerEnded  WagerStatus = "ended"
)

type TxType string

const (
	TxPrediction    TxType = "prediction"
	TxPayout        TxType = "payout"
	TxPurchase      TxType = "purchase"
	TxBiweeklyPrize TxType = "biweekly_prize"
)

type Currency string

const (
	CurrencyVS   Currency = "VS"
	CurrencyUSDC Currency = "USDC"
	CurrencySOL  Currency = "SOL"
)

type TxStatus string

const TxCompleted TxStatus = "completed"

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
)

// Wager é uma aposta pari-mutuel de dois lados.
// WinningSide é nil enquanto ativa e preenchido quando encerrada.
type Wager struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category"`
	Side1        string          `json:"side1"`
	Side2        string          `json:"side2"`
	IsPublic     bool            `json:"isPublic"`
	Side1Amount  decimal.Decimal `json:"side1Amount"`
	Side2Amount  decimal.Decimal `json:"side2Amount"`
	WagerStatus  WagerStatus     `json:"wagerStatus"`
	WinningSide  *Side           `json:"winningSide"`
	WagerEndTime time.Time       `json:"wagerEndTime"`
	CreatedByID  int64           `json:"createdById"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Pool é o total apostado nos dois lados (T)
func (w Wager) Pool() decimal.Decimal { return w.Side1Amount.Add(w.Side2Amount) }

// StakeOn é o total apostado em um lado (C quando side é o vencedor)
func (w Wager) StakeOn(side Side) decimal.Decimal {
	if side == Side2 {
		return w.Side2Amount
	}
	return w.Side1Amount
}

type Wallet struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"userId"`
	VSAmount   decimal.Decimal `json:"vsAmount"`
	USDCAmount decimal.Decimal `json:"usdcAmount"`
	SOLAmount  decimal.Decimal `json:"solAmount"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Transaction é uma linha append-only do ledger
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	WalletID  int64           `json:"walletId"`
	WagerID   *int64          `json:"wagerId"`
	Type      TxType          `json:"type"`
	Currency  Currency        `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	Side      *Side           `json:"side"`
	Status    TxStatus        `json:"status"`
	Reference *string         `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewWager são os campos informados na criação de uma aposta
type NewWager struct {
	Name         string
	Description  string
	Category     string
	Side1        string
	Side2        string
	IsPublic     bool
	WagerEndTime time.Time
}

type WagerFilter struct {
	Status   WagerStatus // vazio = active
	Category string
	IsPublic *bool
}

// Prediction é um pedido de aposta de um usuário em um lado
type Prediction struct {
	WagerID int64
	UserID  int64
	Side    Side
	Amount  decimal.Decimal
	At      time.Time
}

type PredictionResult struct {
	Wager         Wager           `json:"wager"`
	WalletID      int64           `json:"walletId"`
	VSBalance     decimal.Decimal `json:"vsBalance"`
	TransactionID int64           `json:"transactionId"`
}

// Stake é uma linha de prediction/VS de um usuário, em valor absoluto
type Stake struct {
	UserID int64
	Amount decimal.Decimal
}

// Credit é um crédito USDC a aplicar numa carteira junto com a transação pareada.
// Reference é a chave de idempotência gravada na transação.
type Credit struct {
	UserID    int64
	WagerID   *int64
	Type      TxType
	Amount    decimal.Decimal
	Reference string
}

type SettlementRun struct {
	WagerID     int64
	WinningSide Side
	Status      RunStatus
	CreatedAt   time.Time
}

// PeriodPrediction é uma prediction do período junto com o resultado da aposta
type PeriodPrediction struct {
	UserID      int64
	Amount      decimal.Decimal // valor absoluto
	Side        *Side
	CreatedAt   time.Time
	WinningSide *Side // nil se a aposta ainda não foi liquidada
}

type PrizeRun struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalSpent  decimal.Decimal
	Pool        decimal.Decimal
	TotalPoints decimal.Decimal
	Status      RunStatus
}

type Allocation struct {
	UserID int64
	Amount decimal.Decimal
}
