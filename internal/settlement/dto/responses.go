package dto

import (
	"github.com/radieske/vs-wager-platform/internal/settlement/domain"
	"github.com/radieske/vs-wager-platform/internal/settlement/ledger"
	"github.com/radieske/vs-wager-platform/internal/settlement/payout"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SettleResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Wager    domain.Wager     `json:"wager"`
	Payouts  []payout.Payout  `json:"payouts"`
	Outcomes []ledger.Outcome `json:"outcomes"`
}

type PredictResponse struct {
	Success bool `json:"success"`
	domain.PredictionResult
}
