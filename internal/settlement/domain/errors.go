package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrForbidden       = errors.New("forbidden")
	ErrAlreadyExecuted = errors.New("prize period already executed")
	ErrStore           = errors.New("store error")

	ErrAlreadySettled    = fmt.Errorf("wager already settled: %w", ErrInvalidState)
	ErrInsufficientFunds = fmt.Errorf("insufficient VS tokens: %w", ErrValidation)

	// ErrAlreadyApplied indica que a referência do crédito já está no ledger
	ErrAlreadyApplied = errors.New("credit already applied")
)
