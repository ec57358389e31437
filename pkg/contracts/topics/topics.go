package topics

const (
	// Liquidação de apostas
	WagerSettled = "wager_settled"

	// Prêmio quinzenal
	PrizePeriodExecuted = "prize_period_executed"
)
