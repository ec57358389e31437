package domain

import "github.com/shopspring/decimal"

// USDCPlaces é a precisão de saída dos valores pagos em USDC
const USDCPlaces int32 = 6

// VSToUSDCRate converte tokens VS em USDC (R)
var VSToUSDCRate = decimal.RequireFromString("0.00002")

// RoundUSDC aplica a regra monetária única de saída: trunca em 6 casas.
// Truncar garante que a soma dos pagamentos nunca passe do pool distribuível.
func RoundUSDC(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(USDCPlaces)
}
