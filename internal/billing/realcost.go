package billing

import (
	"fmt"

	"github.com/libernet/sofia-billing/internal/pricing"
)

// RealCost returns the exact charge in internal tokens for a completed
// provider call, from the real input/output token counts the provider
// reported. The USD cost converts to internal tokens rounding UP: any
// fractional remainder adds one token, so the charge never undercuts the
// provider's actual cost. Zero usage yields zero charge.
func RealCost(modelID pricing.ModelID, inputTokens, outputTokens int64) (int64, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return 0, fmt.Errorf("billing: negative token count (input=%d output=%d)", inputTokens, outputTokens)
	}

	m, err := pricing.ModelByID(modelID)
	if err != nil {
		return 0, err
	}

	inputUSD := float64(inputTokens) / 1_000_000 * m.InputRateUSDPerMillion
	outputUSD := float64(outputTokens) / 1_000_000 * m.OutputRateUSDPerMillion
	costUSD := inputUSD + outputUSD
	if m.HasInternetSurcharge {
		costUSD *= pricing.InternetSurcharge
	}

	exact := costUSD / pricing.USDPerMillionTokens * 1_000_000
	charge := int64(exact)
	if exact > float64(charge) {
		charge++
	}
	return charge, nil
}

// SatsToTokens converts a satoshi amount into internal tokens at the given
// BTC/USD rate.
func SatsToTokens(sats int64, btcPriceUSD float64) int64 {
	return pricing.USDToTokens(pricing.SatsToUSD(sats, btcPriceUSD))
}

// TokensToSats converts internal tokens into satoshis at the given BTC/USD
// rate.
func TokensToSats(tokens int64, btcPriceUSD float64) int64 {
	return pricing.USDToSats(pricing.TokensToUSD(tokens), btcPriceUSD)
}
