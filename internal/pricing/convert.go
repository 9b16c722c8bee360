package pricing

import "fmt"

// USDToTokens converts a USD amount into internal tokens at the fixed sell
// rate, rounding down.
func USDToTokens(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(usd / USDPerMillionTokens * 1_000_000)
}

// TokensToUSD converts internal tokens into their USD value at the fixed
// sell rate.
func TokensToUSD(tokens int64) float64 {
	return float64(tokens) / 1_000_000 * USDPerMillionTokens
}

// USDToSats converts a USD amount into satoshis at the given BTC/USD rate,
// rounding down. A non-positive rate falls back to DefaultBTCPriceUSD so a
// broken rate feed never divides by zero or prices a purchase negative.
func USDToSats(usd, btcPriceUSD float64) int64 {
	if usd <= 0 {
		return 0
	}
	if btcPriceUSD <= 0 {
		btcPriceUSD = DefaultBTCPriceUSD
	}
	return int64(usd / btcPriceUSD * SatsPerBTC)
}

// SatsToUSD converts satoshis into USD at the given BTC/USD rate. A
// non-positive rate falls back to DefaultBTCPriceUSD.
func SatsToUSD(sats int64, btcPriceUSD float64) float64 {
	if sats <= 0 {
		return 0
	}
	if btcPriceUSD <= 0 {
		btcPriceUSD = DefaultBTCPriceUSD
	}
	return float64(sats) / SatsPerBTC * btcPriceUSD
}

// FormatTokens renders a token count for display (2.50M, 500k, 42).
func FormatTokens(tokens int64) string {
	switch {
	case tokens >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000)
	case tokens >= 1_000:
		return fmt.Sprintf("%.0fk", float64(tokens)/1_000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}
