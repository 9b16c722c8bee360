// Package billing computes message costs in internal tokens: conservative
// pre-flight estimates used for admission control, and exact post-call
// charges from provider-reported token usage.
package billing

import (
	"github.com/libernet/sofia-billing/internal/pricing"
)

// EstimateCost returns the pre-flight cost of one message in internal
// tokens. It prices the model's historical average consumption at the
// provider's blended rate and is deterministic for a fixed configuration;
// it is used only to gate requests, never for the final charge.
func EstimateCost(modelID pricing.ModelID) (int64, error) {
	m, err := pricing.ModelByID(modelID)
	if err != nil {
		return 0, err
	}

	costUSD := float64(m.AvgTokensPerMessage) / 1_000_000 * m.BlendedCostUSDPerMillion
	if m.HasInternetSurcharge {
		costUSD *= pricing.InternetSurcharge
	}
	return pricing.USDToTokens(costUSD), nil
}

// CheckSufficientBalance reports whether balance covers the estimated cost
// of one message on the given model.
func CheckSufficientBalance(balance int64, modelID pricing.ModelID) (bool, error) {
	estimated, err := EstimateCost(modelID)
	if err != nil {
		return false, err
	}
	return balance >= estimated, nil
}

// Shortage returns how many tokens are missing to send one message, never
// negative.
func Shortage(balance int64, modelID pricing.ModelID) (int64, error) {
	estimated, err := EstimateCost(modelID)
	if err != nil {
		return 0, err
	}
	if shortage := estimated - balance; shortage > 0 {
		return shortage, nil
	}
	return 0, nil
}

// MessagesRemaining returns how many messages the balance covers at the
// estimated per-message cost. A zero estimate yields zero rather than a
// division by zero.
func MessagesRemaining(balance int64, modelID pricing.ModelID) (int64, error) {
	costPerMessage, err := EstimateCost(modelID)
	if err != nil {
		return 0, err
	}
	if costPerMessage <= 0 {
		return 0, nil
	}
	return balance / costPerMessage, nil
}
