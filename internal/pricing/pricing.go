package pricing

import (
	"errors"
	"fmt"
)

// Base pricing constants. The internal sell rate is the platform's fixed
// price for one million internal tokens; provider rates below are the
// upstream OpenAI billed rates.
const (
	// USDPerMillionTokens is the internal sell rate in USD per 1M tokens.
	USDPerMillionTokens = 8.00
	// DefaultBTCPriceUSD is the fallback BTC/USD rate when the cache is
	// empty or stale.
	DefaultBTCPriceUSD = 94000.0
	// SatsPerBTC is the number of satoshis in one bitcoin.
	SatsPerBTC = 100_000_000
	// InternetSurcharge multiplies USD cost for internet-enabled models.
	InternetSurcharge = 1.25
	// FallbackBlendedCostUSD is the blended provider cost used for
	// provider models without a configured blended rate.
	FallbackBlendedCostUSD = 7.50
)

// ModelID identifies a supported model tier.
type ModelID string

// Supported model tiers. The set is closed: every ID not listed here is
// rejected with ErrInvalidModel before any provider call is attempted.
const (
	// ModelGPT4oMini is the economy tier ("Sofia 4.0").
	ModelGPT4oMini ModelID = "gpt-4o-mini"
	// ModelGPT5 is the advanced tier ("Sofia 5.0"), served by gpt-4o.
	ModelGPT5 ModelID = "gpt-5"
	// ModelGPT5Internet is the advanced tier with internet access
	// ("Sofia 5.0+"), served by gpt-4o with a 25% surcharge.
	ModelGPT5Internet ModelID = "gpt-5-internet"
)

// ErrInvalidModel indicates a model ID outside the configured set.
var ErrInvalidModel = errors.New("invalid model")

// Model describes one supported model tier and its rates.
type Model struct {
	ID          ModelID // Unique model key.
	Name        string  // Product name.
	DisplayName string  // Name with icon for UI lists.
	Description string  // Short marketing description.
	Icon        string  // UI icon.

	// ProviderModel is the identifier sent to the upstream API. Multiple
	// tiers may map to the same provider model.
	ProviderModel string

	// Provider billed rates in USD per 1M tokens.
	InputRateUSDPerMillion  float64
	OutputRateUSDPerMillion float64

	// BlendedCostUSDPerMillion is the weighted average provider cost
	// (input:output = 1:2) used only for pre-flight estimation.
	BlendedCostUSDPerMillion float64

	// HasInternetSurcharge applies the InternetSurcharge multiplier.
	HasInternetSurcharge bool

	// AvgTokensPerMessage is the historical average consumption used for
	// pre-flight estimation, never for real billing.
	AvgTokensPerMessage int64
}

// models lists every supported tier in display order.
var models = []Model{
	{
		ID:                       ModelGPT4oMini,
		Name:                     "Sofia 4.0",
		DisplayName:              "Sofia 4.0 ⚡",
		Description:              "Economy tier for quick conversations",
		Icon:                     "⚡",
		ProviderModel:            "gpt-4o-mini",
		InputRateUSDPerMillion:   0.15,
		OutputRateUSDPerMillion:  0.60,
		BlendedCostUSDPerMillion: 0.45,
		HasInternetSurcharge:     false,
		AvgTokensPerMessage:      300,
	},
	{
		ID:                       ModelGPT5,
		Name:                     "Sofia 5.0",
		DisplayName:              "Sofia 5.0 💎",
		Description:              "Advanced tier for serious work",
		Icon:                     "💎",
		ProviderModel:            "gpt-4o",
		InputRateUSDPerMillion:   2.50,
		OutputRateUSDPerMillion:  10.00,
		BlendedCostUSDPerMillion: 7.50,
		HasInternetSurcharge:     false,
		AvgTokensPerMessage:      600,
	},
	{
		ID:                       ModelGPT5Internet,
		Name:                     "Sofia 5.0+",
		DisplayName:              "Sofia 5.0+ 🌐",
		Description:              "Real-time internet access",
		Icon:                     "🌐",
		ProviderModel:            "gpt-4o",
		InputRateUSDPerMillion:   2.50,
		OutputRateUSDPerMillion:  10.00,
		BlendedCostUSDPerMillion: 7.50,
		HasInternetSurcharge:     true,
		AvgTokensPerMessage:      1200,
	},
}

// Models returns all supported model descriptors in display order.
func Models() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// ModelByID resolves a model descriptor, returning ErrInvalidModel for
// unknown IDs.
func ModelByID(id ModelID) (Model, error) {
	for _, m := range models {
		if m.ID == id {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrInvalidModel, string(id))
}
