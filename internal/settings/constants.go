package settings

import "time"

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "Sofia"
	// BTCPriceUSDKey stores the cached BTC/USD rate.
	BTCPriceUSDKey = "BTC_PRICE_USD"
	// BTCPriceUpdatedAtKey stores the timestamp of the last rate refresh.
	BTCPriceUpdatedAtKey = "BTC_PRICE_UPDATED_AT"
	// DefaultBTCRateRefreshInterval is the fallback refresh cadence.
	DefaultBTCRateRefreshInterval = 24 * time.Hour
	// DefaultBTCRateStaleAfter is how old a cached rate may get before
	// conversions fall back to the hardcoded default.
	DefaultBTCRateStaleAfter = 48 * time.Hour
	// DefaultOutboxRetryInterval is the fallback pending-credit replay cadence.
	DefaultOutboxRetryInterval = time.Minute
	// DefaultRateLimit is the fallback per-user request limit per second
	// (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "sofia:rl"
	// DefaultTransactionPageLimit caps transaction history responses.
	DefaultTransactionPageLimit = 50
	// MaxTransactionPageLimit is the hard cap on requested history sizes.
	MaxTransactionPageLimit = 200
)
