package pricing

import (
	"errors"
	"fmt"
)

// PackageID identifies a recharge offering.
type PackageID string

// Recharge package IDs.
const (
	// PackageStarter is the variable-amount package ($1–$100).
	PackageStarter PackageID = "starter"
	// PackageLight is the $10 fixed package.
	PackageLight PackageID = "light"
	// PackageStandard is the $20 fixed package.
	PackageStandard PackageID = "standard"
	// PackagePro is the $50 fixed package.
	PackagePro PackageID = "pro"
	// PackageEnterprise is the $100 fixed package.
	PackageEnterprise PackageID = "enterprise"
)

// ErrInvalidPackage indicates a package ID outside the configured set.
var ErrInvalidPackage = errors.New("invalid package")

// Package describes one recharge offering. Token amounts are always derived
// from the USD price at quote time so the internal rate cannot drift from a
// stored token figure.
type Package struct {
	ID          PackageID // Unique package key.
	Name        string    // Display name.
	Description string    // Short description.
	Popular     bool      // Highlighted in the UI.

	// Custom marks a variable-amount package constrained to
	// [MinUSD, MaxUSD]. Fixed packages use USDPrice.
	Custom   bool
	USDPrice float64
	MinUSD   float64
	MaxUSD   float64
}

// packages lists every recharge offering in display order.
var packages = []Package{
	{
		ID:          PackageStarter,
		Name:        "Starter",
		Description: "Choose how much to add (minimum $1)",
		Custom:      true,
		MinUSD:      1.00,
		MaxUSD:      100.00,
	},
	{
		ID:          PackageLight,
		Name:        "Light",
		Description: "Ideal for occasional use",
		USDPrice:    10.00,
	},
	{
		ID:          PackageStandard,
		Name:        "Standard",
		Description: "Best value",
		Popular:     true,
		USDPrice:    20.00,
	},
	{
		ID:          PackagePro,
		Name:        "Pro",
		Description: "For intensive use",
		USDPrice:    50.00,
	},
	{
		ID:          PackageEnterprise,
		Name:        "Enterprise",
		Description: "Maximum volume",
		USDPrice:    100.00,
	},
}

// Packages returns all recharge offerings in display order.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

// PackageByID resolves a package descriptor, returning ErrInvalidPackage
// for unknown IDs.
func PackageByID(id PackageID) (Package, error) {
	for _, p := range packages {
		if p.ID == id {
			return p, nil
		}
	}
	return Package{}, fmt.Errorf("%w: %q", ErrInvalidPackage, string(id))
}

// PackageQuote is a priced package at the current BTC/USD rate.
type PackageQuote struct {
	Package Package // The quoted offering.

	USDPrice    float64 // Effective USD price (clamped for custom packages).
	Tokens      int64   // Tokens credited on purchase, derived from USDPrice.
	Sats        int64   // Invoice amount in satoshis at the quoted rate.
	BTCPriceUSD float64 // BTC/USD rate used for the sats price.

	// MessagesEstimate maps model IDs to the approximate number of
	// messages the credited tokens cover.
	MessagesEstimate map[ModelID]int64
}

// Quote prices a package at the given BTC/USD rate. For custom packages
// customUSD is clamped to the package's [MinUSD, MaxUSD]; for fixed
// packages it is ignored.
func Quote(pkg Package, customUSD, btcPriceUSD float64) PackageQuote {
	usd := pkg.USDPrice
	if pkg.Custom {
		usd = customUSD
		if usd < pkg.MinUSD {
			usd = pkg.MinUSD
		}
		if usd > pkg.MaxUSD {
			usd = pkg.MaxUSD
		}
	}
	if btcPriceUSD <= 0 {
		btcPriceUSD = DefaultBTCPriceUSD
	}

	tokens := USDToTokens(usd)
	estimates := make(map[ModelID]int64, len(models))
	for _, m := range models {
		if m.AvgTokensPerMessage > 0 {
			estimates[m.ID] = tokens / m.AvgTokensPerMessage
		}
	}

	return PackageQuote{
		Package:          pkg,
		USDPrice:         usd,
		Tokens:           tokens,
		Sats:             USDToSats(usd, btcPriceUSD),
		BTCPriceUSD:      btcPriceUSD,
		MessagesEstimate: estimates,
	}
}
