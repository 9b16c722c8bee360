package pricing

import (
	"errors"
	"testing"
)

func TestPackageByID(t *testing.T) {
	pkg, err := PackageByID(PackageStandard)
	if err != nil {
		t.Fatalf("PackageByID: %v", err)
	}
	if pkg.USDPrice != 20.00 {
		t.Fatalf("expected standard package at $20, got %f", pkg.USDPrice)
	}

	_, err = PackageByID("platinum")
	if !errors.Is(err, ErrInvalidPackage) {
		t.Fatalf("expected ErrInvalidPackage, got %v", err)
	}
}

func TestQuoteFixedPackage(t *testing.T) {
	pkg, err := PackageByID(PackageLight)
	if err != nil {
		t.Fatalf("PackageByID: %v", err)
	}

	quote := Quote(pkg, 999, 94000)
	if quote.USDPrice != 10.00 {
		t.Fatalf("custom amount must be ignored for fixed packages, got %f", quote.USDPrice)
	}
	if quote.Tokens != 1_250_000 {
		t.Fatalf("expected 1250000 tokens for $10, got %d", quote.Tokens)
	}
	if quote.Sats != 10638 {
		t.Fatalf("expected 10638 sats for $10 at 94000, got %d", quote.Sats)
	}
	if got := quote.MessagesEstimate[ModelGPT4oMini]; got != 1_250_000/300 {
		t.Fatalf("expected %d messages on mini tier, got %d", 1_250_000/300, got)
	}
}

func TestQuoteCustomPackageClamping(t *testing.T) {
	pkg, err := PackageByID(PackageStarter)
	if err != nil {
		t.Fatalf("PackageByID: %v", err)
	}

	low := Quote(pkg, 0.10, 94000)
	if low.USDPrice != pkg.MinUSD {
		t.Fatalf("expected clamp to min $%.2f, got %f", pkg.MinUSD, low.USDPrice)
	}
	high := Quote(pkg, 5000, 94000)
	if high.USDPrice != pkg.MaxUSD {
		t.Fatalf("expected clamp to max $%.2f, got %f", pkg.MaxUSD, high.USDPrice)
	}
	mid := Quote(pkg, 42.50, 94000)
	if mid.USDPrice != 42.50 {
		t.Fatalf("expected $42.50 kept, got %f", mid.USDPrice)
	}
}

func TestQuoteFallbackRate(t *testing.T) {
	pkg, err := PackageByID(PackageLight)
	if err != nil {
		t.Fatalf("PackageByID: %v", err)
	}
	quote := Quote(pkg, 0, 0)
	if quote.BTCPriceUSD != DefaultBTCPriceUSD {
		t.Fatalf("expected fallback btc price, got %f", quote.BTCPriceUSD)
	}
	if quote.Sats != USDToSats(10, DefaultBTCPriceUSD) {
		t.Fatalf("expected sats at fallback rate, got %d", quote.Sats)
	}
}
