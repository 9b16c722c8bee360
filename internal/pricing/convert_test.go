package pricing

import "testing"

func TestUSDToTokens(t *testing.T) {
	if got := USDToTokens(8.00); got != 1_000_000 {
		t.Fatalf("expected 1000000 tokens for $8, got %d", got)
	}
	if got := USDToTokens(10.00); got != 1_250_000 {
		t.Fatalf("expected 1250000 tokens for $10, got %d", got)
	}
	if got := USDToTokens(0); got != 0 {
		t.Fatalf("expected 0 tokens for $0, got %d", got)
	}
	if got := USDToTokens(-5); got != 0 {
		t.Fatalf("expected 0 tokens for negative usd, got %d", got)
	}
}

func TestTokensToUSDRoundTrip(t *testing.T) {
	for _, usd := range []float64{1, 10, 20, 50, 100} {
		tokens := USDToTokens(usd)
		back := TokensToUSD(tokens)
		if diff := usd - back; diff < -0.0001 || diff > 0.0001 {
			t.Fatalf("round trip for $%.2f: got $%.6f back", usd, back)
		}
	}
}

func TestUSDToSats(t *testing.T) {
	if got := USDToSats(20, 94000); got != 21276 {
		t.Fatalf("expected 21276 sats for $20 at 94000, got %d", got)
	}
	if got := USDToSats(0, 94000); got != 0 {
		t.Fatalf("expected 0 sats for $0, got %d", got)
	}
	// A broken rate must fall back instead of dividing by zero.
	if got := USDToSats(20, 0); got != USDToSats(20, DefaultBTCPriceUSD) {
		t.Fatalf("expected fallback rate for zero btc price, got %d", got)
	}
}

func TestSatsToUSD(t *testing.T) {
	usd := SatsToUSD(21276, 94000)
	if usd < 19.99 || usd > 20.01 {
		t.Fatalf("expected ~$20 for 21276 sats at 94000, got %f", usd)
	}
	if got := SatsToUSD(0, 94000); got != 0 {
		t.Fatalf("expected 0 usd for 0 sats, got %f", got)
	}
	if got := SatsToUSD(1000, -1); got != SatsToUSD(1000, DefaultBTCPriceUSD) {
		t.Fatalf("expected fallback rate for negative btc price, got %f", got)
	}
}

func TestFormatTokens(t *testing.T) {
	cases := []struct {
		tokens int64
		want   string
	}{
		{2_500_000, "2.50M"},
		{1_250_000, "1.25M"},
		{500_000, "500k"},
		{1_000, "1k"},
		{999, "999"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := FormatTokens(tc.tokens); got != tc.want {
			t.Fatalf("FormatTokens(%d) = %q, want %q", tc.tokens, got, tc.want)
		}
	}
}

func TestModelByID(t *testing.T) {
	m, err := ModelByID(ModelGPT5)
	if err != nil {
		t.Fatalf("ModelByID: %v", err)
	}
	if m.ProviderModel != "gpt-4o" {
		t.Fatalf("expected gpt-5 served by gpt-4o, got %q", m.ProviderModel)
	}

	if _, err := ModelByID("gpt-99"); err == nil {
		t.Fatalf("expected error for unknown model")
	}
}
