package billing

import (
	"errors"
	"testing"

	"github.com/libernet/sofia-billing/internal/pricing"
)

func TestEstimateCost(t *testing.T) {
	cases := []struct {
		model pricing.ModelID
		want  int64
	}{
		// 300 avg tokens at $0.45/1M blended -> $0.000135 -> 16.875 tokens, floored.
		{pricing.ModelGPT4oMini, 16},
		// 600 avg tokens at $7.50/1M blended -> $0.0045 -> 562.5 tokens, floored.
		{pricing.ModelGPT5, 562},
		// 1200 avg tokens at $7.50/1M with the 1.25x surcharge -> 1406.25, floored.
		{pricing.ModelGPT5Internet, 1406},
	}
	for _, tc := range cases {
		got, err := EstimateCost(tc.model)
		if err != nil {
			t.Fatalf("EstimateCost(%s): %v", tc.model, err)
		}
		if got != tc.want {
			t.Fatalf("EstimateCost(%s) = %d, want %d", tc.model, got, tc.want)
		}
	}
}

func TestEstimateCostInvalidModel(t *testing.T) {
	_, err := EstimateCost("gpt-99")
	if !errors.Is(err, pricing.ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got %v", err)
	}
}

func TestEstimateCostDeterministic(t *testing.T) {
	first, err := EstimateCost(pricing.ModelGPT5)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, errAgain := EstimateCost(pricing.ModelGPT5)
		if errAgain != nil {
			t.Fatalf("EstimateCost: %v", errAgain)
		}
		if again != first {
			t.Fatalf("estimate changed between calls: %d vs %d", first, again)
		}
	}
}

func TestCheckSufficientBalance(t *testing.T) {
	estimated, err := EstimateCost(pricing.ModelGPT5)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}

	ok, err := CheckSufficientBalance(estimated, pricing.ModelGPT5)
	if err != nil || !ok {
		t.Fatalf("expected exact balance to be sufficient, ok=%v err=%v", ok, err)
	}
	ok, err = CheckSufficientBalance(estimated-1, pricing.ModelGPT5)
	if err != nil || ok {
		t.Fatalf("expected one token short to be insufficient, ok=%v err=%v", ok, err)
	}
}

func TestShortage(t *testing.T) {
	estimated, err := EstimateCost(pricing.ModelGPT4oMini)
	if err != nil {
		t.Fatalf("EstimateCost: %v", err)
	}

	short, err := Shortage(estimated-5, pricing.ModelGPT4oMini)
	if err != nil || short != 5 {
		t.Fatalf("expected shortage 5, got %d err=%v", short, err)
	}
	short, err = Shortage(estimated+100, pricing.ModelGPT4oMini)
	if err != nil || short != 0 {
		t.Fatalf("shortage must never be negative, got %d err=%v", short, err)
	}
}

func TestMessagesRemaining(t *testing.T) {
	got, err := MessagesRemaining(100, pricing.ModelGPT4oMini)
	if err != nil {
		t.Fatalf("MessagesRemaining: %v", err)
	}
	if got != 6 {
		t.Fatalf("expected 6 messages for 100 tokens on mini tier, got %d", got)
	}
	got, err = MessagesRemaining(0, pricing.ModelGPT4oMini)
	if err != nil || got != 0 {
		t.Fatalf("expected 0 messages for empty balance, got %d err=%v", got, err)
	}
}

func TestRealCostRoundsUp(t *testing.T) {
	// 500 in + 500 out on mini: $0.000075 + $0.0003 = $0.000375 -> 46.875
	// tokens, charged as 47.
	got, err := RealCost(pricing.ModelGPT4oMini, 500, 500)
	if err != nil {
		t.Fatalf("RealCost: %v", err)
	}
	if got != 47 {
		t.Fatalf("RealCost(mini, 500, 500) = %d, want 47", got)
	}
}

func TestRealCostSurcharge(t *testing.T) {
	base, err := RealCost(pricing.ModelGPT5, 1000, 1000)
	if err != nil {
		t.Fatalf("RealCost: %v", err)
	}
	if base != 1563 {
		t.Fatalf("RealCost(gpt-5, 1000, 1000) = %d, want 1563", base)
	}

	surcharged, err := RealCost(pricing.ModelGPT5Internet, 1000, 1000)
	if err != nil {
		t.Fatalf("RealCost: %v", err)
	}
	if surcharged != 1954 {
		t.Fatalf("RealCost(gpt-5-internet, 1000, 1000) = %d, want 1954", surcharged)
	}
}

func TestRealCostZeroUsage(t *testing.T) {
	got, err := RealCost(pricing.ModelGPT5, 0, 0)
	if err != nil || got != 0 {
		t.Fatalf("expected zero charge for zero usage, got %d err=%v", got, err)
	}
}

func TestRealCostRejectsNegativeCounts(t *testing.T) {
	if _, err := RealCost(pricing.ModelGPT5, -1, 0); err == nil {
		t.Fatalf("expected error for negative input tokens")
	}
	if _, err := RealCost(pricing.ModelGPT5, 0, -1); err == nil {
		t.Fatalf("expected error for negative output tokens")
	}
}

func TestRealCostNeverUndercharges(t *testing.T) {
	for _, m := range pricing.Models() {
		for _, usage := range [][2]int64{{1, 0}, {0, 1}, {13, 37}, {999, 1001}, {123456, 654321}} {
			charge, err := RealCost(m.ID, usage[0], usage[1])
			if err != nil {
				t.Fatalf("RealCost(%s): %v", m.ID, err)
			}
			costUSD := float64(usage[0])/1_000_000*m.InputRateUSDPerMillion +
				float64(usage[1])/1_000_000*m.OutputRateUSDPerMillion
			if m.HasInternetSurcharge {
				costUSD *= pricing.InternetSurcharge
			}
			if pricing.TokensToUSD(charge) < costUSD-1e-9 {
				t.Fatalf("model %s usage %v: charge %d tokens (%f USD) below cost %f USD",
					m.ID, usage, charge, pricing.TokensToUSD(charge), costUSD)
			}
		}
	}
}
