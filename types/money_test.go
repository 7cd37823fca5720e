package types

import (
	"encoding/json"
	"math"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		amount  int64
		display string
	}{
		{"SOL", SOL(70_000_000), 70_000_000, "0.070000000 SOL"},
		{"Lamports", Lamports(1), 1, "0.000000001 SOL"},
		{"Negative", SOL(-1), -1, "-0.000000001 SOL"},
		{"Whole", SOL(2 * LamportsPerSOL), 2 * LamportsPerSOL, "2.000000000 SOL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != CurrencySOL {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, CurrencySOL)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyMajor(t *testing.T) {
	tests := []struct {
		money Money
		want  float64
	}{
		{SOL(50_000_000), 0.05},
		{SOL(LamportsPerSOL), 1},
		{Money{Amount: 100_000, Currency: "usdc"}, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.money.String(), func(t *testing.T) {
			if got := tt.money.Major(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Major: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromMajor(t *testing.T) {
	got, err := FromMajor(0.07, "SOL")
	if err != nil {
		t.Fatalf("FromMajor: %v", err)
	}
	if got != SOL(70_000_000) {
		t.Errorf("FromMajor: got %v, want %v", got, SOL(70_000_000))
	}
	if got.IsZero() {
		t.Error("IsZero: expected false")
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e30} {
		if _, err := FromMajor(bad, CurrencySOL); err == nil {
			t.Errorf("FromMajor(%v): expected error", bad)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(SOL(70_000_000))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":70000000,"currency":"sol","display":"0.070000000 SOL"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var decoded Money
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if decoded != SOL(70_000_000) {
		t.Errorf("Unmarshal: got %v", decoded)
	}
}
