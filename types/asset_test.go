package types

import (
	"encoding/json"
	"testing"
)

func TestAssetConstructors(t *testing.T) {
	tests := []struct {
		name    string
		asset   Asset
		amount  int64
		symbol  Symbol
		display string
	}{
		{"DMC", NewDMC(200000), 200000, DMC, "20.0000 DMC"},
		{"DMC fraction", NewDMC(15), 15, DMC, "0.0015 DMC"},
		{"PST", NewPST(40), 40, PST, "40 PST"},
		{"RSI", NewRSI(150000000), 150000000, RSI, "1.50000000 RSI"},
		{"Negative DMC", NewDMC(-12345), -12345, DMC, "-1.2345 DMC"},
		{"Zero PST", Zero(PST), 0, PST, "0 PST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.asset.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.asset.Amount, tt.amount)
			}
			if tt.asset.Symbol != tt.symbol {
				t.Errorf("Symbol: got %s, want %s", tt.asset.Symbol, tt.symbol)
			}
			if tt.asset.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.asset.String(), tt.display)
			}
		})
	}
}

func TestSymbolUnits(t *testing.T) {
	tests := []struct {
		symbol Symbol
		unit   int64
		valid  bool
	}{
		{DMC, 10000, true},
		{PST, 1, true},
		{RSI, 100000000, true},
		{Symbol("EOS"), 1, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.symbol), func(t *testing.T) {
			if got := tt.symbol.Unit(); got != tt.unit {
				t.Errorf("Unit: got %d, want %d", got, tt.unit)
			}
			if got := tt.symbol.Valid(); got != tt.valid {
				t.Errorf("Valid: got %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestAssetArithmetic(t *testing.T) {
	if got := NewDMC(100).Add(NewDMC(250)); !got.Equal(NewDMC(350)) {
		t.Errorf("Add: got %v, want %v", got, NewDMC(350))
	}
	if got := NewDMC(500).Subtract(NewDMC(200)); !got.Equal(NewDMC(300)) {
		t.Errorf("Subtract: got %v, want %v", got, NewDMC(300))
	}
	if !NewPST(1).LessThan(NewPST(2)) {
		t.Error("LessThan: expected 1 PST < 2 PST")
	}
}

func TestAssetSymbolMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on symbol mismatch")
		}
	}()
	_ = NewDMC(1).Add(NewPST(1))
}

func TestAssetJSON(t *testing.T) {
	data, err := json.Marshal(NewDMC(200000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		Amount  int64  `json:"amount"`
		Symbol  string `json:"symbol"`
		Display string `json:"display"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Amount != 200000 || got.Symbol != "DMC" || got.Display != "20.0000 DMC" {
		t.Errorf("unexpected JSON payload: %s", data)
	}
}
