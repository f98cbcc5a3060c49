package maker_test

import (
	"testing"

	"github.com/xraph/dmc/maker"
	"github.com/xraph/dmc/types"
)

const dmcUnit = 10000

func TestRate(t *testing.T) {
	tests := []struct {
		name   string
		staked int64
		minted int64
		ratio  types.Fixed
		want   types.Fixed
	}{
		{"nothing minted", 1000, 0, types.One, maker.RateCap},
		{"nothing staked", 0, 10, types.One, 0},
		{"exactly covered", 10 * dmcUnit, 10, types.One, types.One},
		{"double", 20 * dmcUnit, 10, types.One, 2 * types.One},
		{"half price pst", 10 * dmcUnit, 10, types.One / 2, 2 * types.One},
		{"one and a half", 15 * dmcUnit, 10, types.One, types.One + types.One/2},
		{"saturated", 1 << 60, 1, types.One, maker.MaxRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maker.Rate(tt.staked, tt.minted, tt.ratio, dmcUnit); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMintCap(t *testing.T) {
	m := &maker.Maker{TotalStaked: 200 * dmcUnit}
	if got := m.MintCap(200, types.One, dmcUnit); got != 100 {
		t.Errorf("cap: got %d, want 100", got)
	}
	m.Minted = 60
	if got := m.MintCap(200, types.One, dmcUnit); got != 40 {
		t.Errorf("cap after mint: got %d, want 40", got)
	}
	m.Minted = 150
	if got := m.MintCap(200, types.One, dmcUnit); got != 0 {
		t.Errorf("cap when over-minted: got %d, want 0", got)
	}
}

func TestShares(t *testing.T) {
	m := &maker.Maker{TotalStaked: 1000, TotalWeight: 500}

	w, err := m.WeightFor(200)
	if err != nil || w != 100 {
		t.Fatalf("WeightFor: got %d (%v), want 100", w, err)
	}
	v, err := m.ValueOf(100)
	if err != nil || v != 200 {
		t.Fatalf("ValueOf: got %d (%v), want 200", v, err)
	}

	if !m.ShareAtLeast(100, types.FixedFromPercent(20)) {
		t.Error("100/500 should satisfy 20%")
	}
	if m.ShareAtLeast(99, types.FixedFromPercent(20)) {
		t.Error("99/500 should not satisfy 20%")
	}
}

func TestIsDust(t *testing.T) {
	m := &maker.Maker{TotalWeight: 9999}
	if m.IsDust(1) {
		t.Error("1 of 10000 is exactly 0.01%, not dust")
	}
	m.TotalWeight = 10000
	if !m.IsDust(1) {
		t.Error("1 of 10001 is below 0.01%")
	}
}
