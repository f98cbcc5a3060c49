// Package bill defines a provider's resting capacity offer.
package bill

import (
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/types"
)

// Bill is capacity (PST) posted by a provider at a fixed price.
// Unmatched and Matched only move through order matching
// (unmatched → matched), unbill (unmatched → refunded), order
// termination (matched → burned or released) and liquidation.
type Bill struct {
	types.Entity
	ID        id.BillID   `json:"id"`
	Provider  string      `json:"provider"`
	Price     types.Fixed `json:"price"` // DMC per PST
	Unmatched int64       `json:"unmatched"`
	Matched   int64       `json:"matched"`
}

// Exhausted reports whether the bill no longer holds any capacity.
func (b *Bill) Exhausted() bool {
	return b.Unmatched == 0 && b.Matched == 0
}
