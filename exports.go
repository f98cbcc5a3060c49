package dmc

import "github.com/xraph/dmc/types"

// Re-export common types for convenience so users don't have to import types package.

// Asset is re-exported from types package.
type Asset = types.Asset

// Fixed is re-exported from types package.
type Fixed = types.Fixed

// Symbol is re-exported from types package.
type Symbol = types.Symbol

// Entity is re-exported from types package.
type Entity = types.Entity

// Token symbols.
const (
	DMC = types.DMC
	PST = types.PST
	RSI = types.RSI
)

// Re-export Asset constructors
var (
	NewDMC = types.NewDMC
	NewPST = types.NewPST
	NewRSI = types.NewRSI
	Zero   = types.Zero
)

// Re-export fixed-point helpers
var (
	ParseFixed       = types.ParseFixed
	MustParseFixed   = types.MustParseFixed
	FixedFromPercent = types.FixedFromPercent
)
