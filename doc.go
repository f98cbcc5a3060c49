// Package dmc settles a two-sided storage-capacity market.
//
// A provider posts capacity (PST) at a fixed DMC price in a bill. A
// consumer reserves part of it with an order, escrowing DMC that is
// released to the provider one installment per claim interval. Delivery is
// checked by a Merkle-commitment challenge protocol, and the provider's
// collateral pool, shared with limited partners, backs the capacity it
// minted and is partially liquidated when it falls below the liquidation
// rate.
//
// dmc is a library, not a service. Every call runs to completion under one
// lock inside a unit of work that is committed whole or not at all, so a
// replayed call log yields bit-identical state.
//
// # Quick Start
//
//	m := dmc.New(memory.New())
//	if err := m.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
//	ctx = dmc.WithPrincipal(ctx, "alice")
//	b, err := m.Bill(ctx, "alice", 100, dmc.MustParseFixed("0.5"))
//
// # Time
//
// There is no background worker. Settlement, incentive accrual and
// challenge timeouts catch up whenever a call touches the record, using the
// market Clock truncated to whole seconds. SettleOrders and Liquidate take
// an explicit bound so a single call stays cheap.
//
// # Arithmetic
//
// Amounts are int64 base units: DMC has 4 decimals, PST none and RSI 8.
// Prices and rates are 32.32 fixed point. No floating point is used.
//
// # Receipts
//
// Every state transition appends a receipt to a journal whose rolling
// blake3 root is stored with the call; see StateRoot.
//
// # TypeID
//
// Bills and orders carry TypeIDs derived from per-prefix sequences:
//
//	bill_00000000000000000000000001  // first bill
//	ord_00000000000000000000000001   // first order and its challenge
package dmc
