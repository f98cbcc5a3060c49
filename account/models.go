// Package account defines the fungible-token ledger records the market
// settles against: free balances, time-release locked balances and the
// per-symbol supply counter.
package account

import (
	"fmt"
	"time"

	"github.com/xraph/dmc/types"
)

// Balance is an owner's spendable amount of one token.
type Balance struct {
	Owner  string       `json:"owner"`
	Symbol types.Symbol `json:"symbol"`
	Amount int64        `json:"amount"`
}

// Asset returns the balance as an asset value.
func (b *Balance) Asset() types.Asset {
	return types.Asset{Amount: b.Amount, Symbol: b.Symbol}
}

// Locked is an amount credited to an owner that only becomes spendable
// at UnlockAt.
type Locked struct {
	Owner    string       `json:"owner"`
	Symbol   types.Symbol `json:"symbol"`
	Amount   int64        `json:"amount"`
	UnlockAt time.Time    `json:"unlock_at"`
}

// Matured reports whether the locked amount can be released at now.
func (l *Locked) Matured(now time.Time) bool {
	return !now.Before(l.UnlockAt)
}

// Supply tracks the outstanding amount of a token.
type Supply struct {
	Symbol types.Symbol `json:"symbol"`
	Supply int64        `json:"supply"`
}

// BalanceKey returns the storage key of an owner's balance.
func BalanceKey(owner string, sym types.Symbol) string {
	return owner + "/" + string(sym)
}

// LockedKey returns the storage key of a locked balance row.
func LockedKey(owner string, sym types.Symbol, unlockAt time.Time) string {
	return fmt.Sprintf("%s/%s/%020d", owner, sym, unlockAt.Unix())
}
