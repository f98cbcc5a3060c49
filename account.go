package dmc

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/dmc/account"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/types"
)

// ──────────────────────────────────────────────────
// Ledger primitives
// ──────────────────────────────────────────────────

// debit removes a from the owner's free balance.
func (t *txn) debit(owner string, a types.Asset) error {
	if a.Amount < 0 {
		return ErrNegative
	}
	if a.Amount == 0 {
		return nil
	}

	b, err := t.balance(owner, a.Symbol)
	if err != nil {
		return err
	}
	if b.Amount < a.Amount {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, owner, b.Asset(), a)
	}

	b.Amount -= a.Amount
	t.putBalance(b)
	return nil
}

// credit adds a to the owner's free balance, creating it when missing.
func (t *txn) credit(owner string, a types.Asset) error {
	if a.Amount < 0 {
		return ErrNegative
	}
	if a.Amount == 0 {
		return nil
	}

	b, err := t.balance(owner, a.Symbol)
	if err != nil {
		return err
	}
	sum, err := types.AddChecked(b.Amount, a.Amount)
	if err != nil {
		return invariant(err)
	}

	b.Amount = sum
	t.putBalance(b)
	return nil
}

// lockedCredit credits a to the owner, spendable from unlockAt on.
func (t *txn) lockedCredit(owner string, a types.Asset, unlockAt time.Time) error {
	if !unlockAt.After(t.now) {
		return t.credit(owner, a)
	}
	if a.Amount <= 0 {
		return t.credit(owner, a)
	}

	rows, err := t.listLocked(owner, a.Symbol)
	if err != nil {
		return err
	}
	row := &account.Locked{Owner: owner, Symbol: a.Symbol, UnlockAt: unlockAt.UTC()}
	for _, l := range rows {
		if l.UnlockAt.Equal(row.UnlockAt) {
			row = l
			break
		}
	}

	sum, err := types.AddChecked(row.Amount, a.Amount)
	if err != nil {
		return invariant(err)
	}
	row.Amount = sum
	t.putLocked(row)
	return nil
}

// lockedDebit releases every matured locked row of the owner into the free
// balance and returns the released amount.
func (t *txn) lockedDebit(owner string, sym types.Symbol) (int64, error) {
	rows, err := t.listLocked(owner, sym)
	if err != nil {
		return 0, err
	}

	var released int64
	for _, l := range rows {
		if !l.Matured(t.now) {
			continue
		}
		if err := t.credit(owner, types.Asset{Amount: l.Amount, Symbol: sym}); err != nil {
			return 0, err
		}
		if released, err = types.AddChecked(released, l.Amount); err != nil {
			return 0, invariant(err)
		}
		t.deleteLocked(l)
	}
	return released, nil
}

// mint creates a and credits it to the owner.
func (t *txn) mint(owner string, a types.Asset) error {
	if a.Amount == 0 {
		return nil
	}
	s, err := t.supplyOf(a.Symbol)
	if err != nil {
		return err
	}
	sum, err := types.AddChecked(s.Supply, a.Amount)
	if err != nil {
		return invariant(err)
	}
	s.Supply = sum
	t.putSupply(s)
	return t.credit(owner, a)
}

// burnSupply destroys amount of sym that is already off every balance.
func (t *txn) burnSupply(sym types.Symbol, amount int64) error {
	if amount == 0 {
		return nil
	}
	s, err := t.supplyOf(sym)
	if err != nil {
		return err
	}
	left, err := types.SubNonNegative(s.Supply, amount)
	if err != nil {
		return invariant(err)
	}
	s.Supply = left
	t.putSupply(s)
	return nil
}

// ──────────────────────────────────────────────────
// Token operations
// ──────────────────────────────────────────────────

// Issue mints deposit or reward tokens into an account. Capacity tokens are
// only minted against collateral, see Mint.
func (m *Market) Issue(ctx context.Context, to string, a types.Asset) error {
	return m.exec(ctx, "issue", func(t *txn) error {
		if err := t.requireSystem(); err != nil {
			return err
		}
		if a.Symbol != types.DMC && a.Symbol != types.RSI {
			return ErrInvalidSymbol
		}
		if a.Amount <= 0 {
			return ErrInvalidAmount
		}
		if to == "" {
			return ValidationError{Field: "to", Message: "account is required"}
		}

		if err := t.mint(to, a); err != nil {
			return err
		}
		return t.record(journal.KindTokenIssued, to, to, map[string]int64{string(a.Symbol): a.Amount}, nil)
	})
}

// Transfer moves tokens between two accounts on behalf of from.
func (m *Market) Transfer(ctx context.Context, from, to string, a types.Asset) error {
	return m.exec(ctx, "transfer", func(t *txn) error {
		if err := t.requireAuthority(from); err != nil {
			return err
		}
		if !a.Symbol.Valid() {
			return ErrInvalidSymbol
		}
		if a.Amount <= 0 {
			return ErrInvalidAmount
		}
		if to == "" {
			return ValidationError{Field: "to", Message: "account is required"}
		}
		if from == to {
			return ErrSameAccount
		}

		if err := t.debit(from, a); err != nil {
			return err
		}
		if err := t.credit(to, a); err != nil {
			return err
		}
		return t.record(journal.KindTokenTransferred, to, from, map[string]int64{string(a.Symbol): a.Amount}, nil)
	})
}

// Unlock moves the owner's matured locked balances of sym into the free
// balance and returns the amount released.
func (m *Market) Unlock(ctx context.Context, owner string, sym types.Symbol) (types.Asset, error) {
	var out types.Asset
	err := m.exec(ctx, "unlock", func(t *txn) error {
		if err := t.requireAuthority(owner); err != nil {
			return err
		}
		if !sym.Valid() {
			return ErrInvalidSymbol
		}

		released, err := t.lockedDebit(owner, sym)
		if err != nil {
			return err
		}
		if released == 0 {
			return ErrNothingToClaim
		}

		out = types.Asset{Amount: released, Symbol: sym}
		return t.record(journal.KindTokenUnlocked, owner, owner, map[string]int64{string(sym): released}, nil)
	})
	return out, err
}

// Balance returns the owner's free balance of sym.
func (m *Market) Balance(ctx context.Context, owner string, sym types.Symbol) (types.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.GetBalance(ctx, owner, sym)
	if IsNotFound(err) {
		return types.Zero(sym), nil
	}
	if err != nil {
		return types.Asset{}, err
	}
	return b.Asset(), nil
}

// LockedBalances returns the owner's time-locked rows of sym, earliest first.
func (m *Market) LockedBalances(ctx context.Context, owner string, sym types.Symbol) ([]*account.Locked, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.ListLocked(ctx, owner, sym)
}

// Supply returns the outstanding amount of sym.
func (m *Market) Supply(ctx context.Context, sym types.Symbol) (types.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.GetSupply(ctx, sym)
	if IsNotFound(err) {
		return types.Zero(sym), nil
	}
	if err != nil {
		return types.Asset{}, err
	}
	return types.Asset{Amount: s.Supply, Symbol: sym}, nil
}
