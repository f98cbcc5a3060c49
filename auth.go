package dmc

import (
	"context"
	"fmt"
)

type principalKey struct{}

// WithPrincipal returns a context carrying the identity that invokes a
// market call.
func WithPrincipal(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, principalKey{}, name)
}

// PrincipalFrom returns the invoking identity stored in ctx.
func PrincipalFrom(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(principalKey{}).(string)
	return name, ok && name != ""
}

// requireAuthority aborts the call unless it is invoked by principal.
func (t *txn) requireAuthority(principal string) error {
	if t.principal == "" {
		return ErrNoPrincipal
	}
	if t.principal != principal {
		return fmt.Errorf("%w: want %q, got %q", ErrNotAuthority, principal, t.principal)
	}
	return nil
}

// requireAnyPrincipal aborts the call unless some identity invokes it.
func (t *txn) requireAnyPrincipal() error {
	if t.principal == "" {
		return ErrNoPrincipal
	}
	return nil
}

// requireSystem aborts the call unless it is invoked by the system account.
func (t *txn) requireSystem() error {
	return t.requireAuthority(t.m.system)
}
