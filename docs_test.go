package dmc_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/store/memory"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for the demo; use PostgreSQL or Badger in production.
		store := memory.New()

		clock := dmc.ClockFunc(func() time.Time { return t0 })
		m := dmc.New(store,
			dmc.WithLogger(slog.Default()),
			dmc.WithClock(clock),
			dmc.WithBatchLimit(50),
		)

		ctx := context.Background()
		if err := m.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer m.Stop()

		// The system account funds the participants.
		sys := dmc.WithPrincipal(ctx, dmc.DefaultSystemAccount)
		if err := m.Issue(sys, "alice", dmc.NewDMC(5_000_000)); err != nil {
			t.Fatal(err)
		}
		if err := m.Issue(sys, "bob", dmc.NewDMC(1_000_000)); err != nil {
			t.Fatal(err)
		}

		// Alice opens a collateral pool and mints capacity against it.
		alice := dmc.WithPrincipal(ctx, "alice")
		if _, err := m.Increase(alice, "alice", "alice", dmc.NewDMC(2_000_000)); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Mint(alice, "alice", 100); err != nil {
			t.Fatal(err)
		}

		// Post 100 PST at 0.5 DMC each.
		b, err := m.Bill(alice, "alice", 100, dmc.MustParseFixed("0.5"))
		if err != nil {
			t.Fatal(err)
		}

		// Bob reserves 40 PST with one extra installment in reserve.
		bob := dmc.WithPrincipal(ctx, "bob")
		o, err := m.Order(bob, "bob", b.ID, 40, dmc.NewDMC(200_000))
		if err != nil {
			t.Fatal(err)
		}

		// Delivery starts once both parties agree on the data's Merkle root.
		leaves := []challenge.Hash{challenge.Leaf([]byte("a")), challenge.Leaf([]byte("b"))}
		root := challenge.Root(leaves)
		if _, err := m.SubmitMerkle(bob, "bob", o.ID, root, 2); err != nil {
			t.Fatal(err)
		}
		if _, err := m.SubmitMerkle(alice, "alice", o.ID, root, 2); err != nil {
			t.Fatal(err)
		}

		got, err := m.GetOrder(ctx, o.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("order %s is %s, %s escrowed\n", got.ID, got.State, dmc.NewDMC(got.Escrowed()))

		stateRoot, seq, err := m.StateRoot(ctx)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("state root %x after %d receipts\n", stateRoot, seq)
	})

	t.Run("AssetExamples", func(t *testing.T) {
		// Constructors take base units.
		_ = dmc.NewDMC(12_345) // 1.2345 DMC
		_ = dmc.NewPST(10)     // 10 PST
		_ = dmc.NewRSI(1)      // 0.00000001 RSI
		_ = dmc.Zero(dmc.DMC)

		a := dmc.NewDMC(10_000)
		b := dmc.NewDMC(5_000)
		_ = a.Add(b)      // 1.5 DMC
		_ = a.Subtract(b) // 0.5 DMC

		if b.LessThan(a) {
			// b is less than a
		}

		_ = a.String()      // "1.0000 DMC"
		_ = a.FormatMajor() // "1.0000"

		// Prices and rates are fixed point.
		_ = dmc.MustParseFixed("0.5")
		_ = dmc.FixedFromPercent(150) // 1.5
		if _, err := dmc.ParseFixed("-1"); err == nil {
			t.Error("negative fixed-point values should be rejected")
		}
	})
}
