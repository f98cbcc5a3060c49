package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/dmc/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"BillID", id.NewBillID, "bill_"},
		{"OrderID", id.NewOrderID, "ord_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestFromSequence(t *testing.T) {
	tests := []struct {
		prefix id.Prefix
		seq    uint64
		want   string
	}{
		{id.PrefixBill, 1, "bill_00000000000000000000000001"},
		{id.PrefixOrder, 32, "ord_00000000000000000000000010"},
		{id.PrefixOrder, 1<<64 - 1, "ord_0000000000000fzzzzzzzzzzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := id.FromSequence(tt.prefix, tt.seq)
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got.String(), tt.want)
			}
			seq, ok := got.Sequence()
			if !ok || seq != tt.seq {
				t.Errorf("Sequence: got %d (%v), want %d", seq, ok, tt.seq)
			}
		})
	}

	if !id.FromSequence(id.PrefixBill, 0).IsNil() {
		t.Error("sequence zero should yield Nil")
	}
}

func TestSequenceOrdering(t *testing.T) {
	a := id.FromSequence(id.PrefixOrder, 9)
	b := id.FromSequence(id.PrefixOrder, 10)
	if a.String() >= b.String() {
		t.Errorf("expected %q < %q", a.String(), b.String())
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"BillID", id.NewBillID, id.ParseBillID},
		{"OrderID", id.NewOrderID, id.ParseOrderID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseBillID(id.NewOrderID().String()); err == nil {
		t.Error("ParseBillID should reject ord_ ids")
	}
	if _, err := id.ParseOrderID(id.NewBillID().String()); err == nil {
		t.Error("ParseOrderID should reject bill_ ids")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.FromSequence(id.PrefixBill, 42)
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}
