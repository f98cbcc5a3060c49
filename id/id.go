// Package id defines TypeID-based identity types for market entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type, in the format "prefix_suffix". Market-issued IDs are derived
// from a per-prefix sequence so that two executions of the same call log
// assign identical identifiers; they remain valid, sortable TypeIDs.
package id

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for market entity types.
const (
	PrefixBill  Prefix = "bill" // Provider capacity offer
	PrefixOrder Prefix = "ord"  // Consumer reservation (and its challenge)
)

// suffixAlphabet is the TypeID base32 alphabet.
const suffixAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// suffixLen is the length of a TypeID suffix.
const suffixLen = 26

// ID is the primary identifier type for all market entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new random ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// FromSequence builds the ID whose 128-bit suffix value equals seq.
// Sequence zero is reserved and yields Nil.
func FromSequence(prefix Prefix, seq uint64) ID {
	if seq == 0 {
		return Nil
	}

	var buf [suffixLen]byte
	n := seq
	for i := suffixLen - 1; i >= 0; i-- {
		buf[i] = suffixAlphabet[n&31]
		n >>= 5
	}

	parsed, err := Parse(string(prefix) + "_" + string(buf[:]))
	if err != nil {
		panic(fmt.Sprintf("id: sequence %d with prefix %q: %v", seq, prefix, err))
	}

	return parsed
}

// Parse parses a TypeID string (e.g., "bill_00000000000000000000000001")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// BillID is a type-safe identifier for bills (prefix: "bill").
type BillID = ID

// OrderID is a type-safe identifier for orders (prefix: "ord").
// A challenge shares the identifier of its order.
type OrderID = ID

// ──────────────────────────────────────────────────
// Convenience constructors and parsers
// ──────────────────────────────────────────────────

// NewBillID generates a new random bill ID.
func NewBillID() ID { return New(PrefixBill) }

// NewOrderID generates a new random order ID.
func NewOrderID() ID { return New(PrefixOrder) }

// ParseBillID parses a string and validates the "bill" prefix.
func ParseBillID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBill) }

// ParseOrderID parses a string and validates the "ord" prefix.
func ParseOrderID(s string) (ID, error) { return ParseWithPrefix(s, PrefixOrder) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Sequence returns the sequence number encoded by FromSequence. The second
// result is false for IDs whose suffix does not fit in 64 bits.
func (i ID) Sequence() (uint64, bool) {
	if !i.valid {
		return 0, false
	}

	s := i.inner.String()
	suffix := s[strings.LastIndexByte(s, '_')+1:]

	var hi, lo uint64
	for _, c := range []byte(suffix) {
		v := strings.IndexByte(suffixAlphabet, c)
		if v < 0 {
			return 0, false
		}
		hi = hi<<5 | lo>>59
		lo = lo<<5 | uint64(v)
	}

	return lo, hi == 0
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
