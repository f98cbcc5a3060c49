// Package journal records the receipts emitted by market calls and folds
// them into a rolling state root, so two replays of the same call log can
// be compared byte for byte.
package journal

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Kind classifies a receipt.
type Kind string

const (
	KindTokenIssued       Kind = "token.issued"
	KindTokenTransferred  Kind = "token.transferred"
	KindTokenUnlocked     Kind = "token.unlocked"
	KindConfigSet         Kind = "config.set"
	KindBillCreated       Kind = "bill.created"
	KindBillClosed        Kind = "bill.closed"
	KindIncentiveIssued   Kind = "incentive.issued"
	KindOrderCreated      Kind = "order.created"
	KindOrderStateChanged Kind = "order.state_changed"
	KindOrderDeposited    Kind = "order.deposited"
	KindOrderClaimed      Kind = "order.claimed"
	KindChallengeChanged  Kind = "challenge.changed"
	KindCollateralChanged Kind = "collateral.changed"
	KindPSTMinted         Kind = "pst.minted"
	KindLiquidation       Kind = "liquidation.applied"
	KindPSTCleaned        Kind = "pst.cleaned"
)

// Receipt is one structured record of a state transition. Map keys are
// encoded in canonical order, so a receipt always has one encoding.
type Receipt struct {
	Seq     uint64            `cbor:"1,keyasint" json:"seq"`
	Kind    Kind              `cbor:"2,keyasint" json:"kind"`
	Subject string            `cbor:"3,keyasint" json:"subject"`
	Party   string            `cbor:"4,keyasint,omitempty" json:"party,omitempty"`
	At      time.Time         `cbor:"5,keyasint" json:"at"`
	Amounts map[string]int64  `cbor:"6,keyasint,omitempty" json:"amounts,omitempty"`
	Detail  map[string]string `cbor:"7,keyasint,omitempty" json:"detail,omitempty"`
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeUnix
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = em
}

// Encode returns the canonical CBOR encoding of r.
func (r *Receipt) Encode() ([]byte, error) {
	return encMode.Marshal(r)
}

// Decode parses a receipt produced by Encode.
func Decode(b []byte) (*Receipt, error) {
	r := new(Receipt)
	if err := cbor.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("journal: decode receipt: %w", err)
	}
	r.At = r.At.UTC()
	return r, nil
}

// Fold returns blake3(root ‖ encoded), the next state root.
func Fold(root, encoded []byte) []byte {
	h := blake3.New()
	_, _ = h.Write(root)
	_, _ = h.Write(encoded)
	return h.Sum(nil)
}

// Journal accumulates the receipts of one call on top of the last
// committed sequence and root.
type Journal struct {
	seq      uint64
	root     []byte
	receipts []*Receipt
}

// New starts a journal after the committed seq and root.
func New(seq uint64, root []byte) *Journal {
	return &Journal{seq: seq, root: append([]byte(nil), root...)}
}

// Append numbers r, folds it into the root and keeps it for delivery.
func (j *Journal) Append(r *Receipt) error {
	r.Seq = j.seq + 1
	b, err := r.Encode()
	if err != nil {
		return fmt.Errorf("journal: encode receipt: %w", err)
	}
	j.seq = r.Seq
	j.root = Fold(j.root, b)
	j.receipts = append(j.receipts, r)
	return nil
}

// Seq returns the sequence number of the last appended receipt.
func (j *Journal) Seq() uint64 { return j.seq }

// Root returns the current state root.
func (j *Journal) Root() []byte { return j.root }

// Receipts returns the receipts appended since New.
func (j *Journal) Receipts() []*Receipt { return j.receipts }
