// Package challenge defines the per-order Merkle commitment and the
// proof-of-storage dispute that gates an order's settlement.
package challenge

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/types"
)

// State is the dispute state of a challenge.
type State string

const (
	StatePrepare             State = "prepare"
	StateConsistent          State = "consistent"
	StateRequest             State = "request"
	StateAnswer              State = "answer"
	StateArbitrationMinerPay State = "arbitration_miner_pay"
	StateArbitrationUserPay  State = "arbitration_user_pay"
	StateTimeout             State = "timeout"
)

// IsEnd reports whether no dispute is open. The order's settlement
// machine only advances while this holds.
func (s State) IsEnd() bool {
	return s != StateRequest && s != StateTimeout
}

// Reopenable reports whether a fresh commitment round may start from s.
func (s State) Reopenable() bool {
	switch s {
	case StateConsistent, StateAnswer, StateArbitrationUserPay:
		return true
	}
	return false
}

// Hash is a 32-byte sha256 digest.
type Hash [32]byte

// String returns the lowercase hex form.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether h is all zeroes.
func (h Hash) IsZero() bool { return h == Hash{} }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex digest. The empty string yields the
// zero hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("challenge: parse hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("challenge: parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Challenge is the commitment and dispute record of one order.
type Challenge struct {
	types.Entity
	OrderID id.OrderID `json:"order_id"`

	// Candidate commitment awaiting the counterparty.
	PreMerkleRoot Hash   `json:"pre_merkle_root"`
	PreBlockCount uint64 `json:"pre_block_count"`
	PreSubmitter  string `json:"pre_submitter,omitempty"`

	// Canonical commitment agreed by both parties.
	MerkleRoot Hash   `json:"merkle_root"`
	BlockCount uint64 `json:"block_count"`

	DataID         uint64    `json:"data_id"`
	HashData       Hash      `json:"hash_data"`
	Nonce          string    `json:"nonce,omitempty"`
	ChallengeTimes uint64    `json:"challenge_times"`
	State          State     `json:"state"`
	ChallengeDate  time.Time `json:"challenge_date"`

	// UserLock is the consumer deposit held while a dispute is open (DMC).
	UserLock int64 `json:"user_lock"`
	// MinerPay is the amount paid to the provider by the last resolved dispute.
	MinerPay int64 `json:"miner_pay"`
}

// New returns the Prepare-state challenge paired with a fresh order.
func New(orderID id.OrderID, now time.Time) *Challenge {
	return &Challenge{
		Entity:  types.NewEntity(now),
		OrderID: orderID,
		State:   StatePrepare,
	}
}

// Committed reports whether a canonical commitment exists.
func (c *Challenge) Committed() bool {
	return c.BlockCount > 0
}

// Expire moves an open request past its answer window into Timeout.
func (c *Challenge) Expire(now time.Time, interval time.Duration) bool {
	if c.State != StateRequest || now.Before(c.ChallengeDate.Add(interval)) {
		return false
	}
	c.State = StateTimeout
	c.Touch(now)
	return true
}

// Submit records a commitment from sender. It returns true when the
// submission matches the other party's candidate and became canonical.
func (c *Challenge) Submit(sender string, root Hash, count uint64, now time.Time) bool {
	if c.State.Reopenable() {
		c.State = StatePrepare
		c.PreSubmitter = ""
	}

	c.Touch(now)
	if c.PreSubmitter != "" && c.PreSubmitter != sender &&
		c.PreMerkleRoot == root && c.PreBlockCount == count {
		c.MerkleRoot = root
		c.BlockCount = count
		c.PreMerkleRoot = Hash{}
		c.PreBlockCount = 0
		c.PreSubmitter = ""
		c.State = StateConsistent
		return true
	}

	c.PreMerkleRoot = root
	c.PreBlockCount = count
	c.PreSubmitter = sender
	return false
}
