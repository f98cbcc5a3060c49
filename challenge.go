package dmc

import (
	"context"
	"strconv"

	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/id"
	"github.com/xraph/dmc/journal"
	"github.com/xraph/dmc/order"
	"github.com/xraph/dmc/plugin"
	"github.com/xraph/dmc/types"
)

// penaltyCeiling bounds any payout at this multiple of the consumer lock.
const penaltyCeiling = 100

// SubmitMerkle records a party's Merkle commitment for an order. A
// commitment becomes canonical only when the other party submits the same
// root and block count; a waiting order then starts delivery.
func (m *Market) SubmitMerkle(ctx context.Context, sender string, orderID id.OrderID, root challenge.Hash, count uint64) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := m.exec(ctx, "submit_merkle", func(t *txn) error {
		if err := t.requireAuthority(sender); err != nil {
			return err
		}
		if count == 0 {
			return ValidationError{Field: "count", Message: "block count must be positive"}
		}

		o, c, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		if o.Consumer != sender && o.Provider != sender {
			return ErrNotParty
		}
		if o.State.Terminal() {
			return ErrOrderTerminal
		}
		if !c.State.IsEnd() {
			return ErrChallengeOpen
		}

		from := c.State
		agreed := c.Submit(sender, root, count, t.now)
		t.putChallenge(c)
		if err := t.challengeChanged(c, from, nil); err != nil {
			return err
		}

		if agreed {
			if tr, ok := o.StartDelivery(t.now); ok {
				if err := t.applyTransition(o, tr); err != nil {
					return err
				}
			}
		}

		out = snapshotChallenge(c)
		return nil
	})
	return out, err
}

// RequestChallenge opens a proof-of-storage dispute on one committed block.
// hashData is the double hash the provider's reply must reproduce. A deposit
// of challenge_lock_rate percent of one installment moves from the order's
// pledge into the challenge while it is open.
func (m *Market) RequestChallenge(ctx context.Context, consumer string, orderID id.OrderID, dataID uint64, hashData challenge.Hash, nonce string) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := m.exec(ctx, "request_challenge", func(t *txn) error {
		if err := t.requireAuthority(consumer); err != nil {
			return err
		}

		o, c, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		if o.Consumer != consumer {
			return ErrNotParty
		}
		if o.State.Terminal() {
			return ErrOrderTerminal
		}
		switch o.State {
		case order.StateDeliver, order.StatePreCont, order.StatePreEnd:
		default:
			return ErrOrderNotDelivering
		}
		if !c.State.IsEnd() {
			return ErrChallengeOpen
		}
		if !c.Committed() {
			return ErrNoCommitment
		}
		if dataID >= c.BlockCount {
			return ErrInvalidDataID
		}

		p, err := t.tunables()
		if err != nil {
			return err
		}
		lock, err := types.MulDivCeil(o.Price, int64(p.challengeLockRate), 100)
		if err != nil {
			return invariant(err)
		}
		if o.UserPledge < lock {
			return ErrInsufficientPledge
		}

		o.UserPledge -= lock
		o.Touch(t.now)
		t.putOrder(o)

		from := c.State
		c.UserLock = lock
		c.MinerPay = 0
		c.DataID = dataID
		c.HashData = hashData
		c.Nonce = nonce
		c.ChallengeTimes++
		c.State = challenge.StateRequest
		c.ChallengeDate = t.now
		c.Touch(t.now)
		t.putChallenge(c)
		if err := t.challengeChanged(c, from, map[string]int64{"user_lock": lock}); err != nil {
			return err
		}

		out = snapshotChallenge(c)
		return nil
	})
	return out, err
}

// AnswerChallenge resolves an open dispute with the provider's reply, whose
// double hash must equal the challenged hash.
func (m *Market) AnswerChallenge(ctx context.Context, provider string, orderID id.OrderID, reply challenge.Hash) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := m.exec(ctx, "answer_challenge", func(t *txn) error {
		o, c, err := t.openDispute(provider, orderID)
		if err != nil {
			return err
		}
		if challenge.DoubleHash(reply) != c.HashData {
			return ErrProofMismatch
		}

		if err := t.resolveAnswered(o, c, challenge.StateAnswer); err != nil {
			return err
		}
		out = snapshotChallenge(c)
		return nil
	})
	return out, err
}

// Arbitrate settles an open dispute by Merkle proof: data is the challenged
// block and proof its sibling path. A proof that re-derives the committed
// root clears the provider; any other proof forces payment as on timeout.
func (m *Market) Arbitrate(ctx context.Context, provider string, orderID id.OrderID, data []byte, proof []challenge.Hash) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := m.exec(ctx, "arbitrate", func(t *txn) error {
		o, c, err := t.openDispute(provider, orderID)
		if err != nil {
			return err
		}

		leaf := challenge.Leaf(data)
		if challenge.Verify(c.MerkleRoot, c.BlockCount, c.DataID, leaf, proof) {
			err = t.resolveAnswered(o, c, challenge.StateArbitrationUserPay)
		} else {
			err = t.forcePay(o, c, challenge.StateArbitrationMinerPay)
		}
		if err != nil {
			return err
		}

		out = snapshotChallenge(c)
		return nil
	})
	return out, err
}

// PayChallenge enforces the penalty on a dispute the provider let time out.
// Any identity may call it.
func (m *Market) PayChallenge(ctx context.Context, orderID id.OrderID) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := m.exec(ctx, "pay_challenge", func(t *txn) error {
		if err := t.requireAnyPrincipal(); err != nil {
			return err
		}

		o, c, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		if c.State != challenge.StateTimeout {
			return ErrChallengeNotTimeout
		}

		if err := t.forcePay(o, c, challenge.StateArbitrationMinerPay); err != nil {
			return err
		}
		out = snapshotChallenge(c)
		return nil
	})
	return out, err
}

// GetChallenge returns an order's challenge as of now.
func (m *Market) GetChallenge(ctx context.Context, orderID id.OrderID) (*challenge.Challenge, error) {
	var out *challenge.Challenge
	err := m.view(ctx, func(t *txn) error {
		_, c, err := t.touchOrder(orderID)
		if err != nil {
			return err
		}
		out = snapshotChallenge(c)
		return nil
	})
	return out, err
}

// openDispute loads an order whose challenge awaits the provider.
func (t *txn) openDispute(provider string, orderID id.OrderID) (*order.Order, *challenge.Challenge, error) {
	if err := t.requireAuthority(provider); err != nil {
		return nil, nil, err
	}
	o, c, err := t.touchOrder(orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.Provider != provider {
		return nil, nil, ErrNotParty
	}
	switch c.State {
	case challenge.StateRequest:
		return o, c, nil
	case challenge.StateTimeout:
		return nil, nil, ErrAnswerWindowClosed
	default:
		return nil, nil, ErrChallengeNotOpen
	}
}

// resolveAnswered pays the provider challenge_pay_rate percent of one
// installment out of the consumer lock, refunds the rest and reopens
// settlement.
func (t *txn) resolveAnswered(o *order.Order, c *challenge.Challenge, to challenge.State) error {
	p, err := t.tunables()
	if err != nil {
		return err
	}
	pay, err := types.MulDiv(o.Price, int64(p.challengePayRate), 100)
	if err != nil {
		return invariant(err)
	}
	pay = min(pay, c.UserLock, c.UserLock*penaltyCeiling)
	refund := c.UserLock - pay

	if err := t.credit(o.Provider, types.NewDMC(pay)); err != nil {
		return err
	}
	if err := t.credit(o.Consumer, types.NewDMC(refund)); err != nil {
		return err
	}

	from := c.State
	c.MinerPay = pay
	c.UserLock = 0
	c.State = to
	c.Touch(t.now)
	t.putChallenge(c)
	if err := t.challengeChanged(c, from, map[string]int64{"miner_pay": pay, "refunded": refund}); err != nil {
		return err
	}

	return t.replay(o, c)
}

// forcePay slashes the provider's collateral by benchmark_rate percent of
// one installment, capped at the pool's stake. Half of the slash is the
// protocol fee and the rest compensates the consumer, who also gets every
// unspent pledge back as the order is ended.
func (t *txn) forcePay(o *order.Order, c *challenge.Challenge, to challenge.State) error {
	p, err := t.tunables()
	if err != nil {
		return err
	}
	slash, err := types.MulDiv(o.Price, int64(p.benchmarkRate), 100)
	if err != nil {
		return invariant(err)
	}

	mk, err := t.makerIfAny(o.Provider)
	if err != nil {
		return err
	}
	if mk == nil {
		slash = 0
	} else {
		slash = min(slash, mk.TotalStaked)
		mk.TotalStaked -= slash
		mk.Recompute(p.stakeRatio, types.DMC.Unit())
		mk.Touch(t.now)
		t.putMaker(mk)
	}
	fee := slash / 2

	if err := t.credit(t.m.system, types.NewDMC(fee)); err != nil {
		return err
	}
	if err := t.credit(o.Consumer, types.NewDMC(slash-fee+c.UserLock)); err != nil {
		return err
	}

	from := c.State
	refundedLock := c.UserLock
	c.UserLock = 0
	c.MinerPay = 0
	c.State = to
	c.Touch(t.now)
	t.putChallenge(c)
	if err := t.challengeChanged(c, from, map[string]int64{
		"slash":    slash,
		"fee":      fee,
		"refunded": refundedLock,
	}); err != nil {
		return err
	}
	if mk != nil && slash > 0 {
		t.collateralChanged(o.Provider, o.Provider, plugin.ActionSlash, types.NewDMC(slash), mk)
	}

	return t.applyTransition(o, o.ForceEnd(t.now))
}

// challengeChanged journals a challenge transition and queues its event.
func (t *txn) challengeChanged(c *challenge.Challenge, from challenge.State, amounts map[string]int64) error {
	if err := t.record(journal.KindChallengeChanged, c.OrderID.String(), "", amounts,
		map[string]string{
			"from":  string(from),
			"to":    string(c.State),
			"times": strconv.FormatUint(c.ChallengeTimes, 10),
		},
	); err != nil {
		return err
	}

	snap := snapshotChallenge(c)
	t.on(func(ctx context.Context, r *plugin.Registry) { r.EmitChallengeChanged(ctx, snap, from) })
	return nil
}

func snapshotChallenge(c *challenge.Challenge) *challenge.Challenge {
	snap := *c
	return &snap
}
