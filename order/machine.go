package order

import "time"

// Transition records one step of the settlement machine together with the
// amounts it moved. Refunded and Burned are effects the caller applies to
// the ledger; the order itself is already updated when a Transition is
// returned.
type Transition struct {
	From     State     `json:"from"`
	To       State     `json:"to"`
	At       time.Time `json:"at"`
	Locked   int64     `json:"locked,omitempty"`   // userPledge → lockPledge
	Settled  int64     `json:"settled,omitempty"`  // lockPledge → settlementPledge
	Refunded int64     `json:"refunded,omitempty"` // returned to the consumer (DMC)
	Burned   int64     `json:"burned,omitempty"`   // minerPledge destroyed (PST)
	Released int64     `json:"released,omitempty"` // minerPledge returned to the provider (PST)
}

// StartDelivery moves a waiting order into Deliver once both parties agreed
// on a Merkle commitment.
func (o *Order) StartDelivery(now time.Time) (Transition, bool) {
	if o.State != StateWaiting {
		return Transition{}, false
	}

	o.State = StateDeliver
	o.DeliverStartDate = now
	o.LatestSettlementDate = now
	o.ClaimDate = now
	o.Touch(now)

	return Transition{From: StateWaiting, To: StateDeliver, At: now}, true
}

// Advance replays the settlement machine forward to now, one step at a time,
// until a step produces no transition. When gateOpen is false (a challenge
// is unresolved) nothing moves. Advancing twice with the same now is a no-op.
func (o *Order) Advance(now time.Time, interval time.Duration, gateOpen bool) []Transition {
	if !gateOpen || interval <= 0 {
		return nil
	}

	var out []Transition
	for {
		t, ok := o.step(now, interval)
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// lockLead is the part of a period after which the next installment is due.
func lockLead(interval time.Duration) time.Duration {
	secs := int64(interval / time.Second)
	return time.Duration(secs*6/7) * time.Second
}

func (o *Order) step(now time.Time, interval time.Duration) (Transition, bool) {
	switch o.State {
	case StateDeliver:
		due := o.LatestSettlementDate.Add(lockLead(interval))
		if now.Before(due) {
			return Transition{}, false
		}
		if o.UserPledge >= o.Price {
			o.UserPledge -= o.Price
			o.LockPledge += o.Price
			o.State = StatePreCont
			o.Touch(due)
			return Transition{From: StateDeliver, To: StatePreCont, At: due, Locked: o.Price}, true
		}
		o.State = StatePreEnd
		o.Touch(due)
		return Transition{From: StateDeliver, To: StatePreEnd, At: due}, true

	case StatePreCont:
		due := o.LatestSettlementDate.Add(interval)
		if now.Before(due) {
			return Transition{}, false
		}
		settled := o.LockPledge
		o.SettlementPledge += settled
		o.LockPledge = 0
		o.LatestSettlementDate = due
		o.State = StateDeliver
		o.Touch(due)
		return Transition{From: StatePreCont, To: StateDeliver, At: due, Settled: settled}, true

	case StatePreEnd:
		due := o.LatestSettlementDate.Add(interval)
		if now.Before(due) {
			return Transition{}, false
		}
		t := Transition{From: StatePreEnd, To: StateEnd, At: due}
		t.Settled = o.LockPledge
		o.SettlementPledge += o.LockPledge
		o.LockPledge = 0
		t.Refunded = o.UserPledge
		o.UserPledge = 0
		t.Burned = o.MinerPledge
		o.MinerPledge = 0
		o.LatestSettlementDate = due
		o.EndDate = due
		o.State = StateEnd
		o.Touch(due)
		return t, true
	}

	return Transition{}, false
}

// ForceEnd terminates the order immediately. Unspent and escrowed deposits
// are refunded to the consumer; the settlement pledge stays claimable and
// the miner pledge is burned.
func (o *Order) ForceEnd(now time.Time) Transition {
	t := Transition{From: o.State, To: StateEnd, At: now}
	t.Refunded = o.UserPledge + o.LockPledge
	o.UserPledge = 0
	o.LockPledge = 0
	t.Burned = o.MinerPledge
	o.MinerPledge = 0
	o.EndDate = now
	o.State = StateEnd
	o.Touch(now)
	return t
}

// Cancel terminates the order at the request of either party. The installment
// already locked for the period being delivered is earned by the provider,
// the unspent deposit goes back to the consumer and the miner pledge is
// released rather than burned.
func (o *Order) Cancel(now time.Time) Transition {
	t := Transition{From: o.State, To: StateCancel, At: now}
	t.Settled = o.LockPledge
	o.SettlementPledge += o.LockPledge
	o.LockPledge = 0
	t.Refunded = o.UserPledge
	o.UserPledge = 0
	t.Released = o.MinerPledge
	o.MinerPledge = 0
	o.EndDate = now
	o.State = StateCancel
	o.Touch(now)
	return t
}

// Resume returns an order in PreEnd to PreCont once a deposit covers the
// next installment again.
func (o *Order) Resume(now time.Time) (Transition, bool) {
	if o.State != StatePreEnd || o.UserPledge < o.Price {
		return Transition{}, false
	}

	o.UserPledge -= o.Price
	o.LockPledge += o.Price
	o.State = StatePreCont
	o.Touch(now)

	return Transition{From: StatePreEnd, To: StatePreCont, At: now, Locked: o.Price}, true
}
