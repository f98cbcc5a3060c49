package order_test

import (
	"testing"
	"time"

	"github.com/xraph/dmc/order"
)

const week = 7 * 24 * time.Hour

var t0 = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func delivering(userPledge int64) *order.Order {
	o := &order.Order{
		Price:       100,
		UserPledge:  userPledge,
		MinerPledge: 40,
		State:       order.StateWaiting,
	}
	o.StartDelivery(t0)
	return o
}

func TestStartDelivery(t *testing.T) {
	o := delivering(300)
	if o.State != order.StateDeliver {
		t.Fatalf("state: got %q, want %q", o.State, order.StateDeliver)
	}
	if !o.DeliverStartDate.Equal(t0) || !o.LatestSettlementDate.Equal(t0) || !o.ClaimDate.Equal(t0) {
		t.Errorf("dates not set to start: %+v", o)
	}
	if _, ok := o.StartDelivery(t0.Add(time.Hour)); ok {
		t.Error("second StartDelivery should be rejected")
	}
}

func TestAdvanceSchedule(t *testing.T) {
	tests := []struct {
		name       string
		userPledge int64
		at         time.Duration
		wantState  order.State
		wantUser   int64
		wantLock   int64
		wantSettle int64
		wantSteps  int
	}{
		{"before lock point", 300, 6*24*time.Hour - time.Second, order.StateDeliver, 300, 0, 0, 0},
		{"at lock point", 300, 6 * 24 * time.Hour, order.StatePreCont, 200, 100, 0, 1},
		{"first period settled", 300, week, order.StateDeliver, 200, 0, 100, 2},
		{"two periods", 300, 2 * week, order.StateDeliver, 100, 0, 200, 4},
		{"runs dry", 100, 2*week - time.Second, order.StatePreEnd, 0, 0, 100, 3},
		{"ended", 100, 3 * week, order.StateEnd, 0, 0, 100, 4},
		{"no funds at all", 50, week, order.StateEnd, 0, 0, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := delivering(tt.userPledge)
			steps := o.Advance(t0.Add(tt.at), week, true)

			if o.State != tt.wantState {
				t.Errorf("state: got %q, want %q", o.State, tt.wantState)
			}
			if o.UserPledge != tt.wantUser {
				t.Errorf("userPledge: got %d, want %d", o.UserPledge, tt.wantUser)
			}
			if o.LockPledge != tt.wantLock {
				t.Errorf("lockPledge: got %d, want %d", o.LockPledge, tt.wantLock)
			}
			if o.SettlementPledge != tt.wantSettle {
				t.Errorf("settlementPledge: got %d, want %d", o.SettlementPledge, tt.wantSettle)
			}
			if len(steps) != tt.wantSteps {
				t.Errorf("steps: got %d, want %d", len(steps), tt.wantSteps)
			}
		})
	}
}

func TestAdvanceIdempotent(t *testing.T) {
	o := delivering(300)
	now := t0.Add(week + 3*24*time.Hour)
	o.Advance(now, week, true)
	before := *o

	if steps := o.Advance(now, week, true); len(steps) != 0 {
		t.Errorf("second replay produced %d transitions", len(steps))
	}
	if o.State != before.State || o.Escrowed() != before.Escrowed() ||
		o.LockPledge != before.LockPledge || !o.LatestSettlementDate.Equal(before.LatestSettlementDate) {
		t.Errorf("second replay changed the order: %+v != %+v", o, before)
	}
}

func TestAdvanceGateClosed(t *testing.T) {
	o := delivering(300)
	if steps := o.Advance(t0.Add(4*week), week, false); steps != nil {
		t.Errorf("closed gate produced %d transitions", len(steps))
	}
	if o.State != order.StateDeliver || o.UserPledge != 300 {
		t.Errorf("closed gate changed the order: %+v", o)
	}
}

func TestAdvanceEndEffects(t *testing.T) {
	o := delivering(150)
	steps := o.Advance(t0.Add(3*week), week, true)
	last := steps[len(steps)-1]

	if last.To != order.StateEnd {
		t.Fatalf("last transition: got %q, want %q", last.To, order.StateEnd)
	}
	if last.Refunded != 50 {
		t.Errorf("refunded: got %d, want 50", last.Refunded)
	}
	if last.Burned != 40 {
		t.Errorf("burned: got %d, want 40", last.Burned)
	}
	if o.MinerPledge != 0 {
		t.Errorf("minerPledge: got %d, want 0", o.MinerPledge)
	}
	if !last.At.Equal(t0.Add(2 * week)) {
		t.Errorf("end at: got %v, want %v", last.At, t0.Add(2*week))
	}
}

func TestCancel(t *testing.T) {
	o := delivering(300)
	o.Advance(t0.Add(6*24*time.Hour+time.Hour), week, true)

	tr := o.Cancel(t0.Add(6*24*time.Hour + 2*time.Hour))
	if o.State != order.StateCancel || !o.State.Terminal() {
		t.Fatalf("state: got %q", o.State)
	}
	if tr.Settled != 100 || o.SettlementPledge != 100 {
		t.Errorf("settled: got %d/%d, want 100", tr.Settled, o.SettlementPledge)
	}
	if tr.Refunded != 200 {
		t.Errorf("refunded: got %d, want 200", tr.Refunded)
	}
	if tr.Released != 40 || tr.Burned != 0 {
		t.Errorf("released/burned: got %d/%d, want 40/0", tr.Released, tr.Burned)
	}
}

func TestForceEnd(t *testing.T) {
	o := delivering(300)
	o.Advance(t0.Add(6*24*time.Hour+time.Hour), week, true)

	tr := o.ForceEnd(t0.Add(6*24*time.Hour + 2*time.Hour))
	if tr.Refunded != 300 {
		t.Errorf("refunded: got %d, want 300", tr.Refunded)
	}
	if tr.Burned != 40 {
		t.Errorf("burned: got %d, want 40", tr.Burned)
	}
	if o.Escrowed() != 0 {
		t.Errorf("escrowed: got %d, want 0", o.Escrowed())
	}
}

func TestResume(t *testing.T) {
	o := delivering(100)
	o.Advance(t0.Add(week+6*24*time.Hour), week, true)
	if o.State != order.StatePreEnd {
		t.Fatalf("state: got %q, want %q", o.State, order.StatePreEnd)
	}

	if _, ok := o.Resume(t0.Add(week + 6*24*time.Hour)); ok {
		t.Fatal("resume without funds should be rejected")
	}

	o.UserPledge += 150
	tr, ok := o.Resume(t0.Add(week + 6*24*time.Hour))
	if !ok {
		t.Fatal("resume rejected")
	}
	if tr.Locked != 100 || o.LockPledge != 100 || o.UserPledge != 50 {
		t.Errorf("after resume: locked %d, lockPledge %d, userPledge %d", tr.Locked, o.LockPledge, o.UserPledge)
	}

	// The resumed order settles at the end of the period and carries on.
	o.Advance(t0.Add(2*week), week, true)
	if o.State != order.StateDeliver || o.SettlementPledge != 200 {
		t.Errorf("after settle: state %q, settled %d", o.State, o.SettlementPledge)
	}
}
