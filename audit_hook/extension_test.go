package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	audithook "github.com/xraph/dmc/audit_hook"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/store/memory"
	"github.com/xraph/dmc/types"
)

type trail struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (tr *trail) Record(_ context.Context, ev *audithook.AuditEvent) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, ev)
	return nil
}

func (tr *trail) actions() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]string, len(tr.events))
	for i, ev := range tr.events {
		out[i] = ev.Action
	}
	return out
}

// run drives a bill through an order that times out on a challenge.
func run(t *testing.T, ext *audithook.Extension) {
	t.Helper()
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := dmc.ClockFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	m := dmc.New(memory.New(), dmc.WithPlugin(ext), dmc.WithClock(clock))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	sys := dmc.WithPrincipal(ctx, dmc.DefaultSystemAccount)
	alice := dmc.WithPrincipal(ctx, "alice")
	bob := dmc.WithPrincipal(ctx, "bob")
	require.NoError(t, m.Issue(sys, "alice", types.NewDMC(5_000_000)))
	require.NoError(t, m.Issue(sys, "bob", types.NewDMC(1_000_000)))
	_, err := m.Increase(alice, "alice", "alice", types.NewDMC(2_000_000))
	require.NoError(t, err)
	_, err = m.Mint(alice, "alice", 50)
	require.NoError(t, err)

	b, err := m.Bill(alice, "alice", 50, types.One)
	require.NoError(t, err)
	o, err := m.Order(bob, "bob", b.ID, 10, types.Asset{})
	require.NoError(t, err)
	_, err = m.SubmitMerkle(bob, "bob", o.ID, challenge.Hash{1}, 2)
	require.NoError(t, err)
	_, err = m.SubmitMerkle(alice, "alice", o.ID, challenge.Hash{1}, 2)
	require.NoError(t, err)
	_, err = m.RequestChallenge(bob, "bob", o.ID, 1, challenge.Hash{2}, "n")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(25 * time.Hour)
	mu.Unlock()
	_, err = m.PayChallenge(bob, o.ID)
	require.NoError(t, err)
}

func TestExtensionRecordsMarketEvents(t *testing.T) {
	tr := &trail{}
	run(t, audithook.New(tr))

	assert.Equal(t, []string{
		audithook.ActionCollateralChanged, // increase
		audithook.ActionCollateralChanged, // mint
		audithook.ActionBillCreated,
		audithook.ActionOrderCreated,
		audithook.ActionOrderDelivered,
		audithook.ActionChallengeRequested,
		audithook.ActionChallengeTimedOut,
		audithook.ActionChallengePaid,
		audithook.ActionCollateralSlashed,
		audithook.ActionIncentiveIssued,   // accrued before the capacity is burned
		audithook.ActionCollateralChanged, // burn
		audithook.ActionOrderEnded,
	}, tr.actions())

	tr.mu.Lock()
	defer tr.mu.Unlock()
	paid := tr.events[7]
	assert.Equal(t, audithook.SeverityCritical, paid.Severity)
	assert.Equal(t, audithook.OutcomeFailure, paid.Outcome)
	assert.Equal(t, audithook.ResourceChallenge, paid.Resource)
	assert.Equal(t, "ord_00000000000000000000000001", paid.ResourceID)
}

func TestEnabledActions(t *testing.T) {
	tr := &trail{}
	run(t, audithook.New(tr, audithook.WithEnabledActions(audithook.ActionOrderCreated, audithook.ActionOrderEnded)))
	assert.Equal(t, []string{audithook.ActionOrderCreated, audithook.ActionOrderEnded}, tr.actions())
}

func TestDisabledActions(t *testing.T) {
	tr := &trail{}
	run(t, audithook.New(tr, audithook.WithDisabledActions(audithook.ActionCollateralChanged, audithook.ActionCollateralSlashed)))
	assert.NotContains(t, tr.actions(), audithook.ActionCollateralChanged)
	assert.Contains(t, tr.actions(), audithook.ActionChallengePaid)
}

func TestRecorderFailureDoesNotFailTheCall(t *testing.T) {
	calls := 0
	rec := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		calls++
		return errors.New("backend down")
	})
	run(t, audithook.New(rec))
	assert.Positive(t, calls)
}
