package observability_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/dmc"
	"github.com/xraph/dmc/challenge"
	"github.com/xraph/dmc/observability"
	"github.com/xraph/dmc/store/memory"
	"github.com/xraph/dmc/types"
)

type recorder struct {
	mu     sync.Mutex
	counts map[string]float64
	obs    map[string][]float64
}

func newRecorder() *recorder {
	return &recorder{counts: map[string]float64{}, obs: map[string][]float64{}}
}

type counter struct {
	r    *recorder
	name string
}

func (c counter) Inc() { c.Add(1) }

func (c counter) Add(v float64) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.counts[c.name] += v
}

type histogram struct {
	r    *recorder
	name string
}

func (h histogram) Observe(v float64) {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	h.r.obs[h.name] = append(h.r.obs[h.name], v)
}

func (r *recorder) Counter(name string) observability.Counter { return counter{r, name} }

func (r *recorder) Histogram(name string) observability.Histogram { return histogram{r, name} }

func (r *recorder) count(name string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func TestMetricsFollowSettlement(t *testing.T) {
	rec := newRecorder()
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	m := dmc.New(memory.New(),
		dmc.WithPlugin(observability.NewMetricsExtension(rec)),
		dmc.WithClock(dmc.ClockFunc(func() time.Time { return now })),
	)
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

	root := challenge.Hash{3}
	_, err = m.SubmitMerkle(bob, "bob", o.ID, root, 1)
	require.NoError(t, err)
	_, err = m.SubmitMerkle(alice, "alice", o.ID, root, 1)
	require.NoError(t, err)

	_, err = m.CancelOrder(bob, "bob", o.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, rec.count("dmc.bill.created"))
	assert.Equal(t, 1.0, rec.count("dmc.order.created"))
	assert.Equal(t, 1.0, rec.count("dmc.order.delivered"))
	assert.Equal(t, 1.0, rec.count("dmc.order.canceled"))
	assert.Equal(t, 1.0, rec.count("dmc.challenge.agreed"))
	assert.Equal(t, 2.0, rec.count("dmc.collateral.changed"), "increase and mint")
	assert.Zero(t, rec.count("dmc.order.settled"))
	assert.Equal(t, []float64{50}, rec.obs["dmc.bill.capacity_pst"])
}
