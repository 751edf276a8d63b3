package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veloura/marketplace/internal/orders"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, clock *fakeClock) *MemoryStore {
	t.Helper()
	s := NewMemoryStore().WithClock(clock.Now)
	err := s.Add(context.Background(), &orders.Item{
		ID:         "item-1",
		StoreID:    "store-1",
		Title:      "Hermès Birkin 30",
		PriceCents: 1_250_000,
	})
	require.NoError(t, err)
	return s
}

func TestReserve_MutualExclusion(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	const racers = 32
	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			err := s.Reserve(ctx, "item-1", "buyer-"+string(rune('a'+n%26))+string(rune('0'+n/26)), 0)
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, orders.ErrReservedByOther)
				losses.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), losses.Load())

	it, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemReserved, it.Status)
	assert.NotEmpty(t, it.ReservedBy)
	require.NotNil(t, it.ReservedUntil)
}

func TestReserve_IdempotentSameBuyerRefreshesExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-a", 10*time.Minute))
	first, err := s.Get(ctx, "item-1")
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-a", 10*time.Minute))

	second, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemReserved, second.Status)
	assert.Equal(t, "buyer-a", second.ReservedBy)
	assert.True(t, second.ReservedUntil.After(*first.ReservedUntil),
		"re-reserve by the holder should extend the hold")
}

func TestReserve_ExpirySelfHeal(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-a", 10*time.Minute))

	// live hold blocks a second buyer
	assert.ErrorIs(t, s.Reserve(ctx, "item-1", "buyer-b", 0), orders.ErrReservedByOther)

	// stale hold yields to the new buyer without any sweep
	clock.Advance(11 * time.Minute)
	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-b", 0))

	it, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-b", it.ReservedBy)
}

func TestReserve_SoldIsFinal(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-a", 0))
	require.NoError(t, s.MarkSold(ctx, "item-1"))

	for _, buyer := range []string{"buyer-a", "buyer-b", "buyer-c"} {
		assert.ErrorIs(t, s.Reserve(ctx, "item-1", buyer, 0), orders.ErrAlreadySold)
	}

	it, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemSold, it.Status)
	assert.Empty(t, it.ReservedBy)
	assert.Nil(t, it.ReservedUntil)
}

func TestReserve_NotFoundAndWithdrawn(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	assert.ErrorIs(t, s.Reserve(ctx, "missing", "buyer-a", 0), orders.ErrNotFound)

	require.NoError(t, s.Withdraw(ctx, "item-1"))
	assert.ErrorIs(t, s.Reserve(ctx, "item-1", "buyer-a", 0), orders.ErrItemWithdrawn)
}

func TestWithdraw_SoldItemRefused(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-a", 0))
	require.NoError(t, s.MarkSold(ctx, "item-1"))
	assert.ErrorIs(t, s.Withdraw(ctx, "item-1"), orders.ErrAlreadySold)
}

func TestRelease_NoopWhenNotReserved(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Release(ctx, "item-1"))

	it, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemAvailable, it.Status)

	assert.ErrorIs(t, s.Release(ctx, "missing"), orders.ErrNotFound)
}

func TestRelease_ClearsReservation(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-a", 0))
	require.NoError(t, s.Release(ctx, "item-1"))

	it, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemAvailable, it.Status)
	assert.Empty(t, it.ReservedBy)
	assert.Nil(t, it.ReservedUntil)

	// and a fresh buyer can take it
	require.NoError(t, s.Reserve(ctx, "item-1", "buyer-b", 0))
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	ctx := context.Background()

	var writers sync.WaitGroup
	for i := 0; i < 2; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for j := 0; j < 500; j++ {
				_ = s.Reserve(ctx, "item-1", "buyer-a", time.Minute)
				_ = s.Release(ctx, "item-1")
			}
		}()
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				it, err := s.Get(ctx, "item-1")
				if assert.NoError(t, err) {
					_ = it.Reserved(clock.Now())
				}
			}
		}()
	}

	writers.Wait()
	close(stop)
	readers.Wait()

	it, err := s.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Contains(t, []orders.ItemStatus{orders.ItemAvailable, orders.ItemReserved}, it.Status)
}

func TestSweepExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore().WithClock(clock.Now)
	ctx := context.Background()

	for _, id := range []string{"stale-1", "stale-2", "live-1", "open-1"} {
		require.NoError(t, s.Add(ctx, &orders.Item{ID: id, StoreID: "store-1", PriceCents: 100}))
	}
	require.NoError(t, s.Reserve(ctx, "stale-1", "buyer-a", 5*time.Minute))
	require.NoError(t, s.Reserve(ctx, "stale-2", "buyer-b", 5*time.Minute))
	clock.Advance(6 * time.Minute)
	require.NoError(t, s.Reserve(ctx, "live-1", "buyer-c", 10*time.Minute))

	swept, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stale-1", "stale-2"}, swept)

	for id, want := range map[string]orders.ItemStatus{
		"stale-1": orders.ItemAvailable,
		"stale-2": orders.ItemAvailable,
		"live-1":  orders.ItemReserved,
		"open-1":  orders.ItemAvailable,
	} {
		it, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, it.Status, "item %s", id)
	}

	// second sweep finds nothing
	swept, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)
}
