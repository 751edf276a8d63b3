package lifecycle

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veloura/marketplace/internal/inventory"
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

type recordingSink struct {
	mu        sync.Mutex
	topics    []string
	envelopes []orders.Envelope
}

func (r *recordingSink) Emit(ctx context.Context, topic string, key []byte, env orders.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.envelopes = append(r.envelopes, env)
}

type fixture struct {
	clock *fakeClock
	store *inventory.MemoryStore
	repo  *orders.MemoryRepo
	sink  *recordingSink
	mgr   *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	store := inventory.NewMemoryStore().WithClock(clock.Now)
	repo := orders.NewMemoryRepo()
	sink := &recordingSink{}
	mgr := NewManager(store, repo, Config{
		Events:  sink,
		Now:     clock.Now,
		Service: "test",
	})
	require.NoError(t, store.Add(context.Background(), &orders.Item{
		ID:         "item-1",
		StoreID:    "store-1",
		Title:      "Cartier Tank Louis",
		PriceCents: 12_345,
	}))
	return &fixture{clock: clock, store: store, repo: repo, sink: sink, mgr: mgr}
}

func (f *fixture) reserveAndOrder(t *testing.T, buyer string) *orders.Order {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Reserve(ctx, "item-1", buyer, 10*time.Minute))
	o, err := f.mgr.CreateOrder(ctx, CreateOrderInput{
		BuyerID:       buyer,
		ItemID:        "item-1",
		ShippingCents: 1_500,
		TaxCents:      988,
		Address:       orders.Address{Name: "A. Buyer", Line1: "1 Rue de la Paix", City: "Paris", PostalCode: "75002", Country: "FR"},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) deliver(t *testing.T, orderID string) *orders.Order {
	t.Helper()
	ctx := context.Background()
	_, err := f.mgr.Transition(ctx, orderID, PaymentCaptured{Reference: "ch_1"})
	require.NoError(t, err)
	_, err = f.mgr.Transition(ctx, orderID, Shipped{TrackingNumber: "1Z999", Carrier: "UPS"})
	require.NoError(t, err)
	o, err := f.mgr.Transition(ctx, orderID, Delivered{})
	require.NoError(t, err)
	return o
}

func TestCreateOrder_RequiresLiveReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// no reservation at all
	_, err := f.mgr.CreateOrder(ctx, CreateOrderInput{BuyerID: "buyer-a", ItemID: "item-1"})
	assert.ErrorIs(t, err, orders.ErrNotReserved)

	// reservation held by someone else
	require.NoError(t, f.store.Reserve(ctx, "item-1", "buyer-b", 10*time.Minute))
	_, err = f.mgr.CreateOrder(ctx, CreateOrderInput{BuyerID: "buyer-a", ItemID: "item-1"})
	assert.ErrorIs(t, err, orders.ErrNotReserved)

	// expired reservation doesn't count either
	f.clock.Advance(11 * time.Minute)
	_, err = f.mgr.CreateOrder(ctx, CreateOrderInput{BuyerID: "buyer-b", ItemID: "item-1"})
	assert.ErrorIs(t, err, orders.ErrNotReserved)
}

func TestCreateOrder_MoneySnapshot(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")

	assert.Equal(t, 12_345, o.SubtotalCents)
	assert.Equal(t, 741, o.PlatformFeeCents) // 6% of 12345, round half-up
	assert.Equal(t, 12_345+1_500+988, o.TotalCents)
	assert.Equal(t, orders.OrderPending, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.True(t, strings.HasPrefix(o.OrderNumber, "VL-"))
	assert.Len(t, o.OrderNumber, 11)
}

func TestCreateOrder_OnePerItem(t *testing.T) {
	f := newFixture(t)
	f.reserveAndOrder(t, "buyer-a")

	ctx := context.Background()
	// same buyer still holds the reservation; a second order must be refused
	_, err := f.mgr.CreateOrder(ctx, CreateOrderInput{BuyerID: "buyer-a", ItemID: "item-1"})
	assert.ErrorIs(t, err, orders.ErrOrderExists)
}

func TestEndToEndPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Reserve(ctx, "item-1", "buyer-a", 10*time.Minute))
	assert.ErrorIs(t, f.store.Reserve(ctx, "item-1", "buyer-b", 0), orders.ErrReservedByOther)

	o, err := f.mgr.CreateOrder(ctx, CreateOrderInput{BuyerID: "buyer-a", ItemID: "item-1"})
	require.NoError(t, err)

	got, err := f.mgr.Transition(ctx, o.ID, PaymentCaptured{Reference: "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, orders.OrderConfirmed, got.Status)
	assert.Equal(t, orders.PaymentCaptured, got.PaymentStatus)

	it, err := f.store.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemSold, it.Status)

	assert.ErrorIs(t, f.store.Reserve(ctx, "item-1", "buyer-c", 0), orders.ErrAlreadySold)

	assert.Contains(t, f.sink.topics, orders.TopicOrderCreated)
	assert.Contains(t, f.sink.topics, orders.TopicOrderConfirmed)
	assert.Contains(t, f.sink.topics, orders.TopicItemSold)
}

func TestPaymentFailed_ReleasesItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.reserveAndOrder(t, "buyer-a")

	got, err := f.mgr.Transition(ctx, o.ID, PaymentFailed{Reason: "card_declined"})
	require.NoError(t, err)
	assert.Equal(t, orders.OrderCancelled, got.Status)
	assert.Equal(t, orders.PaymentFailed, got.PaymentStatus)

	it, err := f.store.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ItemAvailable, it.Status)

	// the item is purchasable again, and the new buyer can order it
	require.NoError(t, f.store.Reserve(ctx, "item-1", "buyer-b", 10*time.Minute))
	_, err = f.mgr.CreateOrder(ctx, CreateOrderInput{BuyerID: "buyer-b", ItemID: "item-1"})
	require.NoError(t, err)
}

func TestTransition_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.reserveAndOrder(t, "buyer-a")

	// shipped before capture
	_, err := f.mgr.Transition(ctx, o.ID, Shipped{TrackingNumber: "1Z", Carrier: "UPS"})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// delivered before shipped
	_, err = f.mgr.Transition(ctx, o.ID, Delivered{})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	_, err = f.mgr.Transition(ctx, o.ID, PaymentCaptured{})
	require.NoError(t, err)

	// double capture
	_, err = f.mgr.Transition(ctx, o.ID, PaymentCaptured{})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// shipped needs tracking data
	_, err = f.mgr.Transition(ctx, o.ID, Shipped{})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// cancel after shipment is refused
	_, err = f.mgr.Transition(ctx, o.ID, Shipped{TrackingNumber: "1Z", Carrier: "UPS"})
	require.NoError(t, err)
	_, err = f.mgr.Transition(ctx, o.ID, BuyerCancelled{})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// unknown order
	_, err = f.mgr.Transition(ctx, "missing", Delivered{})
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestPaymentAuthorized_KeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.reserveAndOrder(t, "buyer-a")

	got, err := f.mgr.Transition(ctx, o.ID, PaymentAuthorized{Reference: "auth_1"})
	require.NoError(t, err)
	assert.Equal(t, orders.OrderPending, got.Status)
	assert.Equal(t, orders.PaymentAuthorized, got.PaymentStatus)

	// capture still works after authorization
	got, err = f.mgr.Transition(ctx, o.ID, PaymentCaptured{Reference: "ch_1"})
	require.NoError(t, err)
	assert.Equal(t, orders.OrderConfirmed, got.Status)

	// but a second authorization is refused
	_, err = f.mgr.Transition(ctx, o.ID, PaymentAuthorized{})
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
}

func TestEventTimestampsUseInjectedClock(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")
	createdAt := f.clock.Now().UTC()

	f.clock.Advance(time.Hour)
	_, err := f.mgr.Transition(context.Background(), o.ID, PaymentCaptured{Reference: "ch_1"})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(f.sink.envelopes), 2)
	assert.Equal(t, createdAt, f.sink.envelopes[0].OccurredAt)
	for _, env := range f.sink.envelopes[1:] {
		assert.Equal(t, createdAt.Add(time.Hour), env.OccurredAt)
	}
}

func TestDelivered_SetsDisputeDeadline(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")

	deliveredAt := f.clock.Now()
	got := f.deliver(t, o.ID)

	require.NotNil(t, got.Shipping.DeliveredAt)
	require.NotNil(t, got.DisputeDeadline)
	assert.Equal(t, deliveredAt, *got.Shipping.DeliveredAt)
	assert.Equal(t, deliveredAt.Add(14*24*time.Hour), *got.DisputeDeadline)
}

func TestPayoutEligibility(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")
	f.deliver(t, o.ID)
	ctx := context.Background()

	// 6 days after delivery: still inside the hold
	f.clock.Advance(6 * 24 * time.Hour)
	_, eligible, err := f.mgr.CheckPayout(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, eligible)

	// 8 days after delivery: eligible
	f.clock.Advance(2 * 24 * time.Hour)
	got, eligible, err := f.mgr.CheckPayout(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, eligible)
	assert.Equal(t, orders.SellerPayout(got), got.TotalCents-got.PlatformFeeCents)
}

func TestPayoutEligibility_BlockedByOpenDispute(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")
	f.deliver(t, o.ID)
	ctx := context.Background()

	// dispute opened inside the window
	f.clock.Advance(2 * 24 * time.Hour)
	d, err := f.mgr.OpenDispute(ctx, o.ID, "buyer-a", "stone missing from bezel")
	require.NoError(t, err)

	// 8 days out, but the dispute is still open
	f.clock.Advance(6 * 24 * time.Hour)
	_, eligible, err := f.mgr.CheckPayout(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, eligible)

	// dispute closed in the seller's favor: funds release
	_, err = f.mgr.ResolveDispute(ctx, d.ID, "item as described", false)
	require.NoError(t, err)
	_, eligible, err = f.mgr.CheckPayout(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, eligible)
}

func TestPayoutBackfill(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")
	f.deliver(t, o.ID)
	ctx := context.Background()

	// inside the hold: nothing to pay out yet
	f.clock.Advance(6 * 24 * time.Hour)
	got, err := f.mgr.PayoutBackfill(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, got)

	// past the hold: the delivered order surfaces even though no event
	// consumer ever saw it
	f.clock.Advance(2 * 24 * time.Hour)
	got, err = f.mgr.PayoutBackfill(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)
}

func TestPayoutEligibility_NotDelivered(t *testing.T) {
	f := newFixture(t)
	o := f.reserveAndOrder(t, "buyer-a")
	ctx := context.Background()

	_, err := f.mgr.Transition(ctx, o.ID, PaymentCaptured{})
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)
	_, eligible, err := f.mgr.CheckPayout(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, eligible)
}
