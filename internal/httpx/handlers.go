package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/veloura/marketplace/internal/inventory"
	kafkax "github.com/veloura/marketplace/internal/kafka"
	"github.com/veloura/marketplace/internal/lifecycle"
	"github.com/veloura/marketplace/internal/orders"
	"github.com/veloura/marketplace/internal/redisx"
)

// Handler is the glue between HTTP and the core. It owns no business rules:
// every guard lives in the inventory store or the lifecycle manager, the
// handler only maps inputs and typed errors.
type Handler struct {
	Items          inventory.Store
	Manager        *lifecycle.Manager
	Redis          *redis.Client    // optional: idempotency fast path + status cache
	Events         orders.EventSink // optional
	Service        string
	ReservationTTL time.Duration
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/items", h.createItem)
	r.Post("/items/{id}/reserve", h.reserveItem)
	r.Post("/items/{id}/withdraw", h.withdrawItem)
	r.Get("/items/{id}", h.getItem)

	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/events", h.orderEvent)

	r.Post("/orders/{id}/disputes", h.openDispute)
	r.Post("/disputes/{id}/messages", h.disputeMessage)
	r.Post("/disputes/{id}/resolve", h.resolveDispute)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrAlreadySold),
		errors.Is(err, orders.ErrReservedByOther),
		errors.Is(err, orders.ErrItemWithdrawn),
		errors.Is(err, orders.ErrNotReserved),
		errors.Is(err, orders.ErrOrderExists),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrDisputeWindowClosed),
		errors.Is(err, orders.ErrDisputeExists):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// ---- items ----

type createItemReq struct {
	StoreID    string `json:"store_id"`
	Title      string `json:"title"`
	PriceCents int    `json:"price_cents"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.StoreID == "" || req.PriceCents <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}
	it := &orders.Item{
		ID:         uuid.NewString(),
		StoreID:    req.StoreID,
		Title:      req.Title,
		PriceCents: req.PriceCents,
	}
	if err := h.Items.Add(r.Context(), it); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

type reserveReq struct {
	BuyerID string `json:"buyer_id"`
}

func (h *Handler) reserveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "buyer_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ttl := h.ReservationTTL
	if ttl <= 0 {
		ttl = inventory.DefaultReservationTTL
	}
	if err := h.Items.Reserve(ctx, itemID, req.BuyerID, ttl); err != nil {
		writeErr(w, err)
		return
	}

	// Report this request's hold. Re-reading the item here could attribute a
	// racing takeover after expiry to the wrong buyer.
	until := time.Now().Add(ttl)
	if h.Events != nil {
		h.Events.Emit(ctx, orders.TopicItemReserved, orders.PartitionKey(itemID), orders.Envelope{
			EventID:       uuid.NewString(),
			EventType:     orders.EventItemReserved,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Service,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: itemID,
			Payload: kafkax.MustMarshal(orders.ItemReservedPayload{
				ItemID: itemID, BuyerID: req.BuyerID, ReservedUntil: until.UTC(),
			}),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item_id":        itemID,
		"reserved_by":    req.BuyerID,
		"reserved_until": until,
	})
}

func (h *Handler) withdrawItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Items.Withdraw(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.Items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// ---- checkout / orders ----

type checkoutReq struct {
	ExternalID    string         `json:"external_id"`
	BuyerID       string         `json:"buyer_id"`
	ItemID        string         `json:"item_id"`
	ShippingCents int            `json:"shipping_cents"`
	TaxCents      int            `json:"tax_cents"`
	Address       orders.Address `json:"address"`
}

type checkoutResp struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	TotalCents  int    `json:"total_cents"`
	Idempotent  bool   `json:"idempotent"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || req.BuyerID == "" || req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Idempotency fast path: repeat submissions of the same checkout return
	// the order already created for it.
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
	if h.Redis != nil {
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Manager.GetOrder(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, checkoutResp{
					OrderID: o.ID, OrderNumber: o.OrderNumber, TotalCents: o.TotalCents, Idempotent: true,
				})
				return
			}
		}
	}

	o, err := h.Manager.CreateOrder(ctx, lifecycle.CreateOrderInput{
		BuyerID:       req.BuyerID,
		ItemID:        req.ItemID,
		ShippingCents: req.ShippingCents,
		TaxCents:      req.TaxCents,
		Address:       req.Address,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	if h.Redis != nil {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
		h.cacheStatus(ctx, o)
	}
	writeJSON(w, http.StatusAccepted, checkoutResp{
		OrderID: o.ID, OrderNumber: o.OrderNumber, TotalCents: o.TotalCents, Idempotent: false,
	})
}

type orderEventReq struct {
	Type           string `json:"type"` // payment_captured | payment_failed | payment_authorized | shipped | delivered | cancelled
	Reference      string `json:"reference,omitempty"`
	Reason         string `json:"reason,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

func (h *Handler) orderEvent(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req orderEventReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	var ev lifecycle.Event
	switch req.Type {
	case "payment_authorized":
		ev = lifecycle.PaymentAuthorized{Reference: req.Reference}
	case "payment_captured":
		ev = lifecycle.PaymentCaptured{Reference: req.Reference}
	case "payment_failed":
		ev = lifecycle.PaymentFailed{Reason: req.Reason}
	case "shipped":
		ev = lifecycle.Shipped{TrackingNumber: req.TrackingNumber, Carrier: req.Carrier}
	case "delivered":
		ev = lifecycle.Delivered{}
	case "cancelled":
		ev = lifecycle.BuyerCancelled{Reason: req.Reason}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown event type"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.Transition(ctx, orderID, ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheStatus(ctx, o)
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, repo as fallback
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Manager.GetOrder(ctx, orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheStatus(ctx, o)
	}
	writeJSON(w, http.StatusOK, statusBody(o))
}

func (h *Handler) cacheStatus(ctx context.Context, o *orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(statusBody(o))
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func statusBody(o *orders.Order) map[string]any {
	return map[string]any{
		"order_id":       o.ID,
		"order_number":   o.OrderNumber,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"total_cents":    o.TotalCents,
	}
}

// ---- disputes ----

type openDisputeReq struct {
	BuyerID string `json:"buyer_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) openDispute(w http.ResponseWriter, r *http.Request) {
	var req openDisputeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuyerID == "" || req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "buyer_id and reason required"})
		return
	}
	d, err := h.Manager.OpenDispute(r.Context(), chi.URLParam(r, "id"), req.BuyerID, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type disputeMessageReq struct {
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
}

func (h *Handler) disputeMessage(w http.ResponseWriter, r *http.Request) {
	var req disputeMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuthorID == "" || req.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "author_id and body required"})
		return
	}
	d, err := h.Manager.AddDisputeMessage(r.Context(), chi.URLParam(r, "id"), req.AuthorID, req.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type resolveDisputeReq struct {
	Resolution  string `json:"resolution"`
	RefundBuyer bool   `json:"refund_buyer"`
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Resolution == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "resolution required"})
		return
	}
	d, err := h.Manager.ResolveDispute(r.Context(), chi.URLParam(r, "id"), req.Resolution, req.RefundBuyer)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
