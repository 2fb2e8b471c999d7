package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-bakery-orders/internal/config"
	kafkax "github.com/ariefcatur/go-bakery-orders/internal/kafka"
	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"github.com/ariefcatur/go-bakery-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// Publisher dipenuhi oleh *kafkax.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Engine   *orders.Engine
	Producer Publisher
	Redis    redis.Cmdable // boleh nil: cache & idempotency dilewati
	Service  string
	Payment  config.PaymentInstructions
}

type CreateOrderReq struct {
	Items      []orders.ItemQty    `json:"items"`
	CouponCode string              `json:"coupon_code,omitempty"`
	Delivery   orders.DeliveryInfo `json:"delivery"`
}

type ItemView struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderView struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Status     orders.Status       `json:"status"`
	Subtotal   string              `json:"subtotal"`
	Discount   string              `json:"discount"`
	Total      string              `json:"total"`
	CouponCode string              `json:"coupon_code,omitempty"`
	PaymentRef string              `json:"payment_ref"`
	Notes      string              `json:"notes,omitempty"`
	Delivery   orders.DeliveryInfo `json:"delivery"`
	Items      []ItemView          `json:"items"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

type PaymentInstructionsView struct {
	config.PaymentInstructions
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

type CreateOrderResp struct {
	Order         OrderView               `json:"order"`
	ReferenceCode string                  `json:"reference_code"`
	Payment       PaymentInstructionsView `json:"payment"`
	Idempotent    bool                    `json:"idempotent"`
}

type ConfirmPaymentReq struct {
	ProofRef string `json:"proof_ref"`
}

type ConfirmPaymentResp struct {
	Order       OrderView `json:"order"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type ValidateReq struct {
	Items []orders.ItemQty `json:"items"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/availability/validate", h.validateAvailability)
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/confirm-payment", h.confirmPayment)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
	})
}

func toView(o orders.Order) OrderView {
	v := OrderView{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Subtotal:   o.Subtotal.StringFixed(2),
		Discount:   o.Discount.StringFixed(2),
		Total:      o.Total.StringFixed(2),
		CouponCode: o.CouponCode,
		PaymentRef: o.PaymentRef,
		Notes:      o.Notes,
		Delivery:   o.Delivery,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
		Items:      make([]ItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{
			ProductID: it.ProductID,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		})
	}
	return v
}

func (h *OrdersHandler) createResp(o orders.Order, idempotent bool) CreateOrderResp {
	return CreateOrderResp{
		Order:         toView(o),
		ReferenceCode: o.PaymentRef,
		Payment: PaymentInstructionsView{
			PaymentInstructions: h.Payment,
			Amount:              o.Total.StringFixed(2),
			Reference:           o.PaymentRef,
			Message: fmt.Sprintf("Transfer %s and write %s in the transfer description, then confirm the payment with your receipt reference.",
				o.Total.StringFixed(2), o.PaymentRef),
		},
		Idempotent: idempotent,
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	caller := identityFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis (DB tetap jadi kebenaran: UNIQUE customer_id+idempotency_key)
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	idemKey := ""
	if key != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, caller.UserID, key)
		if orderID, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && orderID != "" {
			if o, err := h.Engine.Get(ctx, orderID, caller.UserID); err == nil {
				writeJSON(w, http.StatusOK, h.createResp(o, true))
				return
			}
		}
	}

	o, existed, err := h.Engine.Create(ctx, orders.CreateInput{
		CustomerID: caller.UserID,
		Items:      req.Items,
		CouponCode: req.CouponCode,
		Delivery:   req.Delivery,
		IdemKey:    key,
	})
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	if existed {
		writeJSON(w, http.StatusOK, h.createResp(o, true))
		return
	}
	h.cacheOrder(ctx, o)

	h.publish(r, orders.TopicOrderCreated, orders.EventOrderCreated, o.ID, orders.OrderCreatedPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Items:      orders.ToItemPrices(o.Items),
		CouponCode: o.CouponCode,
		Total:      o.Total.StringFixed(2),
		PaymentRef: o.PaymentRef,
	})

	writeJSON(w, http.StatusCreated, h.createResp(o, false))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	caller := identityFrom(r.Context())
	owner := caller.UserID
	if caller.IsAdmin() {
		owner = ""
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderView, orderID)
		if s, err := h.Redis.Get(ctx, key).Bytes(); err == nil {
			var v OrderView
			if json.Unmarshal(s, &v) == nil && (owner == "" || v.CustomerID == owner) {
				writeJSON(w, http.StatusOK, v)
				return
			}
		}
	}

	// 2) fallback DB
	o, err := h.Engine.Get(ctx, orderID, owner)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, toView(o))
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	orderID := chi.URLParam(r, "id")
	caller := identityFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rc, err := h.Engine.ConfirmPayment(ctx, orderID, caller.UserID, req.ProofRef)
	if err != nil {
		writeError(w, r, err, http.StatusConflict)
		return
	}
	h.cacheOrder(ctx, rc.Order)
	h.publish(r, orders.TopicPaymentConfirmed, orders.EventPaymentConfirmed, rc.Order.ID, orders.PaymentConfirmedPayload{
		OrderID:   rc.Order.ID,
		ProofRef:  rc.Order.Notes,
		Movements: rc.Movements,
	})
	writeJSON(w, http.StatusOK, ConfirmPaymentResp{Order: toView(rc.Order), ConfirmedAt: rc.Order.UpdatedAt})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	caller := identityFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Engine.Cancel(ctx, orderID, caller.UserID)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	h.cacheOrder(ctx, o)
	h.publish(r, orders.TopicOrderCancelled, orders.EventOrderCancelled, o.ID, orders.OrderCancelledPayload{OrderID: o.ID})
	writeJSON(w, http.StatusOK, toView(o))
}

func (h *OrdersHandler) validateAvailability(w http.ResponseWriter, r *http.Request) {
	var req ValidateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	av, err := h.Engine.ValidateAvailability(ctx, req.Items)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	if av.Conflicts == nil {
		av.Conflicts = []orders.Conflict{}
	}
	writeJSON(w, http.StatusOK, av)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(toView(o))
	if err != nil {
		return
	}
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderView, o.ID), b, redisx.TTLOrderCache).Err()
}

func (h *OrdersHandler) evictOrder(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderView, orderID)).Err()
}

// publish: envelope v1, key = order_id.
func (h *OrdersHandler) publish(r *http.Request, topic, eventType, orderID string, payload any) {
	if h.Producer == nil {
		return
	}
	trace := r.Header.Get("X-Request-Id")
	if trace == "" {
		trace = middleware.GetReqID(r.Context())
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	h.Producer.Publish(topic, orders.PartitionKey(orderID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, 1)...)
	zap.L().Debug("event published", zap.String("topic", topic), zap.String("event_id", ev.EventID))
}
