package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ariefcatur/go-bakery-orders/internal/config"
	kafkax "github.com/ariefcatur/go-bakery-orders/internal/kafka"
	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"github.com/ariefcatur/go-bakery-orders/internal/redisx"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	key   string
	env   orders.Envelope
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	var env orders.Envelope
	_ = json.Unmarshal(value, &env)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, key: string(key), env: env})
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type fakeLowStock struct{ entries []redisx.LowStockEntry }

func (f fakeLowStock) List(ctx context.Context) ([]redisx.LowStockEntry, error) {
	return f.entries, nil
}

type testAPI struct {
	srv   *httptest.Server
	store *orders.MemoryStore
	pub   *fakePublisher
}

func newTestAPI(t *testing.T, low LowStockLister) *testAPI {
	t.Helper()
	d := decimal.RequireFromString
	st := orders.NewMemoryStore()
	st.PutIngredient(orders.Ingredient{ID: "X", Name: "flour", Stock: d("15"), Unit: "kg"})
	st.PutIngredient(orders.Ingredient{ID: "Y", Name: "water", Stock: d("0"), Unlimited: true, Unit: "l"})
	st.PutProduct(orders.Product{ID: "A", Name: "sourdough", Price: d("100"), Stock: 10, Recipe: []orders.RecipeLine{
		{IngredientID: "X", QtyRequired: d("2")},
		{IngredientID: "Y", QtyRequired: d("1")},
	}})
	st.PutCoupon(orders.Coupon{Code: "TENOFF", Percent: d("10"), Active: true})

	engine := &orders.Engine{
		Store:   st,
		Coupons: &orders.CouponValidator{Coupons: st},
		States:  orders.NewStateSet([]string{"IN_PRODUCTION", "DELIVERED"}, []string{"DELIVERED"}),
	}
	pub := &fakePublisher{}
	oh := &OrdersHandler{
		Engine:   engine,
		Producer: pub,
		Service:  "bakery-test",
		Payment:  config.PaymentInstructions{BankName: "Bancolombia", AccountNumber: "123-456", AccountHolder: "Panaderia"},
	}
	r := NewRouter()
	oh.Register(r)
	(&AdminHandler{Orders: oh, LowStock: low}).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, store: st, pub: pub}
}

func (a *testAPI) do(t *testing.T, method, path, user, role string, body any) *http.Response {
	t.Helper()
	return a.doWith(t, method, path, user, role, body, nil)
}

func (a *testAPI) doWith(t *testing.T, method, path, user, role string, body any, header http.Header) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

var twoA = CreateOrderReq{
	Items:      []orders.ItemQty{{ProductID: "A", Qty: 2}},
	CouponCode: "TENOFF",
	Delivery:   orders.DeliveryInfo{RecipientName: "Ana", Address: "Cra 7 #12-40", Phone: "3001234567"},
}

func (a *testAPI) createOrder(t *testing.T, user string) CreateOrderResp {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/orders", user, "", twoA)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[CreateOrderResp](t, resp)
}

func TestCreateOrder(t *testing.T) {
	api := newTestAPI(t, nil)

	out := api.createOrder(t, "cust-1")
	assert.Equal(t, orders.StatusPendingPayment, out.Order.Status)
	assert.Equal(t, "200.00", out.Order.Subtotal)
	assert.Equal(t, "20.00", out.Order.Discount)
	assert.Equal(t, "180.00", out.Order.Total)
	assert.Equal(t, out.Order.PaymentRef, out.ReferenceCode)
	assert.Equal(t, "180.00", out.Payment.Amount)
	assert.Equal(t, "Bancolombia", out.Payment.BankName)
	assert.Contains(t, out.Payment.Message, out.ReferenceCode)
	assert.False(t, out.Idempotent)

	require.Equal(t, []string{orders.TopicOrderCreated}, api.pub.topics())
	ev := api.pub.events[0]
	assert.Equal(t, out.Order.ID, ev.key)
	assert.Equal(t, orders.EventOrderCreated, ev.env.EventType)
	assert.Equal(t, "bakery-test", ev.env.Producer)

	payload, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](ev.env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "180.00", payload.Total)
}

func TestCreateOrder_errors(t *testing.T) {
	api := newTestAPI(t, nil)

	t.Run("missing identity", func(t *testing.T) {
		resp := api.do(t, http.MethodPost, "/orders", "", "", twoA)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stock conflict lists products", func(t *testing.T) {
		req := twoA
		req.Items = []orders.ItemQty{{ProductID: "A", Qty: 8}}
		resp := api.do(t, http.MethodPost, "/orders", "cust-1", "", req)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorResp](t, resp)
		assert.Equal(t, "insufficient_stock", body.Error)
		assert.Equal(t, []orders.Conflict{{ProductID: "A", Requested: 8, Available: 7}}, body.Conflicts)
	})

	t.Run("invalid coupon", func(t *testing.T) {
		req := twoA
		req.CouponCode = "NOPE"
		resp := api.do(t, http.MethodPost, "/orders", "cust-1", "", req)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "invalid_coupon", decode[errorResp](t, resp).Error)
	})

	t.Run("validation", func(t *testing.T) {
		req := twoA
		req.Delivery = orders.DeliveryInfo{}
		resp := api.do(t, http.MethodPost, "/orders", "cust-1", "", req)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_error", decode[errorResp](t, resp).Error)
	})

	assert.Empty(t, api.pub.topics())
}

func TestConfirmPayment(t *testing.T) {
	api := newTestAPI(t, nil)
	created := api.createOrder(t, "cust-1")
	path := "/orders/" + created.Order.ID + "/confirm-payment"

	resp := api.do(t, http.MethodPost, path, "cust-2", "", ConfirmPaymentReq{ProofRef: "TRX-1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, http.MethodPost, path, "cust-1", "", ConfirmPaymentReq{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPost, path, "cust-1", "", ConfirmPaymentReq{ProofRef: "TRX-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[ConfirmPaymentResp](t, resp)
	assert.Equal(t, orders.StatusConfirmed, out.Order.Status)
	assert.Equal(t, "TRX-1", out.Order.Notes)

	resp = api.do(t, http.MethodPost, path, "cust-1", "", ConfirmPaymentReq{ProofRef: "TRX-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	ps, err := api.store.LoadProducts(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 8, ps[0].Stock)

	assert.Equal(t, []string{orders.TopicOrderCreated, orders.TopicPaymentConfirmed}, api.pub.topics())
	payload, err := kafkax.UnwrapPayload[orders.PaymentConfirmedPayload](api.pub.events[1].env.Payload)
	require.NoError(t, err)
	assert.Len(t, payload.Movements, 2)
}

func TestCancelAndGet(t *testing.T) {
	api := newTestAPI(t, nil)
	created := api.createOrder(t, "cust-1")
	id := created.Order.ID

	resp := api.do(t, http.MethodGet, "/orders/"+id, "cust-2", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/orders/"+id, "someone", RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/orders/"+id+"/cancel", "cust-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orders.StatusCancelled, decode[OrderView](t, resp).Status)

	resp = api.do(t, http.MethodPost, "/orders/"+id+"/cancel", "cust-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/orders/"+id, "cust-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orders.StatusCancelled, decode[OrderView](t, resp).Status)
}

func TestValidateAvailability(t *testing.T) {
	api := newTestAPI(t, nil)

	resp := api.do(t, http.MethodPost, "/availability/validate", "", "", ValidateReq{Items: []orders.ItemQty{{ProductID: "A", Qty: 7}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	av := decode[orders.Availability](t, resp)
	assert.True(t, av.Valid)
	assert.Equal(t, 7, av.MaxAvailable["A"])

	resp = api.do(t, http.MethodPost, "/availability/validate", "", "", ValidateReq{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	api := newTestAPI(t, fakeLowStock{entries: []redisx.LowStockEntry{{IngredientID: "X", Stock: 3}}})
	created := api.createOrder(t, "cust-1")
	id := created.Order.ID

	resp := api.do(t, http.MethodPut, "/admin/orders/"+id+"/state", "cust-1", "", SetStateReq{State: "IN_PRODUCTION"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.do(t, http.MethodPut, "/admin/orders/"+id+"/state", "boss", RoleAdmin, SetStateReq{State: "CONFIRMED"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/orders/"+id+"/confirm-payment", "cust-1", "", ConfirmPaymentReq{ProofRef: "TRX"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodPut, "/admin/orders/"+id+"/state", "boss", RoleAdmin, SetStateReq{State: "in_production"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orders.Status("IN_PRODUCTION"), decode[OrderView](t, resp).Status)

	resp = api.do(t, http.MethodGet, "/admin/stock/low", "boss", RoleAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []redisx.LowStockEntry{{IngredientID: "X", Stock: 3}}, decode[[]redisx.LowStockEntry](t, resp))

	resp = api.do(t, http.MethodDelete, "/admin/orders/"+id, "boss", RoleAdmin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ps, err := api.store.LoadProducts(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 10, ps[0].Stock)

	resp = api.do(t, http.MethodDelete, "/admin/orders/"+id, "boss", RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, []string{
		orders.TopicOrderCreated,
		orders.TopicPaymentConfirmed,
		orders.TopicOrderStateChanged,
		orders.TopicOrderDeleted,
	}, api.pub.topics())
}

func TestLowStock_withoutBoard(t *testing.T) {
	api := newTestAPI(t, nil)
	resp := api.do(t, http.MethodGet, "/admin/stock/low", "boss", RoleAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]redisx.LowStockEntry](t, resp))
}

func TestCreateOrder_idempotencyKeyWithoutRedis(t *testing.T) {
	api := newTestAPI(t, nil)
	h := http.Header{HeaderIdempotencyKey: []string{"checkout-7"}}

	resp := api.doWith(t, http.MethodPost, "/orders", "cust-1", "", twoA, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[CreateOrderResp](t, resp)

	resp = api.doWith(t, http.MethodPost, "/orders", "cust-1", "", twoA, h)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[CreateOrderResp](t, resp)
	assert.True(t, again.Idempotent)
	assert.Equal(t, first.Order.ID, again.Order.ID)

	// hanya satu event order.created
	assert.Equal(t, []string{orders.TopicOrderCreated}, api.pub.topics())

	resp = api.doWith(t, http.MethodPost, "/orders", "cust-2", "", twoA, h)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, first.Order.ID, decode[CreateOrderResp](t, resp).Order.ID)
}

func TestCreateOrder_oversizedQtyRejected(t *testing.T) {
	api := newTestAPI(t, nil)
	req := twoA
	req.Items = []orders.ItemQty{{ProductID: "A", Qty: math.MaxInt}, {ProductID: "A", Qty: 1}}

	resp := api.do(t, http.MethodPost, "/orders", "cust-1", "", req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", decode[errorResp](t, resp).Error)
}
