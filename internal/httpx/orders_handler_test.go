package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu      sync.Mutex
	byID    map[string]orders.Order
	byExt   map[string]string
	creates int
}

func (m *memRepo) Create(_ context.Context, ext string, req orders.CreateRequest) (orders.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byExt[ext]; ok && ext != "" {
		return m.byID[id], true, nil
	}
	m.creates++
	o := orders.Order{ID: "ord-" + string(rune('0'+m.creates)), Items: req.Items, Status: orders.StatusPending,
		PaymentStatus: req.PaymentStatus, Subtotal: req.Subtotal, Shipping: req.Shipping, Tax: req.Tax, Total: req.Total}
	m.byID[o.ID] = o
	if ext != "" {
		m.byExt[ext] = o.ID
	}
	return o, false, nil
}

func (m *memRepo) Get(_ context.Context, id string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (m *memRepo) List(context.Context) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []orders.Order{}
	for _, o := range m.byID {
		out = append(out, o)
	}
	return out, nil
}

func (m *memRepo) Update(_ context.Context, id string, req orders.UpdateRequest) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	if !orders.Total(req.Subtotal, req.Tax, req.Shipping).Equal(req.Total) {
		return orders.Order{}, orders.ErrTotalMismatch
	}
	o.Status, o.Total = req.Status, req.Total
	m.byID[id] = o
	return o, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return orders.ErrOrderNotFound
	}
	delete(m.byID, id)
	return nil
}

type memProducts struct{}

func (memProducts) Get(_ context.Context, id string) (catalog.Product, error) {
	if id != "p1" {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return catalog.Product{ID: "p1", Name: "Kettle", Price: decimal.NewFromInt(500), Stock: 4}, nil
}

func (memProducts) List(context.Context) ([]catalog.Product, error) {
	p, _ := memProducts{}.Get(context.Background(), "p1")
	return []catalog.Product{p}, nil
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (c *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		v, _ := kafkax.HeaderValue(m, "x-event-type")
		out = append(out, v)
	}
	return out
}

func newOrdersAPI(t *testing.T) (*chi.Mux, *memRepo, *capturePublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := &memRepo{byID: map[string]orders.Order{}, byExt: map[string]string{}}
	pub := &capturePublisher{}
	h := &OrdersHandler{Repo: repo, Products: memProducts{}, Producer: pub, Redis: rdb, Service: "ordersapi", AdminToken: "secret"}
	r := NewRouter(nil)
	h.Register(r)
	return r, repo, pub
}

const createBody = `{"items":[{"productId":"p1","name":"Kettle","price":"500","quantity":2}],
	"shippingAddress":{"fullName":"An","phone":"0912345678","email":"an@example.com","address":"x","city":"Hanoi"},
	"paymentMethod":"cod","paymentStatus":"pending","subtotal":"1000","shipping":"30000","tax":"0","total":"31000",
	"deliveryOption":"standard"}`

func post(r http.Handler, path, body string, h map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range h {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderIsIdempotent(t *testing.T) {
	r, repo, pub := newOrdersAPI(t)
	h := map[string]string{"Idempotency-Key": "k-1"}

	rec := post(r, "/api/orders/create", createBody, h)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first createOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))

	rec = post(r, "/api/orders/create", createBody, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	var second createOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 1, repo.creates)
	assert.Equal(t, []string{orders.EventOrderCreated}, pub.types())
}

func TestCreateOrderRejectsBadTotal(t *testing.T) {
	r, repo, _ := newOrdersAPI(t)
	body := strings.Replace(createBody, `"total":"31000"`, `"total":"1"`, 1)
	rec := post(r, "/api/orders/create", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message"`)
	assert.Zero(t, repo.creates)
}

func TestAdminOrderRoutesPublishEvents(t *testing.T) {
	r, _, pub := newOrdersAPI(t)
	rec := post(r, "/api/orders/create", createBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created createOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Order.ID

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec = auth(http.MethodGet, "/api/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = auth(http.MethodPut, "/api/orders/"+id,
		`{"subtotal":"800","tax":"0","shipping":"50","total":"900","status":"shipped","paymentStatus":"paid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = auth(http.MethodPut, "/api/orders/"+id,
		`{"subtotal":"800","tax":"0","shipping":"50","total":"850","status":"shipped","paymentStatus":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = auth(http.MethodDelete, "/api/orders/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = auth(http.MethodDelete, "/api/orders/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []string{orders.EventOrderCreated, orders.EventOrderUpdated, orders.EventOrderDeleted}, pub.types())
}

func TestProductRoutes(t *testing.T) {
	r, _, _ := newOrdersAPI(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var p catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, 4, p.Stock)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products/zz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
