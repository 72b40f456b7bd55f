package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront/internal/backend"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/kv"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducts map[string]catalog.Product

func (f fakeProducts) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return catalog.Product{}, &backend.APIError{Status: http.StatusNotFound, Message: "product not found"}
	}
	return p, nil
}

type recordingCreator struct {
	calls atomic.Int32
	last  orders.CreateRequest
}

func (c *recordingCreator) CreateOrder(_ context.Context, _ string, req orders.CreateRequest) (orders.Order, error) {
	c.calls.Add(1)
	c.last = req
	return orders.Order{ID: "ord-1", Status: orders.StatusPending, Total: req.Total}, nil
}

type storefrontFixture struct {
	sf      *Storefront
	router  *chi.Mux
	mem     *kv.Memory
	creator *recordingCreator
}

func newStorefront(t *testing.T) *storefrontFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := kv.NewMemory()
	creator := &recordingCreator{}
	sf := NewStorefront(ctx, StorefrontDeps{
		KV: mem.Tab("tab-a"),
		Products: fakeProducts{
			"p1": {ID: "p1", Name: "Kettle", Price: decimal.NewFromInt(600), DiscountedPrice: decimal.NewFromInt(500), Stock: 3},
		},
		Pricing:       pricing.NewEngine(pricing.DefaultCatalog()),
		Orders:        creator,
		RedirectDelay: time.Hour,
	})
	r := NewRouter(nil)
	sf.Register(r)
	return &storefrontFixture{sf: sf, router: r, mem: mem, creator: creator}
}

func (f *storefrontFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(OwnerHeader, "alice")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartView {
	t.Helper()
	var v cartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCartRoutes(t *testing.T) {
	f := newStorefront(t)

	rec := f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decodeCart(t, rec)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 2, v.Count)

	rec = f.do(t, http.MethodPatch, "/cart/items/p1", `{"quantity":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeCart(t, rec).Count)

	rec = f.do(t, http.MethodPost, "/cart/items/p1/decrement", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeCart(t, rec).Count)

	rec = f.do(t, http.MethodGet, "/cart", "")
	assert.Equal(t, 2, decodeCart(t, rec).Count)

	rec = f.do(t, http.MethodDelete, "/cart/items/zzz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/cart", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, decodeCart(t, f.do(t, http.MethodGet, "/cart", "")).Count)
}

func TestAddOverStockIsConflict(t *testing.T) {
	f := newStorefront(t)
	rec := f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":5}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"maxAddable":3`)
	assert.Empty(t, decodeCart(t, f.do(t, http.MethodGet, "/cart", "")).Items)
}

func TestAddUnknownProduct(t *testing.T) {
	f := newStorefront(t)
	rec := f.do(t, http.MethodPost, "/cart/items", `{"productId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOwnerHeaderIsValidated(t *testing.T) {
	f := newStorefront(t)
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(OwnerHeader, "../etc")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPricingRoute(t *testing.T) {
	f := newStorefront(t)
	f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":2}`)

	rec := f.do(t, http.MethodGet, "/pricing?delivery=express&country=Vietnam&city=Hue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var q quoteResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.True(t, decimal.NewFromInt(1000).Equal(q.Breakdown.Subtotal))
	assert.True(t, decimal.NewFromInt(50000).Equal(q.Breakdown.Shipping))
	assert.Equal(t, pricing.AdvisorySurcharge, q.Advisory)

	rec = f.do(t, http.MethodGet, "/pricing?delivery=teleport", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	f := newStorefront(t)

	rec := f.do(t, http.MethodPost, "/checkout", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/cart"`)

	f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":2}`)
	rec = f.do(t, http.MethodPost, "/checkout", `{"fullName":"Nguyen Van An","email":"an@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/checkout/submit", `{"paymentMethod":"cod"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "phone")
	assert.Zero(t, f.creator.calls.Load())

	rec = f.do(t, http.MethodPut, "/checkout/contact",
		`{"fullName":"Nguyen Van An","phone":"0912345678","email":"an@example.com","address":"12 Hang Bai","city":"Hanoi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/checkout/submit", `{"paymentMethod":"e_wallet"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp checkoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "confirmed", string(resp.State))
	require.NotNil(t, resp.Order)
	assert.Equal(t, "ord-1", resp.Order.ID)
	assert.Equal(t, orders.PaymentPaid, f.creator.last.PaymentStatus)
	assert.Zero(t, decodeCart(t, f.do(t, http.MethodGet, "/cart", "")).Count)

	rec = f.do(t, http.MethodPost, "/checkout/submit", `{"paymentMethod":"e_wallet"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int32(1), f.creator.calls.Load())

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/checkout", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/checkout", "").Code)
	assert.Zero(t, f.sf.liveOwners())
}

func TestCartEventsStreamLocalAndRemoteChanges(t *testing.T) {
	f := newStorefront(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/cart/events", nil)
	require.NoError(t, err)
	req.Header.Set(OwnerHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan cartView, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				var v cartView
				if json.Unmarshal([]byte(data), &v) == nil {
					events <- v
				}
			}
		}
	}()
	next := func() cartView {
		select {
		case v := <-events:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return cartView{}
		}
	}

	assert.Zero(t, next().Count)

	// same process
	f.do(t, http.MethodPost, "/cart/items", `{"productId":"p1","quantity":1}`)
	assert.Equal(t, 1, next().Count)

	// another storefront process writing the same key
	other := cart.NewStore(f.mem.Tab("tab-b"), "cart:alice", nil, nil)
	_, err = other.SetQuantity(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, next().Count)
}

func TestIdleOwnersAreReleased(t *testing.T) {
	f := newStorefront(t)
	base := runtime.NumGoroutine()

	for i := 0; i < 500; i++ {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set(OwnerHeader, fmt.Sprintf("owner-%d", i))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Zero(t, f.sf.liveOwners())
	assert.LessOrEqual(t, runtime.NumGoroutine(), base)

	const streams = 20
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, streams)
	for i := 0; i < streams; i++ {
		req := httptest.NewRequest(http.MethodGet, "/cart/events", nil).WithContext(ctx)
		req.Header.Set(OwnerHeader, fmt.Sprintf("stream-%d", i%10))
		go func() {
			f.router.ServeHTTP(httptest.NewRecorder(), req)
			done <- struct{}{}
		}()
	}
	require.Eventually(t, func() bool { return f.sf.liveOwners() == 10 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	for i := 0; i < streams; i++ {
		<-done
	}
	assert.Zero(t, f.sf.liveOwners())
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= base }, 2*time.Second, 10*time.Millisecond)
}
