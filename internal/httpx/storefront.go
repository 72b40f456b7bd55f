package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/backend"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/cartsync"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/kv"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// OwnerHeader names whose cart a storefront request works on.
const OwnerHeader = "X-Cart-Owner"

const defaultOwner = "guest"

var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type ProductSource interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type StorefrontDeps struct {
	KV            kv.Store
	Products      ProductSource
	Pricing       *pricing.Engine
	Orders        checkout.OrderCreator
	RedirectDelay time.Duration
	Log           *zap.Logger
}

// shopper is one request's handle on an owner's stored cart and draft.
// It costs nothing to build and holds no goroutines.
type shopper struct {
	id     string
	cart   *cart.Store
	drafts *checkout.DraftStore
}

// owner is the state that outlives a request: the change bus while at least
// one event stream is open, and the checkout session while one is open.
// An owner with neither is dropped.
type owner struct {
	bus       *cartsync.Bus
	streams   int
	stopRelay context.CancelFunc
	checkout  *checkout.Orchestrator
}

// Storefront serves the shopper-facing cart and checkout routes.
type Storefront struct {
	deps StorefrontDeps
	log  *zap.Logger
	ctx  context.Context

	mu     sync.Mutex
	owners map[string]*owner
}

// NewStorefront bounds every cross-process relay it starts by ctx.
func NewStorefront(ctx context.Context, d StorefrontDeps) *Storefront {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Storefront{deps: d, log: d.Log, ctx: ctx, owners: map[string]*owner{}}
}

func (s *Storefront) Register(r chi.Router) {
	r.Get("/cart/events", s.cartEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))
		r.Get("/cart", s.getCart)
		r.Post("/cart/items", s.addItem)
		r.Patch("/cart/items/{id}", s.setQuantity)
		r.Post("/cart/items/{id}/decrement", s.decrement)
		r.Delete("/cart/items/{id}", s.removeItem)
		r.Delete("/cart", s.clearCart)

		r.Get("/delivery-options", s.deliveryOptions)
		r.Get("/pricing", s.quote)

		r.Post("/checkout", s.beginCheckout)
		r.Get("/checkout", s.getCheckout)
		r.Put("/checkout/contact", s.updateContact)
		r.Put("/checkout/delivery", s.selectDelivery)
		r.Post("/checkout/submit", s.submitCheckout)
		r.Delete("/checkout", s.closeCheckout)
	})
}

func (s *Storefront) shopperFor(id string) shopper {
	return shopper{
		id:     id,
		cart:   cart.NewStore(s.deps.KV, fmt.Sprintf(redisx.KeyCart, id), ownerSignal{s: s, id: id}, s.log),
		drafts: checkout.NewDraftStore(s.deps.KV, fmt.Sprintf(redisx.KeyCheckoutDraft, id)),
	}
}

// ownerSignal routes a cart write to the owner's bus, if anyone is listening.
type ownerSignal struct {
	s  *Storefront
	id string
}

func (n ownerSignal) CartChanged() {
	n.s.mu.Lock()
	o := n.s.owners[n.id]
	n.s.mu.Unlock()
	if o != nil {
		o.bus.CartChanged()
	}
}

// ownerLocked returns the live owner for id, creating it. s.mu must be held.
func (s *Storefront) ownerLocked(id string) *owner {
	o, ok := s.owners[id]
	if !ok {
		o = &owner{bus: cartsync.New(s.log)}
		s.owners[id] = o
	}
	return o
}

// releaseLocked drops id once nothing keeps it alive. s.mu must be held.
func (s *Storefront) releaseLocked(id string, o *owner) {
	if o.streams == 0 && o.checkout == nil && s.owners[id] == o {
		delete(s.owners, id)
	}
}

// subscribe attaches h to id's bus. The first subscriber starts the relay
// for writes from other processes and the last one to leave stops it.
func (s *Storefront) subscribe(id string, h cartsync.Handler) (release func()) {
	s.mu.Lock()
	o := s.ownerLocked(id)
	o.streams++
	var relayCtx context.Context
	if o.streams == 1 {
		relayCtx, o.stopRelay = context.WithCancel(s.ctx)
	}
	unsubscribe := o.bus.Subscribe(h)
	s.mu.Unlock()

	if relayCtx != nil {
		if err := o.bus.Relay(relayCtx, s.deps.KV, fmt.Sprintf(redisx.KeyCart, id)); err != nil {
			s.log.Warn("cart relay not started", zap.String("owner", id), zap.Error(err))
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			s.mu.Lock()
			defer s.mu.Unlock()
			o.streams--
			if o.streams == 0 && o.stopRelay != nil {
				o.stopRelay()
				o.stopRelay = nil
			}
			s.releaseLocked(id, o)
		})
	}
}

func (s *Storefront) liveOwners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners)
}

func ownerOf(r *http.Request) (string, bool) {
	id := r.Header.Get(OwnerHeader)
	if id == "" {
		return defaultOwner, true
	}
	return id, ownerPattern.MatchString(id)
}

// withOwner resolves the request's owner or answers 400.
func (s *Storefront) withOwner(w http.ResponseWriter, r *http.Request) (shopper, bool) {
	id, ok := ownerOf(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid "+OwnerHeader)
		return shopper{}, false
	}
	return s.shopperFor(id), true
}

type cartView struct {
	Items []cart.Item `json:"items"`
	Count int         `json:"count"`
}

func viewOf(c cart.Cart) cartView {
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	return cartView{Items: c.Items, Count: c.Count()}
}

func (s *Storefront) getCart(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(o.cart.Get(r.Context())))
}

type addItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Storefront) addItem(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	req := addItemReq{Quantity: 1}
	if err := decodeJSON(r, &req); err != nil || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	p, err := s.deps.Products.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		s.backendError(w, "get product", err)
		return
	}
	c, err := o.cart.Add(r.Context(), p, req.Quantity)
	if err != nil {
		s.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Storefront) setQuantity(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	c, err := o.cart.SetQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		s.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Storefront) decrement(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	c, err := o.cart.Decrement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Storefront) removeItem(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	c, err := o.cart.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.cartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Storefront) clearCart(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	if err := o.cart.Clear(r.Context()); err != nil {
		s.cartError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cartEvents streams the cart as Server-Sent Events: once on connect, then
// after every change from this process or another one.
func (s *Storefront) cartEvents(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	signal := make(chan cartsync.Event, 1)
	release := s.subscribe(o.id, func(ev cartsync.Event) {
		select {
		case signal <- ev:
		default:
		}
	})
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(source string) error {
		b, err := json.Marshal(viewOf(o.cart.Get(r.Context())))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: cart\nid: %s\ndata: %s\n\n", source, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := send("initial"); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-signal:
			if err := send(ev.Source.String()); err != nil {
				return
			}
		}
	}
}

func (s *Storefront) deliveryOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Pricing.Catalog().Options())
}

type quoteResp struct {
	Breakdown pricing.Breakdown `json:"breakdown"`
	Advisory  pricing.Advisory  `json:"advisory"`
	Message   string            `json:"message"`
}

func (s *Storefront) quote(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	dest := pricing.Destination{Country: q.Get("country"), City: q.Get("city")}
	b, err := s.deps.Pricing.Compute(o.cart.Get(r.Context()), q.Get("delivery"), dest)
	if errors.Is(err, pricing.ErrUnknownDeliveryOption) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	adv := s.deps.Pricing.Advise(dest)
	writeJSON(w, http.StatusOK, quoteResp{Breakdown: b, Advisory: adv, Message: adv.Message()})
}

type checkoutResp struct {
	checkout.View
	Quote *quoteResp `json:"quote,omitempty"`
}

func (s *Storefront) checkoutView(ctx context.Context, co *checkout.Orchestrator) checkoutResp {
	resp := checkoutResp{View: co.View()}
	if b, adv, err := co.Quote(ctx); err == nil {
		resp.Quote = &quoteResp{Breakdown: b, Advisory: adv, Message: adv.Message()}
	}
	return resp
}

func (s *Storefront) session(w http.ResponseWriter, r *http.Request) (shopper, *checkout.Orchestrator, bool) {
	sh, ok := s.withOwner(w, r)
	if !ok {
		return shopper{}, nil, false
	}
	var co *checkout.Orchestrator
	s.mu.Lock()
	if o := s.owners[sh.id]; o != nil {
		co = o.checkout
	}
	s.mu.Unlock()
	if co == nil {
		writeError(w, http.StatusNotFound, "no checkout in progress")
		return shopper{}, nil, false
	}
	return sh, co, true
}

// beginCheckout opens a fresh session; the body may carry the profile's
// contact for pre-fill.
func (s *Storefront) beginCheckout(w http.ResponseWriter, r *http.Request) {
	o, ok := s.withOwner(w, r)
	if !ok {
		return
	}
	var profile checkout.ContactInfo
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	co, err := checkout.Begin(r.Context(), checkout.Deps{
		Cart:          o.cart,
		Drafts:        o.drafts,
		Pricing:       s.deps.Pricing,
		Orders:        s.deps.Orders,
		Log:           s.log,
		RedirectDelay: s.deps.RedirectDelay,
	}, profile)
	if errors.Is(err, checkout.ErrEmptyCart) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": err.Error(), "redirect": "/cart"})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mu.Lock()
	live := s.ownerLocked(o.id)
	prev := live.checkout
	live.checkout = co
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	writeJSON(w, http.StatusCreated, s.checkoutView(r.Context(), co))
}

func (s *Storefront) getCheckout(w http.ResponseWriter, r *http.Request) {
	_, co, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.checkoutView(r.Context(), co))
}

func (s *Storefront) updateContact(w http.ResponseWriter, r *http.Request) {
	_, co, ok := s.session(w, r)
	if !ok {
		return
	}
	var c checkout.ContactInfo
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := co.UpdateContact(r.Context(), c); err != nil {
		s.checkoutError(w, co, err)
		return
	}
	writeJSON(w, http.StatusOK, s.checkoutView(r.Context(), co))
}

func (s *Storefront) selectDelivery(w http.ResponseWriter, r *http.Request) {
	_, co, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		DeliveryOption string `json:"deliveryOption"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := co.SelectDelivery(r.Context(), req.DeliveryOption); err != nil {
		s.checkoutError(w, co, err)
		return
	}
	writeJSON(w, http.StatusOK, s.checkoutView(r.Context(), co))
}

func (s *Storefront) submitCheckout(w http.ResponseWriter, r *http.Request) {
	_, co, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		PaymentMethod string `json:"paymentMethod"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	method, err := checkout.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := co.Submit(r.Context(), method); err != nil {
		s.checkoutError(w, co, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.checkoutView(r.Context(), co))
}

func (s *Storefront) closeCheckout(w http.ResponseWriter, r *http.Request) {
	sh, co, ok := s.session(w, r)
	if !ok {
		return
	}
	co.Close()
	s.mu.Lock()
	if o := s.owners[sh.id]; o != nil && o.checkout == co {
		o.checkout = nil
		s.releaseLocked(sh.id, o)
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Storefront) cartError(w http.ResponseWriter, err error) {
	var se *cart.StockExceededError
	switch {
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, map[string]any{"message": se.Error(), "maxAddable": se.MaxAddable})
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.log.Error("cart write failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save cart")
	}
}

func (s *Storefront) checkoutError(w http.ResponseWriter, co *checkout.Orchestrator, err error) {
	var fe checkout.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "please fix the highlighted fields", "fieldErrors": fe})
	case errors.Is(err, checkout.ErrSubmitInFlight), errors.Is(err, checkout.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeJSON(w, http.StatusConflict, map[string]string{"message": err.Error(), "redirect": "/cart"})
	case errors.Is(err, checkout.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, pricing.ErrUnknownDeliveryOption), errors.Is(err, checkout.ErrUnknownPaymentMethod):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		// the orchestrator already holds the message meant for the shopper
		msg := co.View().Failure
		if msg == "" {
			msg = err.Error()
		}
		writeError(w, http.StatusBadGateway, msg)
	}
}

func (s *Storefront) backendError(w http.ResponseWriter, op string, err error) {
	if st := backend.StatusOf(err); st >= 400 && st < 500 {
		writeError(w, st, err.Error())
		return
	}
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Warn(op, zap.Error(err))
	writeError(w, http.StatusBadGateway, err.Error())
}
