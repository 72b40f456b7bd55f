// Package checkout runs one checkout session from the filled cart to a
// created order.
//
//	Drafting -> Submitting -> Confirmed
//	Drafting -> Submitting -> Failed -> Drafting
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/backend"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	Drafting   State = "drafting"
	Submitting State = "submitting"
	Confirmed  State = "confirmed"
	Failed     State = "failed"
)

// OrdersPath is where a confirmed checkout sends the shopper.
const OrdersPath = "/orders"

const genericFailure = "We could not place your order. Please try again."

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrSubmitInFlight   = errors.New("order submission already in progress")
	ErrAlreadyConfirmed = errors.New("order already placed")
	ErrClosed           = errors.New("checkout session closed")
)

type CartStore interface {
	Get(ctx context.Context) cart.Cart
	Clear(ctx context.Context) error
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, idempotencyKey string, req orders.CreateRequest) (orders.Order, error)
}

type Deps struct {
	Cart    CartStore
	Drafts  *DraftStore
	Pricing *pricing.Engine
	Orders  OrderCreator
	Log     *zap.Logger

	RedirectDelay time.Duration
	// OnRedirect, when set, is called once with OrdersPath after a confirmed
	// order's RedirectDelay has passed.
	OnRedirect func(target string)
}

type Orchestrator struct {
	deps Deps
	log  *zap.Logger

	mu       sync.Mutex
	state    State
	contact  ContactInfo
	delivery string
	errs     FieldErrors
	failure  string
	order    *orders.Order
	redirect string
	timer    *time.Timer
	closed   bool
	// one key per session, so a retry after an ambiguous failure cannot
	// create a second order
	idemKey string
}

// View is a point-in-time copy of the session for rendering.
type View struct {
	State          State         `json:"state"`
	Contact        ContactInfo   `json:"contact"`
	DeliveryOption string        `json:"deliveryOption"`
	FieldErrors    FieldErrors   `json:"fieldErrors,omitempty"`
	Failure        string        `json:"failure,omitempty"`
	Order          *orders.Order `json:"order,omitempty"`
	Redirect       string        `json:"redirect,omitempty"`
}

// Begin opens a session in Drafting. An empty cart short-circuits with
// ErrEmptyCart. The contact is pre-filled from the saved draft first and
// profile second.
func Begin(ctx context.Context, deps Deps, profile ContactInfo) (*Orchestrator, error) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Cart.Get(ctx).IsEmpty() {
		return nil, ErrEmptyCart
	}

	o := &Orchestrator{
		deps:     deps,
		log:      deps.Log,
		state:    Drafting,
		contact:  profile,
		delivery: deps.Pricing.Catalog().Default().ID,
		idemKey:  uuid.NewString(),
	}
	if deps.Drafts != nil {
		if dr, ok := deps.Drafts.Load(ctx); ok {
			o.contact = dr.Contact.merge(profile)
			if _, err := deps.Pricing.Catalog().Lookup(dr.DeliveryOption); err == nil && dr.DeliveryOption != "" {
				o.delivery = dr.DeliveryOption
			}
		}
	}
	return o, nil
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := View{
		State:          o.state,
		Contact:        o.contact,
		DeliveryOption: o.delivery,
		Failure:        o.failure,
		Redirect:       o.redirect,
	}
	if len(o.errs) > 0 {
		v.FieldErrors = make(FieldErrors, len(o.errs))
		for k, m := range o.errs {
			v.FieldErrors[k] = m
		}
	}
	if o.order != nil {
		cp := *o.order
		v.Order = &cp
	}
	return v
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// UpdateContact replaces the form contents. Editing after a failure puts the
// session back into Drafting.
func (o *Orchestrator) UpdateContact(ctx context.Context, c ContactInfo) error {
	o.mu.Lock()
	if err := o.editable(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.contact = c
	o.errs = nil
	o.toDrafting()
	o.mu.Unlock()

	o.saveDraft(ctx)
	return nil
}

func (o *Orchestrator) SelectDelivery(ctx context.Context, optionID string) error {
	if _, err := o.deps.Pricing.Catalog().Lookup(optionID); err != nil {
		return err
	}
	o.mu.Lock()
	if err := o.editable(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.delivery = optionID
	o.toDrafting()
	o.mu.Unlock()

	o.saveDraft(ctx)
	return nil
}

// Validate checks the current contact and remembers the result for View.
func (o *Orchestrator) Validate() FieldErrors {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = Validate(o.contact)
	return o.errs
}

// Quote prices the current cart for the chosen tier and destination.
func (o *Orchestrator) Quote(ctx context.Context) (pricing.Breakdown, pricing.Advisory, error) {
	o.mu.Lock()
	delivery := o.delivery
	dest := pricing.Destination{Country: o.contact.Country, City: o.contact.City}
	o.mu.Unlock()

	b, err := o.deps.Pricing.Compute(o.deps.Cart.Get(ctx), delivery, dest)
	if err != nil {
		return pricing.Breakdown{}, 0, err
	}
	return b, o.deps.Pricing.Advise(dest), nil
}

// Submit places the order with exactly one create call. While a call is in
// flight further submits return ErrSubmitInFlight and do nothing. A failed
// call is never retried here.
func (o *Orchestrator) Submit(ctx context.Context, method PaymentMethod) (orders.Order, error) {
	if _, err := ParsePaymentMethod(string(method)); err != nil {
		return orders.Order{}, err
	}

	o.mu.Lock()
	if err := o.editable(); err != nil {
		o.mu.Unlock()
		return orders.Order{}, err
	}
	o.toDrafting()
	if fe := Validate(o.contact); len(fe) > 0 {
		o.errs = fe
		o.mu.Unlock()
		return orders.Order{}, fe
	}
	o.errs = nil

	c := o.deps.Cart.Get(ctx)
	if c.IsEmpty() {
		o.mu.Unlock()
		return orders.Order{}, ErrEmptyCart
	}
	contact := o.contact.normalized()
	dest := pricing.Destination{Country: contact.Country, City: contact.City}
	b, err := o.deps.Pricing.Compute(c, o.delivery, dest)
	if err != nil {
		o.mu.Unlock()
		return orders.Order{}, err
	}
	req := buildRequest(c, contact, method, b)
	key := o.idemKey
	o.state = Submitting
	o.mu.Unlock()

	o.log.Info("submitting order",
		zap.String("idempotency_key", key),
		zap.String("payment_method", string(method)),
		zap.String("total", b.Total.String()),
	)
	// the shopper leaving the page aborts neither the order nor its cleanup
	bg := context.WithoutCancel(ctx)
	created, err := o.deps.Orders.CreateOrder(bg, key, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.log.Info("discarding order result after close", zap.String("idempotency_key", key), zap.Error(err))
		return orders.Order{}, ErrClosed
	}
	if err != nil {
		o.state = Failed
		o.failure = failureMessage(err)
		o.log.Warn("order submission failed", zap.String("idempotency_key", key), zap.Error(err))
		return orders.Order{}, err
	}

	o.state = Confirmed
	o.order = &created
	if err := o.deps.Cart.Clear(bg); err != nil {
		o.log.Error("clear cart after order", zap.String("order_id", created.ID), zap.Error(err))
	}
	if o.deps.Drafts != nil {
		if err := o.deps.Drafts.Clear(bg); err != nil {
			o.log.Warn("clear checkout draft", zap.Error(err))
		}
	}
	o.timer = time.AfterFunc(o.deps.RedirectDelay, o.fireRedirect)
	o.log.Info("order placed", zap.String("order_id", created.ID), zap.String("total", created.Total.String()))
	return created, nil
}

// Close ends the session. A create call still in flight has its result
// dropped and a pending redirect never fires.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
}

func (o *Orchestrator) fireRedirect() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.redirect = OrdersPath
	cb := o.deps.OnRedirect
	o.mu.Unlock()

	if cb != nil {
		cb(OrdersPath)
	}
}

// caller holds o.mu
func (o *Orchestrator) editable() error {
	switch {
	case o.closed:
		return ErrClosed
	case o.state == Submitting:
		return ErrSubmitInFlight
	case o.state == Confirmed:
		return ErrAlreadyConfirmed
	}
	return nil
}

// caller holds o.mu
func (o *Orchestrator) toDrafting() {
	if o.state == Failed {
		o.state = Drafting
		o.failure = ""
	}
}

func (o *Orchestrator) saveDraft(ctx context.Context) {
	if o.deps.Drafts == nil {
		return
	}
	o.mu.Lock()
	dr := Draft{Contact: o.contact, DeliveryOption: o.delivery}
	o.mu.Unlock()
	dr.Cart = o.deps.Cart.Get(ctx).Items

	if err := o.deps.Drafts.Save(ctx, dr); err != nil {
		o.log.Warn("save checkout draft", zap.Error(err))
	}
}

func buildRequest(c cart.Cart, contact ContactInfo, method PaymentMethod, b pricing.Breakdown) orders.CreateRequest {
	items := make([]orders.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = orders.Item{
			ProductID:  it.ProductID,
			CategoryID: it.CategoryID,
			Name:       it.Name,
			Image:      it.Image,
			Price:      it.DiscountedPrice,
			Quantity:   it.Quantity,
		}
	}
	return orders.CreateRequest{
		Items: items,
		ShippingAddress: orders.ShippingAddress{
			FullName: contact.FullName,
			Phone:    contact.Phone,
			Email:    contact.Email,
			Address:  contact.Address,
			City:     contact.City,
			Country:  contact.Country,
			Notes:    contact.Notes,
		},
		PaymentMethod:  string(method),
		PaymentStatus:  method.PaymentStatus(),
		Subtotal:       b.Subtotal,
		Shipping:       b.Shipping,
		Tax:            b.Tax,
		Total:          b.Total,
		DeliveryOption: b.DeliveryOption,
		Notes:          contact.Notes,
	}
}

func failureMessage(err error) string {
	var ae *backend.APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return genericFailure
}
