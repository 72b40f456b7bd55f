// Package pricing turns a cart, a delivery tier and a destination into the
// numbers shown at checkout. Everything here is pure.
package pricing

import (
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/shopspring/decimal"
)

type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	// Discount is what the line discounts saved; it is already inside Subtotal.
	Discount             decimal.Decimal `json:"discount"`
	Shipping             decimal.Decimal `json:"shipping"`
	Tax                  decimal.Decimal `json:"tax"`
	Total                decimal.Decimal `json:"total"`
	DeliveryOption       string          `json:"deliveryOption"`
	FreeShipping         bool            `json:"freeShipping"`
	AmountToFreeShipping decimal.Decimal `json:"amountToFreeShipping"`
}

type Engine struct {
	catalog  *Catalog
	taxRate  decimal.Decimal
	domestic string
	metro    []string
}

type Option func(*Engine)

// WithTaxRate sets the tax as a fraction of the subtotal. The default is zero.
func WithTaxRate(r decimal.Decimal) Option {
	return func(e *Engine) { e.taxRate = r }
}

// WithRegion sets the domestic country and its core metro cities used by Advise.
func WithRegion(country string, metroCities []string) Option {
	return func(e *Engine) {
		e.domestic = country
		e.metro = metroCities
	}
}

func NewEngine(c *Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:  c,
		taxRate:  decimal.Zero,
		domestic: "Vietnam",
		metro:    []string{"Hanoi", "Ho Chi Minh City", "Ho Chi Minh", "Da Nang"},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

// Compute prices c for the given tier. The destination only feeds Advise and
// never moves the numbers.
func (e *Engine) Compute(c cart.Cart, optionID string, _ Destination) (Breakdown, error) {
	opt, err := e.catalog.Lookup(optionID)
	if err != nil {
		return Breakdown{}, err
	}

	subtotal, discount := decimal.Zero, decimal.Zero
	for _, it := range c.Items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		subtotal = subtotal.Add(it.DiscountedPrice.Mul(qty))
		if it.UnitPrice.GreaterThan(it.DiscountedPrice) {
			discount = discount.Add(it.UnitPrice.Sub(it.DiscountedPrice).Mul(qty))
		}
	}

	b := Breakdown{
		Subtotal:             subtotal,
		Discount:             discount,
		Shipping:             opt.Fee,
		DeliveryOption:       opt.ID,
		AmountToFreeShipping: decimal.Zero,
	}
	if opt.Default && opt.FreeShippingThreshold.IsPositive() {
		if subtotal.GreaterThanOrEqual(opt.FreeShippingThreshold) {
			b.Shipping = decimal.Zero
			b.FreeShipping = true
		} else {
			b.AmountToFreeShipping = opt.FreeShippingThreshold.Sub(subtotal)
		}
	}
	b.Tax = subtotal.Mul(e.taxRate).Round(2)
	b.Total = b.Subtotal.Add(b.Shipping).Add(b.Tax)
	return b, nil
}
