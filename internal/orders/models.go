package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a line captured at order time; later catalog edits do not reach it.
type Item struct {
	ProductID  string          `json:"productId"`
	CategoryID string          `json:"categoryId,omitempty"`
	Name       string          `json:"name"`
	Image      string          `json:"image,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
}

type ShippingAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Country  string `json:"country,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	Items           []Item          `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	Status          Status          `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	DeliveryOption  string          `json:"deliveryOption"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Shipping        decimal.Decimal `json:"shipping"`
	Total           decimal.Decimal `json:"total"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CreateRequest is the body of POST /api/orders/create.
type CreateRequest struct {
	Items           []Item          `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Shipping        decimal.Decimal `json:"shipping"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	DeliveryOption  string          `json:"deliveryOption"`
	Notes           string          `json:"notes,omitempty"`
}

// Patch carries what an admin may edit. There is no total: it is always
// subtotal + tax + shipping.
type Patch struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Shipping       decimal.Decimal `json:"shipping"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	DeliveryOption string          `json:"deliveryOption"`
	Notes          string          `json:"notes"`
}

// UpdateRequest is the full-replacement body of PUT /api/orders/{id}.
type UpdateRequest struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Shipping       decimal.Decimal `json:"shipping"`
	Total          decimal.Decimal `json:"total"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	DeliveryOption string          `json:"deliveryOption"`
	Notes          string          `json:"notes"`
}

func Total(subtotal, tax, shipping decimal.Decimal) decimal.Decimal {
	return subtotal.Add(tax).Add(shipping)
}

// PatchFrom pre-fills an edit form from the current order.
func PatchFrom(o Order) Patch {
	return Patch{
		Subtotal:       o.Subtotal,
		Tax:            o.Tax,
		Shipping:       o.Shipping,
		Status:         o.Status,
		PaymentStatus:  o.PaymentStatus,
		DeliveryOption: o.DeliveryOption,
		Notes:          o.Notes,
	}
}

func (p Patch) Request() UpdateRequest {
	return UpdateRequest{
		Subtotal:       p.Subtotal,
		Tax:            p.Tax,
		Shipping:       p.Shipping,
		Total:          Total(p.Subtotal, p.Tax, p.Shipping),
		Status:         p.Status,
		PaymentStatus:  p.PaymentStatus,
		DeliveryOption: p.DeliveryOption,
		Notes:          p.Notes,
	}
}
