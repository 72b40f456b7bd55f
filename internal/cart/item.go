// Package cart is the client-held shopping cart: one whole-value JSON record
// per owner in kv storage, mutated only through Store.
package cart

import (
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/shopspring/decimal"
)

// Item is one cart line. Pricing and stock are cached from the last product
// fetch; 1 <= Quantity <= StockCeiling holds for every persisted line.
type Item struct {
	ProductID       string          `json:"productId"`
	CategoryID      string          `json:"categoryId,omitempty"`
	Name            string          `json:"name"`
	Brand           string          `json:"brand,omitempty"`
	Image           string          `json:"image,omitempty"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	DiscountPercent int             `json:"discountPercent"`
	Quantity        int             `json:"quantity"`
	StockCeiling    int             `json:"stockCeiling"`
}

func (it Item) LineTotal() decimal.Decimal {
	return it.DiscountedPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// NewItem seeds a line from a catalog product.
func NewItem(p catalog.Product, qty int) Item {
	return Item{
		ProductID:       p.ID,
		CategoryID:      p.CategoryID,
		Name:            p.Name,
		Brand:           p.Brand,
		Image:           p.Image,
		UnitPrice:       p.Price,
		DiscountedPrice: p.EffectivePrice(),
		DiscountPercent: p.DiscountPercent,
		Quantity:        qty,
		StockCeiling:    p.Stock,
	}
}

type Cart struct {
	Items []Item `json:"items"`
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Count is the badge number: total units across lines.
func (c Cart) Count() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c Cart) Find(productID string) (Item, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Items[i], true
	}
	return Item{}, false
}

func (c Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}
