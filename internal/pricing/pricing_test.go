package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]DeliveryOption{
		{ID: "standard", Name: "Standard", Fee: d(30), FreeShippingThreshold: d(999), Default: true},
		{ID: "express", Name: "Express", Fee: d(50)},
	})
	require.NoError(t, err)
	return c
}

func oneItemCart(price int64, qty int) cart.Cart {
	return cart.Cart{Items: []cart.Item{{
		ProductID:       "p1",
		UnitPrice:       d(price + 100),
		DiscountedPrice: d(price),
		Quantity:        qty,
		StockCeiling:    10,
	}}}
}

func TestComputeFreeShippingThreshold(t *testing.T) {
	e := NewEngine(testCatalog(t))

	b, err := e.Compute(oneItemCart(500, 2), "standard", Destination{})
	require.NoError(t, err)
	assert.True(t, b.Subtotal.Equal(d(1000)))
	assert.True(t, b.Shipping.IsZero())
	assert.True(t, b.Tax.IsZero())
	assert.True(t, b.Total.Equal(d(1000)))
	assert.True(t, b.FreeShipping)

	b, err = e.Compute(oneItemCart(500, 1), "standard", Destination{})
	require.NoError(t, err)
	assert.True(t, b.Subtotal.Equal(d(500)))
	assert.True(t, b.Shipping.Equal(d(30)))
	assert.True(t, b.Total.Equal(d(530)))
	assert.False(t, b.FreeShipping)
	assert.True(t, b.AmountToFreeShipping.Equal(d(499)))
}

func TestComputeNonDefaultTierAlwaysCharges(t *testing.T) {
	e := NewEngine(testCatalog(t))
	b, err := e.Compute(oneItemCart(5000, 1), "express", Destination{})
	require.NoError(t, err)
	assert.True(t, b.Shipping.Equal(d(50)))
	assert.True(t, b.Total.Equal(d(5050)))
}

func TestComputeEmptyIDIsDefaultTier(t *testing.T) {
	e := NewEngine(testCatalog(t))
	b, err := e.Compute(oneItemCart(100, 1), "", Destination{})
	require.NoError(t, err)
	assert.Equal(t, "standard", b.DeliveryOption)
}

func TestComputeUnknownTier(t *testing.T) {
	e := NewEngine(testCatalog(t))
	_, err := e.Compute(oneItemCart(100, 1), "drone", Destination{})
	assert.ErrorIs(t, err, ErrUnknownDeliveryOption)
}

func TestComputeDiscount(t *testing.T) {
	e := NewEngine(testCatalog(t))
	b, err := e.Compute(oneItemCart(500, 3), "standard", Destination{})
	require.NoError(t, err)
	assert.True(t, b.Discount.Equal(d(300)))
}

func TestComputeIsPure(t *testing.T) {
	e := NewEngine(testCatalog(t))
	c := oneItemCart(321, 2)
	first, err := e.Compute(c, "standard", Destination{City: "Hanoi"})
	require.NoError(t, err)
	second, err := e.Compute(c, "standard", Destination{City: "Hanoi"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, c.Items[0].Quantity)
}

func TestDestinationNeverLowersShippingBelowFee(t *testing.T) {
	e := NewEngine(testCatalog(t))
	c := oneItemCart(100, 1)
	for _, city := range []string{"Hanoi", "Hue", "Can Tho", ""} {
		b, err := e.Compute(c, "standard", Destination{Country: "Vietnam", City: city})
		require.NoError(t, err)
		assert.True(t, b.Shipping.Equal(d(30)), city)
	}
}

func TestComputeWithTaxRate(t *testing.T) {
	e := NewEngine(testCatalog(t), WithTaxRate(decimal.RequireFromString("0.1")))
	b, err := e.Compute(oneItemCart(500, 1), "standard", Destination{})
	require.NoError(t, err)
	assert.True(t, b.Tax.Equal(d(50)))
	assert.True(t, b.Total.Equal(d(580)))
}

func TestAdvise(t *testing.T) {
	e := NewEngine(testCatalog(t), WithRegion("Việt Nam", []string{"Hà Nội", "Ho Chi Minh City", "Đà Nẵng"}))

	tests := []struct {
		name string
		dest Destination
		want Advisory
	}{
		{"metro with accents", Destination{Country: "Viet Nam", City: "Hà Nội"}, AdvisoryFreeMetro},
		{"metro ascii", Destination{Country: "VIETNAM", City: "ha noi"}, AdvisoryFreeMetro},
		{"metro d-stroke", Destination{City: "Da Nang"}, AdvisoryFreeMetro},
		{"province", Destination{Country: "Vietnam", City: "Hue"}, AdvisorySurcharge},
		{"no city", Destination{Country: "Vietnam"}, AdvisorySurcharge},
		{"abroad", Destination{Country: "Japan", City: "Hanoi"}, AdvisoryInternational},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Advise(tt.dest))
		})
	}
}

func TestNewCatalogRejectsBadShapes(t *testing.T) {
	_, err := NewCatalog([]DeliveryOption{{ID: "a"}})
	assert.Error(t, err, "no default")

	_, err = NewCatalog([]DeliveryOption{{ID: "a", Default: true}, {ID: "b", Default: true}})
	assert.Error(t, err, "two defaults")

	_, err = NewCatalog([]DeliveryOption{{ID: "a", Default: true}, {ID: "b", FreeShippingThreshold: d(1)}})
	assert.Error(t, err, "threshold on non-default")

	_, err = NewCatalog([]DeliveryOption{{ID: "a", Default: true}, {ID: "a"}})
	assert.Error(t, err, "duplicate")
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, "standard", c.Default().ID)
	assert.Len(t, c.Options(), 3)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delivery.yaml")
	doc := `
options:
  - id: standard
    name: Standard
    fee: "25000"
    lead_time: 3-5 days
    free_shipping_threshold: "400000"
    default: true
  - id: express
    name: Express
    fee: "45000"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	std := c.Default()
	assert.True(t, std.Fee.Equal(d(25000)))
	assert.True(t, std.FreeShippingThreshold.Equal(d(400000)))

	exp, err := c.Lookup("express")
	require.NoError(t, err)
	assert.True(t, exp.Fee.Equal(d(45000)))
}

func TestParseCatalogBadAmount(t *testing.T) {
	_, err := ParseCatalog([]byte("options:\n  - id: x\n    fee: lots\n    default: true\n"))
	assert.Error(t, err)
}
