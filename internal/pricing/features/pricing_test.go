package features

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/kv"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

type pricingTestContext struct {
	engine    *pricing.Engine
	store     *cart.Store
	products  map[string]catalog.Product
	breakdown pricing.Breakdown
	err       error
}

func (c *pricingTestContext) reset() {
	c.engine = nil
	c.store = cart.NewStore(kv.NewMemory().Tab("test"), "cart:guest", nil, nil)
	c.products = map[string]catalog.Product{}
	c.breakdown = pricing.Breakdown{}
	c.err = nil
}

func (c *pricingTestContext) theDefaultDeliveryTier(id string, fee, threshold int) error {
	cat, err := pricing.NewCatalog([]pricing.DeliveryOption{{
		ID:                    id,
		Fee:                   decimal.NewFromInt(int64(fee)),
		FreeShippingThreshold: decimal.NewFromInt(int64(threshold)),
		Default:               true,
	}})
	if err != nil {
		return err
	}
	c.engine = pricing.NewEngine(cat)
	return nil
}

func (c *pricingTestContext) aProductPricedWithStock(id string, price, stock int) error {
	c.products[id] = catalog.Product{
		ID:    id,
		Name:  id,
		Price: decimal.NewFromInt(int64(price)),
		Stock: stock,
	}
	return nil
}

func (c *pricingTestContext) iAddOfToTheCart(qty int, id string) error {
	p, ok := c.products[id]
	if !ok {
		return fmt.Errorf("unknown product %q", id)
	}
	_, c.err = c.store.Add(context.Background(), p, qty)
	return nil
}

func (c *pricingTestContext) iSetTheQuantityOfTo(id string, qty int) error {
	_, err := c.store.SetQuantity(context.Background(), id, qty)
	return err
}

func (c *pricingTestContext) iPriceTheCartWithDelivery(id string) error {
	b, err := c.engine.Compute(c.store.Get(context.Background()), id, pricing.Destination{})
	if err != nil {
		return err
	}
	c.breakdown = b
	return nil
}

func expectAmount(name string, got decimal.Decimal, want int) error {
	if !got.Equal(decimal.NewFromInt(int64(want))) {
		return fmt.Errorf("expected %s %d, got %s", name, want, got)
	}
	return nil
}

func (c *pricingTestContext) theSubtotalIs(v int) error {
	return expectAmount("subtotal", c.breakdown.Subtotal, v)
}

func (c *pricingTestContext) theShippingIs(v int) error {
	return expectAmount("shipping", c.breakdown.Shipping, v)
}

func (c *pricingTestContext) theTotalIs(v int) error {
	return expectAmount("total", c.breakdown.Total, v)
}

func (c *pricingTestContext) theAddFailsWithStockExceededAllowing(n int) error {
	var se *cart.StockExceededError
	if !errors.As(c.err, &se) {
		return fmt.Errorf("expected StockExceededError, got %v", c.err)
	}
	if se.MaxAddable != n {
		return fmt.Errorf("expected max addable %d, got %d", n, se.MaxAddable)
	}
	return nil
}

func (c *pricingTestContext) theCartHasNoLineFor(id string) error {
	if _, ok := c.store.Get(context.Background()).Find(id); ok {
		return fmt.Errorf("unexpected line for %q", id)
	}
	return nil
}

func (c *pricingTestContext) theCartHasOf(qty int, id string) error {
	it, ok := c.store.Get(context.Background()).Find(id)
	if !ok {
		return fmt.Errorf("no line for %q", id)
	}
	if it.Quantity != qty {
		return fmt.Errorf("expected quantity %d, got %d", qty, it.Quantity)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &pricingTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^the default delivery tier "([^"]*)" with fee (\d+) and free shipping from (\d+)$`, tc.theDefaultDeliveryTier)
	ctx.Step(`^a product "([^"]*)" priced (\d+) with stock (\d+)$`, tc.aProductPricedWithStock)

	ctx.Step(`^I add (\d+) of "([^"]*)" to the cart$`, tc.iAddOfToTheCart)
	ctx.Step(`^I set the quantity of "([^"]*)" to (\d+)$`, tc.iSetTheQuantityOfTo)
	ctx.Step(`^I price the cart with delivery "([^"]*)"$`, tc.iPriceTheCartWithDelivery)

	ctx.Step(`^the subtotal is (\d+)$`, tc.theSubtotalIs)
	ctx.Step(`^the shipping is (\d+)$`, tc.theShippingIs)
	ctx.Step(`^the total is (\d+)$`, tc.theTotalIs)
	ctx.Step(`^the add fails with stock exceeded allowing (\d+)$`, tc.theAddFailsWithStockExceededAllowing)
	ctx.Step(`^the cart has no line for "([^"]*)"$`, tc.theCartHasNoLineFor)
	ctx.Step(`^the cart has (\d+) of "([^"]*)"$`, tc.theCartHasOf)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"cart_pricing.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
