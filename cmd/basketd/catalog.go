package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opuscart/basket/internal/basket"
)

// demoProduct is a catalog entry for the demo surface. A real deployment
// would back these with the product service.
type demoProduct struct {
	sku     string
	label   string
	price   decimal.Decimal
	vatRate decimal.Decimal
}

func (p *demoProduct) Label() string { return p.label }
func (p *demoProduct) Price() decimal.Decimal { return p.price }
func (p *demoProduct) PrimaryKey() string { return p.sku }
func (p *demoProduct) TypeTag() string { return "catalog.product" }
func (p *demoProduct) Attributes() map[string]any {
	return map[string]any{
		"sku":     p.sku,
		"price":   p.price.String(),
		"vatRate": p.vatRate.String(),
	}
}

// percentDiscount keeps (1-percent) of the running total.
type percentDiscount struct {
	code    string
	percent decimal.Decimal
}

func (d *percentDiscount) Label() string { return fmt.Sprintf("%s%% off (%s)", d.percent.Mul(decimal.NewFromInt(100)), d.code) }
func (d *percentDiscount) Price() decimal.Decimal { return decimal.Zero }
func (d *percentDiscount) PrimaryKey() string { return d.code }
func (d *percentDiscount) TypeTag() string { return "catalog.discount" }
func (d *percentDiscount) Attributes() map[string]any {
	return map[string]any{
		"code":    d.code,
		"percent": d.percent.String(),
	}
}

func (d *percentDiscount) Apply(total decimal.Decimal, _ *basket.Basket) decimal.Decimal {
	return total.Sub(total.Mul(d.percent))
}

// catalog is the demo product/discount source and the resolver that
// rehydrates basket items after a storage round trip.
type catalog struct {
	products  map[string]*demoProduct
	discounts map[string]*percentDiscount
}

func newCatalog() *catalog {
	products := []*demoProduct{
		{sku: "beans-250", label: "Espresso beans 250g", price: decimal.NewFromFloat(8.90), vatRate: decimal.NewFromFloat(0.09)},
		{sku: "grinder-01", label: "Burr grinder", price: decimal.NewFromFloat(129.00), vatRate: decimal.NewFromFloat(0.21)},
		{sku: "mug-std", label: "Stoneware mug", price: decimal.NewFromFloat(14.50), vatRate: decimal.NewFromFloat(0.21)},
	}
	discounts := []*percentDiscount{
		{code: "WELCOME10", percent: decimal.NewFromFloat(0.10)},
	}

	c := &catalog{
		products:  make(map[string]*demoProduct, len(products)),
		discounts: make(map[string]*percentDiscount, len(discounts)),
	}
	for _, p := range products {
		c.products[p.sku] = p
	}
	for _, d := range discounts {
		c.discounts[d.code] = d
	}
	return c
}

func (c *catalog) product(sku string) (*demoProduct, bool) {
	p, ok := c.products[sku]
	return p, ok
}

func (c *catalog) discount(code string) (*percentDiscount, bool) {
	d, ok := c.discounts[code]
	return d, ok
}

func (c *catalog) Restore(ref basket.SourceRef) (basket.Purchasable, error) {
	switch ref.TypeTag {
	case "catalog.product":
		price, err := decimal.NewFromString(fmt.Sprint(ref.Attributes["price"]))
		if err != nil {
			return nil, fmt.Errorf("restore product %q: %w", ref.PrimaryKey, err)
		}
		vatRate, err := decimal.NewFromString(fmt.Sprint(ref.Attributes["vatRate"]))
		if err != nil {
			return nil, fmt.Errorf("restore product %q: %w", ref.PrimaryKey, err)
		}
		return &demoProduct{
			sku:     ref.PrimaryKey,
			label:   fmt.Sprint(ref.Attributes["sku"]),
			price:   price,
			vatRate: vatRate,
		}, nil
	case "catalog.discount":
		percent, err := decimal.NewFromString(fmt.Sprint(ref.Attributes["percent"]))
		if err != nil {
			return nil, fmt.Errorf("restore discount %q: %w", ref.PrimaryKey, err)
		}
		return &percentDiscount{code: ref.PrimaryKey, percent: percent}, nil
	}
	return nil, fmt.Errorf("unknown source type %q", ref.TypeTag)
}

func (c *catalog) Find(_ context.Context, typeTag, primaryKey string) (basket.Purchasable, error) {
	switch typeTag {
	case "catalog.product":
		if p, ok := c.product(primaryKey); ok {
			return p, nil
		}
	case "catalog.discount":
		if d, ok := c.discount(primaryKey); ok {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no such catalog entry %s %q", typeTag, primaryKey)
}

// demoOrder is what the in-memory order collaborator hands back.
type demoOrder struct {
	id  string
	sum decimal.Decimal
}

func (o *demoOrder) PrimaryKey() string { return o.id }
func (o *demoOrder) TransactionSum() decimal.Decimal { return o.sum }

// orderBook is an in-memory order collaborator; a real deployment would
// call the order service here.
type orderBook struct {
	mu     sync.Mutex
	orders map[string]*demoOrder
}

func newOrderBook() *orderBook {
	return &orderBook{orders: make(map[string]*demoOrder)}
}

func (ob *orderBook) SaveFromBasket(_ context.Context, b *basket.Basket) (basket.Order, error) {
	if b.Count(nil) == 0 {
		return nil, fmt.Errorf("basket is empty, nothing to order")
	}
	sum, err := b.TotalDue(true)
	if err != nil {
		return nil, err
	}
	order := &demoOrder{id: uuid.NewString(), sum: sum}

	ob.mu.Lock()
	ob.orders[order.id] = order
	ob.mu.Unlock()
	return order, nil
}
