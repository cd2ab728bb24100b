package basket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies a line item. It is fixed at creation from the element's
// capability and never inferred from runtime types afterwards.
type Kind string

const (
	KindProduct  Kind = "product"
	KindDiscount Kind = "discount"
)

// SourceRef is the frozen snapshot of the catalog element a line item was
// created from: a type tag, the element's primary key and a copy of its
// attributes at add time.
type SourceRef struct {
	TypeTag    string         `json:"sourceType"`
	PrimaryKey string         `json:"pkValue"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Item is one basket entry: a priced product snapshot or a discount rule
// instance. The unique id is stable and immutable; the only mutable
// attribute is the whitelisted set accepted by Update.
type Item struct {
	uniqueID  string
	kind      Kind
	label     string
	unitPrice decimal.Decimal
	quantity  decimal.Decimal
	vatRate   decimal.Decimal
	source    SourceRef

	// transient, rebuilt lazily after deserialization
	model    Purchasable
	resolver Resolver
}

// ItemOption overrides a default at item creation time.
type ItemOption func(*Item)

// WithUniqueID supplies the unique id instead of generating one.
func WithUniqueID(id string) ItemOption {
	return func(i *Item) { i.uniqueID = id }
}

// WithQuantity sets the initial quantity (default 1).
func WithQuantity(q decimal.Decimal) ItemOption {
	return func(i *Item) { i.quantity = q }
}

// WithVATRate sets the VAT rate as a fraction in [0,1] (default 0).
func WithVATRate(r decimal.Decimal) ItemOption {
	return func(i *Item) { i.vatRate = r }
}

func newItem(element Purchasable, genID func() string, opts ...ItemOption) (*Item, error) {
	if element == nil {
		return nil, ErrNotPurchasable
	}
	if element.PrimaryKey() == "" {
		return nil, fmt.Errorf("%w: element has no primary key", ErrNotPurchasable)
	}

	kind := KindProduct
	if _, ok := element.(Discount); ok {
		kind = KindDiscount
	}

	item := &Item{
		kind:      kind,
		label:     element.Label(),
		unitPrice: element.Price(),
		quantity:  decimal.NewFromInt(1),
		source: SourceRef{
			TypeTag:    element.TypeTag(),
			PrimaryKey: element.PrimaryKey(),
			Attributes: copyAttributes(element.Attributes()),
		},
		model: element,
	}
	for _, opt := range opts {
		opt(item)
	}
	if item.uniqueID == "" {
		item.uniqueID = genID()
	}
	if item.quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidAttribute)
	}
	if item.vatRate.IsNegative() || item.vatRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: vat rate must be within [0,1]", ErrInvalidAttribute)
	}
	return item, nil
}

func copyAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func (i *Item) UniqueID() string { return i.uniqueID }

func (i *Item) Kind() Kind { return i.kind }

func (i *Item) Label() string { return i.label }

func (i *Item) UnitPrice() decimal.Decimal { return i.unitPrice }

func (i *Item) Quantity() decimal.Decimal { return i.quantity }

func (i *Item) VATRate() decimal.Decimal { return i.vatRate }

// Source returns the frozen snapshot taken when the item was created.
func (i *Item) Source() SourceRef { return i.source }

// TotalPrice returns unit price times quantity. The unit price carries VAT
// embedded; with includeVat=false the VAT portion is deducted.
func (i *Item) TotalPrice(includeVat bool) decimal.Decimal {
	price := i.unitPrice.Mul(i.quantity)
	if includeVat {
		return price
	}
	return price.Sub(price.Mul(i.vatRate))
}

// TotalVat returns the VAT portion of the line total.
func (i *Item) TotalVat() decimal.Decimal {
	return i.TotalPrice(true).Mul(i.vatRate)
}

// Update sets a whitelisted attribute and reports whether it was applied.
// Unknown attributes and unusable values return false, never an error;
// callers must check the result. Only "quantity" is whitelisted.
func (i *Item) Update(attribute string, value any) bool {
	switch attribute {
	case "quantity":
		q, ok := toDecimal(value)
		if !ok || q.IsNegative() {
			return false
		}
		i.quantity = q
		return true
	default:
		return false
	}
}

// Model returns the live catalog element behind this item. After a storage
// round trip the handle is rebuilt lazily: from the frozen snapshot by
// default, or by a fresh catalog lookup when reload is true.
func (i *Item) Model(ctx context.Context, reload bool) (Purchasable, error) {
	if reload {
		if i.resolver == nil {
			return nil, ErrNoResolver
		}
		model, err := i.resolver.Find(ctx, i.source.TypeTag, i.source.PrimaryKey)
		if err != nil {
			return nil, fmt.Errorf("reload %s %q: %w", i.source.TypeTag, i.source.PrimaryKey, err)
		}
		i.model = model
		return model, nil
	}
	if i.model != nil {
		return i.model, nil
	}
	if i.resolver == nil {
		return nil, ErrNoResolver
	}
	model, err := i.resolver.Restore(i.source)
	if err != nil {
		return nil, fmt.Errorf("restore %s %q: %w", i.source.TypeTag, i.source.PrimaryKey, err)
	}
	i.model = model
	return i.model, nil
}

// discount returns the Discount behavior for a discount-kind item,
// rehydrating from the snapshot if the live handle is gone.
func (i *Item) discount() (Discount, error) {
	if d, ok := i.model.(Discount); ok {
		return d, nil
	}
	if i.resolver == nil {
		return nil, ErrNoResolver
	}
	model, err := i.resolver.Restore(i.source)
	if err != nil {
		return nil, fmt.Errorf("restore %s %q: %w", i.source.TypeTag, i.source.PrimaryKey, err)
	}
	i.model = model
	d, ok := model.(Discount)
	if !ok {
		return nil, fmt.Errorf("%w: restored %s %q does not apply discounts",
			ErrNotPurchasable, i.source.TypeTag, i.source.PrimaryKey)
	}
	return d, nil
}

// attributeValue resolves a named numeric attribute: core pricing fields
// first, then the frozen snapshot attributes.
func (i *Item) attributeValue(name string) (decimal.Decimal, bool) {
	switch name {
	case "price":
		return i.unitPrice, true
	case "quantity":
		return i.quantity, true
	case "vatRate":
		return i.vatRate, true
	case "totalPrice":
		return i.TotalPrice(true), true
	}
	v, ok := i.source.Attributes[name]
	if !ok {
		return decimal.Zero, false
	}
	return toDecimal(v)
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
