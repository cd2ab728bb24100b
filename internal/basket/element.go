package basket

import (
	"context"

	"github.com/shopspring/decimal"
)

// Purchasable is the capability a catalog element must expose to be added
// to a basket. The basket never holds the element itself beyond the request;
// it freezes the element's attributes into a SourceRef at add time so totals
// stay stable even if the catalog entity changes later.
type Purchasable interface {
	Label() string
	Price() decimal.Decimal
	PrimaryKey() string
	TypeTag() string
	Attributes() map[string]any
}

// Discount is a purchasable element that adjusts the basket total. Apply
// receives the running total and returns the adjusted one; discounts are
// folded in insertion order and are not commutative in general.
type Discount interface {
	Purchasable
	Apply(total decimal.Decimal, b *Basket) decimal.Decimal
}

// Order is the result handed back by an order collaborator.
type Order interface {
	PrimaryKey() string
	TransactionSum() decimal.Decimal
}

// Orderable is the order-creation collaborator the basket hands off to.
type Orderable interface {
	SaveFromBasket(ctx context.Context, b *Basket) (Order, error)
}

// Resolver rebuilds live catalog elements for deserialized line items.
// Restore works from the frozen attribute snapshot and must not hit the
// catalog; Find performs a fresh lookup by type tag and primary key.
type Resolver interface {
	Restore(ref SourceRef) (Purchasable, error)
	Find(ctx context.Context, typeTag, primaryKey string) (Purchasable, error)
}

// FinalizeFunc gets one last adjustment to the computed total before it is
// clamped at zero, e.g. rounding rules or promotional caps.
type FinalizeFunc func(total decimal.Decimal, b *Basket) decimal.Decimal

// FormatFunc renders a total for display.
type FormatFunc func(total decimal.Decimal) string
