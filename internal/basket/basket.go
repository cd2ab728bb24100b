// Package basket implements the shopping-basket core: line items frozen
// from catalog elements, pricing with ordered discount application, and
// pluggable persistence. One basket serves one request/session context;
// nothing here is safe for concurrent use by multiple goroutines.
package basket

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Filter selects a subset of items in the read operations. A nil Filter
// selects everything.
type Filter func(*Item) bool

// OfKind filters items by kind.
func OfKind(k Kind) Filter {
	return func(i *Item) bool { return i.kind == k }
}

// Basket is the aggregate root. All collaborators arrive through the
// constructor; there is no ambient lookup. The in-memory item set is the
// authoritative view between Load and the next Save.
type Basket struct {
	storage  Storage
	subject  Subject
	resolver Resolver
	finalize FinalizeFunc
	format   FormatFunc
	newID    func() string

	loaded bool
	items  map[string]*Item
	order  []string
}

// Option configures optional collaborators on New.
type Option func(*Basket)

// WithResolver injects the catalog resolver used to rehydrate items after
// a storage round trip.
func WithResolver(r Resolver) Option {
	return func(b *Basket) { b.resolver = r }
}

// WithFinalizer injects the hook that gets one last adjustment to the
// computed total before clamping.
func WithFinalizer(f FinalizeFunc) Option {
	return func(b *Basket) { b.finalize = f }
}

// WithFormatter injects the display formatter used by FormattedTotalDue.
func WithFormatter(f FormatFunc) Option {
	return func(b *Basket) { b.format = f }
}

// WithIDGenerator replaces the unique-id generator. Tests use this for
// deterministic ids.
func WithIDGenerator(gen func() string) Option {
	return func(b *Basket) { b.newID = gen }
}

// New builds a basket for one subject. Call Load before mutating.
func New(storage Storage, subject Subject, opts ...Option) *Basket {
	b := &Basket{
		storage: storage,
		subject: subject,
		newID:   uuid.NewString,
		items:   make(map[string]*Item),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subject returns the subject this basket is keyed by.
func (b *Basket) Subject() Subject { return b.subject }

// Load pulls the persisted item set from storage. It is the only
// transition into the loaded state; every mutating operation fails with
// ErrNotLoaded before it.
func (b *Basket) Load(ctx context.Context) error {
	items, err := b.storage.Load(ctx, b.subject)
	if err != nil {
		return fmt.Errorf("load basket: %w", err)
	}
	b.items = make(map[string]*Item, len(items))
	b.order = b.order[:0]
	for _, item := range items {
		item.resolver = b.resolver
		b.insert(item)
	}
	b.loaded = true
	return nil
}

func (b *Basket) insert(item *Item) {
	if _, exists := b.items[item.uniqueID]; !exists {
		b.order = append(b.order, item.uniqueID)
	}
	b.items[item.uniqueID] = item
}

// Save persists the current item set. Add, Remove and Clear call it
// implicitly unless persistence is suppressed; callers that mutate through
// Update must call it themselves.
func (b *Basket) Save(ctx context.Context) error {
	if err := b.storage.Save(ctx, b.subject, b.Items(nil)); err != nil {
		return fmt.Errorf("save basket: %w", err)
	}
	return nil
}

// Add freezes a purchasable element into a new line item and inserts it.
// Ids are generated, so inserts never collide unless the caller supplies
// one via WithUniqueID, in which case the item replaces its predecessor in
// place. With persist the basket is saved before returning; a save failure
// is returned and the operation must not be treated as successful.
func (b *Basket) Add(ctx context.Context, element Purchasable, persist bool, opts ...ItemOption) (*Item, error) {
	if !b.loaded {
		return nil, ErrNotLoaded
	}
	item, err := newItem(element, b.newID, opts...)
	if err != nil {
		return nil, err
	}
	item.resolver = b.resolver
	b.insert(item)
	if persist {
		if err := b.Save(ctx); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// Remove deletes the item with the given unique id. An absent id fails
// with ErrItemNotFound, leaves the item set untouched and performs no save.
func (b *Basket) Remove(ctx context.Context, uniqueID string, persist bool) error {
	if !b.loaded {
		return ErrNotLoaded
	}
	if _, ok := b.items[uniqueID]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, uniqueID)
	}
	delete(b.items, uniqueID)
	for n, id := range b.order {
		if id == uniqueID {
			b.order = append(b.order[:n], b.order[n+1:]...)
			break
		}
	}
	if persist {
		return b.Save(ctx)
	}
	return nil
}

// Clear empties the basket. persist=false skips the storage round trip,
// used when the item set is about to be repopulated immediately.
func (b *Basket) Clear(ctx context.Context, persist bool) error {
	if !b.loaded {
		return ErrNotLoaded
	}
	b.items = make(map[string]*Item)
	b.order = b.order[:0]
	if persist {
		return b.Save(ctx)
	}
	return nil
}

// Update delegates to Item.Update after an existence check. It reports
// false for an absent item or a non-whitelisted attribute, never an error;
// callers must check the result and call Save to persist the change.
func (b *Basket) Update(uniqueID, attribute string, value any) bool {
	item, ok := b.items[uniqueID]
	if !ok {
		return false
	}
	return item.Update(attribute, value)
}

// Items returns the items matching the filter in insertion order. Order
// stability across storage round trips is not guaranteed unless the
// backend preserves it (the shipped backends do).
func (b *Basket) Items(filter Filter) []*Item {
	items := make([]*Item, 0, len(b.order))
	for _, id := range b.order {
		item := b.items[id]
		if filter == nil || filter(item) {
			items = append(items, item)
		}
	}
	return items
}

// Item returns the item with the given unique id.
func (b *Basket) Item(uniqueID string) (*Item, bool) {
	item, ok := b.items[uniqueID]
	return item, ok
}

// Count returns the number of items matching the filter.
func (b *Basket) Count(filter Filter) int {
	return len(b.Items(filter))
}

// AttributeTotal sums a named numeric attribute across filtered items.
// Items lacking the attribute contribute nothing.
func (b *Basket) AttributeTotal(attribute string, filter Filter) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range b.Items(filter) {
		if v, ok := item.attributeValue(attribute); ok {
			sum = sum.Add(v)
		}
	}
	return sum
}

// ItemsTotalPrice sums line totals over filtered items. By convention the
// callers interested in the gross product total pass OfKind(KindProduct).
func (b *Basket) ItemsTotalPrice(includeVat bool, filter Filter) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range b.Items(filter) {
		sum = sum.Add(item.TotalPrice(includeVat))
	}
	return sum
}

// TotalVat sums the VAT portion over all items.
func (b *Basket) TotalVat() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range b.Items(nil) {
		sum = sum.Add(item.TotalVat())
	}
	return sum
}

// TotalDue computes the amount owed: the product-line sum, folded through
// each discount item in insertion order, passed through the finalize hook,
// then clamped at zero. Discount application is sequential and
// order-dependent; it is not commutative in general.
func (b *Basket) TotalDue(includeVat bool) (decimal.Decimal, error) {
	sum := b.ItemsTotalPrice(includeVat, OfKind(KindProduct))
	for _, item := range b.Items(OfKind(KindDiscount)) {
		d, err := item.discount()
		if err != nil {
			return decimal.Zero, fmt.Errorf("apply discount %s: %w", item.uniqueID, err)
		}
		sum = d.Apply(sum, b)
	}
	if b.finalize != nil {
		sum = b.finalize(sum, b)
	}
	if sum.IsNegative() {
		sum = decimal.Zero
	}
	return sum, nil
}

// FormattedTotalDue renders TotalDue with the injected formatter, or with
// two decimal places when none is configured.
func (b *Basket) FormattedTotalDue(includeVat bool) (string, error) {
	sum, err := b.TotalDue(includeVat)
	if err != nil {
		return "", err
	}
	if b.format != nil {
		return b.format(sum), nil
	}
	return sum.StringFixed(2), nil
}

// TotalDiscounts is the difference between the gross product total and the
// amount due. It is derived, not tracked, and includes finalize-hook
// adjustments.
func (b *Basket) TotalDiscounts(includeVat bool) (decimal.Decimal, error) {
	due, err := b.TotalDue(includeVat)
	if err != nil {
		return decimal.Zero, err
	}
	return b.ItemsTotalPrice(includeVat, OfKind(KindProduct)).Sub(due), nil
}

// CreateOrder hands the basket to the order collaborator. A collaborator
// failure propagates unchanged and the basket keeps its items; on success
// the basket is cleared and persisted unless clearAfter is false.
func (b *Basket) CreateOrder(ctx context.Context, collaborator Orderable, clearAfter bool) (Order, error) {
	if !b.loaded {
		return nil, ErrNotLoaded
	}
	order, err := collaborator.SaveFromBasket(ctx, b)
	if err != nil {
		return nil, err
	}
	if clearAfter {
		if err := b.Clear(ctx, true); err != nil {
			return order, err
		}
	}
	return order, nil
}
