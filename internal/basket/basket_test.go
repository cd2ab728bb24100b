package basket

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorage struct {
	items   []*Item
	saves   int
	loadErr error
	saveErr error
}

func (m *mockStorage) Load(context.Context, Subject) ([]*Item, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.items, nil
}

func (m *mockStorage) Save(_ context.Context, _ Subject, items []*Item) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.items = items
	return nil
}

type testProduct struct {
	pk    string
	label string
	price decimal.Decimal
	attrs map[string]any
}

func (p *testProduct) Label() string { return p.label }
func (p *testProduct) Price() decimal.Decimal { return p.price }
func (p *testProduct) PrimaryKey() string { return p.pk }
func (p *testProduct) TypeTag() string { return "product" }
func (p *testProduct) Attributes() map[string]any { return p.attrs }

// amountOff subtracts a fixed amount from the running total.
type amountOff struct {
	pk     string
	amount decimal.Decimal
}

func (d *amountOff) Label() string { return "amount off" }
func (d *amountOff) Price() decimal.Decimal { return d.amount.Neg() }
func (d *amountOff) PrimaryKey() string { return d.pk }
func (d *amountOff) TypeTag() string { return "discount.amount" }
func (d *amountOff) Attributes() map[string]any {
	return map[string]any{"amount": d.amount.String()}
}

func (d *amountOff) Apply(total decimal.Decimal, _ *Basket) decimal.Decimal {
	return total.Sub(d.amount)
}

// percentOff keeps a percentage of the running total, so it is non-linear
// with respect to application order.
type percentOff struct {
	pk      string
	percent decimal.Decimal
}

func (d *percentOff) Label() string { return "percent off" }
func (d *percentOff) Price() decimal.Decimal { return decimal.Zero }
func (d *percentOff) PrimaryKey() string { return d.pk }
func (d *percentOff) TypeTag() string { return "discount.percent" }
func (d *percentOff) Attributes() map[string]any {
	return map[string]any{"percent": d.percent.String()}
}

func (d *percentOff) Apply(total decimal.Decimal, _ *Basket) decimal.Decimal {
	keep := decimal.NewFromInt(1).Sub(d.percent)
	return total.Mul(keep)
}

type testResolver struct{}

func (testResolver) Restore(ref SourceRef) (Purchasable, error) {
	switch ref.TypeTag {
	case "product":
		price, _ := toDecimal(ref.Attributes["price"])
		return &testProduct{pk: ref.PrimaryKey, label: "restored", price: price, attrs: ref.Attributes}, nil
	case "discount.amount":
		amount, _ := toDecimal(ref.Attributes["amount"])
		return &amountOff{pk: ref.PrimaryKey, amount: amount}, nil
	case "discount.percent":
		percent, _ := toDecimal(ref.Attributes["percent"])
		return &percentOff{pk: ref.PrimaryKey, percent: percent}, nil
	}
	return nil, fmt.Errorf("unknown type tag %q", ref.TypeTag)
}

func (r testResolver) Find(_ context.Context, typeTag, pk string) (Purchasable, error) {
	return r.Restore(SourceRef{TypeTag: typeTag, PrimaryKey: pk})
}

type testOrder struct {
	pk  string
	sum decimal.Decimal
}

func (o *testOrder) PrimaryKey() string { return o.pk }
func (o *testOrder) TransactionSum() decimal.Decimal { return o.sum }

type orderSink struct {
	err    error
	orders int
}

func (o *orderSink) SaveFromBasket(_ context.Context, b *Basket) (Order, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.orders++
	sum, err := b.TotalDue(true)
	if err != nil {
		return nil, err
	}
	return &testOrder{pk: "order-1", sum: sum}, nil
}

func product(pk string, price float64) *testProduct {
	return &testProduct{
		pk:    pk,
		label: "product " + pk,
		price: decimal.NewFromFloat(price),
		attrs: map[string]any{"price": price},
	}
}

func loadedBasket(t *testing.T, opts ...Option) (*Basket, *mockStorage) {
	t.Helper()
	store := &mockStorage{}
	b := New(store, SessionID("sess-1"), opts...)
	require.NoError(t, b.Load(context.Background()))
	return b, store
}

func TestMutationsRequireLoad(t *testing.T) {
	ctx := context.Background()
	b := New(&mockStorage{}, SessionID("sess-1"))

	_, err := b.Add(ctx, product("p1", 10), true)
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, b.Remove(ctx, "x", true), ErrNotLoaded)
	assert.ErrorIs(t, b.Clear(ctx, true), ErrNotLoaded)
	_, err = b.CreateOrder(ctx, &orderSink{}, true)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestAddRemoveCount(t *testing.T) {
	ctx := context.Background()
	b, store := loadedBasket(t)

	first, err := b.Add(ctx, product("p1", 10), true)
	require.NoError(t, err)
	second, err := b.Add(ctx, product("p2", 20), true)
	require.NoError(t, err)

	assert.Equal(t, 2, b.Count(nil))
	assert.Equal(t, 2, store.saves)
	assert.NotEqual(t, first.UniqueID(), second.UniqueID())

	require.NoError(t, b.Remove(ctx, first.UniqueID(), true))
	assert.Equal(t, 1, b.Count(nil))
	assert.Equal(t, second.UniqueID(), b.Items(nil)[0].UniqueID())
}

func TestAddThenRemoveRestoresItemSet(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 10), true)
	require.NoError(t, err)

	before := map[string]bool{}
	for _, item := range b.Items(nil) {
		before[item.UniqueID()] = true
	}

	added, err := b.Add(ctx, product("p2", 20), true)
	require.NoError(t, err)
	require.NoError(t, b.Remove(ctx, added.UniqueID(), true))

	after := map[string]bool{}
	for _, item := range b.Items(nil) {
		after[item.UniqueID()] = true
	}
	assert.Equal(t, before, after)
}

func TestRemoveUnknownID(t *testing.T) {
	ctx := context.Background()
	b, store := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 10), true)
	require.NoError(t, err)
	savesBefore := store.saves

	err = b.Remove(ctx, "no-such-id", true)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Equal(t, 1, b.Count(nil))
	assert.Equal(t, savesBefore, store.saves, "failed remove must not save")
}

func TestPersistSuppression(t *testing.T) {
	ctx := context.Background()
	b, store := loadedBasket(t)

	item, err := b.Add(ctx, product("p1", 10), false)
	require.NoError(t, err)
	require.NoError(t, b.Remove(ctx, item.UniqueID(), false))
	require.NoError(t, b.Clear(ctx, false))
	assert.Equal(t, 0, store.saves)
}

func TestSaveFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := &mockStorage{}
	b := New(store, SessionID("sess-1"))
	require.NoError(t, b.Load(ctx))

	store.saveErr = errors.New("connection reset")
	_, err := b.Add(ctx, product("p1", 10), true)
	assert.ErrorContains(t, err, "connection reset")
}

func TestLoadFailurePropagates(t *testing.T) {
	store := &mockStorage{loadErr: errors.New("connection refused")}
	b := New(store, SessionID("sess-1"))
	assert.ErrorContains(t, b.Load(context.Background()), "connection refused")
}

func TestEmptyBasket(t *testing.T) {
	b, _ := loadedBasket(t)

	due, err := b.TotalDue(true)
	require.NoError(t, err)
	assert.True(t, due.IsZero())
	assert.Equal(t, 0, b.Count(nil))
	assert.Empty(t, b.Items(nil))
	assert.True(t, b.TotalVat().IsZero())
}

func TestTotalsWithVat(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 100), true,
		WithQuantity(decimal.NewFromInt(2)),
		WithVATRate(decimal.NewFromFloat(0.2)))
	require.NoError(t, err)

	assert.True(t, b.ItemsTotalPrice(true, OfKind(KindProduct)).Equal(decimal.NewFromInt(200)))
	assert.True(t, b.ItemsTotalPrice(false, OfKind(KindProduct)).Equal(decimal.NewFromInt(160)))
	assert.True(t, b.TotalVat().Equal(decimal.NewFromInt(40)))

	inclVat, err := b.TotalDue(true)
	require.NoError(t, err)
	exclVat, err := b.TotalDue(false)
	require.NoError(t, err)
	assert.True(t, exclVat.LessThanOrEqual(inclVat))
}

func TestTotalDueClampsAtZero(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 10), true)
	require.NoError(t, err)
	_, err = b.Add(ctx, &amountOff{pk: "d1", amount: decimal.NewFromInt(50)}, true)
	require.NoError(t, err)

	due, err := b.TotalDue(true)
	require.NoError(t, err)
	assert.True(t, due.IsZero(), "total due is never negative, got %s", due)
}

func TestDiscountOrderDependence(t *testing.T) {
	ctx := context.Background()
	fixed := func() *amountOff { return &amountOff{pk: "d-fixed", amount: decimal.NewFromInt(10)} }
	half := func() *percentOff { return &percentOff{pk: "d-half", percent: decimal.NewFromFloat(0.5)} }

	run := func(discounts ...Purchasable) decimal.Decimal {
		b, _ := loadedBasket(t)
		_, err := b.Add(ctx, product("p1", 100), true)
		require.NoError(t, err)
		for _, d := range discounts {
			_, err := b.Add(ctx, d, true)
			require.NoError(t, err)
		}
		due, err := b.TotalDue(true)
		require.NoError(t, err)
		return due
	}

	// (100 - 10) * 0.5 = 45 vs 100*0.5 - 10 = 40
	fixedFirst := run(fixed(), half())
	halfFirst := run(half(), fixed())
	assert.True(t, fixedFirst.Equal(decimal.NewFromInt(45)), "got %s", fixedFirst)
	assert.True(t, halfFirst.Equal(decimal.NewFromInt(40)), "got %s", halfFirst)
}

func TestFinalizeHookAndFormatter(t *testing.T) {
	ctx := context.Background()
	roundUp := func(total decimal.Decimal, _ *Basket) decimal.Decimal {
		return total.Ceil()
	}
	b, _ := loadedBasket(t,
		WithFinalizer(roundUp),
		WithFormatter(func(total decimal.Decimal) string {
			return total.StringFixed(2) + " EUR"
		}))

	_, err := b.Add(ctx, product("p1", 9.5), true)
	require.NoError(t, err)

	due, err := b.TotalDue(true)
	require.NoError(t, err)
	assert.True(t, due.Equal(decimal.NewFromInt(10)))

	formatted, err := b.FormattedTotalDue(true)
	require.NoError(t, err)
	assert.Equal(t, "10.00 EUR", formatted)
}

func TestTotalDiscounts(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 100), true)
	require.NoError(t, err)
	_, err = b.Add(ctx, &amountOff{pk: "d1", amount: decimal.NewFromInt(30)}, true)
	require.NoError(t, err)

	discounts, err := b.TotalDiscounts(true)
	require.NoError(t, err)
	assert.True(t, discounts.Equal(decimal.NewFromInt(30)))
}

func TestKindFilters(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 10), true)
	require.NoError(t, err)
	_, err = b.Add(ctx, product("p2", 20), true)
	require.NoError(t, err)
	_, err = b.Add(ctx, &amountOff{pk: "d1", amount: decimal.NewFromInt(5)}, true)
	require.NoError(t, err)

	assert.Equal(t, 3, b.Count(nil))
	assert.Equal(t, 2, b.Count(OfKind(KindProduct)))
	assert.Equal(t, 1, b.Count(OfKind(KindDiscount)))
}

func TestAttributeTotal(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 10), true, WithQuantity(decimal.NewFromInt(3)))
	require.NoError(t, err)
	_, err = b.Add(ctx, product("p2", 20), true)
	require.NoError(t, err)

	assert.True(t, b.AttributeTotal("quantity", OfKind(KindProduct)).Equal(decimal.NewFromInt(4)))
	assert.True(t, b.AttributeTotal("totalPrice", OfKind(KindProduct)).Equal(decimal.NewFromInt(50)))
	assert.True(t, b.AttributeTotal("price", nil).Equal(decimal.NewFromInt(30)))
	assert.True(t, b.AttributeTotal("no-such-attribute", nil).IsZero())
}

func TestUpdateThroughBasket(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	item, err := b.Add(ctx, product("p1", 10), true)
	require.NoError(t, err)

	assert.True(t, b.Update(item.UniqueID(), "quantity", 5))
	assert.True(t, item.Quantity().Equal(decimal.NewFromInt(5)))

	assert.False(t, b.Update("no-such-id", "quantity", 5))
	assert.False(t, b.Update(item.UniqueID(), "label", "new label"))
}

func TestCreateOrderClears(t *testing.T) {
	ctx := context.Background()
	b, store := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 100), true)
	require.NoError(t, err)

	sink := &orderSink{}
	order, err := b.CreateOrder(ctx, sink, true)
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.PrimaryKey())
	assert.True(t, order.TransactionSum().Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 0, b.Count(nil))
	assert.Empty(t, store.items, "clear after order must persist")
}

func TestCreateOrderFailureKeepsItems(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 100), true)
	require.NoError(t, err)

	sink := &orderSink{err: errors.New("order rejected")}
	order, err := b.CreateOrder(ctx, sink, true)
	assert.Nil(t, order)
	assert.ErrorContains(t, err, "order rejected")
	assert.Equal(t, 1, b.Count(nil), "basket must survive a failed handoff")
}

func TestCreateOrderWithoutClear(t *testing.T) {
	ctx := context.Background()
	b, _ := loadedBasket(t)

	_, err := b.Add(ctx, product("p1", 100), true)
	require.NoError(t, err)

	_, err = b.CreateOrder(ctx, &orderSink{}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count(nil))
}

func TestStorageRoundTripKeepsDiscountsWorking(t *testing.T) {
	ctx := context.Background()
	store := &mockStorage{}

	b := New(store, SessionID("sess-1"), WithResolver(testResolver{}))
	require.NoError(t, b.Load(ctx))
	_, err := b.Add(ctx, product("p1", 100), true)
	require.NoError(t, err)
	_, err = b.Add(ctx, &percentOff{pk: "d1", percent: decimal.NewFromFloat(0.25)}, true)
	require.NoError(t, err)

	// encode/decode through the wire format, dropping live handles
	blob, err := EncodeItems(store.items)
	require.NoError(t, err)
	items, err := DecodeItems(blob)
	require.NoError(t, err)
	store.items = items

	reloaded := New(store, SessionID("sess-1"), WithResolver(testResolver{}))
	require.NoError(t, reloaded.Load(ctx))

	due, err := reloaded.TotalDue(true)
	require.NoError(t, err)
	assert.True(t, due.Equal(decimal.NewFromInt(75)), "got %s", due)
}

func TestRoundTripWithoutResolverFailsDiscounts(t *testing.T) {
	ctx := context.Background()
	store := &mockStorage{}

	b := New(store, SessionID("sess-1"))
	require.NoError(t, b.Load(ctx))
	_, err := b.Add(ctx, product("p1", 100), true)
	require.NoError(t, err)
	_, err = b.Add(ctx, &percentOff{pk: "d1", percent: decimal.NewFromFloat(0.25)}, true)
	require.NoError(t, err)

	blob, err := EncodeItems(store.items)
	require.NoError(t, err)
	store.items, err = DecodeItems(blob)
	require.NoError(t, err)

	reloaded := New(store, SessionID("sess-1"))
	require.NoError(t, reloaded.Load(ctx))

	// product totals still work without a resolver
	assert.True(t, reloaded.ItemsTotalPrice(true, OfKind(KindProduct)).Equal(decimal.NewFromInt(100)))

	_, err = reloaded.TotalDue(true)
	assert.ErrorIs(t, err, ErrNoResolver)
}
