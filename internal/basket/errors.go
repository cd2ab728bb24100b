package basket

import "errors"

var (
	// ErrNotLoaded is returned by mutating operations before Load has run.
	ErrNotLoaded = errors.New("basket not loaded")

	// ErrItemNotFound is returned when a unique id is absent from the basket.
	ErrItemNotFound = errors.New("item not found in basket")

	// ErrNotPurchasable is returned when an element cannot back a line item.
	ErrNotPurchasable = errors.New("element is not purchasable")

	// ErrInvalidAttribute is returned when a line item attribute is out of range.
	ErrInvalidAttribute = errors.New("invalid item attribute")

	// ErrNoResolver is returned when rehydrating an element without a Resolver.
	ErrNoResolver = errors.New("no catalog resolver configured")
)
