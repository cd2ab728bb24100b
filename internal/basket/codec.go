package basket

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// itemRecord is the persisted shape of a line item. It carries exactly the
// whitelisted attribute subset; the live catalog handle is transient and
// rebuilt lazily through the Resolver after decoding.
type itemRecord struct {
	UniqueID   string          `json:"uniqueId"`
	Kind       Kind            `json:"kind"`
	Label      string          `json:"label"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	VATRate    decimal.Decimal `json:"vatRate"`
	PKValue    string          `json:"pkValue"`
	SourceType string          `json:"sourceType"`
	Attributes map[string]any  `json:"attributes,omitempty"`
}

func (i *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemRecord{
		UniqueID:   i.uniqueID,
		Kind:       i.kind,
		Label:      i.label,
		Price:      i.unitPrice,
		Quantity:   i.quantity,
		VATRate:    i.vatRate,
		PKValue:    i.source.PrimaryKey,
		SourceType: i.source.TypeTag,
		Attributes: i.source.Attributes,
	})
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var rec itemRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	i.uniqueID = rec.UniqueID
	i.kind = rec.Kind
	i.label = rec.Label
	i.unitPrice = rec.Price
	i.quantity = rec.Quantity
	i.vatRate = rec.VATRate
	i.source = SourceRef{
		TypeTag:    rec.SourceType,
		PrimaryKey: rec.PKValue,
		Attributes: rec.Attributes,
	}
	i.model = nil
	i.resolver = nil
	return nil
}

// EncodeItems serializes items into the persisted basket blob, a JSON
// array of item records in the order given.
func EncodeItems(items []*Item) ([]byte, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode basket items: %w", err)
	}
	return data, nil
}

// DecodeItems parses a persisted basket blob. Empty input decodes to an
// empty item set, mirroring the "no saved basket" storage contract.
func DecodeItems(data []byte) ([]*Item, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []*Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode basket items: %w", err)
	}
	return items, nil
}
