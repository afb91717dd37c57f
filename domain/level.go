package domain

import "github.com/shopspring/decimal"

type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// PriceLevel is one resting level of an order book side. A zero quantity is
// never stored; on the wire it means "remove this price".
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func NewPriceLevel(price, quantity decimal.Decimal) PriceLevel {
	return PriceLevel{Price: price, Quantity: quantity}
}

// ParsePriceLevels converts [price, quantity] string pairs as venues send
// them into levels. Rows that do not parse are reported, not skipped, since
// a half-applied snapshot is worse than none.
func ParsePriceLevels(depth [][]string) ([]PriceLevel, error) {
	result := make([]PriceLevel, 0, len(depth))
	for _, row := range depth {
		if len(row) < 2 {
			return nil, ErrMalformedPriceLevel
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, err
		}
		quantity, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, err
		}
		result = append(result, PriceLevel{Price: price, Quantity: quantity})
	}
	return result, nil
}
