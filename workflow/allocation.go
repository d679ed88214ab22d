package workflow

import (
	"github.com/shopspring/decimal"
)

type lotKey struct {
	Item string
	Lot  string
}

// AllocationLedger tracks the quantity still available to receive per
// (item, lot). It is rebuilt from a consistent snapshot at the start of
// every reduce group and thrown away afterwards; nothing is shared
// across groups or runs.
type AllocationLedger struct {
	available map[lotKey]decimal.Decimal
}

func NewAllocationLedger() *AllocationLedger {
	return &AllocationLedger{available: map[lotKey]decimal.Decimal{}}
}

func (l *AllocationLedger) Add(item string, lot string, qty decimal.Decimal) {
	key := lotKey{Item: item, Lot: lot}
	l.available[key] = l.available[key].Add(qty)
}

func (l *AllocationLedger) Subtract(item string, lot string, qty decimal.Decimal) {
	key := lotKey{Item: item, Lot: lot}
	l.available[key] = l.available[key].Sub(qty)
}

func (l *AllocationLedger) Available(item string, lot string) decimal.Decimal {
	return l.available[lotKey{Item: item, Lot: lot}]
}

// Claim reserves qty for (item, lot). The claim succeeds only when the
// requested quantity is strictly positive and fully covered; partial
// allocation would post a receipt the fulfillment side cannot back.
func (l *AllocationLedger) Claim(item string, lot string, qty decimal.Decimal) bool {
	if qty.LessThanOrEqual(decimal.Zero) {
		return false
	}
	key := lotKey{Item: item, Lot: lot}
	avail, ok := l.available[key]
	if !ok || avail.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if avail.LessThan(qty) {
		return false
	}
	l.available[key] = avail.Sub(qty)
	return true
}
