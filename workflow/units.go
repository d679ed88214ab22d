package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"github.com/shopspring/decimal"
)

// unitCache memoizes unit-type conversion rates for one phase run.
type unitCache struct {
	store erp.Store
	rates map[string]decimal.Decimal
}

func newUnitCache(store erp.Store) *unitCache {
	return &unitCache{store: store, rates: map[string]decimal.Decimal{}}
}

func (c *unitCache) Rate(ctx context.Context, unitTypeRef string) (decimal.Decimal, error) {
	if unitTypeRef == "" {
		return decimal.Zero, errors.New("unit type reference is empty")
	}
	if rate, ok := c.rates[unitTypeRef]; ok {
		return rate, nil
	}
	row, err := c.store.LookupFields(ctx, erp.TypeUnitType, unitTypeRef, []string{"conversionrate"})
	if err != nil {
		return decimal.Zero, err
	}
	rate := row.Decimal("conversionrate")
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("unit type %s has no conversion rate", unitTypeRef)
	}
	c.rates[unitTypeRef] = rate
	return rate, nil
}

// ConvertQuantity turns a purchased quantity into stocking units.
// The division must be exact; a remainder means the reported quantity
// does not fit the unit of measure and the caller must fail the line
// rather than truncate.
func ConvertQuantity(qty decimal.Decimal, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.New("conversion rate must be positive")
	}
	if !qty.Mod(rate).IsZero() {
		return decimal.Zero, fmt.Errorf("quantity %s is not divisible by conversion rate %s", qty.String(), rate.String())
	}
	return qty.Div(rate), nil
}
