package weinfusesync

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
)

// LookupService resolves report names and codes to record-store ids.
// Every resolver distinguishes not-found, ambiguous and inactive results
// with separate error codes so the staged line records exactly why it
// could not be matched.
type LookupService struct {
	store    erp.Store
	settings *models.ReconSettings
}

func NewLookupService(store erp.Store, settings *models.ReconSettings) *LookupService {
	return &LookupService{store: store, settings: settings}
}

// resolveUnique runs one search and triages the row count.
func (s *LookupService) resolveUnique(ctx context.Context, recordType string, filters []erp.Filter, columns []string, notFound models.LineErrorCode, duplicated models.LineErrorCode) (erp.Row, models.LineErrorCode, error) {
	rows, err := s.store.Search(ctx, recordType, filters, columns, s.settings.SearchLimit())
	if err != nil {
		return nil, models.ErrorCodeTransactionFailed, err
	}
	if len(rows) == 0 {
		return nil, notFound, nil
	}
	if len(rows) > 1 {
		return nil, duplicated, nil
	}
	return rows[0], models.ErrorCodeNone, nil
}

// ItemByNDC resolves a drug code to the inventory item carrying it.
func (s *LookupService) ItemByNDC(ctx context.Context, ndc string) (string, models.LineErrorCode, error) {
	row, code, err := s.resolveUnique(ctx, erp.TypeItem,
		[]erp.Filter{erp.Eq("ndc", strings.TrimSpace(ndc))},
		[]string{"internalid", "isinactive"},
		models.ErrorCodeItemNotFound, models.ErrorCodeItemDuplicated)
	if code != models.ErrorCodeNone {
		return "", code, err
	}
	if row.Get("isinactive") == "T" {
		return "", models.ErrorCodeInactiveItem, nil
	}
	return row.Get("internalid"), models.ErrorCodeNone, nil
}

// ShipToResult carries everything the ship-to row resolves at once: the
// address record, its owning customer and that customer's category and
// subsidiary.
type ShipToResult struct {
	ShipToRef     string
	CustomerRef   string
	Category      string
	SubsidiaryRef string
}

// ShipToByLocationName resolves the ship-to address. Report location
// names embed the ship-to code as their first space-separated token.
func (s *LookupService) ShipToByLocationName(ctx context.Context, locationName string) (ShipToResult, models.LineErrorCode, error) {
	token := strings.TrimSpace(locationName)
	if i := strings.IndexByte(token, ' '); i > 0 {
		token = token[:i]
	}
	if token == "" {
		return ShipToResult{}, models.ErrorCodeShipToNotFound, nil
	}
	row, code, err := s.resolveUnique(ctx, erp.TypeShipTo,
		[]erp.Filter{erp.Eq("name", token)},
		[]string{"internalid", "customer", "category", "subsidiary"},
		models.ErrorCodeShipToNotFound, models.ErrorCodeShipToDuplicated)
	if code != models.ErrorCodeNone {
		return ShipToResult{}, code, err
	}
	return ShipToResult{
		ShipToRef:     row.Get("internalid"),
		CustomerRef:   row.Get("customer"),
		Category:      row.Get("category"),
		SubsidiaryRef: row.Get("subsidiary"),
	}, models.ErrorCodeNone, nil
}

// LocationForShipTo resolves the inventory location. Core-category
// customers always stock at the configured core location; for everyone
// else the location record is matched by its full name.
func (s *LookupService) LocationForShipTo(ctx context.Context, category string, locationName string) (string, models.LineErrorCode, error) {
	if category == s.settings.CoreCategory {
		return s.settings.CoreLocationRef, models.ErrorCodeNone, nil
	}
	row, code, err := s.resolveUnique(ctx, erp.TypeLocation,
		[]erp.Filter{erp.Eq("name", strings.TrimSpace(locationName))},
		[]string{"internalid"},
		models.ErrorCodeLocationNotFound, models.ErrorCodeLocationDuplicated)
	if code != models.ErrorCodeNone {
		return "", code, err
	}
	return row.Get("internalid"), models.ErrorCodeNone, nil
}

// VendorByName resolves the vendor record. Callers skip this entirely
// for the in-house vendor, which has no vendor record.
func (s *LookupService) VendorByName(ctx context.Context, vendorName string) (string, models.LineErrorCode, error) {
	row, code, err := s.resolveUnique(ctx, erp.TypeVendor,
		[]erp.Filter{erp.Eq("entityid", strings.TrimSpace(vendorName))},
		[]string{"internalid"},
		models.ErrorCodeVendorNotFound, models.ErrorCodeVendorDuplicated)
	if code != models.ErrorCodeNone {
		return "", code, err
	}
	return row.Get("internalid"), models.ErrorCodeNone, nil
}

// UnitTypeByName resolves the purchase unit of measure.
func (s *LookupService) UnitTypeByName(ctx context.Context, unitName string) (string, models.LineErrorCode, error) {
	row, code, err := s.resolveUnique(ctx, erp.TypeUnitType,
		[]erp.Filter{erp.Eq("name", strings.TrimSpace(unitName))},
		[]string{"internalid"},
		models.ErrorCodeUnitNotFound, models.ErrorCodeUnitNotFound)
	if code != models.ErrorCodeNone {
		return "", code, err
	}
	return row.Get("internalid"), models.ErrorCodeNone, nil
}

func (s *LookupService) IsInHouseVendor(vendorName string) bool {
	return strings.EqualFold(strings.TrimSpace(vendorName), s.settings.InHouseVendor)
}
