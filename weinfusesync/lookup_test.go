package weinfusesync_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"bitbucket.org/mmdatafocus/infusionsync_backend/weinfusesync"
)

// fakeStore serves canned search rows keyed by record type and the
// first filter's value.
type fakeStore struct {
	rows map[string]map[string][]erp.Row
}

func (s *fakeStore) Search(_ context.Context, recordType string, filters []erp.Filter, _ []string, _ int) ([]erp.Row, error) {
	key := ""
	if len(filters) > 0 {
		if v, ok := filters[0].Value.(string); ok {
			key = v
		}
	}
	return s.rows[recordType][key], nil
}

func (s *fakeStore) LookupFields(context.Context, string, string, []string) (erp.Row, error) {
	return erp.Row{}, nil
}
func (s *fakeStore) Create(context.Context, string, map[string]any) (string, error) {
	return "", nil
}
func (s *fakeStore) Transform(context.Context, string, string, string) (*erp.ReceiptDraft, error) {
	return nil, nil
}
func (s *fakeStore) SaveDraft(context.Context, *erp.ReceiptDraft) (string, error) {
	return "", nil
}

func lookupFixture() (*weinfusesync.LookupService, *fakeStore) {
	store := &fakeStore{rows: map[string]map[string][]erp.Row{
		erp.TypeItem: {
			"00006-3026-02": {{"internalid": "item-1", "isinactive": "F"}},
			"00006-9999-01": {{"internalid": "item-2", "isinactive": "T"}},
			"00006-0000-00": {{"internalid": "item-3"}, {"internalid": "item-4"}},
		},
		erp.TypeShipTo: {
			"INF001": {{"internalid": "st-1", "customer": "cust-1", "category": "CORE", "subsidiary": "sub-1"}},
		},
		erp.TypeLocation: {
			"INF002 Clinic West": {{"internalid": "loc-2"}},
		},
		erp.TypeVendor: {
			"McKesson": {{"internalid": "ven-1"}},
		},
	}}
	settings := &models.ReconSettings{
		InHouseVendor:   "Healix",
		CoreCategory:    "CORE",
		CoreLocationRef: "loc-core",
	}
	return weinfusesync.NewLookupService(store, settings), store
}

func TestItemByNDCTriage(t *testing.T) {
	lookups, _ := lookupFixture()
	ctx := context.Background()

	ref, code, err := lookups.ItemByNDC(ctx, "00006-3026-02")
	if err != nil || code != models.ErrorCodeNone || ref != "item-1" {
		t.Fatalf("active item: got (%q, %s, %v)", ref, code, err)
	}

	_, code, _ = lookups.ItemByNDC(ctx, "does-not-exist")
	if code != models.ErrorCodeItemNotFound {
		t.Fatalf("missing item: got %s, want %s", code, models.ErrorCodeItemNotFound)
	}

	_, code, _ = lookups.ItemByNDC(ctx, "00006-0000-00")
	if code != models.ErrorCodeItemDuplicated {
		t.Fatalf("ambiguous item: got %s, want %s", code, models.ErrorCodeItemDuplicated)
	}

	_, code, _ = lookups.ItemByNDC(ctx, "00006-9999-01")
	if code != models.ErrorCodeInactiveItem {
		t.Fatalf("inactive item: got %s, want %s", code, models.ErrorCodeInactiveItem)
	}
}

func TestShipToUsesFirstLocationToken(t *testing.T) {
	lookups, _ := lookupFixture()

	result, code, err := lookups.ShipToByLocationName(context.Background(), "INF001 Infusion Center North")
	if err != nil || code != models.ErrorCodeNone {
		t.Fatalf("ship-to lookup failed: (%s, %v)", code, err)
	}
	if result.ShipToRef != "st-1" || result.CustomerRef != "cust-1" || result.Category != "CORE" {
		t.Fatalf("unexpected ship-to result: %+v", result)
	}

	_, code, _ = lookups.ShipToByLocationName(context.Background(), "NOPE Somewhere")
	if code != models.ErrorCodeShipToNotFound {
		t.Fatalf("missing ship-to: got %s", code)
	}
}

func TestLocationForShipTo(t *testing.T) {
	lookups, _ := lookupFixture()
	ctx := context.Background()

	ref, code, _ := lookups.LocationForShipTo(ctx, "CORE", "anything at all")
	if code != models.ErrorCodeNone || ref != "loc-core" {
		t.Fatalf("core category must use the configured location, got (%q, %s)", ref, code)
	}

	ref, code, _ = lookups.LocationForShipTo(ctx, "RETAIL", "INF002 Clinic West")
	if code != models.ErrorCodeNone || ref != "loc-2" {
		t.Fatalf("non-core location lookup: got (%q, %s)", ref, code)
	}

	_, code, _ = lookups.LocationForShipTo(ctx, "RETAIL", "Unknown Clinic")
	if code != models.ErrorCodeLocationNotFound {
		t.Fatalf("missing location: got %s", code)
	}
}

func TestVendorLookupAndInHouseCheck(t *testing.T) {
	lookups, _ := lookupFixture()

	ref, code, _ := lookups.VendorByName(context.Background(), "McKesson")
	if code != models.ErrorCodeNone || ref != "ven-1" {
		t.Fatalf("vendor lookup: got (%q, %s)", ref, code)
	}
	_, code, _ = lookups.VendorByName(context.Background(), "Ghost Vendor")
	if code != models.ErrorCodeVendorNotFound {
		t.Fatalf("missing vendor: got %s", code)
	}

	if !lookups.IsInHouseVendor(" healix ") {
		t.Fatalf("in-house vendor match should be case and space insensitive")
	}
	if lookups.IsInHouseVendor("McKesson") {
		t.Fatalf("external vendor must not match in-house")
	}
}
