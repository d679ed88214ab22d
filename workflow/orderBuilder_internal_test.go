package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/shopspring/decimal"
)

func testSettings() *models.ReconSettings {
	return &models.ReconSettings{
		InHouseVendor:     "Healix",
		CoreCategory:      "CORE",
		CoreLocationRef:   "loc-core",
		SourceLocationRef: "loc-src",
		SourceSubsidiary:  "sub-1",
		OrderPrefix:       "WI-",
	}
}

func TestDecideOrderKindTable(t *testing.T) {
	settings := testSettings()
	cases := []struct {
		name         string
		vendor       string
		category     string
		subsidiary   string
		wantKind     models.OrderKind
		intercompany bool
	}{
		{"in-house non-core same subsidiary", "Healix", "RETAIL", "sub-1", models.OrderKindTransfer, false},
		{"in-house non-core other subsidiary", "healix", "RETAIL", "sub-2", models.OrderKindTransfer, true},
		{"in-house core", "Healix", "CORE", "sub-1", models.OrderKindSales, false},
		{"vendor core", "McKesson", "CORE", "sub-1", models.OrderKindSales, false},
		{"vendor non-core", "McKesson", "RETAIL", "sub-1", models.OrderKindPurchase, false},
	}
	for _, tc := range cases {
		line := models.StagedLine{
			VendorName:       tc.vendor,
			CustomerCategory: tc.category,
			SubsidiaryRef:    tc.subsidiary,
		}
		kind, intercompany := decideOrderKind(line, settings)
		if kind != tc.wantKind || intercompany != tc.intercompany {
			t.Fatalf("%s: got (%s, %t), want (%s, %t)", tc.name, kind, intercompany, tc.wantKind, tc.intercompany)
		}
	}
}

// Two staged lines for the same item aggregate to one order line with
// summed quantity and amount.
func TestAggregateItemsSumsPerItem(t *testing.T) {
	lines := []models.StagedLine{
		{ItemRef: "itemX", UnitTypeRef: "u1", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(10)},
		{ItemRef: "itemX", UnitTypeRef: "u1", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(10)},
		{ItemRef: "itemY", UnitTypeRef: "u2", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(7)},
	}
	agg := aggregateItems(lines)
	if len(agg) != 2 {
		t.Fatalf("expected 2 aggregated items, got %d", len(agg))
	}
	if !agg[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("itemX quantity = %s, want 5", agg[0].Quantity)
	}
	if !agg[0].Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("itemX amount = %s, want 50", agg[0].Amount)
	}
	if agg[1].ItemRef != "itemY" || !agg[1].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected second aggregate: %+v", agg[1])
	}
}

func TestKindFromTypeName(t *testing.T) {
	if kindFromTypeName("PurchOrd") != models.OrderKindPurchase {
		t.Fatalf("PurchOrd should map to the purchase kind")
	}
	if kindFromTypeName("TrnfrOrd") != models.OrderKindTransfer {
		t.Fatalf("TrnfrOrd should map to the transfer kind")
	}
	if kindFromTypeName("SalesOrd") != models.OrderKindSales {
		t.Fatalf("SalesOrd should map to the sales kind")
	}
	if kindFromTypeName("Journal") != "" {
		t.Fatalf("unknown type names should map to empty")
	}
}
