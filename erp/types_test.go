package erp_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"github.com/shopspring/decimal"
)

func TestClearReceiveFlagsResetsEveryLine(t *testing.T) {
	draft := &erp.ReceiptDraft{
		Items: []erp.DraftItem{
			{LineID: "1", Receive: true, Quantity: decimal.NewFromInt(3), Inventory: []erp.LotAssignment{{Lot: "L1"}}},
			{LineID: "2", Receive: true, Quantity: decimal.NewFromInt(2)},
		},
	}
	draft.ClearReceiveFlags()
	for _, item := range draft.Items {
		if item.Receive || !item.Quantity.IsZero() || item.Inventory != nil {
			t.Fatalf("line %s not cleared: %+v", item.LineID, item)
		}
	}
}

func TestRemoveItem(t *testing.T) {
	draft := &erp.ReceiptDraft{
		Items: []erp.DraftItem{{LineID: "1"}, {LineID: "2"}, {LineID: "3"}},
	}
	draft.RemoveItem(1)
	if len(draft.Items) != 2 || draft.Items[0].LineID != "1" || draft.Items[1].LineID != "3" {
		t.Fatalf("unexpected items after removal: %+v", draft.Items)
	}
	draft.RemoveItem(5)
	if len(draft.Items) != 2 {
		t.Fatalf("out-of-range removal must be a no-op")
	}
}

func TestRowDecimalFallsBackToZero(t *testing.T) {
	row := erp.Row{"quantity": "4.5", "junk": "abc"}
	if !row.Decimal("quantity").Equal(decimal.NewFromFloat(4.5)) {
		t.Fatalf("quantity parse failed: %s", row.Decimal("quantity"))
	}
	if !row.Decimal("junk").IsZero() || !row.Decimal("missing").IsZero() {
		t.Fatalf("unparseable and missing columns should read as zero")
	}
}

func TestTransformErrorString(t *testing.T) {
	err := &erp.TransformError{Code: erp.TransformCodeLotSerialRequired, Message: "lot required"}
	if err.Error() != "MATCHING_SERIAL_NUM_REQD: lot required" {
		t.Fatalf("unexpected error text: %s", err.Error())
	}
	bare := &erp.TransformError{Code: "X"}
	if bare.Error() != "X" {
		t.Fatalf("code-only error should print the code, got %s", bare.Error())
	}
}
