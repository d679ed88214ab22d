package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/shopspring/decimal"
)

// receiptStore serves canned fulfillment/receipt rows and unit rates.
type receiptStore struct {
	fulfillments []erp.Row
	receipts     []erp.Row
	rates        map[string]string
}

func (s *receiptStore) Search(_ context.Context, recordType string, _ []erp.Filter, _ []string, _ int) ([]erp.Row, error) {
	switch recordType {
	case erp.TypeItemFulfillment:
		return s.fulfillments, nil
	case erp.TypeItemReceipt:
		return s.receipts, nil
	}
	return nil, nil
}

func (s *receiptStore) LookupFields(_ context.Context, recordType string, id string, _ []string) (erp.Row, error) {
	if recordType == erp.TypeUnitType {
		return erp.Row{"conversionrate": s.rates[id]}, nil
	}
	return erp.Row{}, nil
}

func (s *receiptStore) Create(context.Context, string, map[string]any) (string, error) {
	return "", nil
}

func (s *receiptStore) Transform(context.Context, string, string, string) (*erp.ReceiptDraft, error) {
	return nil, nil
}

func (s *receiptStore) SaveDraft(context.Context, *erp.ReceiptDraft) (string, error) {
	return "", nil
}

func TestTerminalOrderStatus(t *testing.T) {
	for _, status := range []string{erp.StatusFullyBilled, erp.StatusPendingBilling, erp.StatusClosed, erp.StatusReceived} {
		if !terminalOrderStatus(status) {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []string{erp.StatusPendingReceipt, erp.StatusPendingApproval, ""} {
		if terminalOrderStatus(status) {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestTransferReceivable(t *testing.T) {
	for _, status := range []string{erp.StatusPendingReceipt, erp.StatusPendingReceiptPart, erp.StatusPartiallyFulfilled} {
		if !transferReceivable(status) {
			t.Fatalf("%s should be receivable", status)
		}
	}
	if transferReceivable(erp.StatusPendingApproval) {
		t.Fatalf("pending approval should not be receivable")
	}
}

// A purchase order with nothing fulfilled has nothing to claim; its
// lines must wait instead of receipting unshipped stock.
func TestFulfillmentLedgerBlocksUnfulfilledPurchase(t *testing.T) {
	store := &receiptStore{}
	ledger, receiptIDs, err := fulfillmentLedger(context.Background(), store, 100, "po-1")
	if err != nil {
		t.Fatalf("fulfillmentLedger: %v", err)
	}
	if len(receiptIDs) != 0 {
		t.Fatalf("expected no receipt ids, got %d", len(receiptIDs))
	}
	if ledger.Claim("itemX", "L1", decimal.NewFromInt(4)) {
		t.Fatalf("claim against an order with no fulfillments must fail")
	}
}

// Fulfillment of 5 with a prior-run claim of 2 leaves 3: a request for 4
// fails and the same request for 3 succeeds.
func TestFulfillmentLedgerSubtractsPriorClaims(t *testing.T) {
	store := &receiptStore{
		fulfillments: []erp.Row{
			{"internalid": "if-1", "item": "itemX", "quantity": "5", "inventorynumber": "L1"},
		},
		rates: map[string]string{"u1": "1"},
	}
	ledger, receiptIDs, err := fulfillmentLedger(context.Background(), store, 100, "po-1")
	if err != nil {
		t.Fatalf("fulfillmentLedger: %v", err)
	}

	prior := []models.StagedLine{{
		Stage:       models.StageReceived,
		ItemRef:     "itemX",
		Lot:         "L1",
		Quantity:    decimal.NewFromInt(2),
		UnitTypeRef: "u1",
	}}
	if err := subtractPriorClaims(context.Background(), newUnitCache(store), ledger, receiptIDs, prior); err != nil {
		t.Fatalf("subtractPriorClaims: %v", err)
	}

	if ledger.Claim("itemX", "L1", decimal.NewFromInt(4)) {
		t.Fatalf("claim of 4 against 5-2 available must fail")
	}
	if !ledger.Claim("itemX", "L1", decimal.NewFromInt(3)) {
		t.Fatalf("claim of 3 against 5-2 available must succeed")
	}
}

// A prior line whose receipt already appears in the snapshot is not
// charged again: the receipt subtraction covers it.
func TestFulfillmentLedgerSkipsSnapshottedReceipts(t *testing.T) {
	store := &receiptStore{
		fulfillments: []erp.Row{
			{"internalid": "if-1", "item": "itemX", "quantity": "5", "inventorynumber": "L1"},
		},
		receipts: []erp.Row{
			{"internalid": "ir-1", "item": "itemX", "quantity": "2", "inventorynumber": "L1"},
		},
		rates: map[string]string{"u1": "1"},
	}
	ledger, receiptIDs, err := fulfillmentLedger(context.Background(), store, 100, "po-1")
	if err != nil {
		t.Fatalf("fulfillmentLedger: %v", err)
	}

	prior := []models.StagedLine{{
		Stage:       models.StageReceived,
		ItemRef:     "itemX",
		Lot:         "L1",
		Quantity:    decimal.NewFromInt(2),
		UnitTypeRef: "u1",
		ReceiptRef:  "ir-1",
	}}
	if err := subtractPriorClaims(context.Background(), newUnitCache(store), ledger, receiptIDs, prior); err != nil {
		t.Fatalf("subtractPriorClaims: %v", err)
	}

	if !ledger.Claim("itemX", "L1", decimal.NewFromInt(3)) {
		t.Fatalf("receipted prior claim must not be charged twice")
	}
}

// Only in-house sales lines bypass allocation; purchase and transfer
// lines always claim fulfillment quantities.
func TestInHouseSaleExemption(t *testing.T) {
	settings := &models.ReconSettings{InHouseVendor: "Healix"}
	line := &models.StagedLine{VendorName: "healix "}

	if !inHouseSale(models.OrderKindSales, line, settings) {
		t.Fatalf("in-house sales line should be exempt from allocation")
	}
	if inHouseSale(models.OrderKindPurchase, line, settings) {
		t.Fatalf("purchase lines are never exempt from allocation")
	}
	if inHouseSale(models.OrderKindTransfer, line, settings) {
		t.Fatalf("transfer lines are never exempt from allocation")
	}
	other := &models.StagedLine{VendorName: "McKesson"}
	if inHouseSale(models.OrderKindSales, other, settings) {
		t.Fatalf("third-party sales lines must claim fulfillment quantities")
	}
}

func TestClassifySaveErrorLotSerialRequired(t *testing.T) {
	err := &erp.TransformError{Code: erp.TransformCodeLotSerialRequired, Message: "lot detail required"}
	upd := classifySaveError(err)
	if upd.Status != models.LineStatusPending {
		t.Fatalf("lot/serial rejection should leave the line pending, got %s", upd.Status)
	}
	if upd.ErrorCode != models.ErrorCodeLotNeedsFulfill {
		t.Fatalf("expected %s, got %s", models.ErrorCodeLotNeedsFulfill, upd.ErrorCode)
	}
	if upd.Stage != models.StageOrdered {
		t.Fatalf("rejected line must stay at stage 3, got %d", upd.Stage)
	}
}

func TestClassifySaveErrorGenericFallback(t *testing.T) {
	upd := classifySaveError(errors.New("connection reset"))
	if upd.Status != models.LineStatusError || upd.ErrorCode != models.ErrorCodeTransactionFailed {
		t.Fatalf("generic failures should mark the line as errored, got %s/%s", upd.Status, upd.ErrorCode)
	}
	if !upd.OnError {
		t.Fatalf("generic failures should set the on-error flag")
	}
}
