package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
)

func TestClampStageNeverRegressesBelowMatched(t *testing.T) {
	line := models.StagedLine{PurchaseOrderRef: "po-1", Stage: models.StageOrdered}
	if got := line.ClampStage(models.StageNew); got != models.StageMatched {
		t.Fatalf("line with an order reference clamped to %d, want %d", got, models.StageMatched)
	}
	if got := line.ClampStage(models.StageReceived); got != models.StageReceived {
		t.Fatalf("clamp must not lower a valid stage, got %d", got)
	}

	fresh := models.StagedLine{}
	if got := fresh.ClampStage(models.StageNew); got != models.StageNew {
		t.Fatalf("line without order reference may sit at stage 1, got %d", got)
	}
}

func TestOrderRefPrecedence(t *testing.T) {
	line := models.StagedLine{
		PurchaseOrderRef: "po-1",
		TransferOrderRef: "to-1",
		SalesOrderRef:    "so-1",
	}
	kind, ref := line.OrderRef()
	if kind != models.OrderKindPurchase || ref != "po-1" {
		t.Fatalf("purchase order should win, got (%s, %s)", kind, ref)
	}

	line.PurchaseOrderRef = ""
	kind, ref = line.OrderRef()
	if kind != models.OrderKindTransfer || ref != "to-1" {
		t.Fatalf("transfer order should come next, got (%s, %s)", kind, ref)
	}

	line.TransferOrderRef = ""
	kind, ref = line.OrderRef()
	if kind != models.OrderKindSales || ref != "so-1" {
		t.Fatalf("sales order should come last, got (%s, %s)", kind, ref)
	}

	line.SalesOrderRef = ""
	if line.HasOrderRef() {
		t.Fatalf("line without references should report no order ref")
	}
}

func TestReceiptComplete(t *testing.T) {
	now := time.Now()
	line := models.StagedLine{DateReceived: &now, Lot: "L1", ExpirationDate: &now}
	if !line.ReceiptComplete() {
		t.Fatalf("line with date, lot and expiration should be receipt complete")
	}
	line.Lot = ""
	if line.ReceiptComplete() {
		t.Fatalf("line without a lot is not receipt complete")
	}
}

func TestWildcardPoFilter(t *testing.T) {
	cases := []struct{ in, want string }{
		{"P246156", "P246156"},
		{"P24 156", "P24%156"},
		{"", ""},
		{"A B C", "A%B%C"},
	}
	for _, tc := range cases {
		if got := models.WildcardPoFilter(tc.in); got != tc.want {
			t.Fatalf("WildcardPoFilter(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
