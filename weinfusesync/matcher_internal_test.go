package weinfusesync

import (
	"encoding/json"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/shopspring/decimal"
)

func TestCutBackOrderSuffix(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		flagged bool
	}{
		{"P246156", "P246156", false},
		{"P246156 - backorder", "P246156", true},
		{"P246156 - BackOrder", "P246156", true},
		{"backorder", "backorder", false},
	}
	for _, tc := range cases {
		got, flagged := cutBackOrderSuffix(tc.in)
		if got != tc.want || flagged != tc.flagged {
			t.Fatalf("cutBackOrderSuffix(%q) = (%q, %t), want (%q, %t)", tc.in, got, flagged, tc.want, tc.flagged)
		}
	}
}

func TestParseReportDate(t *testing.T) {
	if d := parseReportDate("2026-03-14"); d == nil || d.Month() != time.March {
		t.Fatalf("ISO date should parse, got %v", d)
	}
	if d := parseReportDate("03/14/2026"); d == nil || d.Day() != 14 {
		t.Fatalf("US date should parse, got %v", d)
	}
	if d := parseReportDate(""); d != nil {
		t.Fatalf("empty date should be nil, got %v", d)
	}
	if d := parseReportDate("not a date"); d != nil {
		t.Fatalf("garbage should be nil, got %v", d)
	}
}

// The lifecycle of one reported line: no receive date parks it pending,
// a receive date without a lot is an error, full data advances it.
func TestClassifyLifecycle(t *testing.T) {
	m := &Matcher{}
	now := time.Now()

	line := &models.StagedLine{
		PoNumber: "P246156",
		Quantity: decimal.NewFromInt(1),
		Stage:    models.StageNew,
	}
	m.classify(line, nil)
	if line.Status != models.LineStatusPending || line.ErrorCode != models.ErrorCodeNoDateReceived {
		t.Fatalf("no receive date: got %s/%s, want PENDING/%s", line.Status, line.ErrorCode, models.ErrorCodeNoDateReceived)
	}
	if line.Stage != models.StageNew {
		t.Fatalf("no receive date keeps stage 1, got %d", line.Stage)
	}

	line.DateReceived = &now
	m.classify(line, nil)
	if line.Status != models.LineStatusError || line.ErrorCode != models.ErrorCodeLotNotFound {
		t.Fatalf("received without lot: got %s/%s, want ERROR/%s", line.Status, line.ErrorCode, models.ErrorCodeLotNotFound)
	}

	line.Lot = "L1"
	m.classify(line, nil)
	if line.ErrorCode != models.ErrorCodeNoExpirationDate {
		t.Fatalf("lot without expiration: got %s, want %s", line.ErrorCode, models.ErrorCodeNoExpirationDate)
	}

	line.ExpirationDate = &now
	m.classify(line, nil)
	if line.Status != models.LineStatusProcessed || line.Stage != models.StageMatched {
		t.Fatalf("complete line: got %s stage %d, want PROCESSED stage 2", line.Status, line.Stage)
	}
}

func TestClassifyPromotesOrderRefLines(t *testing.T) {
	m := &Matcher{}
	now := time.Now()
	line := &models.StagedLine{
		PoNumber:         "P1",
		PurchaseOrderRef: "po-9",
		DateReceived:     &now,
		Lot:              "L1",
		ExpirationDate:   &now,
		Stage:            models.StageMatched,
	}
	m.classify(line, nil)
	if line.Stage != models.StageOrdered || line.Status != models.LineStatusProcessed {
		t.Fatalf("complete line with an order goes to stage 3, got %s stage %d", line.Status, line.Stage)
	}

	line.ReceiptRef = "ir-4"
	m.classify(line, nil)
	if line.Stage != models.StageReceived {
		t.Fatalf("line with a receipt reference goes to stage 4, got %d", line.Stage)
	}
}

func TestClassifyBackOrderSkipsReceiptChecks(t *testing.T) {
	m := &Matcher{}
	line := &models.StagedLine{
		PoNumber:    "P2",
		BackOrdered: true,
		Stage:       models.StageNew,
	}
	m.classify(line, nil)
	if line.Status != models.LineStatusProcessed || line.Stage != models.StageMatched {
		t.Fatalf("open back-order should be matched, got %s stage %d", line.Status, line.Stage)
	}
}

func TestClassifyFieldErrorsResetStage(t *testing.T) {
	m := &Matcher{}
	line := &models.StagedLine{PoNumber: "P3", Stage: models.StageMatched}
	m.classify(line, []FieldError{{Field: "ndc", Code: models.ErrorCodeItemNotFound, Message: "no item"}})
	if line.Status != models.LineStatusError || line.ErrorCode != models.ErrorCodeItemNotFound {
		t.Fatalf("field errors must mark the line errored, got %s/%s", line.Status, line.ErrorCode)
	}
	if line.Stage != models.StageNew {
		t.Fatalf("errored line without order resets to stage 1, got %d", line.Stage)
	}

	ordered := &models.StagedLine{PoNumber: "P3", SalesOrderRef: "so-1", Stage: models.StageOrdered}
	m.classify(ordered, []FieldError{{Field: "ndc", Code: models.ErrorCodeItemNotFound}})
	if ordered.Stage < models.StageMatched {
		t.Fatalf("errored line with an order never drops below stage 2, got %d", ordered.Stage)
	}
}

func TestRawIdentityKeyConvergence(t *testing.T) {
	a := RawPurchaseLine{LineId: "123", PoNumber: "P1"}
	b := RawPurchaseLine{LineId: "123", PoNumber: "P1", Quantity: json.Number("4")}
	if rawIdentityKey(a) != rawIdentityKey(b) {
		t.Fatalf("same external id must share one identity key")
	}

	bo1 := RawPurchaseLine{PoNumber: "P1 - backorder", GroupId: "g", LocationId: "l", NDC: "n", OrderDate: "2026-01-02"}
	bo2 := RawPurchaseLine{LineId: "999", PoNumber: "P1 - backorder", GroupId: "g", LocationId: "l", NDC: "n", OrderDate: "2026-01-02"}
	if rawIdentityKey(bo1) != rawIdentityKey(bo2) {
		t.Fatalf("back-order rows converge on the composite key regardless of line id")
	}
	if rawIdentityKey(a) == rawIdentityKey(bo1) {
		t.Fatalf("back-order and regular keys must not collide")
	}
}

func TestMatchWildcard(t *testing.T) {
	cases := []struct {
		value  string
		filter string
		want   bool
	}{
		{"P246156", "P246156", true},
		{"P246156", "P24 156", true},
		{"P246156", "P24 999", false},
		{"P246156", "246", false},
	}
	for _, tc := range cases {
		if got := matchWildcard(tc.value, tc.filter); got != tc.want {
			t.Fatalf("matchWildcard(%q, %q) = %t, want %t", tc.value, tc.filter, got, tc.want)
		}
	}
}
