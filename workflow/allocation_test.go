package workflow_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestLedgerClaimRequiresFullCoverage(t *testing.T) {
	ledger := workflow.NewAllocationLedger()
	ledger.Add("itemX", "L1", decimal.NewFromInt(5))

	if ok := ledger.Claim("itemX", "L1", decimal.NewFromInt(6)); ok {
		t.Fatalf("claim of 6 against 5 available should fail")
	}
	if got := ledger.Available("itemX", "L1"); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("failed claim must not consume quantity, available = %s", got)
	}
	if ok := ledger.Claim("itemX", "L1", decimal.NewFromInt(5)); !ok {
		t.Fatalf("claim of exactly the available quantity should succeed")
	}
	if got := ledger.Available("itemX", "L1"); !got.IsZero() {
		t.Fatalf("expected zero after full claim, got %s", got)
	}
}

func TestLedgerRejectsNonPositiveClaims(t *testing.T) {
	ledger := workflow.NewAllocationLedger()
	ledger.Add("itemX", "L1", decimal.NewFromInt(3))

	if ledger.Claim("itemX", "L1", decimal.Zero) {
		t.Fatalf("zero-quantity claim should fail")
	}
	if ledger.Claim("itemX", "L1", decimal.NewFromInt(-1)) {
		t.Fatalf("negative claim should fail")
	}
	if ledger.Claim("itemX", "L2", decimal.NewFromInt(1)) {
		t.Fatalf("claim against unknown lot should fail")
	}
}

// Fulfillment of 5 with a prior run already holding 2 leaves 3 to
// receive: a request for 4 must fail and a request for 3 must succeed.
func TestLedgerPriorClaimSubtraction(t *testing.T) {
	ledger := workflow.NewAllocationLedger()
	ledger.Add("itemX", "L1", decimal.NewFromInt(5))
	ledger.Subtract("itemX", "L1", decimal.NewFromInt(2))

	if got := ledger.Available("itemX", "L1"); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 available, got %s", got)
	}
	if ledger.Claim("itemX", "L1", decimal.NewFromInt(4)) {
		t.Fatalf("claim of 4 against 3 available should fail")
	}
	if !ledger.Claim("itemX", "L1", decimal.NewFromInt(3)) {
		t.Fatalf("claim of 3 against 3 available should succeed")
	}
}

func TestLedgerConservation(t *testing.T) {
	ledger := workflow.NewAllocationLedger()
	ledger.Add("itemX", "L1", decimal.NewFromInt(10))

	claimed := decimal.Zero
	for _, qty := range []int64{3, 3, 3, 3} {
		if ledger.Claim("itemX", "L1", decimal.NewFromInt(qty)) {
			claimed = claimed.Add(decimal.NewFromInt(qty))
		}
	}
	if claimed.GreaterThan(decimal.NewFromInt(10)) {
		t.Fatalf("claimed %s exceeds the 10 available", claimed)
	}
	if !claimed.Add(ledger.Available("itemX", "L1")).Equal(decimal.NewFromInt(10)) {
		t.Fatalf("claimed + available must equal the original quantity")
	}
}
