package workflow_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestConvertQuantityExactDivision(t *testing.T) {
	got, err := workflow.ConvertQuantity(decimal.NewFromInt(12), decimal.NewFromInt(4))
	if err != nil {
		t.Fatalf("ConvertQuantity(12, 4) error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("ConvertQuantity(12, 4) = %s, want 3", got)
	}
}

func TestConvertQuantityRemainderFails(t *testing.T) {
	if _, err := workflow.ConvertQuantity(decimal.NewFromInt(10), decimal.NewFromInt(4)); err == nil {
		t.Fatalf("ConvertQuantity(10, 4) should fail, 10 is not divisible by 4")
	}
}

func TestConvertQuantityRejectsBadRate(t *testing.T) {
	if _, err := workflow.ConvertQuantity(decimal.NewFromInt(10), decimal.Zero); err == nil {
		t.Fatalf("zero conversion rate should fail")
	}
	if _, err := workflow.ConvertQuantity(decimal.NewFromInt(10), decimal.NewFromInt(-2)); err == nil {
		t.Fatalf("negative conversion rate should fail")
	}
}
