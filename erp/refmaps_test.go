package erp_test

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
)

type listStore struct {
	statuses []erp.Row
	types    []erp.Row
}

func (s *listStore) Search(_ context.Context, recordType string, _ []erp.Filter, _ []string, _ int) ([]erp.Row, error) {
	switch recordType {
	case "transactionstatus":
		return s.statuses, nil
	case "transactiontype":
		return s.types, nil
	}
	return nil, nil
}

func (s *listStore) LookupFields(context.Context, string, string, []string) (erp.Row, error) {
	return erp.Row{}, nil
}
func (s *listStore) Create(context.Context, string, map[string]any) (string, error) {
	return "", nil
}
func (s *listStore) Transform(context.Context, string, string, string) (*erp.ReceiptDraft, error) {
	return nil, nil
}
func (s *listStore) SaveDraft(context.Context, *erp.ReceiptDraft) (string, error) {
	return "", nil
}

func TestLoadRefMapsResolvesBothDirections(t *testing.T) {
	store := &listStore{
		statuses: []erp.Row{
			{"internalid": "12", "name": erp.StatusPendingReceipt},
			{"internalid": "13", "name": erp.StatusFullyBilled},
		},
		types: []erp.Row{
			{"internalid": "7", "name": "PurchOrd"},
		},
	}
	maps, err := erp.LoadRefMaps(context.Background(), store, 100)
	if err != nil {
		t.Fatalf("LoadRefMaps: %v", err)
	}

	if got := maps.StatusName("12"); got != erp.StatusPendingReceipt {
		t.Fatalf("StatusName(12) = %q", got)
	}
	if id, ok := maps.StatusID(erp.StatusFullyBilled); !ok || id != "13" {
		t.Fatalf("StatusID(fullyBilled) = (%q, %t)", id, ok)
	}
	if got := maps.TypeName("7"); got != "PurchOrd" {
		t.Fatalf("TypeName(7) = %q", got)
	}
}

func TestRefMapsPassThroughUnknownValues(t *testing.T) {
	maps, err := erp.LoadRefMaps(context.Background(), &listStore{}, 100)
	if err != nil {
		t.Fatalf("LoadRefMaps: %v", err)
	}
	// Some deployments return names directly; unknown ids fall through.
	if got := maps.StatusName(erp.StatusClosed); got != erp.StatusClosed {
		t.Fatalf("names should pass through unchanged, got %q", got)
	}
	if got := maps.TypeName("TrnfrOrd"); got != "TrnfrOrd" {
		t.Fatalf("type names should pass through unchanged, got %q", got)
	}
}
