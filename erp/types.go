package erp

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record types used by the reconciliation pipeline.
const (
	TypeItem        = "item"
	TypeCustomer    = "customer"
	TypeShipTo      = "shipto"
	TypeLocation    = "location"
	TypeVendor      = "vendor"
	TypeUnitType    = "unitstype"
	TypeShipAccount = "shipaccount"

	TypePurchaseOrder   = "purchaseorder"
	TypeTransferOrder   = "transferorder"
	TypeSalesOrder      = "salesorder"
	TypeItemReceipt     = "itemreceipt"
	TypeItemFulfillment = "itemfulfillment"
	TypeTransaction     = "transaction"
)

// Order header statuses the pipeline reacts to.
const (
	StatusFullyBilled        = "fullyBilled"
	StatusPendingBilling     = "pendingBilling"
	StatusClosed             = "closed"
	StatusReceived           = "received"
	StatusPendingApproval    = "pendingSupApproval"
	StatusPendingReceipt     = "pendingReceipt"
	StatusPendingReceiptPart = "pendingReceiptPartFulfilled"
	StatusPartiallyFulfilled = "partiallyFulfilled"
)

// Filter is one search predicate. Op is "=", "like", "in" or "anyof".
type Filter struct {
	Field string
	Op    string
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "=", Value: value}
}

// Row is one search/lookup result, column name to display value.
type Row map[string]string

func (r Row) Get(column string) string {
	return r[column]
}

func (r Row) Decimal(column string) decimal.Decimal {
	d, err := decimal.NewFromString(r[column])
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Store is the record-store collaborator. Every reconciliation algorithm
// is written against this interface; production uses the REST client,
// tests use in-memory fakes.
type Store interface {
	Search(ctx context.Context, recordType string, filters []Filter, columns []string, limit int) ([]Row, error)
	LookupFields(ctx context.Context, recordType string, id string, columns []string) (Row, error)
	Create(ctx context.Context, recordType string, fields map[string]any) (string, error)
	Transform(ctx context.Context, fromType string, fromID string, toType string) (*ReceiptDraft, error)
	SaveDraft(ctx context.Context, draft *ReceiptDraft) (string, error)
}

// ReceiptDraft is the mutable order-to-receipt transform payload.
// Transform returns it pre-populated with the order's open lines; the
// caller edits flags/quantities/lot detail and submits via SaveDraft.
type ReceiptDraft struct {
	FromType string         `json:"from_type"`
	FromID   string         `json:"from_id"`
	ToType   string         `json:"to_type"`
	Header   map[string]any `json:"header"`
	Items    []DraftItem    `json:"items"`
}

type DraftItem struct {
	LineID    string          `json:"line_id"`
	ItemRef   string          `json:"item_ref"`
	Receive   bool            `json:"receive"`
	Quantity  decimal.Decimal `json:"quantity"`
	ClosedQty decimal.Decimal `json:"closed_qty"`
	Inventory []LotAssignment `json:"inventory"`
}

type LotAssignment struct {
	Lot        string          `json:"lot"`
	Expiration *time.Time      `json:"expiration"`
	Quantity   decimal.Decimal `json:"quantity"`
}

func (d *ReceiptDraft) SetHeader(field string, value any) {
	if d.Header == nil {
		d.Header = map[string]any{}
	}
	d.Header[field] = value
}

// ClearReceiveFlags unchecks every line before the caller re-enables the
// ones this run actually receives.
func (d *ReceiptDraft) ClearReceiveFlags() {
	for i := range d.Items {
		d.Items[i].Receive = false
		d.Items[i].Quantity = decimal.Zero
		d.Items[i].Inventory = nil
	}
}

// RemoveItem drops the draft line at index i.
func (d *ReceiptDraft) RemoveItem(i int) {
	if i < 0 || i >= len(d.Items) {
		return
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
}

// TransformError is a typed rejection from SaveDraft. Callers branch on
// Code instead of string-matching exception text.
type TransformError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *TransformError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// TransformCodeLotSerialRequired is the rejection raised when a receipt
// line needs lot/serial numbers the draft did not carry.
const TransformCodeLotSerialRequired = "MATCHING_SERIAL_NUM_REQD"
