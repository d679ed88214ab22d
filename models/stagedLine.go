package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StagedLine is one reported purchase-order line under reconciliation.
// Lines are never deleted; they are deactivated to keep the audit trail.
type StagedLine struct {
	ID             uint            `gorm:"primary_key" json:"id"`
	ExternalLineId string          `gorm:"index;size:64" json:"external_line_id"`
	PoNumber       string          `gorm:"index;size:64;not null" json:"po_number"`
	GroupId        string          `gorm:"size:64" json:"group_id"`
	LocationExtId  string          `gorm:"size:64" json:"location_ext_id"`
	LocationName   string          `gorm:"size:255" json:"location_name"`
	VendorName     string          `gorm:"size:255" json:"vendor_name"`
	NDC            string          `gorm:"index;size:64" json:"ndc"`
	UnitType       string          `gorm:"size:64" json:"unit_type"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,6)" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,6)" json:"unit_price"`
	OrderDate      *time.Time      `json:"order_date"`
	DateReceived   *time.Time      `json:"date_received"`
	Lot            string          `gorm:"size:128" json:"lot"`
	ExpirationDate *time.Time      `json:"expiration_date"`
	BackOrdered    bool            `gorm:"default:false" json:"back_ordered"`

	// Resolved master-data references (record-store internal ids).
	ItemRef          string `gorm:"size:64" json:"item_ref"`
	UnitTypeRef      string `gorm:"size:64" json:"unit_type_ref"`
	ShipToRef        string `gorm:"size:64" json:"ship_to_ref"`
	CustomerRef      string `gorm:"size:64" json:"customer_ref"`
	CustomerCategory string `gorm:"size:64" json:"customer_category"`
	SubsidiaryRef    string `gorm:"size:64" json:"subsidiary_ref"`
	LocationRef      string `gorm:"size:64" json:"location_ref"`
	VendorRef        string `gorm:"size:64" json:"vendor_ref"`

	// Created transaction references.
	PurchaseOrderRef string `gorm:"index;size:64" json:"purchase_order_ref"`
	TransferOrderRef string `gorm:"index;size:64" json:"transfer_order_ref"`
	SalesOrderRef    string `gorm:"index;size:64" json:"sales_order_ref"`
	ReceiptRef       string `gorm:"size:64" json:"receipt_ref"`

	Status    LineStatus    `gorm:"size:20;not null" json:"status"`
	Stage     int           `gorm:"index;not null" json:"stage"`
	ErrorCode LineErrorCode `gorm:"size:40" json:"error_code"`
	OnError   bool          `gorm:"default:false" json:"on_error"`
	ErrorLog  string        `gorm:"type:text" json:"error_log"`
	Active    bool          `gorm:"index;default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasOrderRef reports whether any downstream order was ever attached.
// Such lines must never regress below StageMatched.
func (l *StagedLine) HasOrderRef() bool {
	return l.PurchaseOrderRef != "" || l.TransferOrderRef != "" || l.SalesOrderRef != ""
}

// OrderRef returns the attached order's kind and id, preferring the
// purchase order, then transfer order, then sales order.
func (l *StagedLine) OrderRef() (OrderKind, string) {
	if l.PurchaseOrderRef != "" {
		return OrderKindPurchase, l.PurchaseOrderRef
	}
	if l.TransferOrderRef != "" {
		return OrderKindTransfer, l.TransferOrderRef
	}
	if l.SalesOrderRef != "" {
		return OrderKindSales, l.SalesOrderRef
	}
	return "", ""
}

// MinStage is the lowest stage this line may legally hold.
func (l *StagedLine) MinStage() int {
	if l.HasOrderRef() {
		return StageMatched
	}
	return StageNew
}

// ClampStage enforces the no-regression rule on a proposed stage value.
func (l *StagedLine) ClampStage(stage int) int {
	if minStage := l.MinStage(); stage < minStage {
		return minStage
	}
	return stage
}

// ReceiptComplete reports whether the line carries everything the receive
// phase needs: a receive date, a lot and an expiration date.
func (l *StagedLine) ReceiptComplete() bool {
	return l.DateReceived != nil && l.Lot != "" && l.ExpirationDate != nil
}

// BackOrderKey is the composite identity of a back-ordered line: reports
// for the same outstanding order converge onto one staged line.
type BackOrderKey struct {
	PoNumber      string
	GroupId       string
	LocationExtId string
	NDC           string
	OrderDate     *time.Time
}

func FindStagedLineByExternalId(ctx context.Context, db *gorm.DB, externalLineId string) (*StagedLine, error) {
	if externalLineId == "" {
		return nil, nil
	}
	var line StagedLine
	err := db.WithContext(ctx).
		Where("external_line_id = ? AND active = ?", externalLineId, true).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

// FindBackOrderLine matches open back-order lines: empty lot with the
// back-order flag set. Stage is deliberately not part of the key so a
// late report carrying the lot can still converge onto a line that was
// already ordered.
func FindBackOrderLine(ctx context.Context, db *gorm.DB, key BackOrderKey) (*StagedLine, error) {
	q := db.WithContext(ctx).
		Where("po_number = ? AND group_id = ? AND location_ext_id = ? AND ndc = ?",
			key.PoNumber, key.GroupId, key.LocationExtId, key.NDC).
		Where("lot = '' AND back_ordered = ? AND active = ?", true, true)
	if key.OrderDate != nil {
		q = q.Where("order_date = ?", *key.OrderDate)
	}
	var line StagedLine
	err := q.Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &line, nil
}

// StagedLinesForBuild returns active stage-2 lines, optionally scoped to
// one purchase reference. poFilter supports the space-as-wildcard form.
func StagedLinesForBuild(ctx context.Context, db *gorm.DB, poFilter string) ([]StagedLine, error) {
	q := db.WithContext(ctx).
		Where("stage = ? AND active = ?", StageMatched, true)
	if pattern := WildcardPoFilter(poFilter); pattern != "" {
		q = q.Where("po_number LIKE ?", pattern)
	}
	var lines []StagedLine
	if err := q.Order("po_number, id").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// StagedLinesForReceive returns active stage-3 lines with a lot assigned.
func StagedLinesForReceive(ctx context.Context, db *gorm.DB, poFilter string) ([]StagedLine, error) {
	q := db.WithContext(ctx).
		Where("stage = ? AND active = ? AND lot <> ''", StageOrdered, true)
	if pattern := WildcardPoFilter(poFilter); pattern != "" {
		q = q.Where("po_number LIKE ?", pattern)
	}
	var lines []StagedLine
	if err := q.Order("po_number, lot, id").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// PriorClaimedLines returns active lines already attached to the given
// order that are NOT part of the current batch. Their quantities were
// claimed by an earlier run and must stay claimed.
func PriorClaimedLines(ctx context.Context, db *gorm.DB, kind OrderKind, orderRef string, excludeIDs []uint) ([]StagedLine, error) {
	var column string
	switch kind {
	case OrderKindPurchase:
		column = "purchase_order_ref"
	case OrderKindTransfer:
		column = "transfer_order_ref"
	case OrderKindSales:
		column = "sales_order_ref"
	default:
		return nil, errors.New("unknown order kind")
	}

	q := db.WithContext(ctx).
		Where(column+" = ? AND active = ? AND lot <> ''", orderRef, true)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	var lines []StagedLine
	if err := q.Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// WildcardPoFilter converts the operator-entered filter into a LIKE
// pattern. Embedded spaces stand for "anything in between".
func WildcardPoFilter(poFilter string) string {
	trimmed := ""
	for _, r := range poFilter {
		if r == ' ' {
			trimmed += "%"
		} else {
			trimmed += string(r)
		}
	}
	return trimmed
}

type StagedLineUpdate struct {
	Status     LineStatus
	Stage      int
	ErrorCode  LineErrorCode
	OnError    bool
	ErrorLog   string
	OrderKind  OrderKind
	OrderRef   string
	ReceiptRef string
}

// ApplyUpdate persists one phase outcome onto a line. Stage is clamped so
// a line with an order reference never falls below StageMatched.
func ApplyUpdate(ctx context.Context, db *gorm.DB, line *StagedLine, upd StagedLineUpdate) error {
	stage := line.ClampStage(upd.Stage)
	fields := map[string]interface{}{
		"status":     upd.Status,
		"stage":      stage,
		"error_code": upd.ErrorCode,
		"on_error":   upd.OnError,
		"error_log":  upd.ErrorLog,
	}
	if upd.OrderRef != "" {
		switch upd.OrderKind {
		case OrderKindPurchase:
			fields["purchase_order_ref"] = upd.OrderRef
		case OrderKindTransfer:
			fields["transfer_order_ref"] = upd.OrderRef
		case OrderKindSales:
			fields["sales_order_ref"] = upd.OrderRef
		}
	}
	if upd.ReceiptRef != "" {
		fields["receipt_ref"] = upd.ReceiptRef
	}
	if err := db.WithContext(ctx).Model(&StagedLine{}).Where("id = ?", line.ID).Updates(fields).Error; err != nil {
		return err
	}
	line.Status = upd.Status
	line.Stage = stage
	line.ErrorCode = upd.ErrorCode
	line.OnError = upd.OnError
	line.ErrorLog = upd.ErrorLog
	if upd.OrderRef != "" {
		switch upd.OrderKind {
		case OrderKindPurchase:
			line.PurchaseOrderRef = upd.OrderRef
		case OrderKindTransfer:
			line.TransferOrderRef = upd.OrderRef
		case OrderKindSales:
			line.SalesOrderRef = upd.OrderRef
		}
	}
	if upd.ReceiptRef != "" {
		line.ReceiptRef = upd.ReceiptRef
	}
	return nil
}

// DeactivateStagedLine retires a line without losing its history.
func DeactivateStagedLine(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Model(&StagedLine{}).Where("id = ?", id).
		Update("active", false).Error
}
