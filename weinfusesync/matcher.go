package weinfusesync

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"bitbucket.org/mmdatafocus/infusionsync_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// backOrderSuffix marks a report row that has no firm order line yet.
// The token is stripped off the purchase reference during matching.
const backOrderSuffix = "- backorder"

// FieldError is one field-level validation failure on a raw line.
type FieldError struct {
	Field   string
	Code    models.LineErrorCode
	Message string
}

// MatchResult is the outcome of matching one raw report row.
type MatchResult struct {
	Line          *models.StagedLine
	Created       bool
	IsBackOrder   bool
	ExistingError bool
	FieldErrors   []FieldError
}

// Matcher normalizes raw report rows into staged lines. Matching never
// aborts a run: every failure lands on the line as a status and error
// code, and the caller keeps going.
type Matcher struct {
	db      *gorm.DB
	logger  *logrus.Logger
	lookups *LookupService
}

func NewMatcher(db *gorm.DB, logger *logrus.Logger, lookups *LookupService) *Matcher {
	return &Matcher{db: db, logger: logger, lookups: lookups}
}

var reportDateFormats = []string{"2006-01-02", "01/02/2006", time.RFC3339}

func parseReportDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range reportDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

func parseReportDecimal(value string) decimal.Decimal {
	d, err := utils.ParseDecimal(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// MatchLine resolves one raw row to a staged line, creating it on first
// sighting and converging repeat reports onto the existing record. The
// returned error is infrastructure-only; data problems surface as the
// line's status and the field errors.
func (m *Matcher) MatchLine(ctx context.Context, raw RawPurchaseLine) (MatchResult, error) {
	po := strings.TrimSpace(raw.PoNumber)
	backOrdered := false
	if trimmed, ok := cutBackOrderSuffix(po); ok {
		po = trimmed
		backOrdered = true
	}

	result := MatchResult{IsBackOrder: backOrdered}

	var (
		existing *models.StagedLine
		err      error
	)
	if backOrdered {
		existing, err = models.FindBackOrderLine(ctx, m.db, models.BackOrderKey{
			PoNumber:      po,
			GroupId:       strings.TrimSpace(raw.GroupId),
			LocationExtId: strings.TrimSpace(raw.LocationId),
			NDC:           strings.TrimSpace(raw.NDC),
			OrderDate:     parseReportDate(raw.OrderDate),
		})
	} else {
		existing, err = models.FindStagedLineByExternalId(ctx, m.db, strings.TrimSpace(raw.LineId))
	}
	if err != nil {
		return result, err
	}

	if existing != nil {
		result.ExistingError = existing.Status == models.LineStatusError || existing.OnError
		line, matchErr := m.refreshExisting(ctx, existing, raw, backOrdered)
		result.Line = line
		return result, matchErr
	}

	line := &models.StagedLine{
		ExternalLineId: strings.TrimSpace(raw.LineId),
		PoNumber:       po,
		GroupId:        strings.TrimSpace(raw.GroupId),
		LocationExtId:  strings.TrimSpace(raw.LocationId),
		LocationName:   strings.TrimSpace(raw.LocationName),
		VendorName:     strings.TrimSpace(raw.VendorName),
		NDC:            strings.TrimSpace(raw.NDC),
		UnitType:       strings.TrimSpace(raw.UnitType),
		Quantity:       parseReportDecimal(raw.Quantity.String()),
		UnitPrice:      parseReportDecimal(raw.UnitPrice.String()),
		OrderDate:      parseReportDate(raw.OrderDate),
		DateReceived:   parseReportDate(raw.DateReceived),
		Lot:            strings.TrimSpace(raw.Lot),
		ExpirationDate: parseReportDate(raw.ExpirationDate),
		BackOrdered:    backOrdered,
		Stage:          models.StageNew,
		Status:         models.LineStatusPending,
		Active:         true,
	}

	result.FieldErrors = m.validateRequired(line)
	if len(result.FieldErrors) == 0 {
		result.FieldErrors = append(result.FieldErrors, m.resolveReferences(ctx, line)...)
	}
	m.classify(line, result.FieldErrors)

	if err := m.db.WithContext(ctx).Create(line).Error; err != nil {
		return result, err
	}
	result.Line = line
	result.Created = true
	m.logFieldErrors(line, result.FieldErrors)
	return result, nil
}

func cutBackOrderSuffix(po string) (string, bool) {
	lower := strings.ToLower(po)
	if !strings.HasSuffix(lower, backOrderSuffix) {
		return po, false
	}
	return strings.TrimSpace(po[:len(po)-len(backOrderSuffix)]), true
}

// refreshExisting copies newly reported values onto a known line and
// re-evaluates its status. Resolved references and order references are
// carried forward untouched.
func (m *Matcher) refreshExisting(ctx context.Context, line *models.StagedLine, raw RawPurchaseLine, backOrdered bool) (*models.StagedLine, error) {
	if d := parseReportDate(raw.DateReceived); d != nil {
		line.DateReceived = d
	}
	if lot := strings.TrimSpace(raw.Lot); lot != "" {
		line.Lot = lot
	}
	if d := parseReportDate(raw.ExpirationDate); d != nil {
		line.ExpirationDate = d
	}
	if qty := parseReportDecimal(raw.Quantity.String()); !qty.IsZero() {
		line.Quantity = qty
	}
	if price := parseReportDecimal(raw.UnitPrice.String()); !price.IsZero() {
		line.UnitPrice = price
	}
	if backOrdered && line.ExternalLineId == "" {
		line.ExternalLineId = strings.TrimSpace(raw.LineId)
	}

	// A line already received stays terminal; matching is a no-op apart
	// from the merged report values.
	if line.Stage == models.StageReceived {
		return line, m.db.WithContext(ctx).Save(line).Error
	}

	var fieldErrors []FieldError
	if line.ItemRef == "" || line.ShipToRef == "" {
		fieldErrors = m.validateRequired(line)
		if len(fieldErrors) == 0 {
			fieldErrors = m.resolveReferences(ctx, line)
		}
	}
	m.classify(line, fieldErrors)

	if err := m.db.WithContext(ctx).Save(line).Error; err != nil {
		return line, err
	}
	m.logFieldErrors(line, fieldErrors)
	return line, nil
}

// validateRequired flags every required raw attribute that came in
// empty. Validation stops reference resolution but not the run.
func (m *Matcher) validateRequired(line *models.StagedLine) []FieldError {
	var errs []FieldError
	require := func(field string, ok bool) {
		if !ok {
			errs = append(errs, FieldError{
				Field:   field,
				Code:    models.ErrorCodeTransactionFailed,
				Message: field + " is required",
			})
		}
	}
	require("po_number", line.PoNumber != "")
	require("location_name", line.LocationName != "")
	require("vendor_name", line.VendorName != "")
	require("ndc", line.NDC != "")
	require("unit_type", line.UnitType != "")
	require("quantity", line.Quantity.IsPositive())
	return errs
}

// resolveReferences performs the master-data lookups and writes the
// resolved ids onto the line. Each failed lookup yields one field error.
func (m *Matcher) resolveReferences(ctx context.Context, line *models.StagedLine) []FieldError {
	var errs []FieldError
	fail := func(field string, code models.LineErrorCode, err error) {
		msg := string(code)
		if err != nil {
			msg = err.Error()
		}
		errs = append(errs, FieldError{Field: field, Code: code, Message: msg})
	}

	itemRef, code, err := m.lookups.ItemByNDC(ctx, line.NDC)
	if code != models.ErrorCodeNone {
		fail("ndc", code, err)
	} else {
		line.ItemRef = itemRef
	}

	unitRef, code, err := m.lookups.UnitTypeByName(ctx, line.UnitType)
	if code != models.ErrorCodeNone {
		fail("unit_type", code, err)
	} else {
		line.UnitTypeRef = unitRef
	}

	shipTo, code, err := m.lookups.ShipToByLocationName(ctx, line.LocationName)
	if code != models.ErrorCodeNone {
		fail("location_name", code, err)
	} else {
		line.ShipToRef = shipTo.ShipToRef
		line.CustomerRef = shipTo.CustomerRef
		line.CustomerCategory = shipTo.Category
		line.SubsidiaryRef = shipTo.SubsidiaryRef

		locationRef, code, err := m.lookups.LocationForShipTo(ctx, shipTo.Category, line.LocationName)
		if code != models.ErrorCodeNone {
			fail("location_name", code, err)
		} else {
			line.LocationRef = locationRef
		}
	}

	// The in-house vendor has no vendor record; its groups become sales
	// or transfer orders instead of purchase orders.
	if !m.lookups.IsInHouseVendor(line.VendorName) {
		vendorRef, code, err := m.lookups.VendorByName(ctx, line.VendorName)
		if code != models.ErrorCodeNone {
			fail("vendor_name", code, err)
		} else {
			line.VendorRef = vendorRef
		}
	}
	return errs
}

// classify assigns status, stage and error code from the line's current
// completeness. Stage promotion respects the no-regression clamp.
func (m *Matcher) classify(line *models.StagedLine, fieldErrors []FieldError) {
	if len(fieldErrors) > 0 {
		line.Status = models.LineStatusError
		line.ErrorCode = fieldErrors[0].Code
		line.OnError = true
		line.ErrorLog = fieldErrors[0].Message
		line.Stage = line.ClampStage(models.StageNew)
		return
	}

	line.ErrorCode = models.ErrorCodeNone
	line.OnError = false
	line.ErrorLog = ""

	// Back-order lines are ordered before they ship; receipt data is
	// expected to be missing and must not hold them back.
	if backOrderReady(line) {
		line.Status = models.LineStatusProcessed
		line.Stage = line.ClampStage(models.StageMatched)
		return
	}

	switch {
	case line.DateReceived == nil:
		line.Status = models.LineStatusPending
		line.ErrorCode = models.ErrorCodeNoDateReceived
		line.Stage = line.ClampStage(models.StageNew)
	case line.Lot == "":
		line.Status = models.LineStatusError
		line.ErrorCode = models.ErrorCodeLotNotFound
		line.OnError = true
		line.ErrorLog = "received line reported without a lot"
		line.Stage = line.ClampStage(models.StageNew)
	case line.ExpirationDate == nil:
		line.Status = models.LineStatusError
		line.ErrorCode = models.ErrorCodeNoExpirationDate
		line.OnError = true
		line.ErrorLog = "received line reported without an expiration date"
		line.Stage = line.ClampStage(models.StageNew)
	default:
		line.Status = models.LineStatusProcessed
		if line.HasOrderRef() {
			if line.ReceiptRef != "" {
				line.Stage = models.StageReceived
			} else {
				line.Stage = models.StageOrdered
			}
		} else {
			line.Stage = line.ClampStage(models.StageMatched)
		}
	}
}

func backOrderReady(line *models.StagedLine) bool {
	return line.BackOrdered && line.Lot == "" && line.DateReceived == nil
}

func (m *Matcher) logFieldErrors(line *models.StagedLine, fieldErrors []FieldError) {
	if m.logger == nil {
		return
	}
	for _, fe := range fieldErrors {
		m.logger.WithFields(logrus.Fields{
			"module":           "weinfusesync",
			"po_number":        line.PoNumber,
			"external_line_id": line.ExternalLineId,
			"field":            fe.Field,
			"error_code":       fe.Code,
		}).Warn(fe.Message)
	}
}
