package workflow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/shopspring/decimal"
)

// ReceiveOrders is the third pipeline pass: stage-3 lines with lot detail
// are posted as receipts against their orders. Receiving never advances a
// line past what the fulfillment side can back, so a failed line simply
// stays at stage 3 for the next run.
func ReceiveOrders(ctx context.Context, deps PhaseDeps, poFilter string) (Summary, error) {
	lines, err := models.StagedLinesForReceive(ctx, deps.DB, poFilter)
	if err != nil {
		return Summary{}, err
	}
	if len(lines) == 0 {
		return Summary{}, nil
	}

	groups, order := groupByPo(lines)
	total := forEachGroup(ctx, deps.Logger, deps.Workers, groups, order, func(po string, group []models.StagedLine) Summary {
		return receiveGroup(ctx, deps, po, group)
	})
	return total, nil
}

// terminalOrderStatus reports a header status with nothing left to
// receive. Lines against such orders are closed out as processed.
func terminalOrderStatus(status string) bool {
	switch status {
	case erp.StatusFullyBilled, erp.StatusPendingBilling, erp.StatusClosed, erp.StatusReceived:
		return true
	}
	return false
}

// inHouseSale reports a sales-order line sourced from the in-house
// vendor. Those never claim fulfillment quantities.
func inHouseSale(kind models.OrderKind, line *models.StagedLine, settings *models.ReconSettings) bool {
	return kind == models.OrderKindSales &&
		strings.EqualFold(strings.TrimSpace(line.VendorName), settings.InHouseVendor)
}

func transferReceivable(status string) bool {
	switch status {
	case erp.StatusPendingReceipt, erp.StatusPendingReceiptPart, erp.StatusPartiallyFulfilled:
		return true
	}
	return false
}

func receiveGroup(ctx context.Context, deps PhaseDeps, po string, lines []models.StagedLine) Summary {
	kind, orderRef := lines[0].OrderRef()
	if orderRef == "" {
		failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status:    models.LineStatusError,
			Stage:     models.StageOrdered,
			ErrorCode: models.ErrorCodeTransactionFailed,
			OnError:   true,
			ErrorLog:  "stage 3 line has no order reference",
		}, "order")
		return Summary{Failed: failed}
	}

	header, err := deps.Store.LookupFields(ctx, recordTypeForKind(kind), orderRef, []string{"status"})
	if err != nil {
		failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status:    models.LineStatusError,
			Stage:     models.StageOrdered,
			ErrorCode: models.ErrorCodeTransactionFailed,
			OnError:   true,
			ErrorLog:  "order status lookup failed: " + err.Error(),
		}, "order")
		return Summary{Failed: failed}
	}
	status := deps.Refs.StatusName(header.Get("status"))

	// Orders already billed, closed or fully received have nothing left
	// to reconcile; their lines jump straight to the final stage.
	if terminalOrderStatus(status) {
		updated := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status: models.LineStatusProcessed,
			Stage:  models.StageReceived,
		}, "")
		return Summary{Updated: updated}
	}
	if kind == models.OrderKindPurchase && status == erp.StatusPendingApproval {
		updated := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status: models.LineStatusNotApproved,
			Stage:  models.StageOrdered,
		}, "")
		return Summary{Updated: updated}
	}
	if kind == models.OrderKindTransfer && !transferReceivable(status) {
		updated := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status: models.LineStatusNotPending,
			Stage:  models.StageOrdered,
		}, "")
		return Summary{Updated: updated}
	}

	// Receiving never outruns the fulfillment side: every order kind
	// claims against the shipped-minus-receipted snapshot before a
	// receipt is posted.
	ledger, err := buildLedger(ctx, deps, kind, orderRef, lines)
	if err != nil {
		failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status:    models.LineStatusError,
			Stage:     models.StageOrdered,
			ErrorCode: models.ErrorCodeTransactionFailed,
			OnError:   true,
			ErrorLog:  "fulfillment snapshot failed: " + err.Error(),
		}, "order")
		return Summary{Failed: failed}
	}

	summary := Summary{}
	units := newUnitCache(deps.Store)
	eligible := make([]int, 0, len(lines))
	stockQty := make(map[int]decimal.Decimal, len(lines))
	for i := range lines {
		line := &lines[i]
		if line.DateReceived == nil {
			summary.Failed += markGroup(ctx, deps, lines[i:i+1], models.StagedLineUpdate{
				Status:    models.LineStatusPending,
				Stage:     models.StageOrdered,
				ErrorCode: models.ErrorCodeNoDateReceived,
				ErrorLog:  "line has no receive date yet",
			}, "date_received")
			continue
		}
		// Sales lines sourced from the in-house vendor ship from our own
		// stock; there is no upstream fulfillment to wait on.
		if inHouseSale(kind, line, deps.Settings) {
			summary.Updated += markGroup(ctx, deps, lines[i:i+1], models.StagedLineUpdate{
				Status: models.LineStatusProcessed,
				Stage:  models.StageReceived,
			}, "")
			continue
		}
		rate, rateErr := units.Rate(ctx, line.UnitTypeRef)
		var qty decimal.Decimal
		if rateErr == nil {
			qty, rateErr = ConvertQuantity(line.Quantity, rate)
		}
		if rateErr != nil {
			summary.Failed += markGroup(ctx, deps, lines[i:i+1], models.StagedLineUpdate{
				Status:    models.LineStatusError,
				Stage:     models.StageOrdered,
				ErrorCode: models.ErrorCodeUnitConversion,
				OnError:   true,
				ErrorLog:  rateErr.Error(),
			}, "quantity")
			continue
		}
		if !ledger.Claim(line.ItemRef, line.Lot, qty) {
			summary.Failed += markGroup(ctx, deps, lines[i:i+1], models.StagedLineUpdate{
				Status:    models.LineStatusPending,
				Stage:     models.StageOrdered,
				ErrorCode: models.ErrorCodeLotNeedsFulfill,
				ErrorLog:  "lot " + line.Lot + " is not covered by a fulfillment",
			}, "lot")
			continue
		}
		stockQty[i] = qty
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return summary
	}

	// One receipt per lot keeps the inventory detail unambiguous and
	// caps the blast radius of a rejected save.
	byLot := map[string][]int{}
	var lots []string
	for _, i := range eligible {
		lot := lines[i].Lot
		if _, ok := byLot[lot]; !ok {
			lots = append(lots, lot)
		}
		byLot[lot] = append(byLot[lot], i)
	}
	sort.Strings(lots)

	for _, lot := range lots {
		summary.add(receiveLotGroup(ctx, deps, kind, orderRef, lines, byLot[lot], stockQty))
	}
	return summary
}

// buildLedger snapshots what this order can still receive per item/lot:
// fulfilled quantities minus already-receipted quantities minus claims
// held by lines outside the current batch.
func buildLedger(ctx context.Context, deps PhaseDeps, kind models.OrderKind, orderRef string, batch []models.StagedLine) (*AllocationLedger, error) {
	ledger, receiptIDs, err := fulfillmentLedger(ctx, deps.Store, deps.Settings.SearchLimit(), orderRef)
	if err != nil {
		return nil, err
	}

	batchIDs := make([]uint, 0, len(batch))
	for i := range batch {
		batchIDs = append(batchIDs, batch[i].ID)
	}
	prior, err := models.PriorClaimedLines(ctx, deps.DB, kind, orderRef, batchIDs)
	if err != nil {
		return nil, err
	}
	if err := subtractPriorClaims(ctx, newUnitCache(deps.Store), ledger, receiptIDs, prior); err != nil {
		return nil, err
	}
	return ledger, nil
}

// fulfillmentLedger reads the order's posted fulfillments and receipts
// into a fresh ledger. The returned set holds the receipt ids seen.
func fulfillmentLedger(ctx context.Context, store erp.Store, limit int, orderRef string) (*AllocationLedger, map[string]bool, error) {
	ledger := NewAllocationLedger()

	fulfillRows, err := store.Search(ctx, erp.TypeItemFulfillment, []erp.Filter{
		erp.Eq("createdfrom", orderRef),
		erp.Eq("mainline", "F"),
	}, []string{"internalid", "item", "quantity", "inventorynumber"}, limit)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range fulfillRows {
		ledger.Add(row.Get("item"), row.Get("inventorynumber"), row.Decimal("quantity").Abs())
	}

	receiptRows, err := store.Search(ctx, erp.TypeItemReceipt, []erp.Filter{
		erp.Eq("createdfrom", orderRef),
		erp.Eq("mainline", "F"),
	}, []string{"internalid", "item", "quantity", "inventorynumber"}, limit)
	if err != nil {
		return nil, nil, err
	}
	receiptIDs := map[string]bool{}
	for _, row := range receiptRows {
		receiptIDs[row.Get("internalid")] = true
		ledger.Subtract(row.Get("item"), row.Get("inventorynumber"), row.Decimal("quantity").Abs())
	}
	return ledger, receiptIDs, nil
}

// subtractPriorClaims charges the ledger for received lines outside the
// current batch, skipping lines whose receipt the snapshot already
// subtracted (counting those again would double them).
func subtractPriorClaims(ctx context.Context, units *unitCache, ledger *AllocationLedger, receiptIDs map[string]bool, prior []models.StagedLine) error {
	for i := range prior {
		line := &prior[i]
		if line.Stage < models.StageReceived {
			continue
		}
		if line.ReceiptRef != "" && receiptIDs[line.ReceiptRef] {
			continue
		}
		rate, err := units.Rate(ctx, line.UnitTypeRef)
		if err != nil {
			return err
		}
		qty, err := ConvertQuantity(line.Quantity, rate)
		if err != nil {
			return err
		}
		ledger.Subtract(line.ItemRef, line.Lot, qty)
	}
	return nil
}

// receiveLotGroup posts one receipt covering every eligible line of one
// lot. indices address lines; stockQty holds their converted quantities.
func receiveLotGroup(ctx context.Context, deps PhaseDeps, kind models.OrderKind, orderRef string, lines []models.StagedLine, indices []int, stockQty map[int]decimal.Decimal) Summary {
	toType := erp.TypeItemReceipt
	if kind == models.OrderKindSales {
		toType = erp.TypeItemFulfillment
	}
	draft, err := deps.Store.Transform(ctx, recordTypeForKind(kind), orderRef, toType)
	if err != nil {
		failed := markGroupByIndex(ctx, deps, lines, indices, classifySaveError(err), "receipt")
		return Summary{Failed: failed}
	}

	lead := &lines[indices[0]]
	draft.SetHeader("trandate", lead.DateReceived.Format(time.RFC3339))
	draft.ClearReceiveFlags()

	// Per-item totals across this lot's lines, in stocking units.
	totals := map[string]decimal.Decimal{}
	expirations := map[string]*time.Time{}
	for _, i := range indices {
		item := lines[i].ItemRef
		totals[item] = totals[item].Add(stockQty[i])
		if expirations[item] == nil {
			expirations[item] = lines[i].ExpirationDate
		}
	}

	closedOut := map[string]bool{}
	matched := map[string]bool{}
	for i := len(draft.Items) - 1; i >= 0; i-- {
		item := draft.Items[i]
		qty, ok := totals[item.ItemRef]
		if !ok {
			continue
		}
		matched[item.ItemRef] = true
		// A closed order line already accounts for this quantity; keeping
		// it on the receipt would post it twice.
		if item.ClosedQty.Equal(qty) {
			closedOut[item.ItemRef] = true
			draft.RemoveItem(i)
			continue
		}
		draft.Items[i].Receive = true
		draft.Items[i].Quantity = qty
		draft.Items[i].Inventory = []erp.LotAssignment{{
			Lot:        lead.Lot,
			Expiration: expirations[item.ItemRef],
			Quantity:   qty,
		}}
	}

	summary := Summary{}
	remaining := make([]int, 0, len(indices))
	for _, i := range indices {
		item := lines[i].ItemRef
		switch {
		case closedOut[item]:
			summary.Updated += markGroup(ctx, deps, lines[i:i+1], models.StagedLineUpdate{
				Status: models.LineStatusProcessed,
				Stage:  models.StageReceived,
			}, "")
		case !matched[item]:
			summary.Failed += markGroup(ctx, deps, lines[i:i+1], models.StagedLineUpdate{
				Status:    models.LineStatusPending,
				Stage:     models.StageOrdered,
				ErrorCode: models.ErrorCodeLotNeedsFulfill,
				ErrorLog:  "order has no open line for the reported item",
			}, "item")
		default:
			remaining = append(remaining, i)
		}
	}
	if len(remaining) == 0 {
		return summary
	}

	receiptID, err := deps.Store.SaveDraft(ctx, draft)
	if err != nil {
		summary.Failed += markGroupByIndex(ctx, deps, lines, remaining, classifySaveError(err), "receipt")
		return summary
	}

	for _, i := range remaining {
		if err := models.ApplyUpdate(ctx, deps.DB, &lines[i], models.StagedLineUpdate{
			Status:     models.LineStatusProcessed,
			Stage:      models.StageReceived,
			ReceiptRef: receiptID,
		}); err != nil {
			summary.Failed++
			continue
		}
		summary.Created++
	}
	return summary
}

// classifySaveError maps a transform rejection onto the line outcome.
// Missing lot/serial detail is a wait state, anything else is an error.
func classifySaveError(err error) models.StagedLineUpdate {
	var te *erp.TransformError
	if errors.As(err, &te) && te.Code == erp.TransformCodeLotSerialRequired {
		return models.StagedLineUpdate{
			Status:    models.LineStatusPending,
			Stage:     models.StageOrdered,
			ErrorCode: models.ErrorCodeLotNeedsFulfill,
			ErrorLog:  err.Error(),
		}
	}
	return models.StagedLineUpdate{
		Status:    models.LineStatusError,
		Stage:     models.StageOrdered,
		ErrorCode: models.ErrorCodeTransactionFailed,
		OnError:   true,
		ErrorLog:  err.Error(),
	}
}

func markGroupByIndex(ctx context.Context, deps PhaseDeps, lines []models.StagedLine, indices []int, upd models.StagedLineUpdate, field string) int {
	count := 0
	for _, i := range indices {
		count += markGroup(ctx, deps, lines[i:i+1], upd, field)
	}
	return count
}
