package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"github.com/shopspring/decimal"
)

// BuildOrders is the second pipeline pass: it turns matched staged lines
// into order transactions, one per purchase reference.
func BuildOrders(ctx context.Context, deps PhaseDeps, poFilter string) (Summary, error) {
	lines, err := models.StagedLinesForBuild(ctx, deps.DB, poFilter)
	if err != nil {
		return Summary{}, err
	}
	if len(lines) == 0 {
		return Summary{}, nil
	}

	groups, order := groupByPo(lines)
	total := forEachGroup(ctx, deps.Logger, deps.Workers, groups, order, func(po string, group []models.StagedLine) Summary {
		return buildGroup(ctx, deps, po, group)
	})
	return total, nil
}

// aggItem is one order line: staged quantities summed per distinct item.
type aggItem struct {
	ItemRef     string
	UnitTypeRef string
	Quantity    decimal.Decimal
	Amount      decimal.Decimal
}

func aggregateItems(lines []models.StagedLine) []aggItem {
	index := map[string]int{}
	var agg []aggItem
	for _, line := range lines {
		amount := line.Quantity.Mul(line.UnitPrice)
		if i, ok := index[line.ItemRef]; ok {
			agg[i].Quantity = agg[i].Quantity.Add(line.Quantity)
			agg[i].Amount = agg[i].Amount.Add(amount)
			continue
		}
		index[line.ItemRef] = len(agg)
		agg = append(agg, aggItem{
			ItemRef:     line.ItemRef,
			UnitTypeRef: line.UnitTypeRef,
			Quantity:    line.Quantity,
			Amount:      amount,
		})
	}
	return agg
}

// decideOrderKind applies the order decision table to one group.
// The second return reports an intercompany transfer (the customer's
// subsidiary differs from the shipping subsidiary).
func decideOrderKind(line models.StagedLine, settings *models.ReconSettings) (models.OrderKind, bool) {
	inHouse := strings.EqualFold(strings.TrimSpace(line.VendorName), settings.InHouseVendor)
	core := line.CustomerCategory == settings.CoreCategory

	switch {
	case inHouse && !core:
		intercompany := line.SubsidiaryRef != "" && line.SubsidiaryRef != settings.SourceSubsidiary
		return models.OrderKindTransfer, intercompany
	case inHouse && core:
		return models.OrderKindSales, false
	case !inHouse && core:
		return models.OrderKindSales, false
	default:
		return models.OrderKindPurchase, false
	}
}

func recordTypeForKind(kind models.OrderKind) string {
	switch kind {
	case models.OrderKindPurchase:
		return erp.TypePurchaseOrder
	case models.OrderKindTransfer:
		return erp.TypeTransferOrder
	default:
		return erp.TypeSalesOrder
	}
}

func kindFromTypeName(name string) models.OrderKind {
	switch name {
	case string(models.OrderKindPurchase):
		return models.OrderKindPurchase
	case string(models.OrderKindTransfer):
		return models.OrderKindTransfer
	case string(models.OrderKindSales):
		return models.OrderKindSales
	}
	return ""
}

func buildGroup(ctx context.Context, deps PhaseDeps, po string, lines []models.StagedLine) Summary {
	lead := lines[0]
	if lead.ItemRef == "" {
		failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status:    models.LineStatusError,
			Stage:     models.StageNew,
			ErrorCode: models.ErrorCodeItemNotFound,
			OnError:   true,
			ErrorLog:  "item reference missing on staged line",
		}, "item")
		return Summary{Failed: failed}
	}

	// Idempotency guard: an order carrying this purchase reference may
	// already exist from an earlier run that died before updating lines.
	tranid := deps.Settings.OrderPrefix + po
	existing, err := deps.Store.Search(ctx, erp.TypeTransaction, []erp.Filter{
		erp.Eq("tranid", tranid),
		erp.Eq("mainline", "T"),
		{Field: "type", Op: "anyof", Value: []string{
			string(models.OrderKindSales), string(models.OrderKindPurchase), string(models.OrderKindTransfer),
		}},
	}, []string{"internalid", "type"}, deps.Settings.SearchLimit())
	if err != nil {
		failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status:    models.LineStatusError,
			Stage:     models.StageNew,
			ErrorCode: models.ErrorCodeTransactionFailed,
			OnError:   true,
			ErrorLog:  "duplicate-order search failed: " + err.Error(),
		}, "order")
		return Summary{Failed: failed}
	}

	var (
		kind    models.OrderKind
		orderID string
		created bool
	)
	if len(existing) > 0 {
		orderID = existing[0].Get("internalid")
		kind = kindFromTypeName(deps.Refs.TypeName(existing[0].Get("type")))
		if kind == "" {
			kind, _ = decideOrderKind(lead, deps.Settings)
		}
	} else {
		var outcome Summary
		kind, orderID, outcome = createOrder(ctx, deps, po, tranid, lines)
		if orderID == "" {
			return outcome
		}
		created = true
	}

	summary := Summary{}
	for i := range lines {
		stage := models.StageMatched
		if lines[i].ReceiptComplete() {
			stage = models.StageOrdered
		}
		upd := models.StagedLineUpdate{
			Status:    models.LineStatusProcessed,
			Stage:     stage,
			ErrorCode: models.ErrorCodeNone,
			OnError:   false,
			ErrorLog:  "",
			OrderKind: kind,
			OrderRef:  orderID,
		}
		if err := models.ApplyUpdate(ctx, deps.DB, &lines[i], upd); err != nil {
			summary.Failed++
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
	}
	return summary
}

// createOrder builds and posts the order transaction for one group.
// Returns an empty order id when the build was abandoned; the outcome
// summary then already reflects the failed lines.
func createOrder(ctx context.Context, deps PhaseDeps, po string, tranid string, lines []models.StagedLine) (models.OrderKind, string, Summary) {
	lead := lines[0]
	kind, intercompany := decideOrderKind(lead, deps.Settings)
	units := newUnitCache(deps.Store)

	agg := aggregateItems(lines)
	items := make([]map[string]any, 0, len(agg))
	for _, item := range agg {
		rate, err := units.Rate(ctx, item.UnitTypeRef)
		if err != nil {
			failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
				Status:    models.LineStatusError,
				Stage:     models.StageNew,
				ErrorCode: models.ErrorCodeUnitNotFound,
				OnError:   true,
				ErrorLog:  err.Error(),
			}, "unit_type")
			return kind, "", Summary{Failed: failed}
		}
		stockQty, err := ConvertQuantity(item.Quantity, rate)
		if err != nil {
			// One bad conversion abandons the whole build: a partial
			// order would desync quantities across the group.
			failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
				Status:    models.LineStatusError,
				Stage:     models.StageNew,
				ErrorCode: models.ErrorCodeUnitConversion,
				OnError:   true,
				ErrorLog:  err.Error(),
			}, "quantity")
			return kind, "", Summary{Failed: failed}
		}
		orderLine := map[string]any{
			"item":     item.ItemRef,
			"quantity": stockQty.String(),
			"units":    item.UnitTypeRef,
		}
		if stockQty.IsPositive() && !item.Amount.IsZero() {
			orderLine["rate"] = item.Amount.Div(stockQty).String()
		}
		items = append(items, orderLine)
	}

	fields := map[string]any{
		"tranid":   tranid,
		"location": lead.LocationRef,
		"items":    items,
	}
	if lead.OrderDate != nil {
		fields["trandate"] = lead.OrderDate.Format(time.RFC3339)
	}

	inHouse := strings.EqualFold(strings.TrimSpace(lead.VendorName), deps.Settings.InHouseVendor)
	switch kind {
	case models.OrderKindPurchase:
		fields["entity"] = lead.VendorRef
	case models.OrderKindSales:
		fields["entity"] = lead.CustomerRef
		fields["shipto"] = lead.ShipToRef
	case models.OrderKindTransfer:
		fields["location"] = deps.Settings.SourceLocationRef
		fields["transferlocation"] = lead.LocationRef
		fields["subsidiary"] = deps.Settings.SourceSubsidiary
		if intercompany {
			fields["intercompany"] = "T"
			fields["incoterm"] = deps.Settings.Incoterm
			fields["tosubsidiary"] = lead.SubsidiaryRef
		}
	}

	// Vendor-originated flows ship on our carrier account; the account
	// must resolve uniquely for the customer.
	if !inHouse {
		accounts, err := deps.Store.Search(ctx, erp.TypeShipAccount, []erp.Filter{
			erp.Eq("customer", lead.CustomerRef),
		}, []string{"internalid"}, deps.Settings.SearchLimit())
		if err != nil || len(accounts) == 0 {
			msg := "shipping account not found for customer " + lead.CustomerRef
			if err != nil {
				msg = err.Error()
			}
			failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
				Status:    models.LineStatusError,
				Stage:     models.StageNew,
				ErrorCode: models.ErrorCodeShipAccountNotFound,
				OnError:   true,
				ErrorLog:  msg,
			}, "ship_account")
			return kind, "", Summary{Failed: failed}
		}
		if len(accounts) > 1 {
			failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
				Status:    models.LineStatusError,
				Stage:     models.StageNew,
				ErrorCode: models.ErrorCodeShipAccountDuplicated,
				OnError:   true,
				ErrorLog:  "multiple shipping accounts for customer " + lead.CustomerRef,
			}, "ship_account")
			return kind, "", Summary{Failed: failed}
		}
		fields["shipaccount"] = accounts[0].Get("internalid")
	}

	orderID, err := deps.Store.Create(ctx, recordTypeForKind(kind), fields)
	if err != nil {
		failed := markGroup(ctx, deps, lines, models.StagedLineUpdate{
			Status:    models.LineStatusError,
			Stage:     models.StageNew,
			ErrorCode: models.ErrorCodeTransactionFailed,
			OnError:   true,
			ErrorLog:  err.Error(),
		}, "order")
		return kind, "", Summary{Failed: failed}
	}
	return kind, orderID, Summary{}
}
