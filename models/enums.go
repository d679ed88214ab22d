package models

// LineStatus is the per-phase outcome of a staged line.
// Orthogonal to Stage: a line can sit at any stage with any status.
type LineStatus string

const (
	LineStatusPending     LineStatus = "PENDING"
	LineStatusError       LineStatus = "ERROR"
	LineStatusProcessed   LineStatus = "PROCESSED"
	LineStatusNotApproved LineStatus = "NOT_APPROVED"
	LineStatusNotPending  LineStatus = "NOT_PENDING"
)

// Stage positions of the staged-line lifecycle. Stage only moves forward
// on a successful phase; it drops back to StageNew only together with
// LineStatusError or LineStatusPending.
const (
	StageNew      = 1
	StageMatched  = 2
	StageOrdered  = 3
	StageReceived = 4
)

// LineErrorCode identifies why a line failed its last phase.
type LineErrorCode string

const (
	ErrorCodeNone LineErrorCode = ""

	ErrorCodeItemNotFound   LineErrorCode = "ITEM_NOT_FOUND"
	ErrorCodeItemDuplicated LineErrorCode = "ITEM_DUPLICATED"
	ErrorCodeInactiveItem   LineErrorCode = "INACTIVE_ITEM"
	ErrorCodeUnitNotFound   LineErrorCode = "UNIT_NOT_FOUND"

	ErrorCodeShipToNotFound   LineErrorCode = "SHIP_TO_NOT_FOUND"
	ErrorCodeShipToDuplicated LineErrorCode = "SHIP_TO_DUPLICATED"

	ErrorCodeLocationNotFound   LineErrorCode = "LOCATION_NOT_FOUND"
	ErrorCodeLocationDuplicated LineErrorCode = "LOCATION_DUPLICATED"

	ErrorCodeVendorNotFound   LineErrorCode = "VENDOR_NOT_FOUND"
	ErrorCodeVendorDuplicated LineErrorCode = "VENDOR_DUPLICATED"

	ErrorCodeShipAccountNotFound   LineErrorCode = "SHIP_ACCOUNT_NOT_FOUND"
	ErrorCodeShipAccountDuplicated LineErrorCode = "SHIP_ACCOUNT_DUPLICATED"

	ErrorCodeUnitConversion LineErrorCode = "UNIT_CONVERSION"

	ErrorCodeNoDateReceived    LineErrorCode = "NOT_DATE_RECEIVE"
	ErrorCodeLotNotFound       LineErrorCode = "LOT_NOT_FOUND"
	ErrorCodeNoExpirationDate  LineErrorCode = "NOT_EXPIRATION_DATE"
	ErrorCodeLotNeedsFulfill   LineErrorCode = "LOT_MUST_HAVE_FULFILL"
	ErrorCodeTransactionFailed LineErrorCode = "ERROR"
)

// SyncPhase names one of the three batch passes.
type SyncPhase string

const (
	PhaseIngest  SyncPhase = "ingest"
	PhaseBuild   SyncPhase = "build"
	PhaseReceive SyncPhase = "receive"
)

func (p SyncPhase) Valid() bool {
	switch p {
	case PhaseIngest, PhaseBuild, PhaseReceive:
		return true
	}
	return false
}

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

// OrderKind is the transaction shape the builder creates for a group.
type OrderKind string

const (
	OrderKindPurchase OrderKind = "PurchOrd"
	OrderKindSales    OrderKind = "SalesOrd"
	OrderKindTransfer OrderKind = "TrnfrOrd"
)
