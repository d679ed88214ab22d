package weinfusesync

import "encoding/json"

// RawPurchaseLine is one purchase-line record as the analytics report
// returns it. Numbers and dates arrive as loosely-typed report cells, so
// everything is decoded permissively and normalized by the matcher.
type RawPurchaseLine struct {
	LineId         string      `json:"line_id"`
	PoNumber       string      `json:"po_number"`
	GroupId        string      `json:"group_id"`
	LocationId     string      `json:"location_id"`
	LocationName   string      `json:"location_name"`
	VendorName     string      `json:"vendor_name"`
	NDC            string      `json:"ndc"`
	UnitType       string      `json:"unit_type"`
	Quantity       json.Number `json:"quantity"`
	UnitPrice      json.Number `json:"unit_price"`
	OrderDate      string      `json:"order_date"`
	DateReceived   string      `json:"date_received"`
	Lot            string      `json:"lot_number"`
	ExpirationDate string      `json:"expiration_date"`
}

type TriggerRequest struct {
	Phase    string `json:"phase" binding:"required,oneof=ingest build receive"`
	PoFilter string `json:"poFilter"`
}

type TriggerResponse struct {
	RunId uint `json:"runId"`
}

type SyncRunResponse struct {
	ID          uint    `json:"id"`
	Phase       string  `json:"phase"`
	Status      string  `json:"status"`
	PoFilter    string  `json:"poFilter"`
	Created     int     `json:"created"`
	Updated     int     `json:"updated"`
	Failed      int     `json:"failed"`
	StartedAt   *string `json:"startedAt"`
	FinishedAt  *string `json:"finishedAt"`
	DurationMs  int64   `json:"durationMs"`
	TriggeredBy string  `json:"triggeredBy"`
	ReportURL   string  `json:"reportUrl"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncErrorResponse struct {
	ID             uint   `json:"id"`
	ExternalLineId string `json:"externalLineId"`
	PoNumber       string `json:"poNumber"`
	Field          string `json:"field"`
	ErrorCode      string `json:"errorCode"`
	Message        string `json:"message"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type RunPubSubPayload struct {
	RunId uint `json:"run_id"`
}
