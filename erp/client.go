package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// restStore talks to the record-store gateway over REST. All requests
// share one rate limiter so batch phases cannot exhaust the gateway's
// request budget.
type restStore struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewRestStore builds the production Store from environment config.
func NewRestStore() (Store, error) {
	baseURL := strings.TrimSpace(os.Getenv("ERP_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("ERP_API_BASE_URL is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("ERP_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ERP_API_KEY is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("ERP_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("ERP_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &restStore{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 60 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type searchRequest struct {
	Filters []searchFilter `json:"filters"`
	Columns []string       `json:"columns"`
	Limit   int            `json:"limit"`
}

type searchFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

type searchResponse struct {
	Items []Row `json:"items"`
}

func (s *restStore) Search(ctx context.Context, recordType string, filters []Filter, columns []string, limit int) ([]Row, error) {
	req := searchRequest{Columns: columns, Limit: limit}
	for _, f := range filters {
		op := f.Op
		if op == "" {
			op = "="
		}
		req.Filters = append(req.Filters, searchFilter{Field: f.Field, Op: op, Value: f.Value})
	}

	var resp searchResponse
	if err := s.do(ctx, http.MethodPost, "/v1/records/"+recordType+"/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

type lookupResponse struct {
	Fields Row `json:"fields"`
}

func (s *restStore) LookupFields(ctx context.Context, recordType string, id string, columns []string) (Row, error) {
	path := "/v1/records/" + recordType + "/" + id + "?columns=" + strings.Join(columns, ",")
	var resp lookupResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

type recordIDResponse struct {
	ID string `json:"id"`
}

func (s *restStore) Create(ctx context.Context, recordType string, fields map[string]any) (string, error) {
	var resp recordIDResponse
	if err := s.do(ctx, http.MethodPost, "/v1/records/"+recordType, map[string]any{"fields": fields}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type transformRequest struct {
	FromType string `json:"from_type"`
	FromID   string `json:"from_id"`
	ToType   string `json:"to_type"`
}

func (s *restStore) Transform(ctx context.Context, fromType string, fromID string, toType string) (*ReceiptDraft, error) {
	var draft ReceiptDraft
	req := transformRequest{FromType: fromType, FromID: fromID, ToType: toType}
	if err := s.do(ctx, http.MethodPost, "/v1/transform", req, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

func (s *restStore) SaveDraft(ctx context.Context, draft *ReceiptDraft) (string, error) {
	var resp recordIDResponse
	if err := s.do(ctx, http.MethodPost, "/v1/transform/save", draft, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *restStore) do(ctx context.Context, method string, path string, body any, out any) error {
	<-s.limiter
	endpoint := s.baseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set(s.apiKeyHdr, s.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Transform rejections come back with a structured code; surface
		// them typed so callers can branch without string matching.
		var rejection apiError
		if err := json.Unmarshal(raw, &rejection); err == nil && rejection.Code != "" {
			return &TransformError{Code: rejection.Code, Message: rejection.Message}
		}
		return fmt.Errorf("erp api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
