package weinfusesync

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
	"sync"
	"time"
)

// lookerClient pulls purchase-line rows from the analytics report. Auth
// is a client-credential token exchange; the token is cached until it is
// about to expire.
type lookerClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	reportID     string
	http         *http.Client
	limiter      <-chan time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func newLookerClient() (*lookerClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("LOOKER_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("LOOKER_API_BASE_URL is required")
	}
	clientID := strings.TrimSpace(os.Getenv("LOOKER_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("LOOKER_CLIENT_SECRET"))
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("looker client credentials are empty")
	}
	reportID := strings.TrimSpace(os.Getenv("LOOKER_REPORT_ID"))
	if reportID == "" {
		return nil, errors.New("LOOKER_REPORT_ID is required")
	}
	rateLimitPerMin := int64(30)
	if v := strings.TrimSpace(os.Getenv("LOOKER_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &lookerClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		reportID:     reportID,
		http:         &http.Client{Timeout: 120 * time.Second},
		limiter:      time.Tick(interval),
	}, nil
}

type lookerTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *lookerClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body := []byte("client_id=" + c.clientID + "&client_secret=" + c.clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("looker login error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed lookerTokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if parsed.AccessToken == "" {
		return "", errors.New("looker login returned no token")
	}
	ttl := time.Duration(parsed.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 30 * time.Minute
	}
	c.token = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(ttl - time.Minute)
	return c.token, nil
}

// FetchPurchaseLines runs the configured report and returns its rows.
func (c *lookerClient) FetchPurchaseLines(ctx context.Context) ([]RawPurchaseLine, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	<-c.limiter
	endpoint := c.baseURL + "/looks/" + c.reportID + "/run/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked server-side; drop the cache so the next call
		// re-authenticates.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return nil, fmt.Errorf("looker report error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("looker report error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var lines []RawPurchaseLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}
