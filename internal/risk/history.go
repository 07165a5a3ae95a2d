package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrHistoryUnavailable wraps transport and payload-shape failures from the
// delivery-history API. Callers apply the fail-open policy on it.
var ErrHistoryUnavailable = errors.New("risk: delivery history unavailable")

// HistoryClient fetches per-courier delivery stats for a phone number. The
// returned map is courier name → raw stats object with inconsistent key
// naming across courier partners; aggregation normalises the spellings.
type HistoryClient interface {
	FetchHistory(ctx context.Context, phone string) (map[string]map[string]any, error)
}

const defaultHistoryTimeout = 8 * time.Second

// HTTPHistoryClient queries the delivery-history HTTP API.
type HTTPHistoryClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewHTTPHistoryClient constructs the client for the given endpoint.
func NewHTTPHistoryClient(endpoint, apiKey string, httpClient *http.Client) (*HTTPHistoryClient, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("risk: history endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHistoryTimeout}
	}
	return &HTTPHistoryClient{endpoint: endpoint, apiKey: apiKey, http: httpClient}, nil
}

type historyResponse struct {
	CourierData map[string]json.RawMessage `json:"courierData"`
}

// FetchHistory implements HistoryClient.
func (c *HTTPHistoryClient) FetchHistory(ctx context.Context, phone string) (map[string]map[string]any, error) {
	target := c.endpoint
	if strings.Contains(target, "?") {
		target += "&phone=" + url.QueryEscape(phone)
	} else {
		target += "?phone=" + url.QueryEscape(phone)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrHistoryUnavailable, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrHistoryUnavailable, resp.StatusCode)
	}

	var payload historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", ErrHistoryUnavailable, err)
	}
	if payload.CourierData == nil {
		return nil, fmt.Errorf("%w: missing courier summary map", ErrHistoryUnavailable)
	}

	out := make(map[string]map[string]any, len(payload.CourierData))
	for courier, raw := range payload.CourierData {
		stats := map[string]any{}
		// Some partners return non-object entries (e.g. a bare error string);
		// skip those rather than failing the whole lookup.
		if err := json.Unmarshal(raw, &stats); err != nil {
			continue
		}
		out[courier] = stats
	}
	return out, nil
}

// Totals aggregates stats across every known courier.
type Totals struct {
	TotalParcels   int `json:"totalParcels"`
	TotalDelivered int `json:"totalDelivered"`
	TotalCanceled  int `json:"totalCanceled"`
}

// Historical key spellings per field across courier partners.
var (
	totalKeys     = []string{"total_parcel", "total_parcels", "total", "totalParcel"}
	deliveredKeys = []string{"success_parcel", "delivered", "success", "total_delivered", "successParcel"}
	canceledKeys  = []string{"cancelled_parcel", "cancel", "cancelled", "total_cancel", "cancelParcel"}
)

// Aggregate sums raw courier stats into normalised totals, tolerating the
// inconsistent upstream schemas.
func Aggregate(history map[string]map[string]any) Totals {
	var totals Totals
	for _, stats := range history {
		totals.TotalParcels += intField(stats, totalKeys)
		totals.TotalDelivered += intField(stats, deliveredKeys)
		totals.TotalCanceled += intField(stats, canceledKeys)
	}
	return totals
}

func intField(stats map[string]any, keys []string) int {
	for _, key := range keys {
		value, ok := stats[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			return int(v)
		case int:
			return v
		case json.Number:
			if parsed, err := v.Int64(); err == nil {
				return int(parsed)
			}
		case string:
			if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return parsed
			}
		}
	}
	return 0
}
