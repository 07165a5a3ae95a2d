package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sink is one delivery channel for flushed events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

const defaultSinkTimeout = 5 * time.Second

// wirePayload is the JSON body both HTTP channels accept.
type wirePayload struct {
	EventID    string           `json:"event_id"`
	EventName  string           `json:"event_name"`
	Timestamp  string           `json:"event_time"`
	CustomerID string           `json:"external_id,omitempty"`
	Commerce   *CommercePayload `json:"custom_data,omitempty"`
	Query      string           `json:"search_string,omitempty"`
	Extra      map[string]any   `json:"extra,omitempty"`
}

func buildWirePayload(event Event) wirePayload {
	return wirePayload{
		EventID:    event.ID,
		EventName:  event.Name(),
		Timestamp:  event.EnqueuedAt.UTC().Format(time.RFC3339),
		CustomerID: event.CustomerID,
		Commerce:   event.Commerce,
		Query:      event.Query,
		Extra:      event.Extra,
	}
}

// PixelSink is the client-visible tracking channel: events posted here are
// surfaced to the browser pixel collection endpoint.
type PixelSink struct {
	pixelID  string
	endpoint string
	http     *http.Client
}

// NewPixelSink constructs the client-visible channel.
func NewPixelSink(pixelID, endpoint string, httpClient *http.Client) (*PixelSink, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("analytics: pixel endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSinkTimeout}
	}
	return &PixelSink{pixelID: strings.TrimSpace(pixelID), endpoint: strings.TrimSpace(endpoint), http: httpClient}, nil
}

// Name implements Sink.
func (s *PixelSink) Name() string { return "pixel" }

// Deliver implements Sink.
func (s *PixelSink) Deliver(ctx context.Context, event Event) error {
	payload := buildWirePayload(event)
	body := map[string]any{
		"pixel_id": s.pixelID,
		"event":    payload,
	}
	return postJSON(ctx, s.http, s.endpoint, "", body)
}

// ServerSink is the best-effort server-side forwarding channel.
type ServerSink struct {
	endpoint    string
	accessToken string
	http        *http.Client
}

// NewServerSink constructs the server-side channel.
func NewServerSink(endpoint, accessToken string, httpClient *http.Client) (*ServerSink, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("analytics: server endpoint is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSinkTimeout}
	}
	return &ServerSink{
		endpoint:    strings.TrimSpace(endpoint),
		accessToken: strings.TrimSpace(accessToken),
		http:        httpClient,
	}, nil
}

// Name implements Sink.
func (s *ServerSink) Name() string { return "server" }

// Deliver implements Sink.
func (s *ServerSink) Deliver(ctx context.Context, event Event) error {
	body := map[string]any{
		"data": []wirePayload{buildWirePayload(event)},
	}
	return postJSON(ctx, s.http, s.endpoint, s.accessToken, body)
}

func postJSON(ctx context.Context, client *http.Client, endpoint, bearer string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("analytics: encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: deliver event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: deliver event: status %d", resp.StatusCode)
	}
	return nil
}
