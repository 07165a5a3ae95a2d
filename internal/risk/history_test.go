package risk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPHistoryClientFetchHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("phone"); got != "01711111111" {
			t.Errorf("expected phone query, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"courierData":{
			"pathao": {"total_parcel": 5, "success_parcel": 4, "cancelled_parcel": 1},
			"redx": "not enough data"
		}}`))
	}))
	defer server.Close()

	client, err := NewHTTPHistoryClient(server.URL, "secret", server.Client())
	if err != nil {
		t.Fatalf("NewHTTPHistoryClient: %v", err)
	}

	history, err := client.FetchHistory(context.Background(), "01711111111")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected the non-object courier entry skipped, got %d entries", len(history))
	}

	totals := Aggregate(history)
	if totals.TotalParcels != 5 || totals.TotalDelivered != 4 || totals.TotalCanceled != 1 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestHTTPHistoryClientMissingCourierData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client, err := NewHTTPHistoryClient(server.URL, "", server.Client())
	if err != nil {
		t.Fatalf("NewHTTPHistoryClient: %v", err)
	}

	if _, err := client.FetchHistory(context.Background(), "01711111111"); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("expected ErrHistoryUnavailable, got %v", err)
	}
}

func TestHTTPHistoryClientNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewHTTPHistoryClient(server.URL, "", server.Client())
	if err != nil {
		t.Fatalf("NewHTTPHistoryClient: %v", err)
	}

	if _, err := client.FetchHistory(context.Background(), "01711111111"); !errors.Is(err, ErrHistoryUnavailable) {
		t.Fatalf("expected ErrHistoryUnavailable, got %v", err)
	}
}
