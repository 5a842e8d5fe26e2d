package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const marketsBody = `[
	{"id": "uniswap", "symbol": "uni", "name": "Uniswap", "market_cap": 5000000000, "total_volume": 150000000, "price_change_percentage_24h": -4.5},
	{"id": "aave", "symbol": "aave", "name": "Aave", "market_cap": 1500000000, "total_volume": 90000000, "price_change_percentage_24h": 2.25},
	{"id": "ghost", "symbol": "gst", "name": "", "market_cap": null, "total_volume": 10, "price_change_percentage_24h": null}
]`

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			t.Errorf("expected path /coins/markets, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("vs_currency") != "usd" {
			t.Errorf("expected vs_currency=usd, got %s", q.Get("vs_currency"))
		}
		if q.Get("category") != "lending" {
			t.Errorf("expected category=lending, got %s", q.Get("category"))
		}
		if q.Get("per_page") != "25" {
			t.Errorf("expected per_page=25, got %s", q.Get("per_page"))
		}
		if r.Header.Get(apiKeyHeader) != "secret" {
			t.Errorf("expected api key header, got %q", r.Header.Get(apiKeyHeader))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketsBody))
	}))
	defer server.Close()

	client := NewClient(server.URL,
		WithAPIKey("secret"),
		WithCategory("lending"),
		WithPerPage(25),
	)

	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	uni := records[0]
	if uni["name"] != "Uniswap" {
		t.Errorf("expected Uniswap, got %v", uni["name"])
	}
	if uni["market_cap"] != json.Number("5000000000") {
		t.Errorf("unexpected market_cap %v", uni["market_cap"])
	}
	if v, ok := uni["volatility"].(float64); !ok || v != 0.045 {
		t.Errorf("expected volatility 0.045, got %v", uni["volatility"])
	}

	ghost := records[2]
	if ghost["name"] != "ghost" {
		t.Errorf("expected id fallback for empty name, got %v", ghost["name"])
	}
	if _, ok := ghost["market_cap"]; ok {
		t.Errorf("null market_cap must stay absent")
	}
	if _, ok := ghost["volatility"]; ok {
		t.Errorf("missing price change must leave volatility absent")
	}
}

func TestClient_RetriesOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte(marketsBody))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(3))

	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(2))

	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected wrapped 503 StatusError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_NegativeMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(-3))

	_, err := client.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("expected wrapped 502 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClient_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Millisecond))

	_, err := client.Fetch(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_ContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithRetryDelay(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "not a list"}`))
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).Fetch(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}

func TestVolatilityFromChange(t *testing.T) {
	tests := []struct {
		in   json.Number
		want float64
	}{
		{"-4.5", 0.045},
		{"12", 0.12},
		{"0", 0},
		{"150", 1.5},
	}
	for _, tt := range tests {
		got, err := volatilityFromChange(tt.in)
		if err != nil {
			t.Fatalf("volatilityFromChange(%s): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("volatilityFromChange(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
