package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPRelayEstimateAndSend(t *testing.T) {
	var sends atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Relay-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/fees/estimate":
			_ = json.NewEncoder(w).Encode(map[string]int64{"fee": 321})
		case "/messages":
			sends.Add(1)
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	relay := NewHTTPRelay(HTTPRelayConfig{BaseURL: srv.URL, Token: "secret", SourceEndpoint: "bridge-local"})

	fee, err := relay.EstimateFee(context.Background(), 2, "0xalice", []byte("p"), Params{})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if fee != 321 {
		t.Fatalf("expected fee 321, got %d", fee)
	}

	if err := relay.Send(context.Background(), 2, "0xremote", []byte("p"), "0xalice", Params{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sends.Load() != 1 {
		t.Fatalf("expected 1 send, got %d", sends.Load())
	}
}

func TestHTTPRelayRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	relay := NewHTTPRelay(HTTPRelayConfig{BaseURL: srv.URL, MaxRetries: 3})
	if err := relay.Send(context.Background(), 2, "e", []byte("p"), "r", Params{}); err != nil {
		t.Fatalf("send with retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestHTTPRelaySurfacesRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown chain"})
	}))
	defer srv.Close()

	relay := NewHTTPRelay(HTTPRelayConfig{BaseURL: srv.URL})
	_, err := relay.EstimateFee(context.Background(), 99, "s", []byte("p"), Params{})
	if err == nil {
		t.Fatal("expected error")
	}
}
