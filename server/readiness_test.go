package server

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestReadyzReady(t *testing.T) {
	d, _, _ := newTestDeps(t)

	rr := serve(NewMux(d), http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ready" {
		t.Fatalf("expected status=ready, got %q", resp["status"])
	}
}

func TestReadyzNotReadyPlatformDown(t *testing.T) {
	d, _, p := newTestDeps(t)
	p.connected = false

	rr := serve(NewMux(d), http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "not_ready" || resp["failed_check"] != "platform" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestReadyzNotReadyDatabaseClosed(t *testing.T) {
	d, _, _ := newTestDeps(t)
	if err := d.DB.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	rr := serve(NewMux(d), http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["failed_check"] != "database" {
		t.Fatalf("failed_check = %q, want database", resp["failed_check"])
	}
}
