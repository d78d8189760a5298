package entitlement

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticGate(t *testing.T) {
	g := StaticGate{Quota: 500}
	d, err := g.Authorize(context.Background(), 42)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed {
		t.Error("static gate should always allow")
	}
	if d.QuotaPerWindow != 500 {
		t.Errorf("got quota %d, want 500", d.QuotaPerWindow)
	}
}

func TestHTTPGateAllows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("got method %s, want POST", r.Method)
		}
		var req map[string]int64
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["owner_id"] != 7 {
			t.Errorf("got owner_id %d, want 7", req["owner_id"])
		}
		json.NewEncoder(w).Encode(Decision{Allowed: true, QuotaPerWindow: 250})
	}))
	defer srv.Close()

	g := NewHTTPGate(srv.URL, 2*time.Second)
	d, err := g.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed || d.QuotaPerWindow != 250 {
		t.Errorf("got %+v, want allowed with quota 250", d)
	}
}

func TestHTTPGateDenies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Decision{Allowed: false, Reason: "plan limit reached"})
	}))
	defer srv.Close()

	g := NewHTTPGate(srv.URL, 2*time.Second)
	d, err := g.Authorize(context.Background(), 7)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Error("expected denial")
	}
	if d.Reason != "plan limit reached" {
		t.Errorf("got reason %q", d.Reason)
	}
}

func TestHTTPGateNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewHTTPGate(srv.URL, 2*time.Second)
	if _, err := g.Authorize(context.Background(), 7); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestHTTPGateUnreachableIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := NewHTTPGate(srv.URL, 500*time.Millisecond)
	if _, err := g.Authorize(context.Background(), 7); err == nil {
		t.Fatal("expected error for unreachable service")
	}
}
