package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/keygatehq/keygate/internal/credential"
	"github.com/keygatehq/keygate/internal/entitlement"
	"github.com/keygatehq/keygate/internal/metrics"
	"github.com/keygatehq/keygate/internal/model"
	"github.com/keygatehq/keygate/internal/service"
	"github.com/keygatehq/keygate/internal/store"
)

const (
	testEmail    = "owner@example.com"
	testPassword = "hunter22hunter22"
)

// newTestServer wires a full server against an in-memory store with a static
// entitlement gate assigning the given quota to new keys.
func newTestServer(t *testing.T, quota int) (*Server, *store.Store) {
	t.Helper()

	st, err := store.Open(store.DriverSQLite, "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	gen := credential.NewGenerator("kg_test_", 40)
	hasher := credential.NewHasher(4)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	acct := &model.Account{Email: testEmail, PasswordHash: string(hash), IsActive: true}
	if err := st.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	svcs := Services{
		Store:     st,
		Auth:      service.NewAuthenticator(st, hasher, gen.Prefix(), gen.KeyLength(), 5*time.Second, logger),
		Limiter:   service.NewLimiter(st, time.Hour, 5*time.Second, logger, m),
		Recorder:  service.NewRecorder(st, 5*time.Second, logger, m),
		Sessions:  service.NewSessions(st, "test-secret", time.Hour, logger),
		Gate:      entitlement.StaticGate{Quota: quota},
		Generator: gen,
		Hasher:    hasher,
		Metrics:   m,
		Registry:  reg,
	}

	cfg := DefaultConfig()
	cfg.LoginRatePerMin = 1000
	return New(cfg, svcs, logger), st
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	rr := doJSON(t, srv, "POST", "/api/v1/session", "",
		map[string]string{"email": testEmail, "password": testPassword})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp["token"]
}

func createKey(t *testing.T, srv *Server, sessionToken string) (plaintext, keyID string) {
	t.Helper()
	rr := doJSON(t, srv, "POST", "/api/v1/keys", sessionToken,
		map[string]string{"display_name": "e2e key"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create key: got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp model.KeyCreatedResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode key response: %v", err)
	}
	if resp.Plaintext == "" {
		t.Fatal("expected plaintext key in creation response")
	}
	return resp.Plaintext, resp.Key.ID
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp.Error.Code
}

func TestEndToEndQuotaLifecycle(t *testing.T) {
	srv, st := newTestServer(t, 3)
	sessionToken := login(t, srv)
	plaintext, keyID := createKey(t, srv, sessionToken)

	// Three requests admitted, remaining counts down 2, 1, 0.
	for i, wantRemaining := range []string{"2", "1", "0"} {
		rr := doJSON(t, srv, "GET", "/api/v1/whoami", plaintext, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, body %s", i+1, rr.Code, rr.Body.String())
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: got remaining %q, want %q", i+1, got, wantRemaining)
		}
		if got := rr.Header().Get("X-RateLimit-Limit"); got != "3" {
			t.Errorf("request %d: got limit %q, want 3", i+1, got)
		}
		if rr.Header().Get("X-RateLimit-Reset") == "" {
			t.Errorf("request %d: missing X-RateLimit-Reset", i+1)
		}
	}

	// Fourth request is denied with the stable quota code.
	rr := doJSON(t, srv, "GET", "/api/v1/whoami", plaintext, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("request 4: got %d, want 429", rr.Code)
	}
	if code := errorCode(t, rr); code != "quota_exceeded" {
		t.Errorf("request 4: got code %q, want quota_exceeded", code)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("request 4: got remaining %q, want 0", got)
	}

	// Denied requests are audited too: four rows total.
	count, err := st.CountUsageSince(context.Background(), keyID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountUsageSince: %v", err)
	}
	if count != 4 {
		t.Errorf("got %d usage rows, want 4", count)
	}

	// Revoke, then even an under-quota request is rejected as invalid.
	rr = doJSON(t, srv, "DELETE", "/api/v1/keys/"+keyID, sessionToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("revoke: got %d, body %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, srv, "GET", "/api/v1/whoami", plaintext, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("request 5: got %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr); code != "invalid_credential" {
		t.Errorf("request 5: got code %q, want invalid_credential", code)
	}
}

func TestDataPlaneRejectsMissingAndMalformedHeaders(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	// Absent header.
	req := httptest.NewRequest("GET", "/api/v1/whoami", nil)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr); code != "missing_credential" {
		t.Errorf("got code %q, want missing_credential", code)
	}

	// Present but not "Bearer <token>".
	req = httptest.NewRequest("GET", "/api/v1/whoami", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr); code != "malformed_credential" {
		t.Errorf("got code %q, want malformed_credential", code)
	}

	// Unauthenticated responses carry no rate-limit headers.
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("unexpected X-RateLimit-Limit on rejected request")
	}
}

func TestWhoamiReflectsPrincipal(t *testing.T) {
	srv, _ := newTestServer(t, 7)
	sessionToken := login(t, srv)
	plaintext, keyID := createKey(t, srv, sessionToken)

	rr := doJSON(t, srv, "GET", "/api/v1/whoami", plaintext, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode whoami: %v", err)
	}
	if resp["key_id"] != keyID {
		t.Errorf("got key_id %v, want %q", resp["key_id"], keyID)
	}
	if resp["quota_per_window"] != float64(7) {
		t.Errorf("got quota %v, want 7", resp["quota_per_window"])
	}
}

func TestKeyListNeverExposesSecrets(t *testing.T) {
	srv, _ := newTestServer(t, 10)
	sessionToken := login(t, srv)
	plaintext, _ := createKey(t, srv, sessionToken)

	rr := doJSON(t, srv, "GET", "/api/v1/keys", sessionToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if strings.Contains(body, plaintext) {
		t.Error("key listing contains the plaintext credential")
	}
	if strings.Contains(body, "digest") || strings.Contains(body, "$2a$") {
		t.Error("key listing contains digest material")
	}
	if !strings.Contains(body, "visible_prefix") {
		t.Error("key listing missing visible_prefix")
	}
}

func TestManagementPlaneRequiresSession(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	rr := doJSON(t, srv, "GET", "/api/v1/keys", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rr.Code)
	}

	// An API key is not a session token.
	sessionToken := login(t, srv)
	plaintext, _ := createKey(t, srv, sessionToken)
	rr = doJSON(t, srv, "GET", "/api/v1/keys", plaintext, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d for API key on management plane, want 401", rr.Code)
	}
}

func TestRevokeForeignKeyReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, 10)
	sessionToken := login(t, srv)

	rr := doJSON(t, srv, "DELETE", "/api/v1/keys/no-such-key", sessionToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rr.Code)
	}
}

func TestDeleteForever(t *testing.T) {
	srv, st := newTestServer(t, 10)
	sessionToken := login(t, srv)
	_, keyID := createKey(t, srv, sessionToken)

	rr := doJSON(t, srv, "DELETE", "/api/v1/keys/"+keyID+"/permanent", sessionToken, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("got %d, body %s", rr.Code, rr.Body.String())
	}

	keys, err := st.ListKeysForOwner(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListKeysForOwner: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("got %d keys after permanent delete, want 0", len(keys))
	}
}

func TestKeyUsageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 10)
	sessionToken := login(t, srv)
	plaintext, keyID := createKey(t, srv, sessionToken)

	for i := 0; i < 2; i++ {
		doJSON(t, srv, "GET", "/api/v1/whoami", plaintext, nil)
	}

	rr := doJSON(t, srv, "GET", "/api/v1/keys/"+keyID+"/usage", sessionToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Usage []model.UsageRecord `json:"usage"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if len(resp.Usage) != 2 {
		t.Errorf("got %d usage rows, want 2", len(resp.Usage))
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, srv, "GET", path, "", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, rr.Code)
		}
	}

	rr := doJSON(t, srv, "GET", "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("/metrics: got %d, want 200", rr.Code)
	}
}

func TestLoginInvalidPassword(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	rr := doJSON(t, srv, "POST", "/api/v1/session", "",
		map[string]string{"email": testEmail, "password": "wrong-password"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", rr.Code)
	}
	if code := errorCode(t, rr); code != "invalid_login" {
		t.Errorf("got code %q, want invalid_login", code)
	}
}
