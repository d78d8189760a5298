// Package entitlement consumes the external subscription service that
// decides whether an account may mint an API key and at what quota. The
// decision logic itself lives outside this subsystem.
package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Decision is the entitlement service's answer for one account.
type Decision struct {
	Allowed        bool   `json:"allowed"`
	QuotaPerWindow int    `json:"quota_per_window"`
	Reason         string `json:"reason,omitempty"`
}

// Gate answers whether an account may create a new key and what per-window
// quota the key receives.
type Gate interface {
	Authorize(ctx context.Context, ownerID int64) (Decision, error)
}

// StaticGate allows every account and assigns a fixed quota. It backs
// standalone deployments that have no external entitlement service.
type StaticGate struct {
	Quota int
}

func (g StaticGate) Authorize(ctx context.Context, ownerID int64) (Decision, error) {
	return Decision{Allowed: true, QuotaPerWindow: g.Quota}, nil
}

// HTTPGate asks a remote decision endpoint. The endpoint receives
// {"owner_id": N} and responds with a Decision JSON body.
type HTTPGate struct {
	URL    string
	Client *http.Client
}

// NewHTTPGate creates an HTTPGate with a bounded request timeout.
func NewHTTPGate(url string, timeout time.Duration) *HTTPGate {
	return &HTTPGate{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGate) Authorize(ctx context.Context, ownerID int64) (Decision, error) {
	body, err := json.Marshal(map[string]int64{"owner_id": ownerID})
	if err != nil {
		return Decision{}, fmt.Errorf("marshal entitlement request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("build entitlement request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("call entitlement service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("entitlement service returned status %d", resp.StatusCode)
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, fmt.Errorf("decode entitlement response: %w", err)
	}
	return decision, nil
}
