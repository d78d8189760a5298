package model

import "time"

// UsageRecord is the audit row appended for every completed request attempt
// that reached the authenticator, admitted or denied. Rows are append-only;
// retention is an external housekeeping concern.
type UsageRecord struct {
	ID         string    `json:"id" db:"id"`
	APIKeyID   string    `json:"api_key_id" db:"api_key_id"`
	OwnerID    int64     `json:"owner_id" db:"owner_id"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	HTTPMethod string    `json:"http_method" db:"http_method"`
	StatusCode int       `json:"status_code" db:"status_code"`
	LatencyMs  int64     `json:"latency_ms" db:"latency_ms"`
	ClientIP   string    `json:"client_ip,omitempty" db:"client_ip"`
	UserAgent  string    `json:"user_agent,omitempty" db:"user_agent"`
	RequestID  string    `json:"request_id,omitempty" db:"request_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
