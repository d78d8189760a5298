package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/keygatehq/keygate/internal/service"
)

// RateLimit returns the per-key quota middleware. It must run after
// Authenticate. All three rate-limit headers are set together on every
// decision, admitted or denied; a denial answers 429 with the quota_exceeded
// code. Degraded (fail-open) admissions pass through like normal admissions.
func RateLimit(limiter *service.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				// Route wired without Authenticate; refuse rather than skip.
				writeError(w, service.ErrInvalidCredential)
				return
			}

			decision := limiter.Check(r.Context(), principal.KeyID, principal.QuotaPerWindow)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Admit() {
				writeError(w, service.ErrQuotaExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimit returns a per-IP limiter for the login route, a brute-force
// guard independent of the per-key quota machinery.
func LoginRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
