package middleware

import (
	"net"
	"net/http"
	"time"

	"github.com/keygatehq/keygate/internal/model"
	"github.com/keygatehq/keygate/internal/service"
)

// RecordUsage returns the middleware appending one usage row per completed
// request. It must run after Authenticate (it needs the resolved key) and
// before RateLimit, so quota denials are audited too. The write happens
// after the handler has produced its response and can never fail it.
func RecordUsage(recorder *service.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(ww, r)

			rec := &model.UsageRecord{
				APIKeyID:   principal.KeyID,
				OwnerID:    principal.OwnerID,
				Endpoint:   r.URL.Path,
				HTTPMethod: r.Method,
				StatusCode: ww.status,
				LatencyMs:  time.Since(start).Milliseconds(),
				ClientIP:   clientIP(r),
				UserAgent:  r.UserAgent(),
				RequestID:  GetRequestID(r.Context()),
			}
			recorder.Record(rec)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
