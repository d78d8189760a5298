package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/keygatehq/keygate/internal/metrics"
	"github.com/keygatehq/keygate/internal/model"
	"github.com/keygatehq/keygate/internal/service"
)

type contextKeyAuth string

const (
	// PrincipalKey is the context key for the API-key principal (data plane).
	PrincipalKey contextKeyAuth = "principal"
	// AccountIDKey is the context key for the session account (management plane).
	AccountIDKey contextKeyAuth = "account_id"
)

// Authenticate returns the data-plane middleware. It hands the raw
// Authorization header to the authenticator and attaches the resolved
// Principal to the request context. Every failure is terminal and answered
// with the taxonomy's stable code; a storage outage is a distinct 503, never
// disguised as an invalid credential.
func Authenticate(auth *service.Authenticator, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				var authErr *service.AuthError
				if !errors.As(err, &authErr) {
					authErr = service.ErrStorageUnavailable
				}
				m.AuthOutcomes.WithLabelValues(authErr.Code).Inc()
				writeError(w, authErr)
				return
			}

			m.AuthOutcomes.WithLabelValues("valid").Inc()
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal extracts the API-key principal from the context. Returns nil
// for unauthenticated requests.
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(PrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

// RequireSession returns the management-plane middleware validating owner
// session JWTs. The authenticated account ID is attached to the context.
func RequireSession(sessions *service.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, &service.AuthError{
					Code:    "invalid_session",
					Message: "session token required",
					Status:  http.StatusUnauthorized,
				})
				return
			}

			accountID, err := sessions.Validate(r.Context(), token)
			if err != nil {
				writeError(w, &service.AuthError{
					Code:    "invalid_session",
					Message: "invalid or expired session",
					Status:  http.StatusUnauthorized,
				})
				return
			}

			ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID extracts the session account ID from the context. Returns 0
// for unauthenticated requests.
func GetAccountID(ctx context.Context) int64 {
	if id, ok := ctx.Value(AccountIDKey).(int64); ok {
		return id
	}
	return 0
}

func writeError(w http.ResponseWriter, authErr *service.AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.Status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: authErr.Code, Message: authErr.Message},
	})
}
