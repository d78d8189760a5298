package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/keygatehq/keygate/internal/store"
)

// ErrInvalidLogin is returned for any failed management-plane login. Unknown
// email and wrong password produce the same error.
var ErrInvalidLogin = errors.New("invalid email or password")

// Sessions issues and validates the JWT bearer tokens used by owners on the
// key-management plane. The data plane never accepts these tokens.
type Sessions struct {
	store  *store.Store
	secret []byte
	expiry time.Duration
	logger *slog.Logger
}

// NewSessions creates a Sessions service signing with the given HMAC secret.
func NewSessions(st *store.Store, secret string, expiry time.Duration, logger *slog.Logger) *Sessions {
	return &Sessions{
		store:  st,
		secret: []byte(secret),
		expiry: expiry,
		logger: logger,
	}
}

type sessionClaims struct {
	AccountID int64 `json:"account_id"`
	jwt.RegisteredClaims
}

// Login verifies the account's password and returns a signed session token.
func (s *Sessions) Login(ctx context.Context, email, password string) (string, error) {
	acct, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidLogin
		}
		return "", fmt.Errorf("look up account: %w", err)
	}
	if !acct.IsActive {
		return "", ErrInvalidLogin
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidLogin
	}

	// Update last login timestamp (fire and forget).
	go func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAccountLogin(tctx, acct.ID); err != nil {
			s.logger.Debug("last_login_at update failed", "account_id", acct.ID, "error", err)
		}
	}()

	now := time.Now()
	claims := sessionClaims{
		AccountID: acct.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			Issuer:    "keygate",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a session token and returns the account ID it carries.
func (s *Sessions) Validate(ctx context.Context, tokenStr string) (int64, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidLogin
	}
	return claims.AccountID, nil
}
