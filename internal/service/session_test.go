package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/keygatehq/keygate/internal/model"
	"github.com/keygatehq/keygate/internal/store"
)

func newSessionFixture(t *testing.T, expiry time.Duration) (*store.Store, *Sessions, *model.Account) {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, "", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	acct := &model.Account{
		Email:        "owner@example.com",
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	sessions := NewSessions(s, "test-secret", expiry, testLogger())
	return s, sessions, acct
}

func TestLoginAndValidate(t *testing.T) {
	_, sessions, acct := newSessionFixture(t, time.Hour)

	token, err := sessions.Login(context.Background(), "owner@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	accountID, err := sessions.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if accountID != acct.ID {
		t.Errorf("got account %d, want %d", accountID, acct.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	_, sessions, _ := newSessionFixture(t, time.Hour)

	_, err := sessions.Login(context.Background(), "owner@example.com", "wrong")
	if !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	_, sessions, _ := newSessionFixture(t, time.Hour)

	// Unknown email and wrong password are indistinguishable.
	_, err := sessions.Login(context.Background(), "nobody@example.com", "hunter22")
	if !errors.Is(err, ErrInvalidLogin) {
		t.Errorf("expected ErrInvalidLogin, got %v", err)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	_, sessions, _ := newSessionFixture(t, time.Hour)

	if _, err := sessions.Validate(context.Background(), "not-a-jwt"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	_, sessions, _ := newSessionFixture(t, -time.Minute)

	token, err := sessions.Login(context.Background(), "owner@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := sessions.Validate(context.Background(), token); err == nil {
		t.Error("expected error for expired token")
	}
}
