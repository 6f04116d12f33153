package auth

import (
	"testing"
	"time"

	"repcall/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:   "test-secret",
		JWTIssuer:   "repcall",
		JWTAudience: "repcall-api",
		TokenTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueAndVerify(t *testing.T) {
	m := testManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tok, err := m.IssueToken(now, "campaign-team")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(tok, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Operator != "campaign-team" {
		t.Fatalf("unexpected operator %q", claims.Operator)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	m := testManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tok, err := m.IssueToken(now, "campaign-team")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(2*time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	m := testManager(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tok, err := m.IssueToken(now, "campaign-team")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := NewManager(config.AuthConfig{JWTSecret: "other", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := other.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestNewManager_RequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
