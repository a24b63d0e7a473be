package auth

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	tokens, err := NewTokens("test-secret", "stockyard", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	raw, expiresAt, err := tokens.Generate("u-1", "jane@example.com", "r-1", "AREA_MANAGER", "Jane Doe")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiration, got %v", expiresAt)
	}

	claims, err := tokens.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "jane@example.com" {
		t.Fatalf("identity claims not preserved: %+v", claims)
	}
	if claims.RoleID != "r-1" || claims.RoleName != "AREA_MANAGER" {
		t.Fatalf("role claims not preserved: %+v", claims)
	}
	if claims.Subject != tokenSubject {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	mint, _ := NewTokens("secret-a", "stockyard", time.Hour)
	verify, _ := NewTokens("secret-b", "stockyard", time.Hour)

	raw, _, err := mint.Generate("u-1", "a@b.c", "r-1", "STAFF", "A B")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := verify.Parse(raw); err == nil {
		t.Fatalf("expected rejection of token signed with a different secret")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	tokens, _ := NewTokens("secret", "stockyard", time.Minute, WithClock(func() time.Time { return clock }))

	raw, _, err := tokens.Generate("u-1", "a@b.c", "r-1", "STAFF", "A B")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := tokens.Parse(raw); err != nil {
		t.Fatalf("fresh token should parse: %v", err)
	}

	clock = base.Add(2 * time.Minute)
	if _, err := tokens.Parse(raw); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestExpiryWithoutVerification(t *testing.T) {
	tokens, _ := NewTokens("secret", "stockyard", time.Hour)
	raw, expiresAt, err := tokens.Generate("u-1", "a@b.c", "r-1", "STAFF", "A B")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := tokens.Expiry(raw)
	if err != nil {
		t.Fatalf("Expiry: %v", err)
	}
	if !got.Equal(expiresAt.Truncate(time.Second)) {
		t.Fatalf("expiry mismatch: got %v want %v", got, expiresAt)
	}
	if _, err := tokens.Expiry("not-a-token"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestTokensValidation(t *testing.T) {
	if _, err := NewTokens("", "stockyard", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewTokens("secret", "stockyard", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
