package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	raw, err := tokens.GenerateToken(7, 3, "mesero", "Ana")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := tokens.ValidateToken(raw)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.TenantID != 3 || claims.Role != "mesero" || claims.Name != "Ana" {
		t.Errorf("claims = %+v, want user 7 tenant 3 mesero Ana", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	issuer := NewTokens("secret-a", time.Hour)
	raw, err := issuer.GenerateToken(1, 1, "admin", "Admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	expired := NewTokens("secret-a", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	oldRaw, err := expired.GenerateToken(1, 1, "admin", "Admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tests := []struct {
		name  string
		token string
		with  *Tokens
	}{
		{"wrong secret", raw, NewTokens("secret-b", time.Hour)},
		{"expired", oldRaw, NewTokens("secret-a", time.Hour)},
		{"garbage", "not.a.token", issuer},
		{"empty", "", issuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.with.ValidateToken(tt.token); err == nil {
				t.Errorf("ValidateToken(%q) succeeded, want error", tt.name)
			}
		})
	}
}

func TestNewTokensDefaultTTL(t *testing.T) {
	tokens := NewTokens("s", 0)
	if tokens.ttl != 7*24*time.Hour {
		t.Errorf("ttl = %v, want 168h", tokens.ttl)
	}
}
