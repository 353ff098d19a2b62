package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	token, expiresAt, err := issuer.GenerateDeviceToken("SN-1")
	if err != nil {
		t.Fatalf("GenerateDeviceToken() error = %v", err)
	}
	if time.Until(expiresAt) < 59*time.Minute {
		t.Errorf("Expected expiry about an hour from now, got %v", expiresAt)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.DeviceID != "SN-1" || claims.Role != RoleDevice {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	issuer, _ := NewTokenIssuer("test-secret", time.Hour)
	other, _ := NewTokenIssuer("other-secret", time.Hour)

	foreign, _, _ := other.GenerateDeviceToken("SN-1")
	if _, err := issuer.ValidateToken(foreign); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}

	if _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected malformed token to be rejected")
	}

	expired, _ := NewTokenIssuer("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.GenerateDeviceToken("SN-1")
	if _, err := issuer.ValidateToken(old); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestNewTokenIssuer(t *testing.T) {
	if _, err := NewTokenIssuer("", time.Hour); err == nil {
		t.Error("Expected error for empty secret")
	}

	issuer, err := NewTokenIssuer("s", 0)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	if issuer.ttl != defaultTokenTTL {
		t.Errorf("Expected default ttl, got %v", issuer.ttl)
	}
}
