package auth

import (
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)

	token, err := svc.GenerateToken("DE-GDF", "partner")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.PartnerID != "DE-GDF" {
		t.Fatalf("unexpected partner id %q", claims.PartnerID)
	}
	if claims.Role != "partner" {
		t.Fatalf("unexpected role %q", claims.Role)
	}
}

func TestGenerateTokenRequiresPartnerID(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	if _, err := svc.GenerateToken("", "partner"); err == nil {
		t.Fatal("expected error for empty partner id")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour)
	verifier := NewTokenService("secret-b", time.Hour)

	token, err := issuer.GenerateToken("DE-GDF", "partner")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected rejection of foreign signature")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService("test-secret", time.Nanosecond)

	token, err := svc.GenerateToken("DE-GDF", "partner")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected rejection of expired token")
	}
}

func TestKeyStoreVerify(t *testing.T) {
	store := NewKeyStore(bcrypt.MinCost)

	if err := store.Register("DE-GDF", "api-key-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.Verify("DE-GDF", "api-key-1"); err != nil {
		t.Fatalf("verify correct key: %v", err)
	}
	if err := store.Verify("DE-GDF", "wrong-key"); err == nil {
		t.Fatal("expected rejection of wrong key")
	}
	if err := store.Verify("NL-XYZ", "api-key-1"); err == nil {
		t.Fatal("expected rejection of unknown partner")
	}
}

func TestKeyStoreRegisterValidation(t *testing.T) {
	store := NewKeyStore(bcrypt.MinCost)
	if err := store.Register("", "key"); err == nil {
		t.Fatal("expected error for empty partner id")
	}
	if err := store.Register("DE-GDF", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
