package auth

import (
	"strings"
	"testing"
	"time"
)

func issueTestToken(t *testing.T, secret []byte, expiresIn time.Duration) string {
	t.Helper()
	token, err := IssueToken(secret, Claims{
		Sub:  "usr-1",
		Name: "Sam",
		Role: "student",
		JTI:  "jti-1",
		Exp:  time.Now().Add(expiresIn).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	token := issueTestToken(t, secret, time.Hour)

	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "usr-1" || claims.Name != "Sam" || claims.Role != "student" || claims.JTI != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token := issueTestToken(t, secret, -time.Minute)

	if _, err := ParseToken(secret, token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token := issueTestToken(t, []byte("secret"), time.Hour)

	if _, err := ParseToken([]byte("other-secret"), token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsTamperedPayload(t *testing.T) {
	secret := []byte("secret")
	token := issueTestToken(t, secret, time.Hour)

	payload, signature, _ := strings.Cut(token, ".")
	tampered := payload + "x." + signature
	if _, err := ParseToken(secret, tampered); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("refresh-1") != HashToken("refresh-1") {
		t.Fatal("expected identical hashes for identical input")
	}
	if HashToken("refresh-1") == HashToken("refresh-2") {
		t.Fatal("expected distinct hashes for distinct input")
	}
}
