package auth

import (
	"errors"
	"testing"
)

const testJWTSecret = "test-secret-at-least-32-characters-long"

func TestGenerateAndParseToken(t *testing.T) {
	user := &User{ID: "usr-12345678", Username: "alice", Role: RoleAnalyst}

	token, err := GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testJWTSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != user.ID {
		t.Errorf("Subject = %q, want %q", claims.Subject, user.ID)
	}
	if claims.Role != RoleAnalyst {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAnalyst)
	}
	if claims.SessionID == "" {
		t.Error("SessionID should be populated")
	}
	if claims.ExpiresAt == nil {
		t.Error("ExpiresAt should be set")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	user := &User{ID: "usr-12345678", Role: RoleViewer}

	token, err := GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = ParseToken(token, "a-completely-different-32-char-secret!!")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Tampered(t *testing.T) {
	user := &User{ID: "usr-12345678", Role: RoleViewer}

	token, err := GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	if _, err := ParseToken(token+"tampered", testJWTSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("tampered token error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not.a.jwt", testJWTSecret)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid", err)
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	a, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	b, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Error("two refresh tokens should not collide")
	}
}
