package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"livesync/internal/clock"

	"github.com/golang-jwt/jwt/v5"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestExpiryChecker(t *testing.T) {
	clk := clock.Fake(epoch)
	checker := ExpiryChecker{Clock: clk}

	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"empty", "", true},
		{"garbage", "not-a-jwt", true},
		{"valid", signToken(t, jwt.MapClaims{"user_id": 7, "exp": epoch.Add(5 * time.Minute).Unix()}), false},
		{"expired", signToken(t, jwt.MapClaims{"user_id": 7, "exp": epoch.Add(-time.Second).Unix()}), true},
		{"no exp claim", signToken(t, jwt.MapClaims{"user_id": 7}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checker.IsExpired(tt.token); got != tt.expired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestExpiryCheckerFollowsClock(t *testing.T) {
	clk := clock.Fake(epoch)
	checker := ExpiryChecker{Clock: clk}
	token := signToken(t, jwt.MapClaims{"exp": epoch.Add(5 * time.Minute).Unix()})

	if checker.IsExpired(token) {
		t.Fatal("fresh token reported as expired")
	}
	clk.Advance(5 * time.Minute)
	if !checker.IsExpired(token) {
		t.Fatal("token still valid at its exp instant")
	}
}

func TestEmptyTokenIsErrNoToken(t *testing.T) {
	err := ExpiryChecker{}.Check("")
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("Check(\"\") = %v, want ErrNoToken", err)
	}
}

func TestFileSourceRereadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	src := NewFileSource(path, clock.Fake(epoch))

	if got := src.AccessToken(); got != "" {
		t.Fatalf("AccessToken() with no file = %q, want empty", got)
	}

	if err := os.WriteFile(path, []byte(`{"access":"first","refresh":"r"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := src.AccessToken(); got != "first" {
		t.Fatalf("AccessToken() = %q, want first", got)
	}

	if err := os.WriteFile(path, []byte(`{"access":"second","refresh":"r"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := src.AccessToken(); got != "second" {
		t.Fatalf("AccessToken() after refresh = %q, want second", got)
	}
}

func TestUserID(t *testing.T) {
	numeric := signToken(t, jwt.MapClaims{"user_id": 42})
	if id, err := UserID(numeric); err != nil || id != "42" {
		t.Errorf("UserID(numeric) = %q, %v", id, err)
	}

	subject := signToken(t, jwt.MapClaims{"sub": "alice"})
	if id, err := UserID(subject); err != nil || id != "alice" {
		t.Errorf("UserID(sub) = %q, %v", id, err)
	}

	if _, err := UserID(signToken(t, jwt.MapClaims{"exp": epoch.Unix()})); err == nil {
		t.Error("UserID without claims should fail")
	}
}
