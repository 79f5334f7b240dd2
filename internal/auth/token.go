package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"livesync/internal/clock"

	"github.com/golang-jwt/jwt/v5"
)

/*
LEARNING: TOKEN SOURCE AS AN INJECTED DEPENDENCY

The connection manager never reads credentials from global state. It asks
a TokenSource on every (re)connect, so:
1. A refreshed token is picked up on the next reconnect automatically
2. Tests can hand in a fixed token without any storage backend
3. The sync client never refreshes tokens itself - that stays with the
   application's auth flow
*/

// TokenSource supplies the current bearer credential
type TokenSource interface {
	// AccessToken returns the current access token, or "" when logged out
	AccessToken() string
	// IsExpired reports whether the token is unusable for a new connection
	IsExpired(token string) bool
}

var ErrNoToken = errors.New("no access token")

// ExpiryChecker decodes tokens structurally (no signature verification -
// that is the server's job) and compares their exp claim to the clock.
type ExpiryChecker struct {
	Clock  clock.Clock
	Leeway time.Duration
}

// Check returns nil when token decodes and has not expired
func (c ExpiryChecker) Check(token string) error {
	if token == "" {
		return ErrNoToken
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("failed to decode token: %w", err)
	}

	if claims.ExpiresAt == nil {
		return nil
	}
	now := time.Now()
	if c.Clock != nil {
		now = c.Clock.Now()
	}
	if !now.Add(c.Leeway).Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("token expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}

func (c ExpiryChecker) IsExpired(token string) bool {
	return c.Check(token) != nil
}

// StaticSource always returns the same token
type StaticSource struct {
	Token string
	ExpiryChecker
}

func NewStaticSource(token string, clk clock.Clock) *StaticSource {
	return &StaticSource{Token: token, ExpiryChecker: ExpiryChecker{Clock: clk}}
}

func (s *StaticSource) AccessToken() string { return s.Token }

// StoredTokens mirrors the {"access", "refresh"} pair the web app keeps
// after login
type StoredTokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// FileSource re-reads a token file on every call, so whatever refreshed
// the file last wins on the next reconnect
type FileSource struct {
	Path string
	ExpiryChecker
}

func NewFileSource(path string, clk clock.Clock) *FileSource {
	return &FileSource{Path: path, ExpiryChecker: ExpiryChecker{Clock: clk}}
}

func (s *FileSource) AccessToken() string {
	tokens, err := s.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("⚠️  Failed to read token file %s: %v", s.Path, err)
		}
		return ""
	}
	return tokens.Access
}

// Load reads and decodes the token file
func (s *FileSource) Load() (*StoredTokens, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var tokens StoredTokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return &tokens, nil
}

// UserID extracts the user_id claim (or sub) from a token without
// verifying it. Used to recognize "I was removed" collaborator frames.
func UserID(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	switch v := claims["user_id"].(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", errors.New("token has no user_id claim")
}
