// ABOUTME: Bearer token loading from the environment or the coven token file
// ABOUTME: Inspects JWTs without verification so the client can warn on expiry

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrNoToken      = errors.New("no token configured")
	ErrInvalidToken = errors.New("invalid token")
)

// EnvToken is the environment variable checked before the token file.
const EnvToken = "COVEN_TOKEN"

// TokenInfo is what a client can read out of a JWT without the signing
// secret. Verification happens gateway-side.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim has passed. Tokens
// without an exp claim never expire.
func (i TokenInfo) Expired() bool {
	return !i.ExpiresAt.IsZero() && time.Now().After(i.ExpiresAt)
}

// Load returns the bearer token from COVEN_TOKEN or, failing that, the
// token file at path. An empty path falls back to DefaultTokenPath.
func Load(path string) (string, error) {
	if token := os.Getenv(EnvToken); token != "" {
		return token, nil
	}

	if path == "" {
		var err error
		path, err = DefaultTokenPath()
		if err != nil {
			return "", err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// DefaultTokenPath returns $XDG_CONFIG_HOME/coven/token, falling back to
// ~/.config/coven/token.
func DefaultTokenPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "token"), nil
}

// Inspect parses a JWT without checking its signature and extracts the
// claims a client cares about. Only the gateway can actually verify the
// token; this exists so clients can warn before dialing with a stale one.
func Inspect(tokenString string) (TokenInfo, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return TokenInfo{}, ErrInvalidToken
	}

	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Header builds the websocket handshake header carrying the token. A
// blank token yields an empty header and an anonymous connection.
func Header(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
