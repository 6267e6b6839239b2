package api

import (
	"context"
	"strings"
)

// CredentialProvider supplies the bearer token for authenticated calls
// and can attempt a refresh after a 401. The transfer core never reads
// token storage directly; it only sees this capability.
type CredentialProvider interface {
	// Token returns the current bearer token, or "" when none is held.
	Token(ctx context.Context) (string, error)
	// Refresh tries to obtain a fresh token after an authentication
	// failure. It reports whether a retry is worthwhile.
	Refresh(ctx context.Context) (bool, error)
}

// StaticCredentials is a fixed, non-refreshable token.
type StaticCredentials string

func (c StaticCredentials) Token(ctx context.Context) (string, error) { return string(c), nil }

func (c StaticCredentials) Refresh(ctx context.Context) (bool, error) { return false, nil }

// TokenStore is a read-only view over wherever the session keeps its
// tokens (a browser's local storage in the admin console, a credentials
// file for the CLI).
type TokenStore interface {
	Get(key string) string
}

// Fixed store key names, in resolution order.
const (
	StoreKeyToken       = "token"
	StoreKeyIDToken     = "idToken"
	StoreKeyAccessToken = "accessToken"
	StoreKeyAuthHeader  = "authHeader"
)

// StoreCredentials resolves the bearer token from a TokenStore using the
// platform's fixed key order: an explicitly stored token, then the
// Cognito idToken, then accessToken, then a stored bearer-prefixed
// Authorization header. RefreshFunc, when set, is invoked on 401.
type StoreCredentials struct {
	Store       TokenStore
	RefreshFunc func(ctx context.Context) (bool, error)
}

func (c *StoreCredentials) Token(ctx context.Context) (string, error) {
	for _, key := range []string{StoreKeyToken, StoreKeyIDToken, StoreKeyAccessToken} {
		if tok := c.Store.Get(key); tok != "" {
			return tok, nil
		}
	}
	if header := c.Store.Get(StoreKeyAuthHeader); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), nil
	}
	return "", nil
}

func (c *StoreCredentials) Refresh(ctx context.Context) (bool, error) {
	if c.RefreshFunc == nil {
		return false, nil
	}
	return c.RefreshFunc(ctx)
}

// MapStore is a TokenStore backed by a plain map, convenient for tests
// and for CLI sessions that load tokens once.
type MapStore map[string]string

func (m MapStore) Get(key string) string { return m[key] }
