package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Static errors for err113 compliance.
var (
	ErrStaticTokenCannotRefresh = errors.New("API key token cannot be refreshed")
	ErrMalformedToken           = errors.New("token must be of the form <api secret>/<api id>")
)

// TokenManager supplies the value of the X-Auth-Token header.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) error
	SetToken(token string, expiresAt time.Time)
}

// APIKeyTokenManager serves a static API key. The key can be swapped at
// runtime, e.g. when the credentials file changes.
type APIKeyTokenManager struct {
	mutex  sync.RWMutex
	secret string
	id     string
}

// NewAPIKeyTokenManager creates a token manager for an API key pair.
func NewAPIKeyTokenManager(apiSecretKey, apiID string) *APIKeyTokenManager {
	return &APIKeyTokenManager{secret: apiSecretKey, id: apiID}
}

// GetToken returns "<secret>/<id>".
func (m *APIKeyTokenManager) GetToken(ctx context.Context) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.secret == "" || m.id == "" {
		return "", ErrMalformedToken
	}

	return m.secret + "/" + m.id, nil
}

// RefreshToken always fails; API keys do not expire client side.
func (m *APIKeyTokenManager) RefreshToken(ctx context.Context) error {
	return ErrStaticTokenCannotRefresh
}

// SetToken replaces the key pair with a "<secret>/<id>" token. Malformed
// tokens are ignored. expiresAt is unused.
func (m *APIKeyTokenManager) SetToken(token string, expiresAt time.Time) {
	secret, id, err := SplitToken(token)
	if err != nil {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.secret = secret
	m.id = id
}

// APIID returns the key id.
func (m *APIKeyTokenManager) APIID() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.id
}

// SplitToken splits "<secret>/<id>".
func SplitToken(token string) (string, string, error) {
	secret, id, ok := strings.Cut(strings.TrimSpace(token), "/")
	if !ok || secret == "" || id == "" {
		return "", "", fmt.Errorf("%w", ErrMalformedToken)
	}

	return secret, id, nil
}
