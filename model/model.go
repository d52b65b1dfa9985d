// Package model defines the persistence contract the token engine consumes.
//
// The engine owns no storage: every lookup and write goes through a Model
// supplied by the embedder. A minimal Model covers clients and access
// tokens; each grant type pulls in one more interface, and a few optional
// capabilities are discovered by type assertion at call sites.
package model

import (
	"context"
	"time"
)

// Model is the required surface every embedder implements.
type Model interface {
	// GetClient authenticates a client. An empty clientSecret means
	// "look the client up without verifying its secret" (used by the
	// authorization workflow). A miss is (nil, nil) or ErrNotFound.
	GetClient(ctx context.Context, clientID, clientSecret string) (*Client, error)

	// GrantTypeAllowed reports whether the client may use the grant type.
	GrantTypeAllowed(ctx context.Context, clientID, grantType string) (bool, error)

	// SaveAccessToken persists a freshly issued access token.
	// expires is nil for never-expiring tokens.
	SaveAccessToken(ctx context.Context, token, clientID string, expires *time.Time, user *User) error
}

// PasswordAuthenticator is required when the password grant is enabled.
type PasswordAuthenticator interface {
	// GetUser resolves resource-owner credentials. A miss is (nil, nil)
	// or ErrNotFound.
	GetUser(ctx context.Context, username, password string) (*User, error)
}

// RefreshTokenStore is required when the refreshToken grant is enabled.
type RefreshTokenStore interface {
	GetRefreshToken(ctx context.Context, token string) (*Token, error)
	SaveRefreshToken(ctx context.Context, token, clientID string, expires *time.Time, user *User) error
}

// RefreshTokenExpirer lets a model invalidate a consumed refresh token.
// Optional; when implemented the engine calls it on every reissue, before
// the replacement tokens are persisted.
type RefreshTokenExpirer interface {
	ExpireRefreshToken(ctx context.Context, token string) error
}

// AuthCodeStore is required when the authorizationCode grant is enabled.
type AuthCodeStore interface {
	GetAuthCode(ctx context.Context, code string) (*AuthCode, error)
	SaveAuthCode(ctx context.Context, ac *AuthCode, user *User) error
}

// AuthCodeConsumer is the preferred single-use hook: an atomic
// fetch-and-invalidate. Implementing it closes the race window between a
// GetAuthCode and a later InvalidateAuthCode under concurrent redemption.
type AuthCodeConsumer interface {
	ConsumeAuthCode(ctx context.Context, code string) (*AuthCode, error)
}

// AuthCodeInvalidator is the fallback single-use hook, called after a
// successful GetAuthCode validation when AuthCodeConsumer is not available.
type AuthCodeInvalidator interface {
	InvalidateAuthCode(ctx context.Context, code string) error
}

// TokenGenerator overrides the engine's random token minting. Returning a
// GeneratedToken with Object set short-circuits persistence entirely; see
// GeneratedToken. Returning nil falls back to the engine default.
type TokenGenerator interface {
	GenerateToken(ctx context.Context, kind TokenKind, client *Client, user *User) (*GeneratedToken, error)
}
