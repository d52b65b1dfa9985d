package model

import "time"

// Client is an OAuth2 client as stored by the model. Secret may be empty for
// public clients. The engine never mutates clients.
type Client struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

// User is whatever the model resolves a subject to. ID is the only field the
// engine reads; Attributes travel opaquely to the persistence callbacks.
type User struct {
	ID         string
	Attributes map[string]any
}

// Token is the persisted shape shared by access and refresh tokens.
// Expires == nil means the token never expires.
type Token struct {
	Token    string
	ClientID string
	UserID   string
	Expires  *time.Time
}

// AuthCode is a single-use authorization code. Unlike Token, a nil Expires is
// invalid: codes must always carry an expiry.
type AuthCode struct {
	Code        string
	ClientID    string
	UserID      string
	Expires     *time.Time
	RedirectURI string
}

// TokenKind selects which value a TokenGenerator is being asked for.
type TokenKind string

const (
	KindAccessToken       TokenKind = "accessToken"
	KindRefreshToken      TokenKind = "refreshToken"
	KindAuthorizationCode TokenKind = "authorizationCode"
)

// GeneratedToken is the result of a model token-generator override.
// Exactly one of Value or Object is set: Value is a bare token string the
// engine will persist and wrap as usual; Object is a complete, already
// persisted token representation the engine echoes verbatim and does NOT
// save (the model has taken ownership of persistence for that call).
type GeneratedToken struct {
	Value  string
	Object map[string]any
}
