// Package jwtgen issues signed JWT access tokens through the engine's
// token generation hook. Access tokens come back as a response object, so
// the engine skips persistence entirely; refresh tokens and codes fall
// through to the engine's opaque defaults.
package jwtgen

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/tokens"
)

// Issuer signs access tokens with an Ed25519 key.
type Issuer struct {
	Iss       string
	KID       string
	AccessTTL time.Duration

	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewIssuer generates an ephemeral signing key. Production embedders load
// a persisted key with NewIssuerWithKey instead.
func NewIssuer(iss string, accessTTL time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newIssuer(iss, accessTTL, pub, priv), nil
}

// NewIssuerWithKey builds an issuer around an existing key pair.
func NewIssuerWithKey(iss string, accessTTL time.Duration, priv ed25519.PrivateKey) *Issuer {
	return newIssuer(iss, accessTTL, priv.Public().(ed25519.PublicKey), priv)
}

func newIssuer(iss string, accessTTL time.Duration, pub ed25519.PublicKey, priv ed25519.PrivateKey) *Issuer {
	return &Issuer{
		Iss:       iss,
		KID:       tokens.SHA256Base64URL(string(pub))[:8],
		AccessTTL: accessTTL,
		priv:      priv,
		pub:       pub,
	}
}

// Public returns the verification key.
func (i *Issuer) Public() ed25519.PublicKey { return i.pub }

// GenerateToken signs access tokens; every other kind falls back to the
// engine default by returning nil.
func (i *Issuer) GenerateToken(ctx context.Context, kind model.TokenKind, client *model.Client, user *model.User) (*model.GeneratedToken, error) {
	if kind != model.KindAccessToken {
		return nil, nil
	}

	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"aud": client.ClientID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if user != nil {
		claims["sub"] = user.ID
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.priv)
	if err != nil {
		return nil, err
	}

	return &model.GeneratedToken{Object: map[string]any{
		"accessToken": signed,
		"expiresIn":   int64(i.AccessTTL.Seconds()),
	}}, nil
}

// Parse verifies a token issued by this issuer and returns its claims.
func (i *Issuer) Parse(raw string) (jwtv5.MapClaims, error) {
	claims := jwtv5.MapClaims{}
	_, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		return i.pub, nil
	}, jwtv5.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
