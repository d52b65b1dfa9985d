// Package config holds the engine configuration.
//
// A Config is built once at startup and passed by reference into the
// engine; it is never mutated afterwards. The demo server loads one from a
// YAML file (see file.go), embedders usually construct it in code.
package config

import (
	"fmt"
	"regexp"
	"time"
)

// Grant type identifiers, as they appear on the wire in the grantType form
// field.
const (
	GrantPassword          = "password"
	GrantRefreshToken      = "refreshToken"
	GrantAuthorizationCode = "authorizationCode"
)

// Default lifetimes.
const (
	DefaultAccessTokenLifetime  = 3600 * time.Second
	DefaultRefreshTokenLifetime = 1209600 * time.Second // 14 days
	DefaultAuthCodeLifetime     = 30 * time.Second
)

// Config is the immutable engine configuration.
type Config struct {
	// Grants lists the globally enabled grant types. A request naming a
	// grant type outside this set is rejected before any model access.
	Grants []string

	// ClientIDRegex, when non-nil, must match every clientId parameter.
	ClientIDRegex *regexp.Regexp

	// AccessTokenLifetime is the access token validity. nil means tokens
	// never expire and the response omits expiresIn.
	AccessTokenLifetime *time.Duration

	// RefreshTokenLifetime mirrors AccessTokenLifetime for refresh tokens.
	RefreshTokenLifetime *time.Duration

	// AuthCodeLifetime is the authorization code validity. Codes always
	// expire; a nil or zero value falls back to the default.
	AuthCodeLifetime time.Duration

	// ContinueAfterResponse invokes the server's post-response hook after
	// a successful token response has been written.
	ContinueAfterResponse bool
}

// Lifetime wraps d for the nullable lifetime fields.
func Lifetime(d time.Duration) *time.Duration { return &d }

// Default returns a Config with the standard lifetimes and the password and
// refreshToken grants enabled.
func Default() *Config {
	return &Config{
		Grants:               []string{GrantPassword, GrantRefreshToken},
		AccessTokenLifetime:  Lifetime(DefaultAccessTokenLifetime),
		RefreshTokenLifetime: Lifetime(DefaultRefreshTokenLifetime),
		AuthCodeLifetime:     DefaultAuthCodeLifetime,
	}
}

// GrantEnabled reports whether gt is in the enabled set.
func (c *Config) GrantEnabled(gt string) bool {
	for _, g := range c.Grants {
		if g == gt {
			return true
		}
	}
	return false
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if len(c.Grants) == 0 {
		return fmt.Errorf("config: at least one grant type must be enabled")
	}
	for _, g := range c.Grants {
		switch g {
		case GrantPassword, GrantRefreshToken, GrantAuthorizationCode:
		default:
			// Custom grant types are allowed; they just need a handler
			// registered before the first request.
		}
	}
	if c.AccessTokenLifetime != nil && *c.AccessTokenLifetime <= 0 {
		return fmt.Errorf("config: access token lifetime must be positive or nil")
	}
	if c.RefreshTokenLifetime != nil && *c.RefreshTokenLifetime <= 0 {
		return fmt.Errorf("config: refresh token lifetime must be positive or nil")
	}
	if c.AuthCodeLifetime < 0 {
		return fmt.Errorf("config: auth code lifetime must not be negative")
	}
	return nil
}
