package oauth2

import (
	"context"
	"time"

	"github.com/dropDatabas3/johngrant/config"
	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/tokens"
)

// issueTokens generates, persists and shapes the token response for a
// resolved grant. Any persistence failure aborts with server_error and no
// response is committed.
func (s *Server) issueTokens(ctx context.Context, client *model.Client, user *model.User) (map[string]any, *Error) {
	resp := map[string]any{"tokenType": "bearer"}

	gen, oerr := s.generate(ctx, model.KindAccessToken, client, user)
	if oerr != nil {
		return nil, oerr
	}
	if gen.Object != nil {
		// The model returned a complete token representation and has
		// taken ownership of persistence: echo its fields verbatim
		// and skip saveAccessToken entirely.
		for k, v := range gen.Object {
			resp[k] = v
		}
	} else {
		expires := expiryFrom(s.cfg.AccessTokenLifetime)
		if err := s.model.SaveAccessToken(ctx, gen.Value, client.ClientID, expires, user); err != nil {
			return nil, serverError("error saving access token", err)
		}
		resp["accessToken"] = gen.Value
		if s.cfg.AccessTokenLifetime != nil {
			resp["expiresIn"] = int64(s.cfg.AccessTokenLifetime.Seconds())
		}
	}

	if s.cfg.GrantEnabled(config.GrantRefreshToken) {
		if oerr := s.issueRefreshToken(ctx, client, user, resp); oerr != nil {
			return nil, oerr
		}
	}

	return resp, nil
}

// issueRefreshToken repeats the generate-or-override, save-unless-override
// logic with the refresh lifetime.
func (s *Server) issueRefreshToken(ctx context.Context, client *model.Client, user *model.User, resp map[string]any) *Error {
	store, ok := s.model.(model.RefreshTokenStore)
	if !ok {
		return serverError("model does not support refresh tokens", nil)
	}

	gen, oerr := s.generate(ctx, model.KindRefreshToken, client, user)
	if oerr != nil {
		return oerr
	}
	if gen.Object != nil {
		for k, v := range gen.Object {
			resp[k] = v
		}
		return nil
	}

	expires := expiryFrom(s.cfg.RefreshTokenLifetime)
	if err := store.SaveRefreshToken(ctx, gen.Value, client.ClientID, expires, user); err != nil {
		return serverError("error saving refresh token", err)
	}
	resp["refreshToken"] = gen.Value
	return nil
}

// generate asks the model's generator first and falls back to a random
// 40-character opaque value.
func (s *Server) generate(ctx context.Context, kind model.TokenKind, client *model.Client, user *model.User) (*model.GeneratedToken, *Error) {
	if tg, ok := s.model.(model.TokenGenerator); ok {
		gen, err := tg.GenerateToken(ctx, kind, client, user)
		if err != nil {
			return nil, serverError("error generating token", err)
		}
		if gen != nil {
			return gen, nil
		}
	}
	v, err := tokens.New()
	if err != nil {
		return nil, serverError("error generating token", err)
	}
	return &model.GeneratedToken{Value: v}, nil
}

// expiryFrom maps a nullable lifetime to an absolute expiry; nil stays nil
// (never expires).
func expiryFrom(lifetime *time.Duration) *time.Time {
	if lifetime == nil {
		return nil
	}
	t := time.Now().Add(*lifetime)
	return &t
}
