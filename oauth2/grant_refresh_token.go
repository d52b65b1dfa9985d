package oauth2

import (
	"context"
	"time"

	"github.com/dropDatabas3/johngrant/model"
)

// refreshTokenGrant exchanges a live refresh token for a fresh token pair.
type refreshTokenGrant struct{}

func (refreshTokenGrant) Resolve(ctx context.Context, s *Server, gr *GrantRequest, client *model.Client) (*model.User, error) {
	if gr.RefreshToken == "" {
		return nil, invalidRequest(`no "refreshToken" parameter`)
	}

	store, ok := s.model.(model.RefreshTokenStore)
	if !ok {
		return nil, serverError("model does not support the refreshToken grant", nil)
	}

	rt, err := store.GetRefreshToken(ctx, gr.RefreshToken)
	if err != nil && !notFound(err) {
		return nil, serverError("error retrieving refresh token", err)
	}
	if rt == nil || notFound(err) {
		return nil, invalidGrant("invalid refresh token")
	}
	if rt.ClientID != client.ClientID {
		// Same wire error as not-found so a stolen token leaks nothing
		// about which check failed.
		return nil, invalidGrant("invalid refresh token")
	}
	if rt.Expires != nil && !rt.Expires.After(time.Now()) {
		return nil, invalidGrant("refresh token has expired")
	}

	// Consume the prior token before replacements are issued. Reuse
	// prevention is the model's responsibility, but the hook is always
	// triggered when the model supports it.
	if exp, ok := s.model.(model.RefreshTokenExpirer); ok {
		if err := exp.ExpireRefreshToken(ctx, gr.RefreshToken); err != nil {
			return nil, serverError("error expiring refresh token", err)
		}
	}

	return &model.User{ID: rt.UserID}, nil
}
