package oauth2

import (
	"context"
	"time"

	"github.com/dropDatabas3/johngrant/model"
)

// authorizationCodeGrant redeems a single-use authorization code minted by
// the authorize workflow.
type authorizationCodeGrant struct{}

func (authorizationCodeGrant) Resolve(ctx context.Context, s *Server, gr *GrantRequest, client *model.Client) (*model.User, error) {
	if gr.Code == "" {
		return nil, invalidRequest(`no "code" parameter`)
	}

	ac, err := fetchAuthCode(ctx, s.model, gr.Code)
	if err != nil && !notFound(err) {
		return nil, serverError("error retrieving authorization code", err)
	}
	if ac == nil || notFound(err) {
		return nil, invalidGrant("invalid code")
	}
	if ac.ClientID != client.ClientID {
		// Deliberately the same wire error as not-found, so callers
		// cannot probe which check failed.
		return nil, invalidGrant("invalid code")
	}
	// Codes must always carry an expiry: a missing one counts as already
	// expired, unlike token expiry where nil means never-expiring.
	if ac.Expires == nil || !ac.Expires.After(time.Now()) {
		return nil, invalidGrant("code has expired")
	}

	// Single use: when the model gave us a plain Get, trigger the
	// invalidation hook before tokens are issued. The Consume path has
	// already burned the code atomically.
	if _, consumed := s.model.(model.AuthCodeConsumer); !consumed {
		if inv, ok := s.model.(model.AuthCodeInvalidator); ok {
			if err := inv.InvalidateAuthCode(ctx, gr.Code); err != nil {
				return nil, serverError("error invalidating authorization code", err)
			}
		}
	}

	return &model.User{ID: ac.UserID}, nil
}

// fetchAuthCode prefers the atomic fetch-and-invalidate capability and
// falls back to a plain lookup.
func fetchAuthCode(ctx context.Context, m model.Model, code string) (*model.AuthCode, error) {
	if consumer, ok := m.(model.AuthCodeConsumer); ok {
		return consumer.ConsumeAuthCode(ctx, code)
	}
	store, ok := m.(model.AuthCodeStore)
	if !ok {
		return nil, serverError("model does not support the authorizationCode grant", nil)
	}
	return store.GetAuthCode(ctx, code)
}
