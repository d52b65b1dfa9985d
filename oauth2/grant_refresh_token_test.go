package oauth2_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/johngrant/config"
	"github.com/dropDatabas3/johngrant/model"
)

func refreshConfig() *config.Config {
	cfg := config.Default()
	cfg.Grants = []string{config.GrantRefreshToken}
	return cfg
}

func refreshBody(token string) url.Values {
	v := url.Values{
		"grantType":    {"refreshToken"},
		"clientId":     {"thom"},
		"clientSecret": {"nightworld"},
	}
	if token != "" {
		v.Set("refreshToken", token)
	}
	return v
}

func TestRefreshGrant_DetectsMissingToken(t *testing.T) {
	srv := newServer(t, refreshConfig(), happyModel())

	rr := postToken(srv, refreshBody(""))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_request", `no "refreshToken" parameter`)
}

func TestRefreshGrant_DetectsInvalidToken(t *testing.T) {
	m := happyModel()
	m.getRefreshToken = func(ctx context.Context, token string) (*model.Token, error) {
		return nil, model.ErrNotFound
	}
	srv := newServer(t, refreshConfig(), m)

	rr := postToken(srv, refreshBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "invalid refresh token")
}

func TestRefreshGrant_DetectsClientMismatch(t *testing.T) {
	m := happyModel()
	m.getRefreshToken = func(ctx context.Context, token string) (*model.Token, error) {
		return &model.Token{Token: token, ClientID: "wrong", UserID: "123"}, nil
	}
	srv := newServer(t, refreshConfig(), m)

	rr := postToken(srv, refreshBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "invalid refresh token")
}

func TestRefreshGrant_DetectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	m := happyModel()
	m.getRefreshToken = func(ctx context.Context, token string) (*model.Token, error) {
		return &model.Token{Token: token, ClientID: "thom", UserID: "123", Expires: &past}, nil
	}
	srv := newServer(t, refreshConfig(), m)

	rr := postToken(srv, refreshBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "refresh token has expired")
}

func TestRefreshGrant_NilExpiryNeverExpires(t *testing.T) {
	m := happyModel()
	m.getRefreshToken = func(ctx context.Context, token string) (*model.Token, error) {
		return &model.Token{Token: token, ClientID: "thom", UserID: "123"}, nil
	}
	srv := newServer(t, refreshConfig(), m)

	rr := postToken(srv, refreshBody("abc123"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRefreshGrant_ReissuesAndExpiresOldToken(t *testing.T) {
	future := time.Now().Add(time.Hour)
	expired := ""
	saved := ""
	m := happyModel()
	m.getRefreshToken = func(ctx context.Context, token string) (*model.Token, error) {
		return &model.Token{Token: token, ClientID: "thom", UserID: "123", Expires: &future}, nil
	}
	m.expireRefreshToken = func(ctx context.Context, token string) error {
		expired = token
		return nil
	}
	m.saveRefreshToken = func(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
		saved = token
		return nil
	}
	srv := newServer(t, refreshConfig(), m)

	rr := postToken(srv, refreshBody("abc123"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "abc123", expired, "old token must be expired before reissue")

	body := decodeBody(t, rr)
	require.Len(t, body["refreshToken"], 40)
	require.Equal(t, saved, body["refreshToken"])
	require.NotEqual(t, "abc123", body["refreshToken"])
	require.Equal(t, "123", mustSaveUser(t, m))
}

// mustSaveUser sanity-checks the subject carried into persistence calls by
// rerunning a request with a capturing hook.
func mustSaveUser(t *testing.T, m *fakeModel) string {
	t.Helper()
	userID := ""
	m.saveAccessToken = func(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
		userID = user.ID
		return nil
	}
	srv := newServer(t, refreshConfig(), m)
	rr := postToken(srv, refreshBody("abc123"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return userID
}
