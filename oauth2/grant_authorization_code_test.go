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

func authCodeConfig() *config.Config {
	cfg := config.Default()
	cfg.Grants = []string{config.GrantAuthorizationCode}
	return cfg
}

func authCodeBody(code string) url.Values {
	v := url.Values{
		"grantType":    {"authorizationCode"},
		"clientId":     {"thom"},
		"clientSecret": {"nightworld"},
	}
	if code != "" {
		v.Set("code", code)
	}
	return v
}

func TestAuthCodeGrant_DetectsMissingCode(t *testing.T) {
	srv := newServer(t, authCodeConfig(), happyModel())

	rr := postToken(srv, authCodeBody(""))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_request", `no "code" parameter`)
}

func TestAuthCodeGrant_DetectsInvalidCode(t *testing.T) {
	m := happyModel()
	m.getAuthCode = func(ctx context.Context, code string) (*model.AuthCode, error) {
		return nil, nil
	}
	srv := newServer(t, authCodeConfig(), m)

	rr := postToken(srv, authCodeBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "invalid code")
}

func TestAuthCodeGrant_DetectsClientMismatch(t *testing.T) {
	m := happyModel()
	m.getAuthCode = func(ctx context.Context, code string) (*model.AuthCode, error) {
		return &model.AuthCode{Code: code, ClientID: "wrong"}, nil
	}
	srv := newServer(t, authCodeConfig(), m)

	// Same wire error as not-found: the mismatch must not be observable.
	rr := postToken(srv, authCodeBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "invalid code")
}

func TestAuthCodeGrant_DetectsExpiredCode(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	m := happyModel()
	m.getAuthCode = func(ctx context.Context, code string) (*model.AuthCode, error) {
		return &model.AuthCode{Code: code, ClientID: "thom", Expires: &past}, nil
	}
	srv := newServer(t, authCodeConfig(), m)

	rr := postToken(srv, authCodeBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "code has expired")
}

func TestAuthCodeGrant_RequiresCodeExpiration(t *testing.T) {
	m := happyModel()
	m.getAuthCode = func(ctx context.Context, code string) (*model.AuthCode, error) {
		// A nil expiry on a code is invalid, not "never expires".
		return &model.AuthCode{Code: code, ClientID: "thom", Expires: nil}, nil
	}
	srv := newServer(t, authCodeConfig(), m)

	rr := postToken(srv, authCodeBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "code has expired")
}

func TestAuthCodeGrant_AllowsValidRequest(t *testing.T) {
	future := time.Now().Add(30 * time.Second)
	invalidated := ""
	m := happyModel()
	m.getAuthCode = func(ctx context.Context, code string) (*model.AuthCode, error) {
		require.Equal(t, "abc123", code)
		return &model.AuthCode{Code: code, ClientID: "thom", UserID: "123", Expires: &future}, nil
	}
	m.invalidateAuthCode = func(ctx context.Context, code string) error {
		invalidated = code
		return nil
	}
	srv := newServer(t, authCodeConfig(), m)

	rr := postToken(srv, authCodeBody("abc123"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, decodeBody(t, rr)["accessToken"], 40)
	require.Equal(t, "abc123", invalidated, "code must be invalidated after redemption")
}

func TestAuthCodeGrant_PrefersAtomicConsume(t *testing.T) {
	future := time.Now().Add(30 * time.Second)
	consumed := 0
	base := happyModel()
	base.getAuthCode = func(ctx context.Context, code string) (*model.AuthCode, error) {
		t.Fatal("GetAuthCode must not be called when ConsumeAuthCode exists")
		return nil, nil
	}
	m := &consumerModel{
		fakeModel: base,
		consumeAuthCode: func(ctx context.Context, code string) (*model.AuthCode, error) {
			consumed++
			return &model.AuthCode{Code: code, ClientID: "thom", UserID: "123", Expires: &future}, nil
		},
	}
	srv := newServer(t, authCodeConfig(), m)

	rr := postToken(srv, authCodeBody("abc123"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, 1, consumed)
}

func TestAuthCodeGrant_ConsumeBurnsCodeEvenOnMismatch(t *testing.T) {
	future := time.Now().Add(30 * time.Second)
	consumed := 0
	m := &consumerModel{
		fakeModel: happyModel(),
		consumeAuthCode: func(ctx context.Context, code string) (*model.AuthCode, error) {
			consumed++
			return &model.AuthCode{Code: code, ClientID: "wrong", Expires: &future}, nil
		},
	}
	srv := newServer(t, authCodeConfig(), m)

	rr := postToken(srv, authCodeBody("abc123"))
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_grant", "invalid code")
	require.Equal(t, 1, consumed)
}
