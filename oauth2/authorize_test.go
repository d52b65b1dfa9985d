package oauth2_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/johngrant/config"
	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/oauth2"
)

func authorizeServer(t *testing.T, m model.Model, decide oauth2.DecisionFunc) http.HandlerFunc {
	t.Helper()
	cfg := config.Default()
	cfg.Grants = []string{config.GrantAuthorizationCode}
	srv := newServer(t, cfg, m)
	return srv.AuthorizeHandler(nil, decide)
}

func postAuthorize(h http.HandlerFunc, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/oauth/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func allow(userID string) oauth2.DecisionFunc {
	return func(r *http.Request) (*oauth2.Decision, error) {
		return &oauth2.Decision{Allowed: true, UserID: userID, User: &model.User{ID: userID}}, nil
	}
}

func TestAuthorize_RequiresClientAndRedirect(t *testing.T) {
	h := authorizeServer(t, happyModel(), allow("123"))

	rr := postAuthorize(h, url.Values{"clientId": {"thom"}})
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_request", "missing clientId or redirectUri")
}

func TestAuthorize_RejectsUnknownClient(t *testing.T) {
	m := &fakeModel{}
	h := authorizeServer(t, m, allow("123"))

	rr := postAuthorize(h, url.Values{
		"clientId":    {"ghost"},
		"redirectUri": {"http://nightworld.com"},
	})
	requireOAuthError(t, rr, http.StatusBadRequest, "invalid_client", "client credentials are invalid")
}

func TestAuthorize_LooksUpClientWithoutSecret(t *testing.T) {
	gotSecret := "sentinel"
	m := &fakeModel{
		getClient: func(ctx context.Context, id, secret string) (*model.Client, error) {
			gotSecret = secret
			return &model.Client{ClientID: id}, nil
		},
	}
	h := authorizeServer(t, m, allow("123"))

	postAuthorize(h, url.Values{
		"clientId":    {"thom"},
		"redirectUri": {"http://nightworld.com"},
	})
	require.Equal(t, "", gotSecret, "authorize lookup must not verify the secret")
}

func TestAuthorize_GetPresentsParameters(t *testing.T) {
	presented := false
	cfg := config.Default()
	cfg.Grants = []string{config.GrantAuthorizationCode}
	srv := newServer(t, cfg, happyModel())
	h := srv.AuthorizeHandler(func(w http.ResponseWriter, r *http.Request, req *oauth2.AuthorizeRequest) {
		presented = true
		require.Equal(t, "thom", req.ClientID)
		require.Equal(t, "http://nightworld.com", req.RedirectURI)
		require.NotNil(t, req.Client)
		w.WriteHeader(http.StatusOK)
	}, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id=thom&redirect_uri=http%3A%2F%2Fnightworld.com", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, presented)
}

func TestAuthorize_DeniedRedirectsWithAccessDenied(t *testing.T) {
	h := authorizeServer(t, happyModel(), func(r *http.Request) (*oauth2.Decision, error) {
		return &oauth2.Decision{Allowed: false}, nil
	})

	rr := postAuthorize(h, url.Values{
		"clientId":    {"thom"},
		"redirectUri": {"http://nightworld.com"},
	})
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "http://nightworld.com?error=access_denied", rr.Header().Get("Location"))
}

func TestAuthorize_AllowedMintsAndRedirectsWithCode(t *testing.T) {
	var savedCode *model.AuthCode
	m := happyModel()
	m.saveAuthCode = func(ctx context.Context, ac *model.AuthCode, user *model.User) error {
		savedCode = ac
		require.Equal(t, "123", user.ID)
		return nil
	}
	h := authorizeServer(t, m, allow("123"))

	rr := postAuthorize(h, url.Values{
		"clientId":    {"thom"},
		"redirectUri": {"http://nightworld.com"},
	})
	require.Equal(t, http.StatusFound, rr.Code)

	require.NotNil(t, savedCode)
	require.Len(t, savedCode.Code, 40)
	require.Equal(t, "thom", savedCode.ClientID)
	require.Equal(t, "123", savedCode.UserID)
	require.Equal(t, "http://nightworld.com", savedCode.RedirectURI)
	require.NotNil(t, savedCode.Expires)
	require.False(t, savedCode.Expires.After(time.Now().Add(31*time.Second)))

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, savedCode.Code, loc.Query().Get("code"))
}

func TestAuthorize_RedirectAppendsToExistingQuery(t *testing.T) {
	h := authorizeServer(t, happyModel(), func(r *http.Request) (*oauth2.Decision, error) {
		return &oauth2.Decision{Allowed: false}, nil
	})

	rr := postAuthorize(h, url.Values{
		"clientId":    {"thom"},
		"redirectUri": {"http://nightworld.com/cb?state=xyz"},
	})
	require.Equal(t, http.StatusFound, rr.Code)
	require.Equal(t, "http://nightworld.com/cb?state=xyz&error=access_denied", rr.Header().Get("Location"))
}

func TestAuthorize_DecisionErrorIsServerError(t *testing.T) {
	h := authorizeServer(t, happyModel(), func(r *http.Request) (*oauth2.Decision, error) {
		return nil, context.DeadlineExceeded
	})

	rr := postAuthorize(h, url.Values{
		"clientId":    {"thom"},
		"redirectUri": {"http://nightworld.com"},
	})
	requireOAuthError(t, rr, http.StatusInternalServerError, "server_error", ".")
}

func TestAuthorize_SaveFailureIsServerError(t *testing.T) {
	m := happyModel()
	m.saveAuthCode = func(ctx context.Context, ac *model.AuthCode, user *model.User) error {
		return context.DeadlineExceeded
	}
	h := authorizeServer(t, m, allow("123"))

	rr := postAuthorize(h, url.Values{
		"clientId":    {"thom"},
		"redirectUri": {"http://nightworld.com"},
	})
	requireOAuthError(t, rr, http.StatusInternalServerError, "server_error", ".")
}
