package oauth2

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/johngrant/logger"
	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/tokens"
)

// AuthorizeRequest is the validated parameter set of an authorize call,
// handed to the consent collaborator.
type AuthorizeRequest struct {
	ClientID    string        `json:"clientId"`
	RedirectURI string        `json:"redirectUri"`
	Client      *model.Client `json:"-"`
}

// Decision is the outcome of the consent step, supplied by the embedder.
type Decision struct {
	Allowed bool
	UserID  string
	User    *model.User
}

// DecisionFunc resolves the consent decision for a POST to the authorize
// endpoint. The engine never authenticates users; whoever renders the
// consent page knows who said yes.
type DecisionFunc func(r *http.Request) (*Decision, error)

// ConsentPresenter renders the consent UI for a GET. The engine has already
// validated the client when it is called.
type ConsentPresenter func(w http.ResponseWriter, r *http.Request, req *AuthorizeRequest)

/// AuthorizeHandler returns the authorize endpoint: GET presents the
// validated parameters to the consent collaborator, POST consumes the
// user's decision and redirects with a code or an access_denied error.
// present may be nil, in which case GET answers with the parameters as
// JSON.
func (s *Server) AuthorizeHandler(present ConsentPresenter, decide DecisionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		areq, oerr := s.parseAuthorizeRequest(r)
		if oerr != nil {
			logger.From(r.Context()).Debug("authorize request rejected",
				logger.Component("oauth2"), logger.Err(oerr))
			WriteError(w, oerr)
			return
		}

		switch r.Method {
		case http.MethodGet:
			if present != nil {
				present(w, r, areq)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_ = json.NewEncoder(w).Encode(areq)

		case http.MethodPost:
			s.decide(w, r, areq, decide)

		default:
			WriteError(w, invalidRequest("method must be GET or POST"))
		}
	}
}

// parseAuthorizeRequest validates the client without verifying its secret
// (a null secret means "don't verify" on this surface).
func (s *Server) parseAuthorizeRequest(r *http.Request) (*AuthorizeRequest, *Error) {
	_ = r.ParseForm()

	clientID := strings.TrimSpace(firstOf(r.Form, "clientId", "client_id"))
	redirectURI := strings.TrimSpace(firstOf(r.Form, "redirectUri", "redirect_uri"))
	if clientID == "" || redirectURI == "" {
		return nil, invalidRequest("missing clientId or redirectUri parameter")
	}

	client, err := s.model.GetClient(r.Context(), clientID, "")
	if err != nil && !notFound(err) {
		return nil, serverError("error retrieving client", err)
	}
	if client == nil || notFound(err) {
		return nil, invalidClient("client credentials are invalid")
	}

	return &AuthorizeRequest{ClientID: clientID, RedirectURI: redirectURI, Client: client}, nil
}

// decide runs the consent decision: deny redirects with access_denied,
// allow mints and persists a single-use code and redirects with it.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, areq *AuthorizeRequest, decide DecisionFunc) {
	if decide == nil {
		WriteError(w, serverError("no decision handler configured", nil))
		return
	}

	decision, err := decide(r)
	if err != nil {
		oerr := classify(err)
		logger.From(r.Context()).Error("authorize decision failed",
			logger.Component("oauth2"), logger.ClientID(areq.ClientID), logger.Err(oerr))
		WriteError(w, oerr)
		return
	}

	if decision == nil || !decision.Allowed {
		redirect(w, r, areq.RedirectURI, "error", "access_denied")
		return
	}

	store, ok := s.model.(model.AuthCodeStore)
	if !ok {
		WriteError(w, serverError("model does not support authorization codes", nil))
		return
	}

	code, err := tokens.New()
	if err != nil {
		WriteError(w, serverError("error generating authorization code", err))
		return
	}

	lifetime := s.cfg.AuthCodeLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Second
	}
	expires := time.Now().Add(lifetime)

	ac := &model.AuthCode{
		Code:        code,
		ClientID:    areq.ClientID,
		UserID:      decision.UserID,
		Expires:     &expires,
		RedirectURI: areq.RedirectURI,
	}
	if err := store.SaveAuthCode(r.Context(), ac, decision.User); err != nil {
		WriteError(w, serverError("error saving authorization code", err))
		return
	}

	logger.From(r.Context()).Debug("authorization code issued",
		logger.Component("oauth2"), logger.ClientID(areq.ClientID), logger.UserID(decision.UserID))

	redirect(w, r, areq.RedirectURI, "code", code)
}

// redirect sends a 302 to uri with one query parameter appended.
func redirect(w http.ResponseWriter, r *http.Request, uri, key, value string) {
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	http.Redirect(w, r, uri+sep+key+"="+url.QueryEscape(value), http.StatusFound)
}

func firstOf(form url.Values, keys ...string) string {
	for _, k := range keys {
		if v := form.Get(k); v != "" {
			return v
		}
	}
	return ""
}
