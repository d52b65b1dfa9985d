package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dropDatabas3/johngrant/logger"
	"github.com/dropDatabas3/johngrant/model"
)

// GrantHandler performs the type-specific half of a token request:
// validating the grant parameters against the model and resolving the
// subject the tokens will be bound to. One handler exists per grant type;
// adding a grant type means adding a handler, not patching the pipeline.
type GrantHandler interface {
	// Resolve returns the user the grant authenticates. Failures must be
	// returned as *Error; anything else is classified server_error.
	Resolve(ctx context.Context, s *Server, gr *GrantRequest, client *model.Client) (*model.User, error)
}

// TokenHandler returns the token endpoint. Processing is strictly
// sequential per request: normalize, authenticate client, run the grant
// handler, issue tokens, respond. The first failure terminates the pipeline
// and produces exactly one error response.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Token responses must never be cached (RFC 6749 §5.1).
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")

		gr, resp, oerr := s.grant(w, r)
		gt := ""
		if gr != nil {
			gt = gr.GrantType
		}

		if oerr != nil {
			s.observe(gt, oerr.Code, time.Since(start))
			log := logger.From(r.Context()).With(logger.Component("oauth2"), logger.GrantType(gt))
			if oerr.HTTPStatus >= http.StatusInternalServerError {
				log.Error("token request failed", logger.Err(oerr))
			} else {
				log.Debug("token request rejected", logger.Err(oerr))
			}
			WriteError(w, oerr)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
		s.observe(gt, "", time.Since(start))

		if s.cfg.ContinueAfterResponse && s.afterResponse != nil {
			s.afterResponse(r, resp)
		}
	}
}

// grant runs the token pipeline up to (but not including) writing the
// response.
func (s *Server) grant(w http.ResponseWriter, r *http.Request) (*GrantRequest, map[string]any, *Error) {
	ctx := r.Context()

	gr, oerr := s.parseTokenRequest(w, r)
	if oerr != nil {
		return gr, nil, oerr
	}

	client, oerr := s.validateClient(ctx, gr)
	if oerr != nil {
		return gr, nil, oerr
	}

	handler, ok := s.grants[gr.GrantType]
	if !ok {
		// Unreachable when the normalizer's enabled-set check is in
		// sync with the registry; kept as a guard for custom grants
		// enabled without a handler.
		return gr, nil, unsupportedGrantType("unsupported grantType: " + gr.GrantType)
	}

	user, err := handler.Resolve(ctx, s, gr, client)
	if err != nil {
		return gr, nil, classify(err)
	}

	resp, oerr := s.issueTokens(ctx, client, user)
	if oerr != nil {
		return gr, nil, oerr
	}
	return gr, resp, nil
}

// validateClient authenticates the client and checks the grant type is
// allowed for it. Model failures surface as server_error.
func (s *Server) validateClient(ctx context.Context, gr *GrantRequest) (*model.Client, *Error) {
	client, err := s.model.GetClient(ctx, gr.ClientID, gr.ClientSecret)
	if err != nil && !notFound(err) {
		return nil, serverError("error retrieving client", err)
	}
	if client == nil || notFound(err) {
		return nil, invalidClient("client credentials are invalid")
	}

	allowed, err := s.model.GrantTypeAllowed(ctx, gr.ClientID, gr.GrantType)
	if err != nil {
		return nil, serverError("error checking grant type", err)
	}
	if !allowed {
		return nil, unauthorizedClient("grant type is unauthorised for this clientId")
	}
	return client, nil
}

func (s *Server) observe(grantType, errorCode string, d time.Duration) {
	if s.metrics != nil {
		s.metrics(grantType, errorCode, d)
	}
}

// notFound folds the two ways a model may report a miss.
func notFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
