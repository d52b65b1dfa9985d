// Package oauth2 implements an embeddable OAuth 2.0 token-issuance engine.
//
// The engine mediates between inbound HTTP requests and a caller-supplied
// persistence model (package model). It owns the grant state machine for
// the token endpoint and the consent/code workflow for the authorize
// endpoint; routing, storage, user authentication and consent rendering are
// all external collaborators.
//
//	srv, _ := oauth2.New(config.Default(), myModel)
//	mux.Handle("/oauth/token", srv.TokenHandler())
//	mux.Handle("/oauth/authorize", srv.AuthorizeHandler(present, decide))
package oauth2

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/johngrant/config"
	"github.com/dropDatabas3/johngrant/logger"
	"github.com/dropDatabas3/johngrant/model"
)

// AfterResponseFunc runs after a successful token response has been
// committed, when Config.ContinueAfterResponse is set. resp is the exact
// body that was sent.
type AfterResponseFunc func(r *http.Request, resp map[string]any)

// MetricsFunc observes one finished token request. errorCode is empty on
// success.
type MetricsFunc func(grantType, errorCode string, d time.Duration)

// Server is the engine. It holds no cross-request mutable state: concurrent
// requests are fully independent and every persisted fact lives behind the
// model.
type Server struct {
	cfg           *config.Config
	model         model.Model
	grants        map[string]GrantHandler
	log           *zap.Logger
	afterResponse AfterResponseFunc
	metrics       MetricsFunc
}

// Option customizes a Server at construction time.
type Option func(*Server)

// WithLogger replaces the default component logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithAfterResponse installs the continuation hook. It only fires when the
// configuration enables ContinueAfterResponse.
func WithAfterResponse(fn AfterResponseFunc) Option {
	return func(s *Server) { s.afterResponse = fn }
}

// WithMetrics installs a metrics observer for token requests.
func WithMetrics(fn MetricsFunc) Option {
	return func(s *Server) { s.metrics = fn }
}

// WithGrantHandler registers a custom grant handler. The grant type must
// also be listed in Config.Grants for requests to reach it.
func WithGrantHandler(grantType string, h GrantHandler) Option {
	return func(s *Server) { s.grants[grantType] = h }
}

// New builds a Server over the given configuration and model. The built-in
// handlers for the password, refreshToken and authorizationCode grants are
// always registered; configuration decides which are reachable.
func New(cfg *config.Config, m model.Model, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		model: m,
		log:   logger.Named("oauth2"),
		grants: map[string]GrantHandler{
			config.GrantPassword:          passwordGrant{},
			config.GrantRefreshToken:      refreshTokenGrant{},
			config.GrantAuthorizationCode: authorizationCodeGrant{},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the engine configuration.
func (s *Server) Config() *config.Config { return s.cfg }

// Model returns the model the engine was built over.
func (s *Server) Model() model.Model { return s.model }
