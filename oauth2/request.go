package oauth2

import (
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const maxFormBytes = 64 << 10

// GrantRequest is the normalized, transient view of one token request. It
// lives for the duration of the request and is never persisted.
type GrantRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string

	// Grant-specific parameters.
	Username     string
	Password     string
	RefreshToken string
	Code         string

	// Form exposes the raw parameters to custom grant handlers.
	Form url.Values
}

// parseTokenRequest validates the transport-level shape of a token request
// and extracts client credentials. First failure terminates; no model
// access happens here.
func (s *Server) parseTokenRequest(w http.ResponseWriter, r *http.Request) (*GrantRequest, *Error) {
	if r.Method != http.MethodPost {
		return nil, invalidRequest("method must be POST")
	}

	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || ct != "application/x-www-form-urlencoded" {
		return nil, invalidRequest("content type must be application/x-www-form-urlencoded")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, invalidRequest("invalid request body")
	}
	form := r.PostForm

	gr := &GrantRequest{
		GrantType:    strings.TrimSpace(form.Get("grantType")),
		Username:     form.Get("username"),
		Password:     form.Get("password"),
		RefreshToken: strings.TrimSpace(form.Get("refreshToken")),
		Code:         strings.TrimSpace(form.Get("code")),
		Form:         form,
	}

	if gr.GrantType == "" || !s.cfg.GrantEnabled(gr.GrantType) {
		return nil, invalidRequest("invalid or missing grantType parameter")
	}

	// Credentials come from an HTTP Basic header when present, otherwise
	// from the body. The header wins.
	gr.ClientID, gr.ClientSecret = extractCredentials(r, form)

	if gr.ClientID == "" || (s.cfg.ClientIDRegex != nil && !s.cfg.ClientIDRegex.MatchString(gr.ClientID)) {
		return nil, invalidRequest("invalid or missing clientId parameter")
	}
	if gr.ClientSecret == "" {
		return nil, invalidRequest("missing clientSecret parameter")
	}

	return gr, nil
}

func extractCredentials(r *http.Request, form url.Values) (id, secret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return strings.TrimSpace(form.Get("clientId")), form.Get("clientSecret")
}
