package oauth2

import (
	"context"

	"github.com/dropDatabas3/johngrant/model"
)

// passwordGrant resolves resource-owner credentials through the model.
type passwordGrant struct{}

func (passwordGrant) Resolve(ctx context.Context, s *Server, gr *GrantRequest, client *model.Client) (*model.User, error) {
	if gr.Username == "" || gr.Password == "" {
		return nil, invalidRequest(`missing parameters: "username" and "password"`)
	}

	auth, ok := s.model.(model.PasswordAuthenticator)
	if !ok {
		return nil, serverError("model does not support the password grant", nil)
	}

	user, err := auth.GetUser(ctx, gr.Username, gr.Password)
	if err != nil && !notFound(err) {
		return nil, serverError("error retrieving user", err)
	}
	if user == nil || notFound(err) {
		return nil, invalidGrant("invalid username/password")
	}
	return user, nil
}
