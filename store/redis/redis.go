// Package redis keeps tokens, refresh tokens and authorization codes in
// Redis while delegating clients and users to a wrapped base model. TTLs
// ride on the Redis keys so expired entries disappear server-side, and
// codes are consumed with GETDEL so redemption is atomic.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/johngrant/model"
)

const (
	tokenPrefix   = "oauth:token:"
	refreshPrefix = "oauth:refresh:"
	codePrefix    = "oauth:code:"
)

type Store struct {
	base model.Model
	c    *rdb.Client
}

// New wraps base with Redis-backed token storage.
func New(base model.Model, addr string, db int) *Store {
	return &Store{base: base, c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db})}
}

// NewWithClient wraps base reusing an existing client.
func NewWithClient(base model.Model, c *rdb.Client) *Store {
	return &Store{base: base, c: c}
}

func (s *Store) Close() error { return s.c.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }

// Delegated lookups.

func (s *Store) GetClient(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	return s.base.GetClient(ctx, clientID, clientSecret)
}

func (s *Store) GrantTypeAllowed(ctx context.Context, clientID, grantType string) (bool, error) {
	return s.base.GrantTypeAllowed(ctx, clientID, grantType)
}

// GetUser delegates when the base model authenticates passwords.
func (s *Store) GetUser(ctx context.Context, username, plain string) (*model.User, error) {
	pa, ok := s.base.(model.PasswordAuthenticator)
	if !ok {
		return nil, model.ErrNotImplemented
	}
	return pa.GetUser(ctx, username, plain)
}

// Token storage.

func (s *Store) SaveAccessToken(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
	return s.set(ctx, tokenPrefix+token, &model.Token{
		Token: token, ClientID: clientID, UserID: userID(user), Expires: expires,
	}, expires)
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*model.Token, error) {
	return s.getToken(ctx, tokenPrefix+token)
}

func (s *Store) SaveRefreshToken(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
	return s.set(ctx, refreshPrefix+token, &model.Token{
		Token: token, ClientID: clientID, UserID: userID(user), Expires: expires,
	}, expires)
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*model.Token, error) {
	return s.getToken(ctx, refreshPrefix+token)
}

func (s *Store) ExpireRefreshToken(ctx context.Context, token string) error {
	return s.c.Del(ctx, refreshPrefix+token).Err()
}

// Authorization codes.

func (s *Store) SaveAuthCode(ctx context.Context, ac *model.AuthCode, user *model.User) error {
	b, err := json.Marshal(ac)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, codePrefix+ac.Code, b, expiry(ac.Expires)).Err()
}

// GetAuthCode is the non-consuming lookup; the engine prefers
// ConsumeAuthCode.
func (s *Store) GetAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	b, err := s.c.Get(ctx, codePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var ac model.AuthCode
	if err := json.Unmarshal(b, &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	b, err := s.c.GetDel(ctx, codePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var ac model.AuthCode
	if err := json.Unmarshal(b, &ac); err != nil {
		return nil, err
	}
	return &ac, nil
}

func (s *Store) set(ctx context.Context, key string, tok *model.Token, expires *time.Time) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, key, b, expiry(expires)).Err()
}

func (s *Store) getToken(ctx context.Context, key string) (*model.Token, error) {
	b, err := s.c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	var tok model.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// expiry maps an absolute expiry to a key TTL. nil keeps the key forever.
func expiry(expires *time.Time) time.Duration {
	if expires == nil {
		return 0
	}
	d := time.Until(*expires)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
