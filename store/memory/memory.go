// Package memory is a self-contained in-memory model backed by go-cache.
//
// Clients and users are registered up front; tokens, refresh tokens and
// authorization codes live in TTL caches so expired entries evict
// themselves. Meant for demos and tests, not durable storage.
package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/password"
)

type userRecord struct {
	user *model.User
	hash string
}

type Store struct {
	mu      sync.RWMutex
	clients map[string]*model.Client
	grants  map[string]map[string]bool // clientID -> allowed grant types; nil allows all
	users   map[string]userRecord      // by username

	tokens  *gocache.Cache
	refresh *gocache.Cache
	codes   *gocache.Cache
}

func New() *Store {
	return &Store{
		clients: make(map[string]*model.Client),
		grants:  make(map[string]map[string]bool),
		users:   make(map[string]userRecord),
		tokens:  gocache.New(gocache.NoExpiration, time.Minute),
		refresh: gocache.New(gocache.NoExpiration, time.Minute),
		codes:   gocache.New(gocache.NoExpiration, time.Minute),
	}
}

// RegisterClient adds a client. With no grant types listed every grant is
// allowed for it.
func (s *Store) RegisterClient(c *model.Client, grantTypes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ClientID] = &cp
	if len(grantTypes) == 0 {
		s.grants[c.ClientID] = nil
		return
	}
	set := make(map[string]bool, len(grantTypes))
	for _, gt := range grantTypes {
		set[gt] = true
	}
	s.grants[c.ClientID] = set
}

// RegisterUser adds a user with an argon2id-hashed password.
func (s *Store) RegisterUser(username, plain string, u *model.User) error {
	hash, err := password.Hash(password.Default, plain)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[username] = userRecord{user: &cp, hash: hash}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, model.ErrNotFound
	}
	if clientSecret != "" && c.ClientSecret != clientSecret {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GrantTypeAllowed(ctx context.Context, clientID, grantType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.grants[clientID]
	if !ok {
		return false, nil
	}
	if set == nil {
		return true, nil
	}
	return set[grantType], nil
}

func (s *Store) GetUser(ctx context.Context, username, plain string) (*model.User, error) {
	s.mu.RLock()
	rec, ok := s.users[username]
	s.mu.RUnlock()
	if !ok || !password.Verify(plain, rec.hash) {
		return nil, model.ErrNotFound
	}
	cp := *rec.user
	return &cp, nil
}

func (s *Store) SaveAccessToken(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
	s.tokens.Set(token, &model.Token{
		Token:    token,
		ClientID: clientID,
		UserID:   userID(user),
		Expires:  expires,
	}, ttl(expires))
	return nil
}

// GetAccessToken resolves a bearer token, for resource servers sharing the
// store. A miss or an expired token is ErrNotFound.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*model.Token, error) {
	v, ok := s.tokens.Get(token)
	if !ok {
		return nil, model.ErrNotFound
	}
	return v.(*model.Token), nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
	s.refresh.Set(token, &model.Token{
		Token:    token,
		ClientID: clientID,
		UserID:   userID(user),
		Expires:  expires,
	}, ttl(expires))
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*model.Token, error) {
	v, ok := s.refresh.Get(token)
	if !ok {
		return nil, model.ErrNotFound
	}
	return v.(*model.Token), nil
}

func (s *Store) ExpireRefreshToken(ctx context.Context, token string) error {
	s.refresh.Delete(token)
	return nil
}

func (s *Store) SaveAuthCode(ctx context.Context, ac *model.AuthCode, user *model.User) error {
	cp := *ac
	s.codes.Set(ac.Code, &cp, ttl(ac.Expires))
	return nil
}

// GetAuthCode is the non-consuming lookup; the engine prefers
// ConsumeAuthCode.
func (s *Store) GetAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	v, ok := s.codes.Get(code)
	if !ok {
		return nil, model.ErrNotFound
	}
	return v.(*model.AuthCode), nil
}

// ConsumeAuthCode fetches and burns a code in one step so a code redeems
// at most once.
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.codes.Get(code)
	if !ok {
		return nil, model.ErrNotFound
	}
	s.codes.Delete(code)
	return v.(*model.AuthCode), nil
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// ttl maps an absolute expiry to a cache TTL. nil never expires. An expiry
// already in the past gets a minimal TTL so the entry evicts immediately
// after the engine's own expiry check has seen it.
func ttl(expires *time.Time) time.Duration {
	if expires == nil {
		return gocache.NoExpiration
	}
	d := time.Until(*expires)
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}
