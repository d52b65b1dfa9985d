// Package pg is a PostgreSQL model backed by pgxpool. Token and code
// values are stored as sha256 digests, never raw.
package pg

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/johngrant/logger"
	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/password"
	"github.com/dropDatabas3/johngrant/tokens"
)

type Store struct{ pool *pgxpool.Pool }

// New builds a Store from a DSN. The pool is created eagerly; connectivity
// is only probed, not required, so the embedder can start before the
// database does.
func New(ctx context.Context, dsn string) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Named("pg").Warn("startup ping failed", logger.Err(err))
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the inner pool for metrics collectors.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// ====================== clients ======================

func (s *Store) GetClient(ctx context.Context, clientID, clientSecret string) (*model.Client, error) {
	const q = `
SELECT client_id, client_secret, redirect_uri
FROM oauth_client
WHERE client_id = $1
LIMIT 1`
	row := s.pool.QueryRow(ctx, q, clientID)

	var c model.Client
	var redirectURI *string
	if err := row.Scan(&c.ClientID, &c.ClientSecret, &redirectURI); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if redirectURI != nil {
		c.RedirectURI = *redirectURI
	}

	if clientSecret != "" && subtle.ConstantTimeCompare([]byte(c.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, model.ErrNotFound
	}
	return &c, nil
}

func (s *Store) GrantTypeAllowed(ctx context.Context, clientID, grantType string) (bool, error) {
	// An empty grant_types array means the client may use any grant.
	const q = `SELECT grant_types FROM oauth_client WHERE client_id = $1 LIMIT 1`
	var grants []string
	if err := s.pool.QueryRow(ctx, q, clientID).Scan(&grants); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if len(grants) == 0 {
		return true, nil
	}
	for _, g := range grants {
		if g == grantType {
			return true, nil
		}
	}
	return false, nil
}

// CreateClient registers a client. grantTypes may be empty to allow all.
func (s *Store) CreateClient(ctx context.Context, c *model.Client, grantTypes ...string) error {
	const q = `
INSERT INTO oauth_client (client_id, client_secret, redirect_uri, grant_types)
VALUES ($1, $2, $3, $4)
ON CONFLICT (client_id) DO UPDATE
SET client_secret = EXCLUDED.client_secret,
    redirect_uri = EXCLUDED.redirect_uri,
    grant_types = EXCLUDED.grant_types`
	_, err := s.pool.Exec(ctx, q, c.ClientID, c.ClientSecret, nullable(c.RedirectURI), grantTypes)
	return err
}

// ====================== users ======================

func (s *Store) GetUser(ctx context.Context, username, plain string) (*model.User, error) {
	const q = `SELECT id, password_hash FROM app_user WHERE LOWER(username) = LOWER($1) LIMIT 1`
	var id, hash string
	if err := s.pool.QueryRow(ctx, q, username).Scan(&id, &hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if !password.Verify(plain, hash) {
		return nil, model.ErrNotFound
	}
	return &model.User{ID: id}, nil
}

// CreateUser hashes the password and inserts the user, returning its id.
func (s *Store) CreateUser(ctx context.Context, username, plain string) (string, error) {
	hash, err := password.Hash(password.Default, plain)
	if err != nil {
		return "", err
	}
	const q = `
INSERT INTO app_user (id, username, password_hash)
VALUES ($1, LOWER($2), $3)
RETURNING id`
	var id string
	if err := s.pool.QueryRow(ctx, q, uuid.NewString(), username, hash).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ====================== access tokens ======================

func (s *Store) SaveAccessToken(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
	const q = `
INSERT INTO oauth_access_token (token_hash, client_id, user_id, expires_at)
VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, q, tokens.SHA256Base64URL(token), clientID, userID(user), expires)
	return err
}

// GetAccessToken resolves a bearer token for resource servers sharing the
// store.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*model.Token, error) {
	const q = `
SELECT client_id, user_id, expires_at
FROM oauth_access_token
WHERE token_hash = $1
LIMIT 1`
	return s.scanToken(ctx, q, token)
}

// ====================== refresh tokens ======================

func (s *Store) SaveRefreshToken(ctx context.Context, token, clientID string, expires *time.Time, user *model.User) error {
	const q = `
INSERT INTO oauth_refresh_token (token_hash, client_id, user_id, expires_at)
VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, q, tokens.SHA256Base64URL(token), clientID, userID(user), expires)
	return err
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*model.Token, error) {
	const q = `
SELECT client_id, user_id, expires_at
FROM oauth_refresh_token
WHERE token_hash = $1
LIMIT 1`
	return s.scanToken(ctx, q, token)
}

func (s *Store) ExpireRefreshToken(ctx context.Context, token string) error {
	const q = `DELETE FROM oauth_refresh_token WHERE token_hash = $1`
	_, err := s.pool.Exec(ctx, q, tokens.SHA256Base64URL(token))
	return err
}

func (s *Store) scanToken(ctx context.Context, q, token string) (*model.Token, error) {
	row := s.pool.QueryRow(ctx, q, tokens.SHA256Base64URL(token))

	tok := model.Token{Token: token}
	if err := row.Scan(&tok.ClientID, &tok.UserID, &tok.Expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// ====================== authorization codes ======================

func (s *Store) SaveAuthCode(ctx context.Context, ac *model.AuthCode, user *model.User) error {
	const q = `
INSERT INTO oauth_auth_code (code_hash, client_id, user_id, expires_at, redirect_uri)
VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q,
		tokens.SHA256Base64URL(ac.Code), ac.ClientID, ac.UserID, ac.Expires, nullable(ac.RedirectURI))
	return err
}

// GetAuthCode is the non-consuming lookup; the engine prefers
// ConsumeAuthCode.
func (s *Store) GetAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	const q = `
SELECT client_id, user_id, expires_at, redirect_uri
FROM oauth_auth_code
WHERE code_hash = $1
LIMIT 1`
	row := s.pool.QueryRow(ctx, q, tokens.SHA256Base64URL(code))

	ac := model.AuthCode{Code: code}
	var redirectURI *string
	if err := row.Scan(&ac.ClientID, &ac.UserID, &ac.Expires, &redirectURI); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if redirectURI != nil {
		ac.RedirectURI = *redirectURI
	}
	return &ac, nil
}

// ConsumeAuthCode deletes and returns the code in one statement, so
// concurrent redemptions cannot both succeed.
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (*model.AuthCode, error) {
	const q = `
DELETE FROM oauth_auth_code
WHERE code_hash = $1
RETURNING client_id, user_id, expires_at, redirect_uri`
	row := s.pool.QueryRow(ctx, q, tokens.SHA256Base64URL(code))

	ac := model.AuthCode{Code: code}
	var redirectURI *string
	if err := row.Scan(&ac.ClientID, &ac.UserID, &ac.Expires, &redirectURI); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if redirectURI != nil {
		ac.RedirectURI = *redirectURI
	}
	return &ac, nil
}

// PurgeExpired removes rows whose expiry has passed. Run it periodically;
// nothing in the hot path depends on it.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM oauth_access_token WHERE expires_at IS NOT NULL AND expires_at < NOW()`,
		`DELETE FROM oauth_refresh_token WHERE expires_at IS NOT NULL AND expires_at < NOW()`,
		`DELETE FROM oauth_auth_code WHERE expires_at < NOW()`,
	} {
		ct, err := s.pool.Exec(ctx, q)
		if err != nil {
			return total, err
		}
		total += ct.RowsAffected()
	}
	return total, nil
}

// ====================== migrations ======================

// RunMigrations executes every *_up.sql in dir in lexical order.
func (s *Store) RunMigrations(ctx context.Context, dir string) error {
	return s.runMigrations(ctx, os.DirFS(dir))
}

// RunMigrationsFS is RunMigrations over an embedded filesystem.
func (s *Store) RunMigrationsFS(ctx context.Context, fsys fs.FS) error {
	return s.runMigrations(ctx, fsys)
}

func (s *Store) runMigrations(ctx context.Context, fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), "_up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return nil
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
