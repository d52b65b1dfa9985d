package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/johngrant/model"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.RegisterClient(&model.Client{ClientID: "thom", ClientSecret: "nightworld"})
	if err := s.RegisterUser("thomseddon", "nightworld", &model.User{ID: "1"}); err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	return s
}

func TestGetClientVerifiesSecret(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	c, err := s.GetClient(ctx, "thom", "nightworld")
	if err != nil || c == nil {
		t.Fatalf("expected client, got %v, %v", c, err)
	}
	if _, err := s.GetClient(ctx, "thom", "wrong"); err != model.ErrNotFound {
		t.Fatalf("expected ErrNotFound for bad secret, got %v", err)
	}
	if _, err := s.GetClient(ctx, "ghost", "x"); err != model.ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown client, got %v", err)
	}
}

func TestGetClientSkipsSecretWhenEmpty(t *testing.T) {
	s := seeded(t)
	c, err := s.GetClient(context.Background(), "thom", "")
	if err != nil || c == nil {
		t.Fatalf("expected lookup without secret to succeed, got %v, %v", c, err)
	}
}

func TestGrantTypeAllowed(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	s.RegisterClient(&model.Client{ClientID: "narrow"}, "password")

	if ok, _ := s.GrantTypeAllowed(ctx, "thom", "refreshToken"); !ok {
		t.Fatal("client with no grant list should allow everything")
	}
	if ok, _ := s.GrantTypeAllowed(ctx, "narrow", "password"); !ok {
		t.Fatal("expected password to be allowed")
	}
	if ok, _ := s.GrantTypeAllowed(ctx, "narrow", "refreshToken"); ok {
		t.Fatal("expected refreshToken to be denied")
	}
	if ok, _ := s.GrantTypeAllowed(ctx, "ghost", "password"); ok {
		t.Fatal("unknown client should be denied")
	}
}

func TestGetUserChecksPassword(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	u, err := s.GetUser(ctx, "thomseddon", "nightworld")
	if err != nil || u == nil || u.ID != "1" {
		t.Fatalf("expected user 1, got %v, %v", u, err)
	}
	if _, err := s.GetUser(ctx, "thomseddon", "wrong"); err != model.ErrNotFound {
		t.Fatalf("expected ErrNotFound for bad password, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	if err := s.SaveAccessToken(ctx, "tok1", "thom", &expires, &model.User{ID: "1"}); err != nil {
		t.Fatalf("SaveAccessToken: %v", err)
	}
	tok, err := s.GetAccessToken(ctx, "tok1")
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if tok.ClientID != "thom" || tok.UserID != "1" || tok.Expires == nil {
		t.Fatalf("unexpected token %+v", tok)
	}

	if err := s.SaveRefreshToken(ctx, "ref1", "thom", nil, &model.User{ID: "1"}); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}
	rt, err := s.GetRefreshToken(ctx, "ref1")
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	if rt.Expires != nil {
		t.Fatal("nil expiry should persist as nil")
	}

	if err := s.ExpireRefreshToken(ctx, "ref1"); err != nil {
		t.Fatalf("ExpireRefreshToken: %v", err)
	}
	if _, err := s.GetRefreshToken(ctx, "ref1"); err != model.ErrNotFound {
		t.Fatalf("expected expired token to be gone, got %v", err)
	}
}

func TestConsumeAuthCodeBurnsCode(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	expires := time.Now().Add(30 * time.Second)

	err := s.SaveAuthCode(ctx, &model.AuthCode{
		Code: "code1", ClientID: "thom", UserID: "1", Expires: &expires,
	}, &model.User{ID: "1"})
	if err != nil {
		t.Fatalf("SaveAuthCode: %v", err)
	}

	ac, err := s.ConsumeAuthCode(ctx, "code1")
	if err != nil || ac == nil || ac.UserID != "1" {
		t.Fatalf("expected code, got %v, %v", ac, err)
	}
	if _, err := s.ConsumeAuthCode(ctx, "code1"); err != model.ErrNotFound {
		t.Fatalf("expected second consume to miss, got %v", err)
	}
}
