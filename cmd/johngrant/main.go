// Command johngrant runs a demo authorization server around the grant
// engine: /oauth/token and /oauth/authorize wired to a pluggable store,
// plus /metrics and /healthz.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/johngrant/config"
	"github.com/dropDatabas3/johngrant/jwtgen"
	"github.com/dropDatabas3/johngrant/logger"
	"github.com/dropDatabas3/johngrant/metrics"
	"github.com/dropDatabas3/johngrant/middleware"
	"github.com/dropDatabas3/johngrant/model"
	"github.com/dropDatabas3/johngrant/oauth2"
	"github.com/dropDatabas3/johngrant/store/memory"
	"github.com/dropDatabas3/johngrant/store/pg"
	"github.com/dropDatabas3/johngrant/store/redis"

	pgmigrations "github.com/dropDatabas3/johngrant/migrations/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "dotenv: %v\n", err)
	}

	var configPath string

	root := &cobra.Command{
		Use:   "johngrant",
		Short: "OAuth2 token and consent demo server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("JOHNGRANT_CONFIG", "configs/config.yaml"), "path to YAML config")

	var jwtIssuer string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, jwtIssuer)
		},
	}
	serveCmd.Flags().StringVar(&jwtIssuer, "jwt-issuer", os.Getenv("JOHNGRANT_JWT_ISSUER"), "when set (memory driver only), sign access tokens as JWTs with this issuer")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(configPath)
		},
	}

	root.AddCommand(serveCmd, migrateCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath, jwtIssuer string) error {
	f, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: f.Log.Env, Level: f.Log.Level, ServiceName: "johngrant"})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("server")

	cfg, err := f.EngineConfig()
	if err != nil {
		return err
	}

	m, pool, cleanup, err := buildModel(f, jwtIssuer)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := oauth2.New(cfg, m, oauth2.WithMetrics(metrics.RecordGrant))
	if err != nil {
		return err
	}

	metricsHandler, err := metrics.Register(metrics.Config{Pool: pool})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	chain := []middleware.Middleware{
		middleware.WithRecover(),
		middleware.WithRequestID(),
		middleware.WithLogging(),
		metrics.WithHTTP,
	}

	r.Method(http.MethodPost, "/oauth/token",
		middleware.ChainFunc(srv.TokenHandler(), chain...))
	r.Handle("/oauth/authorize",
		middleware.Chain(srv.AuthorizeHandler(nil, allowAllDecision), append(chain, middleware.WithNoStore())...))
	r.Handle("/metrics", metricsHandler)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{
		Addr:         f.Server.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", logger.String("addr", f.Server.Addr), logger.String("driver", f.Storage.Driver))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", logger.Err(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

// allowAllDecision approves every POSTed consent for the demo user. A real
// embedder replaces this with its session-backed consent page.
func allowAllDecision(r *http.Request) (*oauth2.Decision, error) {
	return &oauth2.Decision{Allowed: true, UserID: "1", User: &model.User{ID: "1"}}, nil
}

// jwtMemoryModel augments the seeded in-memory store with signed access
// tokens via the generation hook.
type jwtMemoryModel struct {
	*memory.Store
	issuer *jwtgen.Issuer
}

func (m *jwtMemoryModel) GenerateToken(ctx context.Context, kind model.TokenKind, client *model.Client, user *model.User) (*model.GeneratedToken, error) {
	return m.issuer.GenerateToken(ctx, kind, client, user)
}

func buildModel(f *config.File, jwtIssuer string) (model.Model, func() *pgxpool.Pool, func(), error) {
	noop := func() {}
	switch f.Storage.Driver {
	case "memory":
		mem := seedMemory()
		if jwtIssuer != "" {
			issuer, err := jwtgen.NewIssuer(jwtIssuer, time.Hour)
			if err != nil {
				return nil, nil, noop, err
			}
			return &jwtMemoryModel{Store: mem, issuer: issuer}, nil, noop, nil
		}
		return mem, nil, noop, nil

	case "redis":
		s := redis.New(seedMemory(), f.Storage.Redis.Addr, f.Storage.Redis.DB)
		return s, nil, func() { _ = s.Close() }, nil

	case "postgres":
		s, err := pg.New(context.Background(), f.Storage.DSN)
		if err != nil {
			return nil, nil, noop, err
		}
		return s, s.Pool, s.Close, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown storage driver %q", f.Storage.Driver)
	}
}

// seedMemory registers the demo client and user.
func seedMemory() *memory.Store {
	s := memory.New()
	s.RegisterClient(&model.Client{ClientID: "thom", ClientSecret: "nightworld"})
	if err := s.RegisterUser("thomseddon", "nightworld", &model.User{ID: "1"}); err != nil {
		logger.Named("seed").Warn("demo user not registered", logger.Err(err))
	}
	return s
}

func migrate(configPath string) error {
	f, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if f.Storage.Driver != "postgres" {
		return fmt.Errorf("migrate requires the postgres driver, config has %q", f.Storage.Driver)
	}

	logger.Init(logger.Config{Env: f.Log.Env, Level: f.Log.Level, ServiceName: "johngrant"})
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := pg.New(ctx, f.Storage.DSN)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.RunMigrationsFS(ctx, pgmigrations.FS); err != nil {
		return err
	}
	logger.Named("migrate").Info("schema applied")
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
