// Command authd runs the auth server: credential login with MFA, token
// refresh, and the guarded user endpoints, backed by Redis (or an
// embedded miniredis when none is configured).
//
// Run:
//
//	go run ./cmd/authd -config authd.yaml
//
// Without a config file the server listens on :8080 with demo users
// seeded (see seedUsers) and a random signing secret.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	authcore "github.com/techbridge/authcore"
	"github.com/techbridge/authcore/audit"
	"github.com/techbridge/authcore/jwt"
	"github.com/techbridge/authcore/metrics"
	promexport "github.com/techbridge/authcore/metrics/export/prometheus"
	"github.com/techbridge/authcore/mfa"
	"github.com/techbridge/authcore/middleware"
	"github.com/techbridge/authcore/password"
	"github.com/techbridge/authcore/permission"
	"github.com/techbridge/authcore/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config; empty runs the demo setup")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	rdb, cleanup, err := connectRedis(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Audit fan-out: JSON lines to stdout plus the metrics collector.
	registry := metrics.NewRegistry()
	dispatcher := audit.NewDispatcher(audit.DispatcherConfig{BufferSize: 256, DropIfFull: true},
		audit.MultiSink{
			audit.NewJSONWriterSink(os.Stdout),
			metrics.NewCollector(registry),
		})
	defer dispatcher.Close()

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return err
	}
	tokens, err := jwt.NewManager(cfg.JWTConfig())
	if err != nil {
		return err
	}
	verifier := mfa.New(rdb, cfg.MFAConfig())

	users := authcore.NewMemoryUserProvider()
	if err := seedUsers(users, hasher); err != nil {
		return err
	}

	authority, err := authcore.NewLocalAuthority(users, hasher, tokens, verifier, rdb, authcore.LocalAuthorityConfig{
		TOTP: authcore.TOTPConfig{Issuer: "TechBridge"},
	})
	if err != nil {
		return err
	}

	limiter := ratelimit.New(rdb, cfg.RateLimitConfig())
	guard, err := middleware.NewGuard(tokens, limiter, permission.DefaultPolicy(), dispatcher)
	if err != nil {
		return err
	}

	router := newRouter(authority, guard, dispatcher, registry)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("authd listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newRouter(authority *authcore.LocalAuthority, guard *middleware.Guard, sink audit.Sink, registry *metrics.Registry) *mux.Router {
	router := mux.NewRouter()
	h := &authHandlers{authority: authority, sink: sink}

	// Authentication endpoints; unauthenticated by nature.
	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/auth/mfa/verify", h.verifyMFA).Methods(http.MethodPost)
	router.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)

	router.Handle("/metrics", promexport.NewExporter(registry).Handler()).Methods(http.MethodGet)

	// Guarded user endpoints.
	anyRole := []permission.Role{}
	adminTTO := []permission.Role{permission.RoleAdmin, permission.RoleTTO}
	adminOnly := []permission.Role{permission.RoleAdmin}

	router.Handle("/users",
		guard.Require(middleware.Requirement{
			Roles:       adminTTO,
			Permissions: []permission.Permission{permission.ManageUsers},
		})(http.HandlerFunc(createUser)),
	).Methods(http.MethodPost)

	router.Handle("/users/{id}",
		guard.Require(middleware.Requirement{
			Roles:       anyRole,
			Permissions: []permission.Permission{permission.ViewUsers},
		})(http.HandlerFunc(getUser)),
	).Methods(http.MethodGet)

	router.Handle("/users/{id}",
		guard.Require(middleware.Requirement{
			Roles:       adminOnly,
			Permissions: []permission.Permission{permission.ManageUsers},
			Tier:        ratelimit.TierSensitive,
		})(http.HandlerFunc(updateUser)),
	).Methods(http.MethodPut)

	router.Handle("/users/{id}",
		guard.Require(middleware.Requirement{
			Roles:       adminOnly,
			Permissions: []permission.Permission{permission.ManageUsers},
			Tier:        ratelimit.TierSensitive,
		})(http.HandlerFunc(deleteUser)),
	).Methods(http.MethodDelete)

	router.Handle("/users/{id}/profile",
		guard.Require(middleware.Requirement{})(http.HandlerFunc(updateProfile)),
	).Methods(http.MethodPut)

	router.Handle("/users/{id}/preferences",
		guard.Require(middleware.Requirement{SelfOnly: true})(http.HandlerFunc(updatePreferences)),
	).Methods(http.MethodPut)

	return router
}

func loadConfig(path string) (*authcore.FileConfig, error) {
	if path != "" {
		return authcore.LoadFileConfig(path)
	}

	// Demo mode: defaults with a random per-boot secret.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	cfg := &authcore.FileConfig{}
	cfg.JWT.Secret = hex.EncodeToString(secret)
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connectRedis(cfg *authcore.FileConfig) (redis.UniversalClient, func(), error) {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded redis: %w", err)
	}
	log.Printf("no redis configured, using embedded store at %s", mr.Addr())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seedUsers(users *authcore.MemoryUserProvider, hasher *password.Hasher) error {
	seed := []struct {
		id, identifier, pass string
		role                 permission.Role
	}{
		{"u-researcher", "researcher@techbridge.dev", "research pass", permission.RoleResearcher},
		{"u-entrepreneur", "founder@techbridge.dev", "venture pass!", permission.RoleEntrepreneur},
	}
	for _, s := range seed {
		hash, err := hasher.Hash(s.pass)
		if err != nil {
			return err
		}
		err = users.Add(authcore.UserRecord{
			ID:           s.id,
			Identifier:   s.identifier,
			PasswordHash: hash,
			Role:         s.role,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
