// Command authcore runs the identity and listings API.
//
// Configuration is read from AUTHCORE_* environment variables; see
// authcore.Config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	pggorm "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/estately/authcore"
	authgrpc "github.com/estately/authcore/grpc"
	authoauth2 "github.com/estately/authcore/oauth2"
	authsaml "github.com/estately/authcore/saml"
	"github.com/estately/authcore/stores/fs"
	"github.com/estately/authcore/stores/gae"
	gormstore "github.com/estately/authcore/stores/gorm"
	"github.com/estately/authcore/stores/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := authcore.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// directory is the combined store every backend provides
type directory interface {
	authcore.UserDirectory
	authcore.ListingDirectory
}

// openStore returns the configured backend and a function releasing it
func openStore(ctx context.Context, cfg authcore.Config) (directory, func(), error) {
	switch cfg.Store {
	case "fs":
		return fs.NewStore(cfg.StorePath), func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := postgres.NewStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil

	case "gorm":
		db, err := gorm.Open(pggorm.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, nil, fmt.Errorf("open gorm: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewStore(db), closer, nil

	case "datastore":
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("connect datastore: %w", err)
		}
		return gae.NewStore(client, cfg.DatastoreNamespace), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// mountFederated adds the redirect-based login flows that are configured
func mountFederated(ctx context.Context, srv *authcore.Server, cfg authcore.Config, logger *slog.Logger) error {
	r := srv.Router()
	sessions := authoauth2.NewFlowSessions(cfg.Production)

	if cfg.GoogleClientID != "" {
		g := authoauth2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL, sessions, srv.CompleteFederatedLogin)
		g.Logger = logger
		r.PathPrefix("/auth/google/").Handler(http.StripPrefix("/auth/google", g.Handler()))

		verifier, err := authoauth2.NewGoogleIDTokenVerifier(ctx, cfg.GoogleClientID)
		if err != nil {
			return err
		}
		srv.Identity = verifier
		logger.Info("google login enabled")
	}
	if cfg.GithubClientID != "" {
		gh := authoauth2.NewGithubOAuth2(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL, sessions, srv.CompleteFederatedLogin)
		gh.Logger = logger
		r.PathPrefix("/auth/github/").Handler(http.StripPrefix("/auth/github", gh.Handler()))
		logger.Info("github login enabled")
	}

	if cfg.SAMLMetadataURL != "" {
		key, cert, err := authsaml.LoadKeyPair(cfg.SAMLCertFile, cfg.SAMLKeyFile)
		if err != nil {
			return err
		}
		sp, err := authsaml.New(ctx, authsaml.Options{
			RootURL:     strings.TrimSuffix(cfg.BaseURL, "/") + "/auth/",
			MetadataURL: cfg.SAMLMetadataURL,
			Key:         key,
			Certificate: cert,
			Logger:      logger,
		}, srv.CompleteFederatedLogin)
		if err != nil {
			return err
		}
		sp.Register(r.PathPrefix("/auth").Subrouter())
		logger.Info("saml login enabled")
	}
	return nil
}

func newGRPCServer(srv *authcore.Server) *grpc.Server {
	interceptors := authgrpc.NewPublicMethodsConfig(srv.Guard, healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName)
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(authgrpc.UnaryAuthInterceptor(interceptors), authgrpc.UnaryErrorInterceptor()),
		grpc.ChainStreamInterceptor(authgrpc.StreamAuthInterceptor(interceptors)),
	)
	healthpb.RegisterHealthServer(gs, health.NewServer())
	return gs
}

func run(ctx context.Context, cfg authcore.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := authcore.New(cfg, store, store, logger)
	if err := mountFederated(ctx, srv, cfg, logger); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		logger.Info("http listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcServer = newGRPCServer(srv)
		go func() {
			logger.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	return httpServer.Shutdown(shutdownCtx)
}
