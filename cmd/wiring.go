package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/identity-service/config"
	database "github.com/duynhne/identity-service/internal/core"
	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/core/jwk"
	"github.com/duynhne/identity-service/internal/core/oauth"
	"github.com/duynhne/identity-service/internal/core/repository"
	"github.com/duynhne/identity-service/internal/core/token"
	logicv1 "github.com/duynhne/identity-service/internal/logic/v1"
)

// loadConfig loads and validates configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	pkgzerolog.Setup(cfg.Logging.Level)
	return cfg, nil
}

// openStore returns the configured store. pool is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config) (domain.UnitOfWork, *pgxpool.Pool, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("Using in-memory store; sessions are lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPgxStore(pool), pool, nil
}

// newSessionService wires the codec, redirects and, when configured, the
// Google exchanger and ID token verifier.
func newSessionService(cfg *config.Config, store domain.UnitOfWork) (*logicv1.SessionService, error) {
	key, err := cfg.TokenSecretBytes()
	if err != nil {
		return nil, err
	}
	secret, err := token.NewSecret(key)
	if err != nil {
		return nil, fmt.Errorf("seal token secret: %w", err)
	}
	codec := token.NewCodec(secret, cfg.Auth.InsecureTransport)

	redirects, err := oauth.NewRedirects(oauth.RemoteTarget(cfg.Service.RemoteTarget), cfg.Service.PagesURL)
	if err != nil {
		return nil, err
	}

	var opts []logicv1.Option
	if cfg.GoogleOAuth.Enabled() {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		client := oauth.NewClient(oauth.Provider{
			ClientID:     cfg.GoogleOAuth.ClientID,
			ClientSecret: cfg.GoogleOAuth.ClientSecret,
			AuthURL:      cfg.GoogleOAuth.AuthURL,
			TokenURL:     cfg.GoogleOAuth.TokenURL,
		}, httpClient)
		keys := jwk.NewKeySet(jwk.NewHTTPFetcher(cfg.GoogleOAuth.JWKSURL, httpClient))
		opts = append(opts, logicv1.WithGoogle(client, jwk.NewVerifier(keys, client.ClientID())))
		log.Info().Str("jwks_url", cfg.GoogleOAuth.JWKSURL).Msg("Google OAuth enabled")
	} else {
		log.Info().Msg("Google OAuth disabled (GOOGLE_OAUTH_CLIENT_ID unset)")
	}

	return logicv1.NewSessionService(store, codec, redirects, cfg.Auth.LoginTTL, opts...), nil
}
