// Package oauth exchanges provider authorization codes for tokens and builds
// the consent and redirect URLs that frame the exchange.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// Exchange failures. Both are upstream failures; errors.Is tells them apart.
var (
	ErrCodeRejected = domain.NewError(domain.KindUpstreamFailure, "oauth: authorization code rejected")
	ErrTransport    = domain.NewError(domain.KindUpstreamFailure, "oauth: token endpoint unreachable")
)

// Scopes requested at consent.
var Scopes = []string{"openid", "email"}

// Tokens is the provider's answer to a successful code exchange.
type Tokens struct {
	IDToken     string
	AccessToken string
}

// Provider holds the client credentials and endpoints of one OAuth provider.
type Provider struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
}

// Client exchanges authorization codes on golang.org/x/oauth2.
type Client struct {
	config oauth2.Config
	http   *http.Client
}

// NewClient creates a Client for p. A nil httpClient gets a 10 second
// timeout.
func NewClient(p Provider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		config: oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.AuthURL,
				TokenURL: p.TokenURL,
				// Fixed style so a rejected code is never replayed with
				// the other credential placement.
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: Scopes,
		},
		http: httpClient,
	}
}

// ClientID returns the OAuth client id, which is also the expected ID token
// audience.
func (c *Client) ClientID() string { return c.config.ClientID }

// Exchange performs the authorization-code grant in one round trip.
// redirectURL must match the one the code was issued for. Nothing is retried:
// codes are single use.
func (c *Client) Exchange(ctx context.Context, code, redirectURL string) (*Tokens, error) {
	cfg := c.config
	cfg.RedirectURL = redirectURL

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			status := 0
			if rerr.Response != nil {
				status = rerr.Response.StatusCode
			}
			return nil, fmt.Errorf("%w: status %d %s", ErrCodeRejected, status, rerr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("%w: response carried no id_token", ErrCodeRejected)
	}
	return &Tokens{IDToken: idToken, AccessToken: tok.AccessToken}, nil
}

// AuthURL builds the consent URL the browser is sent to.
func (c *Client) AuthURL(redirectURL string) string {
	cfg := c.config
	cfg.RedirectURL = redirectURL
	// TODO: issue and verify a state parameter once the pages app can round-trip it.
	return cfg.AuthCodeURL("", oauth2.SetAuthURLParam("include_granted_scopes", "true"))
}
