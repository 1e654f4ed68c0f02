// Package auth obtains app-only Microsoft Graph access tokens through the
// OAuth2 client-credentials grant.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"github.com/GBSLIT/FairForm/internal/config"
)

// GraphScope requests every application permission granted to the app.
const GraphScope = "https://graph.microsoft.com/.default"

// ErrEmptyToken is returned when the token endpoint answers without an
// access token.
var ErrEmptyToken = errors.New("token endpoint returned no access token")

// Provider exchanges the configured client credentials for a bearer token.
// Without caching every call hits the token endpoint.
type Provider struct {
	conf    *clientcredentials.Config
	timeout time.Duration

	cache  bool
	once   sync.Once
	shared oauth2.TokenSource
}

// NewProvider builds a Provider from the tenant, client id and secret. An
// explicit TokenURL replaces the Azure AD endpoint, which tests rely on.
func NewProvider(cfg *config.Config) *Provider {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = microsoft.AzureADEndpoint(cfg.TenantID).TokenURL
	}
	return &Provider{
		conf: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{GraphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		timeout: cfg.GraphTimeout,
		cache:   cfg.CacheToken,
	}
}

// Token returns a bearer token. Exchange failures are returned as is; no
// retry is attempted. Both modes honour the caller's context and the Graph
// timeout.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	var (
		tok *oauth2.Token
		err error
	)
	if p.cache {
		tok, err = p.cachedToken(ctx)
	} else {
		tok, err = p.conf.Token(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("client credentials exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return tok.AccessToken, nil
}

// cachedToken reads the shared source. The source outlives any one request,
// so it is built on a background context whose HTTP client carries the Graph
// timeout, and each caller stops waiting once its own context is done. A
// refresh abandoned that way keeps running and fills the cache for the next
// caller.
func (p *Provider) cachedToken(ctx context.Context) (*oauth2.Token, error) {
	p.once.Do(func() {
		base := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: p.timeout})
		p.shared = oauth2.ReuseTokenSource(nil, p.conf.TokenSource(base))
	})

	type result struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := p.shared.Token()
		done <- result{tok, err}
	}()
	select {
	case r := <-done:
		var netErr net.Error
		if errors.As(r.err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %w", context.DeadlineExceeded, r.err)
		}
		return r.tok, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
