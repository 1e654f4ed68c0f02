package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GBSLIT/FairForm/internal/config"
)

func tokenServer(t *testing.T, accessToken string, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, GraphScope, r.PostForm.Get("scope"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(tokenURL string) *config.Config {
	return &config.Config{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     tokenURL,
	}
}

func TestTokenFetchedPerCall(t *testing.T) {
	srv, hits := tokenServer(t, "abc", http.StatusOK)
	p := NewProvider(testConfig(srv.URL))

	for i := 0; i < 2; i++ {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", tok)
	}
	assert.EqualValues(t, 2, hits.Load())
}

func TestTokenCached(t *testing.T) {
	srv, hits := tokenServer(t, "abc", http.StatusOK)
	cfg := testConfig(srv.URL)
	cfg.CacheToken = true
	p := NewProvider(cfg)

	for i := 0; i < 3; i++ {
		_, err := p.Token(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, hits.Load())
}

// slowTokenServer answers only after delay, or when the client gives up.
func slowTokenServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "late",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenCachedHonoursTimeouts(t *testing.T) {
	t.Run("graph timeout", func(t *testing.T) {
		cfg := testConfig(slowTokenServer(t, 700*time.Millisecond).URL)
		cfg.CacheToken = true
		cfg.GraphTimeout = 50 * time.Millisecond
		p := NewProvider(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := p.Token(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
	})

	t.Run("caller deadline", func(t *testing.T) {
		cfg := testConfig(slowTokenServer(t, 500*time.Millisecond).URL)
		cfg.CacheToken = true
		p := NewProvider(cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := p.Token(ctx)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
	})
}

func TestTokenExchangeFailure(t *testing.T) {
	srv, _ := tokenServer(t, "", http.StatusUnauthorized)
	p := NewProvider(testConfig(srv.URL))

	_, err := p.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client credentials exchange")
}

func TestEmptyAccessToken(t *testing.T) {
	srv, _ := tokenServer(t, "", http.StatusOK)
	p := NewProvider(testConfig(srv.URL))

	_, err := p.Token(context.Background())
	require.Error(t, err)
}

func TestDefaultTokenURL(t *testing.T) {
	p := NewProvider(&config.Config{TenantID: "contoso"})
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", p.conf.TokenURL)
}
