package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohcnetwork/abdm-gateway/internal/platform/cache"
)

const tokenCacheKey = "abdm:session-token"

// TokenBroker exchanges client credentials for a gateway session token and
// caches it for the lifetime the gateway grants. Concurrent callers share a
// single refresh.
type TokenBroker struct {
	sessionURL   string
	clientID     string
	clientSecret string
	store        cache.Store
	client       *http.Client
	logger       zerolog.Logger

	mu sync.Mutex
}

func NewTokenBroker(sessionURL, clientID, clientSecret string, store cache.Store, timeout time.Duration, logger zerolog.Logger) *TokenBroker {
	return &TokenBroker{
		sessionURL:   sessionURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		store:        store,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Token returns a valid session token, fetching a fresh one when the cached
// token is missing or expired.
func (b *TokenBroker) Token(ctx context.Context) (string, error) {
	if tok, err := b.store.Get(ctx, tokenCacheKey); err == nil {
		return string(tok), nil
	}

	// Single flight: one caller refreshes, the rest find the cached token.
	b.mu.Lock()
	defer b.mu.Unlock()

	if tok, err := b.store.Get(ctx, tokenCacheKey); err == nil {
		return string(tok), nil
	}

	return b.refresh(ctx)
}

// Invalidate drops the cached token so the next call fetches a fresh one.
// Used when the gateway rejects a request with 401.
func (b *TokenBroker) Invalidate(ctx context.Context) {
	if err := b.store.Delete(ctx, tokenCacheKey); err != nil {
		b.logger.Warn().Err(err).Msg("failed to invalidate session token")
	}
}

func (b *TokenBroker) refresh(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"clientId":     b.clientID,
		"clientSecret": b.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.sessionURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("session request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read session response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("session request failed with status %d: %s", resp.StatusCode, ExtractError(body))
	}

	var session struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if session.AccessToken == "" {
		return "", fmt.Errorf("session response missing accessToken")
	}

	ttl := time.Duration(session.ExpiresIn) * time.Second
	if err := b.store.Put(ctx, tokenCacheKey, []byte(session.AccessToken), ttl); err != nil {
		b.logger.Warn().Err(err).Msg("failed to cache session token")
	}

	b.logger.Info().Int("expires_in", session.ExpiresIn).Msg("fetched new gateway session token")
	return session.AccessToken, nil
}
