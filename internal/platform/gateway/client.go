// Package gateway holds the outbound side of the exchange: the session
// token broker and the HTTP client every service uses to reach the consent
// manager.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TimestampFormat is the exact wire format the consent manager expects,
// millisecond precision pinned to zeros.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Timestamp renders t for a request body or TIMESTAMP header.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Headers carries the per-request routing headers. X-CM-ID is always sent;
// the rest only when set. RequestID is used on v3 paths and generated when
// empty.
type Headers struct {
	RequestID string
	HIPID     string
	HIUID     string
	LinkToken string
}

// Client posts JSON payloads to the consent manager gateway. Every call is
// authenticated with a session token from the broker; a 401 invalidates the
// token and retries once.
type Client struct {
	baseURL string
	cmID    string
	broker  *TokenBroker
	client  *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL, cmID string, broker *TokenBroker, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cmID:    cmID,
		broker:  broker,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Post sends payload to path and returns the response body. Non-2xx
// responses become errors carrying the gateway's extracted message.
func (c *Client) Post(ctx context.Context, path string, payload any, h Headers) ([]byte, error) {
	body, err := c.post(ctx, path, payload, h, true)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, h Headers, retryAuth bool) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}

	token, err := c.broker.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session token: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CM-ID", c.cmID)

	// v3 endpoints correlate on headers; v0.5 bodies carry requestId.
	if strings.HasPrefix(path, "/v3/") {
		rid := h.RequestID
		if rid == "" {
			rid = uuid.NewString()
		}
		req.Header.Set("REQUEST-ID", rid)
		req.Header.Set("TIMESTAMP", Timestamp(time.Now()))
	}
	if h.HIPID != "" {
		req.Header.Set("X-HIP-ID", h.HIPID)
	}
	if h.HIUID != "" {
		req.Header.Set("X-HIU-ID", h.HIUID)
	}
	if h.LinkToken != "" {
		req.Header.Set("X-LINK-TOKEN", h.LinkToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && retryAuth {
		c.logger.Warn().Str("path", path).Msg("gateway rejected session token, refreshing and retrying")
		c.broker.Invalidate(ctx)
		return c.post(ctx, path, payload, h, false)
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway %s returned %d: %s", path, resp.StatusCode, ExtractError(body))
	}

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("gateway call")
	return body, nil
}

// ExtractError digs the human readable message out of the gateway's error
// envelope, which nests inconsistently across endpoints.
func ExtractError(body []byte) string {
	const fallback = "unknown error from the gateway, try again later"

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			return s
		}
		return fallback
	}
	return extractError(parsed, fallback)
}

func extractError(v any, fallback string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if inner, ok := val["error"]; ok {
			return extractError(inner, fallback)
		}
		if msg, ok := val["message"].(string); ok {
			return msg
		}
		delete(val, "code")
		delete(val, "timestamp")
		if len(val) == 1 {
			for _, field := range val {
				return fmt.Sprintf("%v", field)
			}
		}
	}
	return fallback
}
