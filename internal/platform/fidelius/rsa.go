package fidelius

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// CertEncryptor fetches the consent manager's RSA public key and encrypts
// sensitive request values (OTPs, login identifiers) with RSA-OAEP-SHA1,
// which is what the identity service expects. The key is cached for an hour.
type CertEncryptor struct {
	certURL string
	client  *http.Client
	ttl     time.Duration

	mu        sync.RWMutex
	key       *rsa.PublicKey
	fetchedAt time.Time
}

func NewCertEncryptor(certURL string, timeout time.Duration) *CertEncryptor {
	return &CertEncryptor{
		certURL: certURL,
		client:  &http.Client{Timeout: timeout},
		ttl:     time.Hour,
	}
}

// Encrypt returns the base64 RSA-OAEP-SHA1 encryption of value under the
// consent manager's current public key.
func (e *CertEncryptor) Encrypt(ctx context.Context, value string) (string, error) {
	key, err := e.publicKey(ctx)
	if err != nil {
		return "", err
	}

	encrypted, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, key, []byte(value), nil)
	if err != nil {
		return "", fmt.Errorf("fidelius: rsa encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

func (e *CertEncryptor) publicKey(ctx context.Context) (*rsa.PublicKey, error) {
	e.mu.RLock()
	if e.key != nil && time.Since(e.fetchedAt) < e.ttl {
		key := e.key
		e.mu.RUnlock()
		return key, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.key != nil && time.Since(e.fetchedAt) < e.ttl {
		return e.key, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fidelius: build cert request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fidelius: fetch cert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fidelius: fetch cert: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("fidelius: read cert: %w", err)
	}

	key, err := parsePublicKeyPEM(string(body))
	if err != nil {
		return nil, err
	}

	e.key = key
	e.fetchedAt = time.Now()
	return key, nil
}

// parsePublicKeyPEM handles both a bare PEM public key and the same with
// literal "\n" escapes, which the cert endpoint has been known to return.
func parsePublicKeyPEM(raw string) (*rsa.PublicKey, error) {
	raw = strings.ReplaceAll(raw, `\n`, "\n")
	raw = strings.TrimSpace(raw)

	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, fmt.Errorf("fidelius: no PEM block in cert response")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("fidelius: parse public key: %w", err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("fidelius: cert is not an RSA key")
	}
	return key, nil
}
