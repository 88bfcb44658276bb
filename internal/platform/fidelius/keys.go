// Package fidelius implements the ECDH key agreement scheme used for
// health information exchange: Curve25519 key pairs, HKDF-SHA256 key
// derivation salted with the XOR of both parties' nonces, and AES-256-GCM
// for the payload itself.
package fidelius

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

const (
	Algorithm = "ECDH"
	Curve     = "Curve25519"
)

// KeyMaterial is one party's half of the key agreement. All fields are
// base64 encoded; PrivateKey never leaves the process.
type KeyMaterial struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
	Nonce      string `json:"nonce"`
}

// GenerateKeyMaterial creates a fresh Curve25519 key pair and a 32-byte
// random nonce.
func GenerateKeyMaterial() (*KeyMaterial, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return nil, fmt.Errorf("fidelius: generate private key: %w", err)
	}

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("fidelius: derive public key: %w", err)
	}

	nonce := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("fidelius: generate nonce: %w", err)
	}

	return &KeyMaterial{
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// decodePublicKey accepts either a raw 32-byte Curve25519 key or an X.509
// DER encoding of one, both base64. Some exchange participants send the
// DER form; the raw key is its trailing 32 bytes.
func decodePublicKey(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("fidelius: decode public key: %w", err)
	}
	if len(raw) < curve25519.PointSize {
		return nil, fmt.Errorf("fidelius: public key too short: %d bytes", len(raw))
	}
	return raw[len(raw)-curve25519.PointSize:], nil
}

func decodeNonce(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("fidelius: decode nonce: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("fidelius: nonce must be 32 bytes, got %d", len(raw))
	}
	return raw, nil
}
