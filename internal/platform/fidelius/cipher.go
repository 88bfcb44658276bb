package fidelius

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// deriveKey computes the AES key and IV shared by sender and receiver.
// The XOR of the two nonces is split: the first 20 bytes salt the HKDF,
// the last 12 bytes become the GCM IV.
func deriveKey(privateKey, peerPublicKey, senderNonce, receiverNonce string) (key, iv []byte, err error) {
	priv, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("fidelius: decode private key: %w", err)
	}
	pub, err := decodePublicKey(peerPublicKey)
	if err != nil {
		return nil, nil, err
	}

	shared, err := curve25519.X25519(priv, pub)
	if err != nil {
		return nil, nil, fmt.Errorf("fidelius: compute shared secret: %w", err)
	}

	sn, err := decodeNonce(senderNonce)
	if err != nil {
		return nil, nil, err
	}
	rn, err := decodeNonce(receiverNonce)
	if err != nil {
		return nil, nil, err
	}

	xored := make([]byte, 32)
	for i := range xored {
		xored[i] = sn[i] ^ rn[i]
	}

	key = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, xored[:20], nil), key); err != nil {
		return nil, nil, fmt.Errorf("fidelius: derive key: %w", err)
	}
	return key, xored[len(xored)-12:], nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fidelius: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fidelius: create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext for the receiver identified by its public key and
// nonce, using the sender's key material. Returns base64 ciphertext.
func Encrypt(sender *KeyMaterial, receiverPublicKey, receiverNonce, plaintext string) (string, error) {
	key, iv, err := deriveKey(sender.PrivateKey, receiverPublicKey, sender.Nonce, receiverNonce)
	if err != nil {
		return "", err
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64 ciphertext sent by the party identified by
// senderPublicKey and senderNonce. A garbled or tampered entry fails the
// GCM tag check and returns an error; the caller decides whether to skip
// the entry or fail the page.
func Decrypt(receiver *KeyMaterial, senderPublicKey, senderNonce, ciphertext string) (string, error) {
	key, iv, err := deriveKey(receiver.PrivateKey, senderPublicKey, receiver.Nonce, senderNonce)
	if err != nil {
		return "", err
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("fidelius: decode ciphertext: %w", err)
	}

	plain, err := aead.Open(nil, iv, raw, nil)
	if err != nil {
		return "", fmt.Errorf("fidelius: decrypt: %w", err)
	}
	return string(plain), nil
}
