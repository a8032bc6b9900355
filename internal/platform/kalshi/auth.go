package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Signer produces the KALSHI-ACCESS-* headers for REST and WebSocket
// requests. A nil *Signer signs nothing.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewSigner parses a PEM-encoded RSA private key (PKCS8, falling back to
// PKCS1) for the given API key id.
func NewSigner(keyID string, pemBytes []byte) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block found in private key")
	}

	var rsaKey *rsa.PrivateKey
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		rsaKey = pkcs1Key
	} else {
		var ok bool
		rsaKey, ok = key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi: expected RSA private key, got %T", key)
		}
	}

	return &Signer{keyID: keyID, key: rsaKey, now: time.Now}, nil
}

// LoadSigner reads the private key from path. An empty keyID or path
// yields a nil signer and no error: the public feed needs no auth.
func LoadSigner(keyID, path string) (*Signer, error) {
	if keyID == "" || path == "" {
		return nil, nil
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: read private key: %w", err)
	}
	return NewSigner(keyID, pemBytes)
}

// Headers signs timestamp+method+path with RSA-PSS SHA-256.
func (s *Signer) Headers(method, path string) (http.Header, error) {
	h := http.Header{}
	if s == nil {
		return h, nil
	}

	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi: RSA sign: %w", err)
	}

	h.Set("KALSHI-ACCESS-KEY", s.keyID)
	h.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return h, nil
}

// verify checks a signature produced by Headers.
func (s *Signer) verify(method, path string, h http.Header) error {
	sig, err := base64.StdEncoding.DecodeString(h.Get("KALSHI-ACCESS-SIGNATURE"))
	if err != nil {
		return fmt.Errorf("kalshi: decode signature: %w", err)
	}
	hash := sha256.Sum256([]byte(h.Get("KALSHI-ACCESS-TIMESTAMP") + method + path))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}
