package webpush

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VAPIDSigner signs push requests per RFC 8292 with a VAPID JWT and
// encrypts the payload per RFC 8291 (see encrypt.go), since no web-push
// client library appears anywhere in the retrieval pack (see DESIGN.md).
type VAPIDSigner struct {
	subject    string
	publicKey  string
	privateKey *ecdsa.PrivateKey
}

// NewVAPIDSigner parses a PEM-encoded EC private key and builds a
// signer that authenticates as subject (a mailto: or https: URI, per
// RFC 8292 §2).
func NewVAPIDSigner(subject, publicKey, privateKeyPEM string) (*VAPIDSigner, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("webpush: invalid VAPID private key PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("webpush: parse VAPID private key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("webpush: VAPID key must be on the P-256 curve")
	}
	return &VAPIDSigner{subject: subject, publicKey: publicKey, privateKey: key}, nil
}

// GenerateVAPIDKeyPair creates a fresh P-256 key pair, PEM-encoded, for
// operators bootstrapping a new deployment's config.
func GenerateVAPIDKeyPair() (publicKeyB64, privateKeyPEM string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", err
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	ecdhKey, err := key.ECDH()
	if err != nil {
		return "", "", err
	}
	pub := ecdhKey.PublicKey().Bytes()
	return base64.RawURLEncoding.EncodeToString(pub), string(pemBytes), nil
}

// Sign implements Signer. It signs a short-lived ES256 JWT naming aud
// (the push service origin) and sub, and encrypts payload per RFC 8291
// against the subscription's p256dh/auth keys.
func (v *VAPIDSigner) Sign(sub Subscription, payload []byte) (string, []byte, error) {
	claims := jwt.MapClaims{
		"aud": endpointOrigin(sub.Endpoint),
		"exp": time.Now().Add(12 * time.Hour).Unix(),
		"sub": v.subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(v.privateKey)
	if err != nil {
		return "", nil, fmt.Errorf("webpush: sign VAPID jwt: %w", err)
	}
	authHeader := fmt.Sprintf("vapid t=%s, k=%s", signed, v.publicKey)

	encrypted, err := encryptPayload(sub, payload)
	if err != nil {
		return "", nil, err
	}
	return authHeader, encrypted, nil
}

func endpointOrigin(endpoint string) string {
	slashes := 0
	for i, r := range endpoint {
		if r == '/' {
			slashes++
			if slashes == 3 {
				return endpoint[:i]
			}
		}
	}
	return endpoint
}
