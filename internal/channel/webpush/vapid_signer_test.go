package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"
)

// newClientSubscription mints a browser-side P-256 keypair and auth
// secret, mirroring what the Push API's subscribe() call would hand the
// server, so tests can decrypt what Sign actually encrypts.
func newClientSubscription(t *testing.T, endpoint string) (Subscription, *ecdh.PrivateKey) {
	t.Helper()
	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authSecret := make([]byte, 16)
	_, err = io.ReadFull(rand.Reader, authSecret)
	require.NoError(t, err)

	return Subscription{
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(clientKey.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(authSecret),
	}, clientKey
}

// decryptAES128GCM reverses encryptPayload from the browser's side of
// RFC 8291, given the client's own private key and auth secret.
func decryptAES128GCM(t *testing.T, sub Subscription, clientKey *ecdh.PrivateKey, body []byte) []byte {
	t.Helper()
	require.Greater(t, len(body), 21)

	salt := body[:16]
	idLen := int(body[20])
	asPub := body[21 : 21+idLen]
	ciphertext := body[21+idLen:]

	asKey, err := ecdh.P256().NewPublicKey(asPub)
	require.NoError(t, err)
	ecdhSecret, err := clientKey.ECDH(asKey)
	require.NoError(t, err)

	clientPub, err := base64.RawURLEncoding.DecodeString(sub.P256dh)
	require.NoError(t, err)
	authSecret, err := base64.RawURLEncoding.DecodeString(sub.Auth)
	require.NoError(t, err)

	authInfo := append([]byte("WebPush: info\x00"), clientPub...)
	authInfo = append(authInfo, asPub...)

	prkKey := hkdf.Extract(sha256.New, ecdhSecret, authSecret)
	ikm := hkdfExpand(prkKey, authInfo, 32)
	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek := hkdfExpand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	nonce := hkdfExpand(prk, []byte("Content-Encoding: nonce\x00"), 12)

	block, err := aes.NewCipher(cek)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	padded, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)

	require.Equal(t, byte(0x02), padded[len(padded)-1])
	return padded[:len(padded)-1]
}

func TestGenerateVAPIDKeyPair_RoundTrips(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeyPair()
	require.NoError(t, err)
	require.NotEmpty(t, pub)
	require.NotEmpty(t, priv)

	signer, err := NewVAPIDSigner("mailto:ops@waitline.example", pub, priv)
	require.NoError(t, err)
	assert.NotNil(t, signer)
}

func TestNewVAPIDSigner_RejectsGarbagePEM(t *testing.T) {
	_, err := NewVAPIDSigner("mailto:ops@waitline.example", "pub", "not a pem block")
	require.Error(t, err)
}

func TestVAPIDSigner_Sign(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeyPair()
	require.NoError(t, err)

	signer, err := NewVAPIDSigner("mailto:ops@waitline.example", pub, priv)
	require.NoError(t, err)

	sub, clientKey := newClientSubscription(t, "https://push.example.com/abc/def/123")
	plaintext := []byte(`{"title":"hi"}`)
	authHeader, body, err := signer.Sign(sub, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, body, "payload must be encrypted, not passed through")
	assert.True(t, strings.HasPrefix(authHeader, "vapid t="))
	assert.Contains(t, authHeader, "k="+pub)

	decrypted := decryptAES128GCM(t, sub, clientKey, body)
	assert.Equal(t, plaintext, decrypted)

	tokenStr := strings.TrimPrefix(strings.SplitN(authHeader, ", k=", 2)[0], "vapid t=")
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		return &signer.privateKey.PublicKey, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "https://push.example.com", claims["aud"])
	assert.Equal(t, "mailto:ops@waitline.example", claims["sub"])
}

func TestVAPIDSigner_Sign_UniqueSaltPerCall(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeyPair()
	require.NoError(t, err)
	signer, err := NewVAPIDSigner("mailto:ops@waitline.example", pub, priv)
	require.NoError(t, err)

	sub, _ := newClientSubscription(t, "https://push.example.com/abc/def/123")
	_, body1, err := signer.Sign(sub, []byte("payload"))
	require.NoError(t, err)
	_, body2, err := signer.Sign(sub, []byte("payload"))
	require.NoError(t, err)

	assert.NotEqual(t, body1, body2, "identical plaintext must not produce identical ciphertext")
}

func TestEndpointOrigin(t *testing.T) {
	assert.Equal(t, "https://push.example.com", endpointOrigin("https://push.example.com/abc/def/123"))
	assert.Equal(t, "https://fcm.googleapis.com", endpointOrigin("https://fcm.googleapis.com/fcm/send/xyz"))
}
