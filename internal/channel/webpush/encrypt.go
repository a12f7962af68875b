package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// aes128gcmRecordSize is the single-record size advertised in the
// aes128gcm header; every payload here fits in one record (push
// payloads are capped well under 4KB by the push services themselves).
const aes128gcmRecordSize = 4096

// encryptPayload implements RFC 8291 message encryption: an ECDH key
// agreement between a fresh per-message keypair and the subscription's
// p256dh key, HKDF-derived content encryption key and nonce salted with
// the subscription's auth secret, sealed with AES-128-GCM and framed per
// RFC 8188's aes128gcm content-coding.
func encryptPayload(sub Subscription, plaintext []byte) ([]byte, error) {
	clientPub, err := base64.RawURLEncoding.DecodeString(sub.P256dh)
	if err != nil {
		return nil, fmt.Errorf("webpush: decode p256dh: %w", err)
	}
	authSecret, err := base64.RawURLEncoding.DecodeString(sub.Auth)
	if err != nil {
		return nil, fmt.Errorf("webpush: decode auth secret: %w", err)
	}

	curve := ecdh.P256()
	uaKey, err := curve.NewPublicKey(clientPub)
	if err != nil {
		return nil, fmt.Errorf("webpush: invalid subscription public key: %w", err)
	}
	asPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("webpush: generate ephemeral key: %w", err)
	}
	ecdhSecret, err := asPriv.ECDH(uaKey)
	if err != nil {
		return nil, fmt.Errorf("webpush: ecdh: %w", err)
	}
	asPub := asPriv.PublicKey().Bytes()

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("webpush: generate salt: %w", err)
	}

	authInfo := make([]byte, 0, len("WebPush: info\x00")+len(clientPub)+len(asPub))
	authInfo = append(authInfo, "WebPush: info\x00"...)
	authInfo = append(authInfo, clientPub...)
	authInfo = append(authInfo, asPub...)

	prkKey := hkdf.Extract(sha256.New, ecdhSecret, authSecret)
	ikm := hkdfExpand(prkKey, authInfo, 32)
	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek := hkdfExpand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	nonce := hkdfExpand(prk, []byte("Content-Encoding: nonce\x00"), 12)

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("webpush: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("webpush: build gcm: %w", err)
	}

	// Single-record delimiter: 0x02 marks the last (and only) record.
	padded := make([]byte, 0, len(plaintext)+1)
	padded = append(padded, plaintext...)
	padded = append(padded, 0x02)
	ciphertext := gcm.Seal(nil, nonce, padded, nil)

	header := make([]byte, 16+4+1+len(asPub))
	copy(header, salt)
	binary.BigEndian.PutUint32(header[16:20], aes128gcmRecordSize)
	header[20] = byte(len(asPub))
	copy(header[21:], asPub)

	return append(header, ciphertext...), nil
}

func hkdfExpand(prk, info []byte, length int) []byte {
	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, prk, info)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(fmt.Sprintf("webpush: hkdf expand: %v", err))
	}
	return out
}
