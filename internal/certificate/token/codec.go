// Package token encodes certificate references into the opaque text carried
// by verification QR codes, and decodes them back.
package token

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	apperrors "certificate-workers/internal/common/errors"
	"certificate-workers/internal/common/validation"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest pre-shared secret NewCodec accepts.
const MinSecretLength = 16

var (
	keyInfo   = []byte("certificate-verification-token/v1")
	tokenAAD  = []byte("certificate-token")
	minSealed = chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
)

// Payload is the plaintext of a verification token.
// Timestamp is the creation time in epoch milliseconds.
type Payload struct {
	CertificateID uint64 `json:"id"`
	Timestamp     int64  `json:"timestamp"`
}

var payloadSchema = validation.MustCompile(validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"id":        {Type: "integer", Minimum: validation.Float(1)},
		"timestamp": {Type: "integer", Minimum: validation.Float(0)},
	},
	Required:             []string{"id", "timestamp"},
	AdditionalProperties: false,
})

// Codec seals payloads with XChaCha20-Poly1305 under a key derived from a
// pre-shared secret. The zero value is not usable.
type Codec struct {
	aead cipher.AEAD
	now  func() time.Time
}

// NewCodec derives the token key from secret with HKDF-SHA256.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, keyInfo), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	return &Codec{aead: aead, now: time.Now}, nil
}

// Issue encodes a fresh token for certificateID stamped with the current time.
func (c *Codec) Issue(certificateID uint64) (string, error) {
	return c.Encode(Payload{CertificateID: certificateID, Timestamp: c.now().UnixMilli()})
}

// Encode serializes p deterministically and seals it. Payloads that Decode
// would reject are refused here too.
func (c *Codec) Encode(p Payload) (string, error) {
	if p.CertificateID == 0 {
		return "", apperrors.NewValidationError("token certificate id must be positive")
	}
	if p.Timestamp < 0 {
		return "", apperrors.NewValidationError("token timestamp must not be negative")
	}

	plaintext, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	return c.seal(plaintext)
}

func (c *Codec) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate token nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, tokenAAD)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode authenticates and parses a token. Every failure, whether malformed
// text, a foreign key, tampering or a payload of the wrong shape, is reported
// as a TOKEN_DECODE_FAILED error. The timestamp is not checked against the
// clock.
func (c *Codec) Decode(text string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return Payload{}, apperrors.NewTokenDecodeError(fmt.Errorf("token is not base64url: %w", err))
	}
	if len(raw) < minSealed {
		return Payload{}, apperrors.NewTokenDecodeError(fmt.Errorf("token too short: %d bytes", len(raw)))
	}

	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, tokenAAD)
	if err != nil {
		return Payload{}, apperrors.NewTokenDecodeError(fmt.Errorf("token authentication failed"))
	}

	if res := payloadSchema.ValidateBytes(plaintext); !res.Valid {
		return Payload{}, apperrors.NewTokenDecodeError(fmt.Errorf("token payload invalid: %s", strings.Join(res.GetErrorMessages(), "; ")))
	}

	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return Payload{}, apperrors.NewTokenDecodeError(fmt.Errorf("token payload invalid: %w", err))
	}
	return p, nil
}
