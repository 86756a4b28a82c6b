package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer encrypts short identifiers with AES-GCM. Ciphertexts are
// base64(nonce || sealed). Tag gives the same identifier a stable keyed
// hash so sealed rows can be found without opening them.
type Sealer struct {
	aead   cipher.AEAD
	tagKey []byte
}

// KeyFrom returns a 32-byte key for AES-GCM.
// Priority:
// 1) encKey (base64-encoded 32 bytes)
// 2) Derive from jwtSecret (sha256)
func KeyFrom(encKey, jwtSecret string) ([]byte, error) {
	if v := strings.TrimSpace(encKey); v != "" {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("decode ANON_ENC_KEY: %w", err)
		}
		if len(b) != 32 {
			return nil, errors.New("ANON_ENC_KEY must decode to 32 bytes")
		}
		return b, nil
	}
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("no key material: set ANON_ENC_KEY or JWT_SECRET")
	}
	sum := sha256.Sum256([]byte(jwtSecret))
	return sum[:], nil
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	tagKey := sha256.Sum256(append([]byte("reporter-tag:"), key...))
	return &Sealer{aead: gcm, tagKey: tagKey[:]}, nil
}

// Tag returns hex(HMAC-SHA256(plaintext)) under a key derived from the
// sealing key.
func (s *Sealer) Tag(plaintext string) string {
	mac := hmac.New(sha256.New, s.tagKey)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	payload := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(payload), nil
}

func (s *Sealer) Open(ciphertextB64 string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", err
	}
	ns := s.aead.NonceSize()
	if len(payload) < ns {
		return "", errors.New("ciphertext too short")
	}
	nonce, ct := payload[:ns], payload[ns:]

	pt, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
