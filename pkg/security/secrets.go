package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// CurrentVersion tags secrets written by this build.
	// Bump it together with kdfSalt or the cipher when either changes.
	CurrentVersion = 1

	// KDFIterations is the PBKDF2 work factor for the credential key
	KDFIterations = 210000

	keyLength = 32 // AES-256
	ivSize    = 12 // standard GCM nonce
)

// kdfSalt separates the credential key from any other use of the same entropy
var kdfSalt = []byte("burrow/credential-key/v1")

var (
	ErrInvalidInput     = errors.New("invalid input: plaintext must be a non-empty string")
	ErrMalformedInput   = errors.New("malformed encrypted secret")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrKeyUnavailable   = errors.New("credential key unavailable")

	// ErrUnsupportedVersion also matches ErrMalformedInput
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrMalformedInput)
)

// EncryptedSecret is the at-rest form of a credential.
// Ciphertext includes the GCM tag; both binary fields are base64 encoded.
type EncryptedSecret struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Version    int    `json:"version"`
}

// Codec encrypts and decrypts short secrets with AES-256-GCM.
// The key is derived once from device entropy and cached for the life of
// the Codec; a failed derivation is retried on the next call.
type Codec struct {
	entropy func() (*Entropy, error)

	mu  sync.Mutex
	key []byte
}

// NewCodec creates a codec that loads (or creates) its entropy from store
func NewCodec(store EntropyStore) *Codec {
	return &Codec{
		entropy: func() (*Entropy, error) {
			return LoadEntropy(store)
		},
	}
}

// NewCodecWithEntropy creates a codec bound to fixed entropy
func NewCodecWithEntropy(e *Entropy) *Codec {
	return &Codec{
		entropy: func() (*Entropy, error) {
			return e, nil
		},
	}
}

// DeriveKey returns the AES-256 key, deriving it on first use
func (c *Codec) DeriveKey() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	e, err := c.entropy()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	c.key = pbkdf2.Key(e.material(), kdfSalt, KDFIterations, keyLength, sha256.New)
	return c.key, nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	key, err := c.DeriveKey()
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under a fresh random IV
func (c *Codec) Encrypt(plaintext string) (*EncryptedSecret, error) {
	if plaintext == "" {
		return nil, ErrInvalidInput
	}

	gcm, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("%w: failed to generate iv: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nil, iv, []byte(plaintext), nil)

	return &EncryptedSecret{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Version:    CurrentVersion,
	}, nil
}

// Decrypt opens a secret produced by Encrypt.
// A secret sealed under another device's key, or altered in any way, fails
// with ErrDecryptionFailed.
func (c *Codec) Decrypt(secret *EncryptedSecret) (string, error) {
	if secret == nil || secret.Ciphertext == "" || secret.IV == "" {
		return "", fmt.Errorf("%w: missing ciphertext or iv", ErrMalformedInput)
	}

	// Version 0 predates the tag and was written with the v1 scheme
	if secret.Version > CurrentVersion || secret.Version < 0 {
		return "", fmt.Errorf("%w %d", ErrUnsupportedVersion, secret.Version)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(secret.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not base64", ErrMalformedInput)
	}
	iv, err := base64.StdEncoding.DecodeString(secret.IV)
	if err != nil {
		return "", fmt.Errorf("%w: iv is not base64", ErrMalformedInput)
	}
	if len(iv) != ivSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedInput, ivSize, len(iv))
	}

	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether raw is a JSON object carrying non-empty
// ciphertext and iv strings. It never attempts decryption.
func IsEncrypted(raw json.RawMessage) bool {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}

	ciphertext, ok := fields["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return false
	}
	iv, ok := fields["iv"].(string)
	return ok && iv != ""
}

// ParseEncrypted decodes raw into an EncryptedSecret
func ParseEncrypted(raw json.RawMessage) (*EncryptedSecret, error) {
	if !IsEncrypted(raw) {
		return nil, ErrMalformedInput
	}
	var secret EncryptedSecret
	if err := json.Unmarshal(raw, &secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return &secret, nil
}
