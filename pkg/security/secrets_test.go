package security

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntropy(seed byte) *Entropy {
	return &Entropy{
		InstanceID:   "instance-test",
		DeviceSecret: bytes.Repeat([]byte{seed}, DeviceSecretSize),
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	codec := NewCodecWithEntropy(testEntropy(1))

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "simple password", plaintext: "secret"},
		{name: "single character", plaintext: "x"},
		{name: "unicode", plaintext: "pässwörd-密码-🔑"},
		{name: "whitespace preserved", plaintext: "  padded  "},
		{name: "long", plaintext: strings.Repeat("abc123", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret, err := codec.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if secret.Version != CurrentVersion {
				t.Errorf("Encrypt() version = %d, want %d", secret.Version, CurrentVersion)
			}

			got, err := codec.Decrypt(secret)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("Decrypt() = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptEmpty(t *testing.T) {
	codec := NewCodecWithEntropy(testEntropy(1))

	_, err := codec.Encrypt("")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEncryptUsesFreshIV(t *testing.T) {
	codec := NewCodecWithEntropy(testEntropy(1))

	first, err := codec.Encrypt("same-password")
	require.NoError(t, err)
	second, err := codec.Encrypt("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)

	iv, err := base64.StdEncoding.DecodeString(first.IV)
	require.NoError(t, err)
	assert.Len(t, iv, 12)
}

func TestDecryptTampered(t *testing.T) {
	codec := NewCodecWithEntropy(testEntropy(1))

	secret, err := codec.Encrypt("secret")
	require.NoError(t, err)

	ciphertext, _ := base64.StdEncoding.DecodeString(secret.Ciphertext)
	iv, _ := base64.StdEncoding.DecodeString(secret.IV)

	for i := range ciphertext {
		tampered := bytes.Clone(ciphertext)
		tampered[i] ^= 0x01
		_, err := codec.Decrypt(&EncryptedSecret{
			Ciphertext: base64.StdEncoding.EncodeToString(tampered),
			IV:         secret.IV,
			Version:    secret.Version,
		})
		if !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("flipping ciphertext byte %d: error = %v, want ErrDecryptionFailed", i, err)
		}
	}

	for i := range iv {
		tampered := bytes.Clone(iv)
		tampered[i] ^= 0x80
		_, err := codec.Decrypt(&EncryptedSecret{
			Ciphertext: secret.Ciphertext,
			IV:         base64.StdEncoding.EncodeToString(tampered),
			Version:    secret.Version,
		})
		if !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("flipping iv byte %d: error = %v, want ErrDecryptionFailed", i, err)
		}
	}
}

func TestDecryptFromOtherDevice(t *testing.T) {
	here := NewCodecWithEntropy(testEntropy(1))
	elsewhere := NewCodecWithEntropy(testEntropy(2))

	secret, err := elsewhere.Encrypt("secret")
	require.NoError(t, err)

	_, err = here.Decrypt(secret)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptOtherInstanceSameSecret(t *testing.T) {
	a := NewCodecWithEntropy(&Entropy{InstanceID: "a", DeviceSecret: testEntropy(1).DeviceSecret})
	b := NewCodecWithEntropy(&Entropy{InstanceID: "b", DeviceSecret: testEntropy(1).DeviceSecret})

	secret, err := a.Encrypt("secret")
	require.NoError(t, err)

	_, err = b.Decrypt(secret)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptMalformed(t *testing.T) {
	codec := NewCodecWithEntropy(testEntropy(1))
	valid, err := codec.Encrypt("secret")
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret *EncryptedSecret
		want   error
	}{
		{name: "nil", secret: nil, want: ErrMalformedInput},
		{name: "missing ciphertext", secret: &EncryptedSecret{IV: valid.IV, Version: 1}, want: ErrMalformedInput},
		{name: "missing iv", secret: &EncryptedSecret{Ciphertext: valid.Ciphertext, Version: 1}, want: ErrMalformedInput},
		{name: "ciphertext not base64", secret: &EncryptedSecret{Ciphertext: "%%%", IV: valid.IV, Version: 1}, want: ErrMalformedInput},
		{name: "iv wrong length", secret: &EncryptedSecret{Ciphertext: valid.Ciphertext, IV: base64.StdEncoding.EncodeToString([]byte("short")), Version: 1}, want: ErrMalformedInput},
		{name: "future version", secret: &EncryptedSecret{Ciphertext: valid.Ciphertext, IV: valid.IV, Version: CurrentVersion + 1}, want: ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decrypt(tt.secret)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestDecryptUnversioned(t *testing.T) {
	codec := NewCodecWithEntropy(testEntropy(1))
	secret, err := codec.Encrypt("secret")
	require.NoError(t, err)

	secret.Version = 0
	got, err := codec.Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}

func TestDeriveKey(t *testing.T) {
	a := NewCodecWithEntropy(testEntropy(1))
	b := NewCodecWithEntropy(testEntropy(1))
	c := NewCodecWithEntropy(testEntropy(2))

	keyA, err := a.DeriveKey()
	require.NoError(t, err)
	assert.Len(t, keyA, 32)

	again, err := a.DeriveKey()
	require.NoError(t, err)
	assert.Same(t, &keyA[0], &again[0], "derived key should be cached")

	keyB, err := b.DeriveKey()
	require.NoError(t, err)
	assert.Equal(t, keyA, keyB, "same entropy must derive the same key")

	keyC, err := c.DeriveKey()
	require.NoError(t, err)
	assert.NotEqual(t, keyA, keyC)
}

func TestDeriveKeyFailureNotCached(t *testing.T) {
	calls := 0
	codec := &Codec{entropy: func() (*Entropy, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("store unavailable")
		}
		return testEntropy(1), nil
	}}

	_, err := codec.DeriveKey()
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = codec.Encrypt("secret")
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestIsEncrypted(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "encrypted object", raw: `{"ciphertext":"YWJj","iv":"ZGVm","version":1}`, want: true},
		{name: "no version", raw: `{"ciphertext":"YWJj","iv":"ZGVm"}`, want: true},
		{name: "legacy plaintext string", raw: `"hunter2"`, want: false},
		{name: "empty ciphertext", raw: `{"ciphertext":"","iv":"ZGVm"}`, want: false},
		{name: "missing iv", raw: `{"ciphertext":"YWJj"}`, want: false},
		{name: "non-string iv", raw: `{"ciphertext":"YWJj","iv":12}`, want: false},
		{name: "null", raw: `null`, want: false},
		{name: "array", raw: `["YWJj","ZGVm"]`, want: false},
		{name: "invalid json", raw: `{`, want: false},
		{name: "empty", raw: ``, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsEncrypted(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("IsEncrypted(%s) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLoadEntropy(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first, err := LoadEntropy(store)
	require.NoError(t, err)
	assert.Len(t, first.DeviceSecret, DeviceSecretSize)
	assert.NotEmpty(t, first.InstanceID)

	second, err := LoadEntropy(store)
	require.NoError(t, err)
	assert.Equal(t, first, second, "entropy must be stable once created")
}

func TestLoadEntropyCorruptSecret(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutSecret(secretKeyDevice, []byte("too-short")))

	_, err = LoadEntropy(store)
	assert.ErrorIs(t, err, ErrCorruptDeviceSecret)

	value, err := store.GetSecret(secretKeyDevice)
	require.NoError(t, err)
	assert.Equal(t, []byte("too-short"), value, "corrupt secret must not be overwritten")
}

func TestCodecFromStore(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	secret, err := NewCodec(store).Encrypt("secret")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// A new process on the same device derives the same key
	reopened, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := NewCodec(reopened).Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}
