package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/google/uuid"
)

const (
	// DeviceSecretSize is the length of the per-device random secret
	DeviceSecretSize = 32

	secretKeyDevice   = "device_secret"
	secretKeyInstance = "instance_id"
)

// ErrCorruptDeviceSecret means a stored device secret has the wrong length.
// It is never regenerated automatically since that would orphan every
// credential encrypted under it.
var ErrCorruptDeviceSecret = errors.New("stored device secret is corrupt")

// EntropyStore persists device-local key material.
// GetSecret returns storage.ErrNotFound for missing keys.
type EntropyStore interface {
	GetSecret(key string) ([]byte, error)
	PutSecret(key string, value []byte) error
}

// Entropy is the local input to credential key derivation
type Entropy struct {
	// InstanceID identifies this installation; it is not secret
	InstanceID string

	// DeviceSecret never leaves the device
	DeviceSecret []byte
}

func (e *Entropy) material() []byte {
	m := make([]byte, 0, len(e.InstanceID)+1+len(e.DeviceSecret))
	m = append(m, e.InstanceID...)
	m = append(m, ':')
	m = append(m, e.DeviceSecret...)
	return m
}

// LoadEntropy reads the instance identity and device secret, generating and
// persisting each one the first time it is needed
func LoadEntropy(store EntropyStore) (*Entropy, error) {
	secret, err := loadOrCreate(store, secretKeyDevice, func() ([]byte, error) {
		b := make([]byte, DeviceSecretSize)
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return nil, fmt.Errorf("failed to generate device secret: %w", err)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if len(secret) != DeviceSecretSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptDeviceSecret, len(secret))
	}

	instanceID, err := loadOrCreate(store, secretKeyInstance, func() ([]byte, error) {
		return []byte(uuid.NewString()), nil
	})
	if err != nil {
		return nil, err
	}

	return &Entropy{
		InstanceID:   string(instanceID),
		DeviceSecret: secret,
	}, nil
}

func loadOrCreate(store EntropyStore, key string, create func() ([]byte, error)) ([]byte, error) {
	value, err := store.GetSecret(key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	value, err = create()
	if err != nil {
		return nil, err
	}
	if err := store.PutSecret(key, value); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", key, err)
	}
	return value, nil
}
