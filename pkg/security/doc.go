/*
Package security provides at-rest credential encryption and TLS helpers for
Burrow.

Appliance passwords are the only secrets Burrow holds. They are stored in the
local bbolt database, and this package makes sure the stored form is always
ciphertext that can only be opened on the device that wrote it.

# Architecture

	┌──────────────────── CREDENTIAL CODEC ─────────────────────┐
	│                                                             │
	│   secrets bucket                                            │
	│   ┌───────────────┐   ┌──────────────────┐                 │
	│   │ instance_id   │   │ device_secret    │                 │
	│   │ (uuid, public)│   │ (32 random bytes)│                 │
	│   └──────┬────────┘   └────────┬─────────┘                 │
	│          └──────────┬──────────┘                            │
	│                     ▼                                       │
	│        instanceID ":" deviceSecret                          │
	│                     │                                       │
	│                     ▼                                       │
	│   PBKDF2-SHA256 (210000 iterations, fixed salt)             │
	│                     │                                       │
	│                     ▼                                       │
	│            32-byte key (cached)                             │
	│                     │                                       │
	│                     ▼                                       │
	│   AES-256-GCM, fresh 12-byte IV per Encrypt                 │
	│                     │                                       │
	│                     ▼                                       │
	│   {"ciphertext": b64, "iv": b64, "version": 1}              │
	└─────────────────────────────────────────────────────────────┘

# Key Derivation

The key is derived from two local entropy sources:

  - instance_id: a UUID generated on first run. It is not secret; it gives
    every installation its own key even if the device secret generator were
    weak.
  - device_secret: 32 bytes from crypto/rand, generated on first run and
    never transmitted.

Both are created lazily by LoadEntropy and never change afterwards. A device
secret of the wrong length is reported as ErrCorruptDeviceSecret and left in
place; regenerating it would silently orphan every stored credential.

Derivation is slow on purpose and is done once per Codec. A failed derivation
(for example, the database could not be read) is not cached.

# Encrypted Secrets

	type EncryptedSecret struct {
	    Ciphertext string // base64, includes the GCM tag
	    IV         string // base64, 12 bytes
	    Version    int    // key derivation and cipher generation
	}

Version 0 is treated as version 1 for blobs written before the field existed.
Anything newer than CurrentVersion fails with ErrUnsupportedVersion rather
than being decrypted under the wrong scheme.

# Errors

	ErrInvalidInput       Encrypt called with an empty plaintext
	ErrEncryptionFailed   key or IV could not be produced
	ErrMalformedInput     missing fields, bad base64, wrong IV length
	ErrUnsupportedVersion version newer than this build (also ErrMalformedInput)
	ErrDecryptionFailed   authentication failed: wrong device, tampered data
	ErrKeyUnavailable     entropy could not be loaded

ErrDecryptionFailed never carries partial plaintext. Callers are expected to
degrade on it (package credentials omits the password) rather than abort.

# Legacy Plaintext

Early records stored passwords as bare JSON strings. IsEncrypted tells the
two apart structurally without attempting decryption:

	security.IsEncrypted(json.RawMessage(`"hunter2"`))                 // false
	security.IsEncrypted(json.RawMessage(`{"ciphertext":"..","iv":".."}`)) // true

# Usage

	store, _ := storage.NewBoltStore(dataDir)
	codec := security.NewCodec(store)

	secret, err := codec.Encrypt("admin-password")
	if err != nil {
	    return err
	}

	plaintext, err := codec.Decrypt(secret)
	if errors.Is(err, security.ErrDecryptionFailed) {
	    // written on another device or corrupted
	}

# TLS

ClientTLSConfig builds the tls.Config used by the appliance client. A custom
CA bundle can be supplied for appliances with self-signed certificates, and
verification can be disabled entirely for lab setups.

# Thread Safety

Codec is safe for concurrent use. Key derivation is serialized by a mutex and
every Encrypt call draws its own IV.
*/
package security
