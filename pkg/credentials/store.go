package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend persists server records
type Backend interface {
	PutServer(rec *types.ServerRecord) error
	GetServer(id string) (*types.ServerRecord, error)
	ListServers() ([]*types.ServerRecord, error)
	DeleteServer(id string) (bool, error)
}

// Codec encrypts and decrypts passwords
type Codec interface {
	Encrypt(plaintext string) (*security.EncryptedSecret, error)
	Decrypt(secret *security.EncryptedSecret) (string, error)
}

// Store owns server records and guarantees that a password is only ever
// written to the backend as an encrypted secret
type Store struct {
	backend Backend
	codec   Codec
	broker  *events.Broker
	logger  zerolog.Logger
	now     func() time.Time

	// mu serializes read-modify-write sequences on records
	mu sync.Mutex
}

// New creates a credential store. broker may be nil.
func New(backend Backend, codec Codec, broker *events.Broker) *Store {
	return &Store{
		backend: backend,
		codec:   codec,
		broker:  broker,
		logger:  log.WithComponent("credentials"),
		now:     time.Now,
	}
}

// MsgPasswordUnreadable explains the empty password Get returns when the
// stored secret cannot be decrypted
const MsgPasswordUnreadable = "Stored password could not be decrypted; save the server again with its password"

// passwordState classifies the stored password of a record
type passwordState int

const (
	passwordAbsent passwordState = iota
	passwordEncrypted
	passwordLegacy
	passwordUnreadable
)

// Get returns the server with its password in plaintext.
// A legacy plaintext password is re-encrypted in the backend before Get
// returns. A password that cannot be decrypted is omitted; Get still
// succeeds. A missing server yields an error matching storage.ErrNotFound.
func (s *Store) Get(id string) (*types.Server, error) {
	rec, err := s.backend.GetServer(id)
	if err != nil {
		return nil, err
	}
	return s.load(rec), nil
}

// List returns every server, applying the same rules as Get
func (s *Store) List() ([]*types.Server, error) {
	records, err := s.backend.ListServers()
	if err != nil {
		return nil, err
	}

	servers := make([]*types.Server, 0, len(records))
	for _, rec := range records {
		servers = append(servers, s.load(rec))
	}
	return servers, nil
}

// load opens rec and, when the password is legacy plaintext, migrates it
func (s *Store) load(rec *types.ServerRecord) *types.Server {
	srv, state := s.open(rec)
	if state == passwordLegacy {
		if _, err := s.migrate(rec.ID); err != nil {
			// The caller still gets the plaintext; the next read retries
			s.logger.Warn().Err(err).Str("server_id", rec.ID).Msg("Failed to encrypt legacy password")
		}
	}
	return srv
}

// open converts a record to a server without side effects other than
// logging and metrics for unreadable passwords
func (s *Store) open(rec *types.ServerRecord) (*types.Server, passwordState) {
	srv := &types.Server{
		ID:        rec.ID,
		Name:      rec.Name,
		Host:      rec.Host,
		Username:  rec.Username,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}

	plaintext, state, err := s.readPassword(rec.Password)
	switch state {
	case passwordEncrypted, passwordLegacy:
		srv.Password = plaintext
	case passwordUnreadable:
		metrics.CredentialDecryptFailures.Inc()
		s.logger.Warn().Err(err).Str("server_id", rec.ID).Msg("Stored password is unreadable, omitting it")
		s.broker.Publish(&events.Event{
			Type:     events.EventCredentialsLost,
			ServerID: rec.ID,
			Message:  "stored password could not be decrypted",
		})
	}
	return srv, state
}

func (s *Store) readPassword(raw json.RawMessage) (string, passwordState, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", passwordAbsent, nil
	}

	if security.IsEncrypted(trimmed) {
		secret, err := security.ParseEncrypted(trimmed)
		if err != nil {
			return "", passwordUnreadable, err
		}
		plaintext, err := s.codec.Decrypt(secret)
		if err != nil {
			return "", passwordUnreadable, err
		}
		return plaintext, passwordEncrypted, nil
	}

	var plaintext string
	if err := json.Unmarshal(trimmed, &plaintext); err != nil {
		return "", passwordUnreadable, fmt.Errorf("%w: password is neither a string nor an encrypted secret", security.ErrMalformedInput)
	}
	if plaintext == "" {
		return "", passwordAbsent, nil
	}
	return plaintext, passwordLegacy, nil
}

// migrate re-reads the record and encrypts its password if it is still
// legacy plaintext. It is safe to call repeatedly and reports whether a
// write happened.
func (s *Store) migrate(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.backend.GetServer(id)
	if err != nil {
		return false, err
	}

	plaintext, state, _ := s.readPassword(rec.Password)
	if state != passwordLegacy {
		return false, nil
	}

	raw, err := s.seal(plaintext)
	if err != nil {
		return false, err
	}
	rec.Password = raw
	if err := s.backend.PutServer(rec); err != nil {
		return false, fmt.Errorf("failed to save migrated record: %w", err)
	}

	metrics.CredentialsMigrated.Inc()
	s.logger.Info().Str("server_id", id).Msg("Encrypted legacy plaintext password")
	s.broker.Publish(&events.Event{
		Type:     events.EventCredentialsMigrated,
		ServerID: id,
	})
	return true, nil
}

// seal encrypts plaintext into its at-rest JSON form
func (s *Store) seal(plaintext string) (json.RawMessage, error) {
	secret, err := s.codec.Encrypt(plaintext)
	if err != nil {
		if errors.Is(err, security.ErrEncryptionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", security.ErrEncryptionFailed, err)
	}
	raw, err := json.Marshal(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", security.ErrEncryptionFailed, err)
	}
	return raw, nil
}

// Save validates srv, encrypts its password and persists it.
// A missing ID is assigned; CreatedAt is kept from an existing record and
// UpdatedAt is set on every save. The returned server carries the plaintext
// password. Nothing is written when validation or encryption fails.
func (s *Store) Save(srv *types.Server) (*types.Server, error) {
	if err := Validate(srv); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *srv
	saved.Name = strings.TrimSpace(srv.Name)
	saved.Host = strings.TrimSpace(srv.Host)
	saved.Username = strings.TrimSpace(srv.Username)
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}

	now := s.now().UTC()
	saved.CreatedAt = now
	existing, err := s.backend.GetServer(saved.ID)
	switch {
	case err == nil:
		saved.CreatedAt = existing.CreatedAt
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("failed to read server: %w", err)
	}
	saved.UpdatedAt = now

	raw, err := s.seal(saved.Password)
	if err != nil {
		s.logger.Error().Err(err).Str("server_id", saved.ID).Msg("Refusing to save server")
		return nil, err
	}

	rec := &types.ServerRecord{
		ID:        saved.ID,
		Name:      saved.Name,
		Host:      saved.Host,
		Username:  saved.Username,
		Password:  raw,
		CreatedAt: saved.CreatedAt,
		UpdatedAt: saved.UpdatedAt,
	}
	if err := s.backend.PutServer(rec); err != nil {
		return nil, fmt.Errorf("failed to save server: %w", err)
	}

	s.logger.Info().Str("server_id", saved.ID).Str("host", saved.Host).Msg("Server saved")
	s.broker.Publish(&events.Event{
		Type:     events.EventServerSaved,
		ServerID: saved.ID,
		Message:  saved.Name,
	})
	return &saved, nil
}

// Delete removes the server together with its cached rules.
// It reports whether the server existed.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.backend.DeleteServer(id)
	if err != nil {
		return false, fmt.Errorf("failed to delete server: %w", err)
	}
	if existed {
		s.logger.Info().Str("server_id", id).Msg("Server deleted")
		s.broker.Publish(&events.Event{
			Type:     events.EventServerDeleted,
			ServerID: id,
		})
	}
	return existed, nil
}

// MigrationReport summarizes an eager migration pass
type MigrationReport struct {
	Total        int      `json:"total"`
	Migrated     []string `json:"migrated"`
	Encrypted    int      `json:"encrypted"`
	Absent       int      `json:"absent"`
	Unreadable   []string `json:"unreadable"`
	DryRun       bool     `json:"dryRun"`
	FailedWrites []string `json:"failedWrites,omitempty"`
}

// MigrateAll encrypts every legacy plaintext password now instead of on
// first read. With dryRun set nothing is written.
func (s *Store) MigrateAll(dryRun bool) (*MigrationReport, error) {
	records, err := s.backend.ListServers()
	if err != nil {
		return nil, err
	}

	report := &MigrationReport{
		Total:      len(records),
		Migrated:   []string{},
		Unreadable: []string{},
		DryRun:     dryRun,
	}

	for _, rec := range records {
		_, state, _ := s.readPassword(rec.Password)
		switch state {
		case passwordAbsent:
			report.Absent++
		case passwordEncrypted:
			report.Encrypted++
		case passwordUnreadable:
			report.Unreadable = append(report.Unreadable, rec.ID)
		case passwordLegacy:
			if dryRun {
				report.Migrated = append(report.Migrated, rec.ID)
				continue
			}
			wrote, err := s.migrate(rec.ID)
			if err != nil {
				s.logger.Error().Err(err).Str("server_id", rec.ID).Msg("Migration failed")
				report.FailedWrites = append(report.FailedWrites, rec.ID)
				continue
			}
			if wrote {
				report.Migrated = append(report.Migrated, rec.ID)
			}
		}
	}

	return report, nil
}
