package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(seed byte) *security.Codec {
	return security.NewCodecWithEntropy(&security.Entropy{
		InstanceID:   "test-instance",
		DeviceSecret: bytes.Repeat([]byte{seed}, security.DeviceSecretSize),
	})
}

func newTestStore(t *testing.T) (*Store, *storage.BoltStore) {
	t.Helper()
	backend, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return New(backend, testCodec(1), nil), backend
}

func validServer() *types.Server {
	return &types.Server{
		Name:     "home",
		Host:     "https://10.0.0.1",
		Username: "admin",
		Password: "secret",
	}
}

func TestSaveThenGet(t *testing.T) {
	store, backend := newTestStore(t)

	saved, err := store.Save(validServer())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "secret", saved.Password)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.Password)
	assert.Equal(t, "admin", got.Username)

	rec, err := backend.GetServer(saved.ID)
	require.NoError(t, err)
	assert.True(t, security.IsEncrypted(rec.Password))
	assert.NotContains(t, string(rec.Password), "secret")

	var fields map[string]any
	require.NoError(t, json.Unmarshal(rec.Password, &fields))
	assert.Contains(t, fields, "ciphertext")
	assert.Contains(t, fields, "iv")
	assert.Equal(t, float64(security.CurrentVersion), fields["version"])
}

func TestLegacyPasswordMigratedOnRead(t *testing.T) {
	store, backend := newTestStore(t)

	require.NoError(t, backend.PutServer(&types.ServerRecord{
		ID:        "legacy",
		Name:      "old",
		Host:      "http://192.168.1.2",
		Username:  "admin",
		Password:  json.RawMessage(`"hunter2"`),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	first, err := store.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", first.Password)

	rec, err := backend.GetServer("legacy")
	require.NoError(t, err)
	require.True(t, security.IsEncrypted(rec.Password), "first read must persist ciphertext")
	afterFirst := string(rec.Password)

	second, err := store.Get("legacy")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", second.Password)

	rec, err = backend.GetServer("legacy")
	require.NoError(t, err)
	assert.Equal(t, afterFirst, string(rec.Password), "second read must not rewrite")
	assert.True(t, rec.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestUndecryptablePasswordOmitted(t *testing.T) {
	store, backend := newTestStore(t)

	secret, err := testCodec(2).Encrypt("from-another-device")
	require.NoError(t, err)
	raw, err := json.Marshal(secret)
	require.NoError(t, err)

	require.NoError(t, backend.PutServer(&types.ServerRecord{
		ID:       "foreign",
		Name:     "moved",
		Host:     "https://10.0.0.9",
		Username: "admin",
		Password: raw,
	}))

	got, err := store.Get("foreign")
	require.NoError(t, err)
	assert.Equal(t, "moved", got.Name)
	assert.Empty(t, got.Password)

	rec, err := backend.GetServer("foreign")
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(rec.Password), "unreadable secret must be left untouched")
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSaveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.Server)
		want   []string
	}{
		{
			name:   "missing name",
			mutate: func(s *types.Server) { s.Name = "  " },
			want:   []string{"name is required"},
		},
		{
			name:   "host not a url",
			mutate: func(s *types.Server) { s.Host = "10.0.0.1" },
			want:   []string{"host must be a valid http or https URL"},
		},
		{
			name: "everything missing",
			mutate: func(s *types.Server) {
				*s = types.Server{}
			},
			want: []string{"name is required", "host is required", "username is required", "password is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, backend := newTestStore(t)
			srv := validServer()
			tt.mutate(srv)

			_, err := store.Save(srv)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Problems)

			records, err := backend.ListServers()
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestValidationMessageJoined(t *testing.T) {
	err := Validate(&types.Server{Host: "https://10.0.0.1", Password: "x"})
	assert.EqualError(t, err, "name is required; username is required")
}

type failingCodec struct{}

func (failingCodec) Encrypt(string) (*security.EncryptedSecret, error) {
	return nil, errors.New("key unavailable")
}

func (failingCodec) Decrypt(*security.EncryptedSecret) (string, error) {
	return "", security.ErrDecryptionFailed
}

func TestSaveEncryptionFailureDoesNotPersist(t *testing.T) {
	backend, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer backend.Close()

	store := New(backend, failingCodec{}, nil)
	_, err = store.Save(validServer())
	assert.ErrorIs(t, err, security.ErrEncryptionFailed)

	records, err := backend.ListServers()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveTimestamps(t *testing.T) {
	store, _ := newTestStore(t)
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }

	first, err := store.Save(validServer())
	require.NoError(t, err)

	store.now = func() time.Time { return t0.Add(time.Hour) }
	update := *first
	update.Password = "rotated"
	second, err := store.Save(&update)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(t0))
	assert.True(t, second.UpdatedAt.Equal(t0.Add(time.Hour)))

	got, err := store.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Password)
}

func TestDeleteRemovesRuleCache(t *testing.T) {
	store, backend := newTestStore(t)

	saved, err := store.Save(validServer())
	require.NoError(t, err)
	require.NoError(t, backend.PutRuleCache(&types.RuleCacheEntry{ServerID: saved.ID, Rules: []string{"||a.example^"}, Count: 1}))

	existed, err := store.Delete(saved.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = backend.GetRuleCache(saved.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	existed, err = store.Delete(saved.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestListDecrypts(t *testing.T) {
	store, backend := newTestStore(t)

	_, err := store.Save(validServer())
	require.NoError(t, err)
	require.NoError(t, backend.PutServer(&types.ServerRecord{
		ID:        "legacy",
		Name:      "old",
		Host:      "http://192.168.1.2",
		Username:  "admin",
		Password:  json.RawMessage(`"hunter2"`),
		CreatedAt: time.Now().Add(time.Hour),
	}))

	servers, err := store.List()
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "secret", servers[0].Password)
	assert.Equal(t, "hunter2", servers[1].Password)

	rec, err := backend.GetServer("legacy")
	require.NoError(t, err)
	assert.True(t, security.IsEncrypted(rec.Password))
}

func TestMigrateAll(t *testing.T) {
	store, backend := newTestStore(t)

	_, err := store.Save(validServer())
	require.NoError(t, err)
	for _, id := range []string{"legacy-a", "legacy-b"} {
		require.NoError(t, backend.PutServer(&types.ServerRecord{
			ID:       id,
			Name:     id,
			Host:     "http://192.168.1.2",
			Username: "admin",
			Password: json.RawMessage(`"plain"`),
		}))
	}
	require.NoError(t, backend.PutServer(&types.ServerRecord{ID: "no-password", Name: "x"}))

	report, err := store.MigrateAll(true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.ElementsMatch(t, []string{"legacy-a", "legacy-b"}, report.Migrated)

	rec, err := backend.GetServer("legacy-a")
	require.NoError(t, err)
	assert.False(t, security.IsEncrypted(rec.Password), "dry run must not write")

	report, err = store.MigrateAll(false)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.ElementsMatch(t, []string{"legacy-a", "legacy-b"}, report.Migrated)
	assert.Equal(t, 1, report.Encrypted)
	assert.Equal(t, 1, report.Absent)
	assert.Empty(t, report.Unreadable)

	report, err = store.MigrateAll(false)
	require.NoError(t, err)
	assert.Empty(t, report.Migrated)
	assert.Equal(t, 3, report.Encrypted)
}
