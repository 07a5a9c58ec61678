package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/dns"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:8470", cfg.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, gate.DefaultConfig(), cfg.Gate.Options())
	assert.True(t, cfg.Health.IsEnabled())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
data_dir: /var/lib/burrow
listen: 0.0.0.0:9000
api_token: 0123456789abcdef
log:
  level: debug
  json: true
gate:
  burst: 5
  window: 2s
  timeout: 3s
  retries: 0
  retry_delay: 250ms
client:
  insecure_skip_verify: true
health:
  enabled: false
  interval: 1m
dns:
  port: 5353
  network: tcp
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/burrow", cfg.DataDir)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "0123456789abcdef", cfg.APIToken)
	assert.Equal(t, log.Config{Level: log.DebugLevel, JSONOutput: true}, cfg.Log.Options())
	assert.Equal(t, gate.Config{
		Burst:      5,
		Window:     2 * time.Second,
		Timeout:    3 * time.Second,
		Retries:    0,
		RetryDelay: 250 * time.Millisecond,
	}, cfg.Gate.Options())
	assert.True(t, cfg.Client.InsecureSkipVerify)
	assert.False(t, cfg.Health.IsEnabled())
	assert.Equal(t, time.Minute, cfg.Health.Options().Interval)
	assert.Equal(t, 10*time.Second, cfg.Health.Options().Timeout)
	assert.True(t, cfg.DNS.IsEnabled())
	assert.Equal(t, dns.Config{Port: 5353, Network: "tcp"}, cfg.DNS.Options())
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad listen", yaml: "listen: nope"},
		{name: "bad level", yaml: "log:\n  level: loud"},
		{name: "negative retries", yaml: "gate:\n  retries: -1"},
		{name: "negative window", yaml: "gate:\n  window: -1s"},
		{name: "missing ca file", yaml: "client:\n  ca_file: /does/not/exist.pem"},
		{name: "short api token", yaml: "api_token: abc"},
		{name: "bad dns network", yaml: "dns:\n  network: quic"},
		{name: "dns port out of range", yaml: "dns:\n  port: 70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("listne: 127.0.0.1:1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:1234\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1234", cfg.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
