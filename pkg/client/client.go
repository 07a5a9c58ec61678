package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Appliance control API endpoints
const (
	endpointStatus          = "/control/status"
	endpointFilteringStatus = "/control/filtering/status"
	endpointSetRules        = "/control/filtering/set_rules"
	endpointAddURL          = "/control/filtering/add_url"
	endpointRemoveURL       = "/control/filtering/remove_url"
	endpointProtection      = "/control/protection"
	endpointQueryLog        = "/control/querylog"
	endpointStats           = "/control/stats"
	endpointCheckHost       = "/control/filtering/check_host"
)

const (
	// maxBodySize caps how much of a response is read
	maxBodySize = 8 << 20

	// maxErrorBody caps how much of an error response is kept in HTTPError
	maxErrorBody = 256

	// DefaultQueryLogLimit is used when QueryLog is called with limit <= 0
	DefaultQueryLogLimit = 100
)

// Client talks to DNS-filtering appliances over their HTTP control API.
// Every call is shaped by the gate and authenticated with the credentials of
// the server passed in, so a Client is shared across all appliances.
type Client struct {
	http   *http.Client
	gate   *gate.Gate
	logger zerolog.Logger
}

// New creates a client that sends every request through g.
// A nil tlsConfig uses the system defaults.
func New(g *gate.Gate, tlsConfig *tls.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		http:   &http.Client{Transport: transport},
		gate:   g,
		logger: log.WithComponent("client"),
	}
}

// Status fetches general appliance state
func (c *Client) Status(ctx context.Context, srv *types.Server) (*Status, error) {
	body, err := c.get(ctx, srv, endpointStatus, nil)
	if err != nil {
		return nil, err
	}
	return parseStatus(body)
}

// FilteringStatus fetches filter subscriptions and user rules
func (c *Client) FilteringStatus(ctx context.Context, srv *types.Server) (*FilteringStatus, error) {
	body, err := c.get(ctx, srv, endpointFilteringStatus, nil)
	if err != nil {
		return nil, err
	}
	return parseFilteringStatus(body)
}

// UserRules fetches the appliance's user-defined rule list
func (c *Client) UserRules(ctx context.Context, srv *types.Server) ([]string, error) {
	status, err := c.FilteringStatus(ctx, srv)
	if err != nil {
		return nil, err
	}
	return status.UserRules, nil
}

// SetRules replaces the entire user rule list
func (c *Client) SetRules(ctx context.Context, srv *types.Server, rules []string) error {
	if rules == nil {
		rules = []string{}
	}
	return c.post(ctx, srv, endpointSetRules, map[string]any{"rules": rules})
}

// AddFilterURL subscribes to a filter list
func (c *Client) AddFilterURL(ctx context.Context, srv *types.Server, name, listURL string, whitelist bool) error {
	return c.post(ctx, srv, endpointAddURL, map[string]any{
		"name":      name,
		"url":       listURL,
		"whitelist": whitelist,
	})
}

// RemoveFilterURL unsubscribes from a filter list
func (c *Client) RemoveFilterURL(ctx context.Context, srv *types.Server, listURL string, whitelist bool) error {
	return c.post(ctx, srv, endpointRemoveURL, map[string]any{
		"url":       listURL,
		"whitelist": whitelist,
	})
}

// SetProtection turns filtering on or off
func (c *Client) SetProtection(ctx context.Context, srv *types.Server, enabled bool) error {
	return c.post(ctx, srv, endpointProtection, map[string]any{"enabled": enabled})
}

// QueryLog fetches up to limit of the most recent queries
func (c *Client) QueryLog(ctx context.Context, srv *types.Server, limit int) (*QueryLog, error) {
	if limit <= 0 {
		limit = DefaultQueryLogLimit
	}
	body, err := c.get(ctx, srv, endpointQueryLog, url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}
	return parseQueryLog(body)
}

// Stats fetches aggregate counters
func (c *Client) Stats(ctx context.Context, srv *types.Server) (*Stats, error) {
	body, err := c.get(ctx, srv, endpointStats, nil)
	if err != nil {
		return nil, err
	}
	return parseStats(body)
}

// CheckHost asks whether name is currently filtered
func (c *Client) CheckHost(ctx context.Context, srv *types.Server, name string) (*HostCheck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("host name is required")
	}
	body, err := c.get(ctx, srv, endpointCheckHost, url.Values{"name": {name}})
	if err != nil {
		return nil, err
	}
	return parseHostCheck(name, body)
}

// Probe makes one status call without retry or de-duplication.
// It is used to test credentials before they are saved.
func (c *Client) Probe(ctx context.Context, srv *types.Server) (*Status, error) {
	body, err := gate.Once(ctx, c.gate, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, srv, http.MethodGet, endpointStatus, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	return parseStatus(body)
}

// get issues a de-duplicated read. The key covers a digest of the
// credentials so a password change never shares a result computed with the
// old one, and the key never carries the password itself.
func (c *Client) get(ctx context.Context, srv *types.Server, endpoint string, query url.Values) ([]byte, error) {
	key := strings.Join([]string{http.MethodGet, srv.Host, endpoint, query.Encode(), credentialDigest(srv)}, "\x00")
	return gate.Do(ctx, c.gate, key, func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, srv, http.MethodGet, endpoint, query, nil)
	})
}

func credentialDigest(srv *types.Server) string {
	sum := sha256.Sum256([]byte(srv.Username + "\x00" + srv.Password))
	return hex.EncodeToString(sum[:])
}

// post issues a mutating call; these are never de-duplicated
func (c *Client) post(ctx context.Context, srv *types.Server, endpoint string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	_, err = gate.Do(ctx, c.gate, "", func(ctx context.Context) ([]byte, error) {
		return c.roundTrip(ctx, srv, http.MethodPost, endpoint, nil, data)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, srv *types.Server, method, endpoint string, query url.Values, payload []byte) ([]byte, error) {
	target, err := endpointURL(srv.Host, endpoint, query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(srv.Username, srv.Password)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	timer := metrics.NewTimer()
	resp, err := c.http.Do(req)
	timer.ObserveDurationVec(metrics.ApplianceRequestDuration, endpoint)
	if err != nil {
		metrics.ApplianceRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		c.logger.Debug().Err(err).Str("host", srv.Host).Str("endpoint", endpoint).Msg("Appliance request failed")
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	metrics.ApplianceRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
		}
	}

	return data, nil
}

// endpointURL joins an appliance base URL, which may carry a path prefix,
// with an API endpoint
func endpointURL(host, endpoint string, query url.Values) (string, error) {
	base, err := url.Parse(strings.TrimSpace(host))
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("invalid host %q: scheme must be http or https", host)
	}
	if base.Host == "" {
		return "", fmt.Errorf("invalid host %q: missing host name", host)
	}

	base.Path = strings.TrimRight(base.Path, "/") + endpoint
	base.RawPath = ""
	base.RawQuery = query.Encode()
	base.Fragment = ""
	return base.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
