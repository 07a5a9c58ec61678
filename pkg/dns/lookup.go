package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	mdns "github.com/miekg/dns"
	"github.com/rs/zerolog"
)

// DefaultPort is the port AdGuard Home answers DNS on
const DefaultPort = 53

var (
	// ErrUnsupportedType is returned for a query type name miekg/dns does
	// not know
	ErrUnsupportedType = errors.New("unsupported query type")

	// ErrNoAddress is returned when a server's host has no hostname to
	// query
	ErrNoAddress = errors.New("server host has no DNS address")
)

// Config holds lookup configuration
type Config struct {
	Port    int    // DNS port on the appliance (default: 53)
	Network string // "udp" or "tcp" (default: udp)
}

// DefaultConfig returns the lookup defaults
func DefaultConfig() Config {
	return Config{Port: DefaultPort, Network: "udp"}
}

// Resolver sends queries straight to an appliance's DNS listener, bypassing
// the local resolver, so the answer shows what the appliance's filtering
// does with a name
type Resolver struct {
	gate   *gate.Gate
	config Config
	logger zerolog.Logger
}

// NewResolver creates a resolver. Lookups share the gate's rate limit and
// timeout with control API calls.
func NewResolver(g *gate.Gate, config Config) *Resolver {
	defaults := DefaultConfig()
	if config.Port <= 0 {
		config.Port = defaults.Port
	}
	if config.Network == "" {
		config.Network = defaults.Network
	}
	return &Resolver{
		gate:   g,
		config: config,
		logger: log.WithComponent("dns"),
	}
}

// Answer is the outcome of one lookup
type Answer struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Server  string   `json:"server"`
	Rcode   string   `json:"rcode"`
	Records []string `json:"records"`
	// Blocked is set when the answer has the shape of a filtering block:
	// REFUSED, or only unspecified addresses
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
	RTT     int64  `json:"rttMs"`
}

type exchange struct {
	resp *mdns.Msg
	rtt  time.Duration
}

// Lookup asks the appliance behind srv to resolve name. qtype defaults to A.
func (r *Resolver) Lookup(ctx context.Context, srv *types.Server, name, qtype string) (*Answer, error) {
	if qtype == "" {
		qtype = "A"
	}
	qtype = strings.ToUpper(qtype)
	t, ok := mdns.StringToType[qtype]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, qtype)
	}

	addr, err := r.address(srv.Host)
	if err != nil {
		return nil, err
	}

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(name), t)
	msg.RecursionDesired = true

	c := &mdns.Client{Net: r.config.Network}
	ex, err := gate.Once(ctx, r.gate, func(ctx context.Context) (exchange, error) {
		resp, rtt, err := c.ExchangeContext(ctx, msg, addr)
		return exchange{resp: resp, rtt: rtt}, err
	})
	if err != nil {
		metrics.DNSLookupsTotal.WithLabelValues("failed").Inc()
		r.logger.Debug().Err(err).Str("server", addr).Str("name", name).Msg("DNS lookup failed")
		if errors.Is(err, gate.ErrTimedOut) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: dns %s: %v", client.ErrNetwork, addr, err)
	}

	answer := &Answer{
		Name:    mdns.Fqdn(name),
		Type:    qtype,
		Server:  addr,
		Rcode:   mdns.RcodeToString[ex.resp.Rcode],
		Records: make([]string, 0, len(ex.resp.Answer)),
		RTT:     ex.rtt.Milliseconds(),
	}
	for _, rr := range ex.resp.Answer {
		answer.Records = append(answer.Records, strings.Join(strings.Fields(rr.String()), " "))
	}
	answer.Blocked, answer.Reason = classify(ex.resp)

	result := "allowed"
	if answer.Blocked {
		result = "blocked"
	}
	metrics.DNSLookupsTotal.WithLabelValues(result).Inc()

	r.logger.Debug().
		Str("server", addr).
		Str("name", answer.Name).
		Str("rcode", answer.Rcode).
		Bool("blocked", answer.Blocked).
		Msg("DNS lookup")
	return answer, nil
}

// address derives host:port of the appliance's DNS listener from the control
// API URL
func (r *Resolver) address(host string) (string, error) {
	u, err := url.Parse(host)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrNoAddress, host)
	}
	return net.JoinHostPort(u.Hostname(), strconv.Itoa(r.config.Port)), nil
}

// classify reports whether resp looks like a blocked answer. NXDOMAIN is
// not treated as blocked since it is also the answer for names that do not
// exist.
func classify(resp *mdns.Msg) (bool, string) {
	if resp.Rcode == mdns.RcodeRefused {
		return true, "refused"
	}
	if resp.Rcode != mdns.RcodeSuccess {
		return false, ""
	}

	addresses := 0
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *mdns.A:
			if !v.A.IsUnspecified() {
				return false, ""
			}
			addresses++
		case *mdns.AAAA:
			if !v.AAAA.IsUnspecified() {
				return false, ""
			}
			addresses++
		case *mdns.CNAME:
			// Followed by the records of the target
		default:
			return false, ""
		}
	}
	if addresses == 0 {
		return false, ""
	}
	return true, "unspecified address"
}
