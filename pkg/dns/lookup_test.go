package dns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/types"
	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFilteringServer answers like an AdGuard Home instance in default
// blocking mode
func startFilteringServer(t *testing.T) int {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := mdns.HandlerFunc(func(w mdns.ResponseWriter, r *mdns.Msg) {
		msg := new(mdns.Msg)
		msg.SetReply(r)
		q := r.Question[0]

		switch q.Name {
		case "ads.example.":
			rr, _ := mdns.NewRR("ads.example. 10 IN A 0.0.0.0")
			msg.Answer = append(msg.Answer, rr)
		case "tracker.example.":
			msg.Rcode = mdns.RcodeRefused
		case "missing.example.":
			msg.Rcode = mdns.RcodeNameError
		case "www.example.":
			cname, _ := mdns.NewRR("www.example. 10 IN CNAME cdn.example.")
			a, _ := mdns.NewRR("cdn.example. 10 IN A 192.0.2.10")
			msg.Answer = append(msg.Answer, cname, a)
		}
		_ = w.WriteMsg(msg)
	})

	started := make(chan struct{})
	server := &mdns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().(*net.UDPAddr).Port
}

func TestLookup(t *testing.T) {
	port := startFilteringServer(t)
	resolver := NewResolver(gate.New(gate.Config{Timeout: 2 * time.Second}), Config{Port: port})
	srv := &types.Server{Host: "http://127.0.0.1:3000"}

	tests := []struct {
		name        string
		query       string
		wantRcode   string
		wantBlocked bool
		wantReason  string
		wantRecords int
	}{
		{name: "null address", query: "ads.example", wantRcode: "NOERROR", wantBlocked: true, wantReason: "unspecified address", wantRecords: 1},
		{name: "refused", query: "tracker.example", wantRcode: "REFUSED", wantBlocked: true, wantReason: "refused"},
		{name: "nxdomain is not a block", query: "missing.example", wantRcode: "NXDOMAIN"},
		{name: "allowed through cname", query: "www.example", wantRcode: "NOERROR", wantRecords: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := resolver.Lookup(context.Background(), srv, tt.query, "")
			require.NoError(t, err)

			assert.Equal(t, tt.query+".", answer.Name)
			assert.Equal(t, "A", answer.Type)
			assert.Equal(t, tt.wantRcode, answer.Rcode)
			assert.Equal(t, tt.wantBlocked, answer.Blocked)
			assert.Equal(t, tt.wantReason, answer.Reason)
			assert.Len(t, answer.Records, tt.wantRecords)
		})
	}
}

func TestLookupErrors(t *testing.T) {
	resolver := NewResolver(gate.New(gate.Config{Timeout: 2 * time.Second}), Config{})

	_, err := resolver.Lookup(context.Background(), &types.Server{Host: "http://127.0.0.1"}, "a.example", "BOGUS")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = resolver.Lookup(context.Background(), &types.Server{Host: "not a url"}, "a.example", "A")
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestLookupUnreachable(t *testing.T) {
	// Nothing listens on the reserved port; TCP gets an immediate refusal
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	resolver := NewResolver(gate.New(gate.Config{Timeout: 2 * time.Second}), Config{Port: port, Network: "tcp"})
	_, err = resolver.Lookup(context.Background(), &types.Server{Host: "https://127.0.0.1"}, "a.example", "A")
	assert.ErrorIs(t, err, client.ErrNetwork)
}

func TestAddress(t *testing.T) {
	resolver := NewResolver(nil, Config{})

	tests := []struct {
		host string
		want string
	}{
		{host: "http://192.168.1.2:3000", want: "192.168.1.2:53"},
		{host: "https://adguard.lan", want: "adguard.lan:53"},
		{host: "http://[fd00::1]:80", want: "[fd00::1]:53"},
	}

	for _, tt := range tests {
		got, err := resolver.address(tt.host)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
