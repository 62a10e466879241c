package blockstore

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDNSResolver answers SRV queries from a fixed table.
type mockDNSResolver struct {
	srvRecords map[string][]*net.SRV
	srvErr     error
}

func (m *mockDNSResolver) LookupSRV(service, proto, name string) (string, []*net.SRV, error) {
	if m.srvErr != nil {
		return "", nil, m.srvErr
	}
	records, ok := m.srvRecords[fmt.Sprintf("_%s._%s.%s", service, proto, name)]
	if !ok {
		return "", nil, fmt.Errorf("no SRV records for _%s._%s.%s", service, proto, name)
	}
	return "", records, nil
}

func TestResolveEndpoints_PrioritySorting(t *testing.T) {
	resolver := &mockDNSResolver{srvRecords: map[string][]*net.SRV{
		"_cryptree._tcp.example.com": {
			{Target: "low.example.com.", Port: 443, Priority: 30, Weight: 10},
			{Target: "heavy.example.com.", Port: 8470, Priority: 5, Weight: 90},
			{Target: "light.example.com.", Port: 8470, Priority: 5, Weight: 10},
		},
	}}

	endpoints, err := ResolveEndpoints("example.com", resolver)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://heavy.example.com:8470",
		"http://light.example.com:8470",
		"https://low.example.com:443",
	}, endpoints)
}

func TestResolveEndpoints_Errors(t *testing.T) {
	_, err := ResolveEndpoints("", &mockDNSResolver{})
	assert.ErrorIs(t, err, ErrDNSLookupFailed)

	_, err = ResolveEndpoints("example.com", &mockDNSResolver{srvErr: errors.New("servfail")})
	assert.ErrorIs(t, err, ErrDNSLookupFailed)

	empty := &mockDNSResolver{srvRecords: map[string][]*net.SRV{"_cryptree._tcp.example.com": {}}}
	_, err = ResolveEndpoints("example.com", empty)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestDNSSECResolver_ImplementsDNSResolver(t *testing.T) {
	var _ DNSResolver = (*DNSSECResolver)(nil)
}

func TestNewDNSSECResolver_Defaults(t *testing.T) {
	assert.Equal(t, "8.8.8.8:53", NewDNSSECResolver("").Upstream)
	assert.Equal(t, "1.1.1.1:53", NewDNSSECResolver("1.1.1.1:53").Upstream)
}

// startDNSServer runs a local UDP DNS server answering every SRV query with
// one record. authenticated controls the AD flag of the reply.
func startDNSServer(t *testing.T, authenticated bool) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			m.AuthenticatedData = authenticated
			m.Answer = append(m.Answer, &dns.SRV{
				Hdr: dns.RR_Header{
					Name:   r.Question[0].Name,
					Rrtype: dns.TypeSRV,
					Class:  dns.ClassINET,
					Ttl:    60,
				},
				Priority: 10,
				Weight:   5,
				Port:     8470,
				Target:   "blocks.example.com.",
			})
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSSECResolver_LookupSRV_Authenticated(t *testing.T) {
	addr := startDNSServer(t, true)

	endpoints, err := ResolveEndpoints("example.com", NewDNSSECResolver(addr))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://blocks.example.com:8470"}, endpoints)
}

func TestDNSSECResolver_LookupSRV_Unauthenticated(t *testing.T) {
	addr := startDNSServer(t, false)

	_, _, err := NewDNSSECResolver(addr).LookupSRV(SRVService, "tcp", "example.com")
	assert.ErrorIs(t, err, ErrDNSSECValidationFailed)
}
