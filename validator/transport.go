package validator

// Default Transport implementation: classic DNS exchange against a set of
// configured upstream servers, with weighted random selection that
// de-prioritizes recently failing upstreams.

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/mroth/weightedrand"

	"github.com/zonecheck/zonecheck/config"
)

// UpstreamTransport exchanges DNS messages with configured upstream servers.
type UpstreamTransport struct {
	servers []*upstreamState
}

type upstreamState struct {
	upstream config.Upstream
	client   *dns.Client
	tcp      *dns.Client

	mu            sync.Mutex
	lastErrorTime time.Time
}

// NewUpstreamTransport creates a transport for the given upstream servers.
func NewUpstreamTransport(upstreams []config.Upstream, timeout config.Duration) (*UpstreamTransport, error) {
	if len(upstreams) == 0 {
		return nil, errors.New("at least one upstream server must be configured")
	}

	servers := make([]*upstreamState, len(upstreams))

	for i, u := range upstreams {
		var netName string
		if u.Net == config.NetTCPTLS {
			netName = "tcp-tls"
		}

		servers[i] = &upstreamState{
			upstream: u,
			client: &dns.Client{
				Net:     netName, // empty selects UDP
				Timeout: timeout.ToDuration(),
				UDPSize: ednsUDPSize,
			},
			tcp: &dns.Client{
				Net:     "tcp",
				Timeout: timeout.ToDuration(),
			},
			lastErrorTime: time.Unix(0, 0),
		}
	}

	return &UpstreamTransport{servers: servers}, nil
}

func (t *UpstreamTransport) String() string {
	result := make([]string, len(t.servers))
	for i, s := range t.servers {
		result[i] = s.upstream.String()
	}

	return fmt.Sprintf("upstreams '%s'", strings.Join(result, "; "))
}

// Exchange sends the query to a weighted-random upstream. On failure one
// alternate upstream is tried before giving up.
func (t *UpstreamTransport) Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	server := t.pickServer(nil)

	response, err := server.exchange(ctx, msg)
	if err == nil {
		return response, nil
	}

	server.markError()

	if len(t.servers) > 1 {
		fallback := t.pickServer(server)

		response, fbErr := fallback.exchange(ctx, msg)
		if fbErr == nil {
			return response, nil
		}

		fallback.markError()
	}

	return nil, err
}

func (s *upstreamState) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	response, _, err := s.client.ExchangeContext(ctx, msg, s.upstream.Address())
	if err != nil {
		return nil, err
	}

	// truncated UDP response: repeat over TCP
	if response.Truncated && s.client.Net == "" {
		response, _, err = s.tcp.ExchangeContext(ctx, msg, s.upstream.Address())
		if err != nil {
			return nil, err
		}
	}

	return response, nil
}

func (s *upstreamState) markError() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErrorTime = time.Now()
}

func (s *upstreamState) sinceLastError() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return time.Since(s.lastErrorTime)
}

// pickServer chooses an upstream by weighted random selection, reducing the
// weight of servers that failed within the last hour.
func (t *UpstreamTransport) pickServer(exclude *upstreamState) *upstreamState {
	var choices []weightedrand.Choice

	for _, server := range t.servers {
		if server == exclude {
			continue
		}

		var weight float64 = 60

		if since := server.sinceLastError(); since < time.Hour {
			weight = math.Max(1, weight-(60-since.Minutes()))
		}

		choices = append(choices, weightedrand.Choice{
			Item:   server,
			Weight: uint(weight),
		})
	}

	if len(choices) == 0 {
		return t.servers[0]
	}

	c, _ := weightedrand.NewChooser(choices...)

	return c.Pick().(*upstreamState)
}
