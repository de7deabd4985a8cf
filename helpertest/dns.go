// Package helpertest contains test doubles and fixture builders: a scripted
// DNS transport, on-the-fly signed zones and certificate helpers. Everything
// here runs without network access.
package helpertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

// FakeDNS is a scripted transport double. Responses are registered per
// (name, qtype) pair; unregistered queries answer NOERROR with an empty
// answer section.
type FakeDNS struct {
	mu      sync.Mutex
	answers map[string][]dns.RR
	rcodes  map[string]int
	errs    map[string]error
	queries []string
}

func NewFakeDNS() *FakeDNS {
	return &FakeDNS{
		answers: make(map[string][]dns.RR),
		rcodes:  make(map[string]int),
		errs:    make(map[string]error),
	}
}

func queryKey(name string, qtype uint16) string {
	return strings.ToLower(dns.Fqdn(name)) + "|" + dns.TypeToString[qtype]
}

// SetAnswer registers the answer section for a query.
func (f *FakeDNS) SetAnswer(name string, qtype uint16, rrs ...dns.RR) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.answers[queryKey(name, qtype)] = rrs
}

// SetRcode registers a non-success RCODE for a query.
func (f *FakeDNS) SetRcode(name string, qtype uint16, rcode int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rcodes[queryKey(name, qtype)] = rcode
}

// SetError registers a transport error for a query.
func (f *FakeDNS) SetError(name string, qtype uint16, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[queryKey(name, qtype)] = err
}

// Queries returns every query seen so far, in order.
func (f *FakeDNS) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string{}, f.queries...)
}

func (f *FakeDNS) Exchange(_ context.Context, msg *dns.Msg) (*dns.Msg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(msg.Question) != 1 {
		return nil, fmt.Errorf("expected exactly one question, got %d", len(msg.Question))
	}

	question := msg.Question[0]
	key := queryKey(question.Name, question.Qtype)
	f.queries = append(f.queries, key)

	if err, ok := f.errs[key]; ok {
		return nil, err
	}

	response := new(dns.Msg)
	response.SetReply(msg)

	if rcode, ok := f.rcodes[key]; ok {
		response.Rcode = rcode

		return response, nil
	}

	response.Answer = f.answers[key]

	return response, nil
}

// TimeoutError satisfies net.Error with Timeout() == true.
type TimeoutError struct{}

func (TimeoutError) Error() string   { return "i/o timeout" }
func (TimeoutError) Timeout() bool   { return true }
func (TimeoutError) Temporary() bool { return true }
