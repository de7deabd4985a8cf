// Package validator implements DNSSEC chain-of-trust validation per RFC 4033,
// 4034 and 4035, and TLSA/DANE certificate binding checks per RFC 6698.
//
// The engine walks the chain of trust from the configured trust anchors down
// to the target domain, verifying the DS/DNSKEY binding and the DNSKEY RRSIG
// at every zone cut, and optionally matches the live TLS certificate against
// the domain's TLSA records. One validation run is a self-contained, stateless
// computation over injected I/O interfaces; independent runs share no mutable
// state and may execute concurrently.
//
// Example usage:
//
//	cfg, err := config.NewConfig()
//	if err != nil {
//		log.Log().Fatal(err)
//	}
//	cfg.Upstreams = []config.Upstream{{Net: config.NetTCPUDP, Host: "9.9.9.9", Port: 53}}
//
//	v, err := validator.New(cfg, nil, nil)
//	if err != nil {
//		log.Log().Fatal(err)
//	}
//
//	result := v.Validate(ctx, "bondit.dk.")
//	switch result.Status {
//	case model.StatusValid:
//		// chain of trust verified down to the target zone
//	case model.StatusInsecure:
//		// unsigned delegation above the target zone
//	case model.StatusBogus:
//		// cryptographically invalid (attack or misconfiguration)
//	case model.StatusIndeterminate:
//		// validation could not be completed
//	}
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/zonecheck/zonecheck/config"
	"github.com/zonecheck/zonecheck/evt"
	"github.com/zonecheck/zonecheck/log"
	"github.com/zonecheck/zonecheck/model"
)

const ednsUDPSize = 4096 // EDNS UDP buffer size for DNSSEC queries

// Transport sends a single DNS query to an upstream server and returns the
// raw response. Implementations must be safe for concurrent use.
type Transport interface {
	Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error)
}

// Validator validates DNSSEC chains of trust and DANE certificate bindings.
// It is a pure function of (domain, config, now) over the injected transport
// and certificate fetcher; it holds no caches and no per-run state.
type Validator struct {
	cfg       *config.Config
	transport Transport
	certs     CertFetcher
	anchors   *TrustAnchorStore
	logger    *logrus.Entry
}

// New creates a validation engine. Passing nil for transport or certs selects
// the default implementations (DNS exchange against cfg.Upstreams, live TLS
// handshake). The trust anchor store is built once here and never mutated.
func New(cfg *config.Config, transport Transport, certs CertFetcher) (*Validator, error) {
	anchors, err := NewTrustAnchorStore(cfg.TrustAnchors)
	if err != nil {
		return nil, err
	}

	if transport == nil {
		transport, err = NewUpstreamTransport(cfg.Upstreams, cfg.QueryTimeout)
		if err != nil {
			return nil, err
		}
	}

	if certs == nil {
		certs = NewTLSCertFetcher(cfg.TLSA.HandshakeTimeout)
	}

	return &Validator{
		cfg:       cfg,
		transport: transport,
		certs:     certs,
		anchors:   anchors,
		logger:    log.PrefixedLog("validator"),
	}, nil
}

// Validate walks the chain of trust for domain and returns the report.
// It never returns a Go error: every outcome, including total DNS
// unreachability, is encoded in the result.
func (v *Validator) Validate(ctx context.Context, domain string) *model.ValidationResult {
	return v.validate(ctx, domain, false)
}

// ValidateWithDANE additionally checks the TLSA/DANE certificate binding for
// the service tuple configured in cfg.TLSA.
func (v *Validator) ValidateWithDANE(ctx context.Context, domain string) *model.ValidationResult {
	return v.validate(ctx, domain, true)
}

func (v *Validator) validate(ctx context.Context, domain string, withDANE bool) *model.ValidationResult {
	runID := uuid.New().String()
	logger := v.logger.WithFields(logrus.Fields{
		"run":    runID[:8],
		"domain": log.EscapeInput(domain),
	})

	domain = canonicalName(domain)
	if _, ok := dns.IsDomainName(domain); !ok {
		logger.Warnf("Rejecting invalid domain name")

		walk := &walkResult{}
		walk.addError(fmt.Errorf("invalid domain name: %s", log.EscapeInput(domain)))

		result := buildResult(domain, walk, nil, time.Now())
		v.publish(result)

		return result
	}

	if v.cfg.RequestDeadline.IsAboveZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.RequestDeadline.ToDuration())

		defer cancel()
	}

	start := time.Now()
	walk := v.walkChain(ctx, logger, domain)

	var summary *model.TLSASummary
	if withDANE {
		summary = v.validateDANE(ctx, logger, domain, walk)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		walk.addError(errors.New("request deadline exceeded, returning partial chain"))
	}

	// validation time is assigned exactly once, after the walk completed
	result := buildResult(domain, walk, summary, time.Now())

	logger.WithFields(logrus.Fields{
		"status":      result.Status.String(),
		"links":       len(result.ChainOfTrust),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Infof("validation finished")

	v.publish(result)

	return result
}

// publish feeds the analytics collaborator. Fire-and-forget: subscribers run
// outside the request path and can never affect the returned result.
func (v *Validator) publish(result *model.ValidationResult) {
	evt.Bus().Publish(evt.ValidationFinished, result.Domain, result.Status.String(), v.cfg.Source)

	if result.TLSASummary != nil {
		evt.Bus().Publish(evt.ValidationDANEChecked,
			result.Domain, result.TLSASummary.DaneStatus.String(), result.TLSASummary.RecordsFound)
	}
}

// canonicalName normalizes a domain to its canonical FQDN form (lowercase,
// trailing dot) as required for wire-format comparisons.
func canonicalName(domain string) string {
	return dns.CanonicalName(domain)
}
